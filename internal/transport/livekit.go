package transport

import (
	"context"
	"fmt"
	"sync"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/yahabaat/voiceroom/internal/core"
	"github.com/yahabaat/voiceroom/internal/domain"
)

// LiveKitDialer implements core.MediaDialer over the LiveKit SDK.
type LiveKitDialer struct {
	// MicPath optionally names an audio file (ogg) published as the
	// local microphone track. Empty means join listen-only.
	MicPath string
}

func (d *LiveKitDialer) Dial(ctx context.Context, url, token string, h core.MediaHandlers) (core.MediaRoom, error) {
	cb := &lksdk.RoomCallback{
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			if h.OnParticipantJoined != nil {
				h.OnParticipantJoined(domain.Identity(rp.Identity()))
			}
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			if h.OnParticipantLeft != nil {
				h.OnParticipantLeft(domain.Identity(rp.Identity()))
			}
		},
		OnDisconnected: func() {
			if h.OnDisconnected != nil {
				h.OnDisconnected()
			}
		},
		OnActiveSpeakersChanged: func(speakers []lksdk.Participant) {
			if h.OnActiveSpeakersChanged == nil {
				return
			}
			ids := make([]domain.Identity, 0, len(speakers))
			for _, sp := range speakers {
				ids = append(ids, domain.Identity(sp.Identity()))
			}
			h.OnActiveSpeakersChanged(ids)
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if track.Kind() != webrtc.RTPCodecTypeAudio {
					return
				}
				if h.OnTrackAdded != nil {
					h.OnTrackAdded(domain.Identity(rp.Identity()), remoteTrack{track})
				}
			},
			OnTrackUnsubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if h.OnTrackRemoved != nil {
					h.OnTrackRemoved(domain.Identity(rp.Identity()))
				}
			},
			OnTrackMuted: func(pub lksdk.TrackPublication, p lksdk.Participant) {
				if h.OnTrackMuted != nil {
					h.OnTrackMuted(domain.Identity(p.Identity()), true)
				}
			},
			OnTrackUnmuted: func(pub lksdk.TrackPublication, p lksdk.Participant) {
				if h.OnTrackMuted != nil {
					h.OnTrackMuted(domain.Identity(p.Identity()), false)
				}
			},
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(url, token, cb)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		room.Disconnect()
		return nil, err
	}
	if h.OnConnected != nil {
		h.OnConnected()
	}

	lr := &liveKitRoom{room: room}
	if d.MicPath != "" {
		if err := lr.publishMic(d.MicPath); err != nil {
			room.Disconnect()
			return nil, fmt.Errorf("publishing microphone track: %w", err)
		}
		if h.OnLocalTrackPublished != nil {
			h.OnLocalTrackPublished()
		}
	}
	return lr, nil
}

type liveKitRoom struct {
	room *lksdk.Room

	mu     sync.Mutex
	micPub *lksdk.LocalTrackPublication
}

func (lr *liveKitRoom) publishMic(path string) error {
	track, err := lksdk.NewLocalFileTrack(path)
	if err != nil {
		return err
	}
	pub, err := lr.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name: "microphone",
	})
	if err != nil {
		return err
	}
	lr.mu.Lock()
	lr.micPub = pub
	lr.mu.Unlock()
	return nil
}

func (lr *liveKitRoom) RemoteParticipants() []core.RemoteInfo {
	remotes := lr.room.GetRemoteParticipants()
	out := make([]core.RemoteInfo, 0, len(remotes))
	for _, rp := range remotes {
		info := core.RemoteInfo{Identity: domain.Identity(rp.Identity())}
		for _, pub := range rp.TrackPublications() {
			if pub.Kind() == lksdk.TrackKindAudio && pub.IsMuted() {
				info.Muted = true
			}
		}
		out = append(out, info)
	}
	return out
}

func (lr *liveKitRoom) SetMicrophoneEnabled(enabled bool) error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.micPub == nil {
		return nil
	}
	lr.micPub.SetMuted(!enabled)
	return nil
}

func (lr *liveKitRoom) Disconnect() {
	lr.room.Disconnect()
}

// remoteTrack adapts a webrtc track to the narrow core.RemoteTrack surface.
type remoteTrack struct {
	tr *webrtc.TrackRemote
}

func (t remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := t.tr.ReadRTP()
	return pkt, err
}
