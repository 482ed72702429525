package core

import (
	"context"

	"github.com/pion/rtp"

	"github.com/yahabaat/voiceroom/internal/domain"
)

// TokenSource fetches a credential scoped to one room and one identity.
// Implementations: the in-process issuer and the HTTP token client.
type TokenSource interface {
	Fetch(ctx context.Context, room domain.RoomName, identity domain.Identity) (string, error)
}

// RemoteTrack is the minimal readable surface of a subscribed audio track.
type RemoteTrack interface {
	ReadRTP() (*rtp.Packet, error)
}

// AudioSink is a playout destination for one remote participant's audio.
// Owned by the transport session; the session must Close() it on detach.
type AudioSink interface {
	WriteRTP(p *rtp.Packet) error
	Close() error
}

// SinkFactory builds the sink attached when a remote audio track arrives.
type SinkFactory func(identity domain.Identity) (AudioSink, error)

// RemoteInfo is a read-only view of a remote participant already in the
// room at connect time.
type RemoteInfo struct {
	Identity domain.Identity
	Muted    bool
}

// MediaHandlers receive raw callbacks from the media server connection.
// The dialer must invoke them serially, in delivery order.
type MediaHandlers struct {
	OnConnected             func()
	OnDisconnected          func()
	OnParticipantJoined     func(identity domain.Identity)
	OnParticipantLeft       func(identity domain.Identity)
	OnTrackAdded            func(identity domain.Identity, track RemoteTrack)
	OnTrackRemoved          func(identity domain.Identity)
	OnTrackMuted            func(identity domain.Identity, muted bool)
	OnActiveSpeakersChanged func(identities []domain.Identity)
	OnLocalTrackPublished   func()
}

// MediaRoom is one live physical connection to the media server.
// Exclusively owned by a single transport session.
type MediaRoom interface {
	// RemoteParticipants lists participants present at connect time.
	RemoteParticipants() []RemoteInfo
	// SetMicrophoneEnabled toggles publishing of the local audio track.
	SetMicrophoneEnabled(enabled bool) error
	// Disconnect tears down the connection. Must be safe to call twice.
	Disconnect()
}

// MediaDialer opens media connections. The handshake details (bitrate
// adaptation, forwarding) belong to the implementation.
type MediaDialer interface {
	Dial(ctx context.Context, url, token string, h MediaHandlers) (MediaRoom, error)
}

// PresenceStore is the shared best-effort record of who claims to be in a
// room. Watch delivers the full current subtree on every change, never a diff.
type PresenceStore interface {
	SetParticipant(ctx context.Context, room domain.RoomID, identity domain.Identity) error
	RemoveParticipant(ctx context.Context, room domain.RoomID, identity domain.Identity) error
	Heartbeat(ctx context.Context, room domain.RoomID, identity domain.Identity) error
	Snapshot(ctx context.Context, room domain.RoomID) ([]domain.PresenceEntry, error)
	Watch(ctx context.Context, room domain.RoomID) (<-chan []domain.PresenceEntry, error)
}

// RoomDirectory is the lobby-facing room registry kept in the shared store.
type RoomDirectory interface {
	CreateRoom(ctx context.Context, name domain.RoomName, createdBy string) (*domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.RoomInfo, error)
}
