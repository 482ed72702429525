package core

import "github.com/yahabaat/voiceroom/internal/domain"

// EventType enumerates everything the media transport can report.
// The set mirrors what a room client needs to rebuild the roster.
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventParticipantJoined
	EventParticipantLeft
	EventTrackAdded
	EventTrackRemoved
	EventTrackMuted
	EventTrackUnmuted
	EventActiveSpeakersChanged
	EventLocalTrackPublished
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventParticipantJoined:
		return "participant_joined"
	case EventParticipantLeft:
		return "participant_left"
	case EventTrackAdded:
		return "track_added"
	case EventTrackRemoved:
		return "track_removed"
	case EventTrackMuted:
		return "track_muted"
	case EventTrackUnmuted:
		return "track_unmuted"
	case EventActiveSpeakersChanged:
		return "active_speakers_changed"
	case EventLocalTrackPublished:
		return "local_track_published"
	}
	return "unknown"
}

// Event is one item of the transport's ordered stream. Identity is set for
// per-participant events; Speakers only for EventActiveSpeakersChanged.
type Event struct {
	Type     EventType
	Identity domain.Identity
	Speakers []domain.Identity
}
