// Package transport wraps one physical media-server connection for one
// local identity and turns its callbacks into an ordered event stream.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/yahabaat/voiceroom/internal/core"
	"github.com/yahabaat/voiceroom/internal/domain"
)

const eventBuffer = 64

// Session owns at most one live MediaRoom. It is created per join and never
// reused: a new join always builds a new Session.
type Session struct {
	serverURL string
	room      domain.RoomName
	identity  domain.Identity
	tokens    core.TokenSource
	dialer    core.MediaDialer
	sinks     *sinkRegistry

	mu     sync.Mutex
	mr     core.MediaRoom
	micOn  bool
	closed bool

	events    chan core.Event
	closeOnce sync.Once
}

func NewSession(
	serverURL string,
	room domain.RoomName,
	identity domain.Identity,
	tokens core.TokenSource,
	dialer core.MediaDialer,
	sinks core.SinkFactory,
) *Session {
	if sinks == nil {
		sinks = DiscardSinks
	}
	return &Session{
		serverURL: serverURL,
		room:      room,
		identity:  identity,
		tokens:    tokens,
		dialer:    dialer,
		sinks:     newSinkRegistry(sinks),
		events:    make(chan core.Event, eventBuffer),
	}
}

func (s *Session) Room() domain.RoomName     { return s.room }
func (s *Session) Identity() domain.Identity { return s.identity }

// Events is the ordered stream of transport events. It terminates
// (channel closed) once the session is disconnected.
func (s *Session) Events() <-chan core.Event { return s.events }

// Connect fetches a credential, opens the physical connection and enables
// the local microphone. On any failure no partial session is retained.
func (s *Session) Connect(ctx context.Context) error {
	token, err := s.tokens.Fetch(ctx, s.room, s.identity)
	if err != nil {
		return fmt.Errorf("%w: fetching token: %w", core.ErrConnectionFailed, err)
	}

	mr, err := s.dialer.Dial(ctx, s.serverURL, token, s.handlers())
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrConnectionFailed, err)
	}

	s.mu.Lock()
	if s.closed {
		// Disconnected while the handshake was in flight.
		s.mu.Unlock()
		mr.Disconnect()
		return fmt.Errorf("%w: session closed during connect", core.ErrConnectionFailed)
	}
	s.mr = mr
	s.mu.Unlock()

	// Remotes already in the room never produce a join callback; surface
	// them as events so the roster starts complete.
	for _, ri := range mr.RemoteParticipants() {
		s.emit(core.Event{Type: core.EventParticipantJoined, Identity: ri.Identity})
		if ri.Muted {
			s.emit(core.Event{Type: core.EventTrackMuted, Identity: ri.Identity})
		}
	}

	if err := mr.SetMicrophoneEnabled(true); err != nil {
		log.Warn().Str("module", "transport").Err(err).Msg("enable microphone")
	} else {
		s.mu.Lock()
		s.micOn = true
		s.mu.Unlock()
	}
	return nil
}

// SetMicrophoneEnabled toggles local audio publishing and reports the
// previous state. Without a live connection it is a no-op returning muted.
func (s *Session) SetMicrophoneEnabled(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mr == nil || s.closed {
		return false
	}
	prev := s.micOn
	if err := s.mr.SetMicrophoneEnabled(enabled); err != nil {
		log.Warn().Str("module", "transport").Err(err).Msg("set microphone")
		return prev
	}
	s.micOn = enabled
	return prev
}

// MicrophoneEnabled reports the current local mic state.
func (s *Session) MicrophoneEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micOn && s.mr != nil && !s.closed
}

// Disconnect tears down the connection and all attached sinks. Idempotent:
// later calls, and calls without a live connection, do nothing.
func (s *Session) Disconnect() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		mr := s.mr
		s.mr = nil
		s.micOn = false
		s.mu.Unlock()

		s.sinks.closeAll()
		if mr != nil {
			mr.Disconnect()
		}

		s.mu.Lock()
		close(s.events)
		s.mu.Unlock()
		log.Info().Str("module", "transport").Str("room", string(s.room)).Msg("session disconnected")
	})
}

func (s *Session) emit(ev core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		log.Warn().Str("module", "transport").Str("event", ev.Type.String()).Msg("event dropped: slow consumer")
	}
}

func (s *Session) handlers() core.MediaHandlers {
	return core.MediaHandlers{
		OnConnected: func() {
			s.emit(core.Event{Type: core.EventConnected})
		},
		OnDisconnected: func() {
			s.emit(core.Event{Type: core.EventDisconnected})
		},
		OnParticipantJoined: func(id domain.Identity) {
			s.emit(core.Event{Type: core.EventParticipantJoined, Identity: id})
		},
		OnParticipantLeft: func(id domain.Identity) {
			s.sinks.detach(id)
			s.emit(core.Event{Type: core.EventParticipantLeft, Identity: id})
		},
		OnTrackAdded: func(id domain.Identity, track core.RemoteTrack) {
			s.sinks.attach(id, track)
			s.emit(core.Event{Type: core.EventTrackAdded, Identity: id})
		},
		OnTrackRemoved: func(id domain.Identity) {
			s.sinks.detach(id)
			s.emit(core.Event{Type: core.EventTrackRemoved, Identity: id})
		},
		OnTrackMuted: func(id domain.Identity, muted bool) {
			if muted {
				s.emit(core.Event{Type: core.EventTrackMuted, Identity: id})
			} else {
				s.emit(core.Event{Type: core.EventTrackUnmuted, Identity: id})
			}
		},
		OnActiveSpeakersChanged: func(ids []domain.Identity) {
			s.emit(core.Event{Type: core.EventActiveSpeakersChanged, Speakers: ids})
		},
		OnLocalTrackPublished: func() {
			s.emit(core.Event{Type: core.EventLocalTrackPublished})
		},
	}
}
