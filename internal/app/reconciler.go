// Package app holds the session orchestration: the roster reconciler and
// the per-room session controller.
package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/yahabaat/voiceroom/internal/core"
	"github.com/yahabaat/voiceroom/internal/domain"
)

type remoteState struct {
	muted bool
}

// Reconciler folds transport events and presence snapshots into one roster.
// Transport events are authoritative for membership; presence feeds only the
// informational online count. Every event triggers a full-snapshot rebuild
// so subscribers never observe a roster mixing two transport states.
type Reconciler struct {
	mu        sync.Mutex
	local     domain.Identity
	localMute bool
	remotes   map[domain.Identity]*remoteState
	joinOrder []domain.Identity
	speakers  map[domain.Identity]bool
	online    int
	subs      []func(domain.RosterView)
}

func NewReconciler(local domain.Identity) *Reconciler {
	return &Reconciler{
		local:    local,
		remotes:  make(map[domain.Identity]*remoteState),
		speakers: make(map[domain.Identity]bool),
	}
}

// Subscribe registers a roster listener. Callbacks run synchronously with
// event processing, preserving event order.
func (r *Reconciler) Subscribe(fn func(domain.RosterView)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// Apply folds one transport event and publishes the rebuilt roster.
func (r *Reconciler) Apply(ev core.Event) {
	r.mu.Lock()
	switch ev.Type {
	case core.EventConnected, core.EventTrackRemoved:
		// membership unchanged; rebuild below keeps subscribers current

	case core.EventDisconnected:
		r.remotes = make(map[domain.Identity]*remoteState)
		r.joinOrder = r.joinOrder[:0]
		r.speakers = make(map[domain.Identity]bool)

	case core.EventParticipantJoined, core.EventTrackAdded:
		r.ensureRemote(ev.Identity)

	case core.EventParticipantLeft:
		r.dropRemote(ev.Identity)

	case core.EventTrackMuted:
		if rs := r.ensureRemote(ev.Identity); rs != nil {
			rs.muted = true
		}

	case core.EventTrackUnmuted:
		if rs := r.ensureRemote(ev.Identity); rs != nil {
			rs.muted = false
		}

	case core.EventActiveSpeakersChanged:
		r.speakers = make(map[domain.Identity]bool, len(ev.Speakers))
		for _, id := range ev.Speakers {
			// A stale speaker set may still name a participant that
			// already left; the leave wins.
			if id == r.local || r.remotes[id] != nil {
				r.speakers[id] = true
			}
		}

	case core.EventLocalTrackPublished:
		r.localMute = false
	}
	view := r.rebuildLocked()
	subs := r.subs
	r.mu.Unlock()

	for _, fn := range subs {
		fn(view)
	}
}

// ApplyPresence replaces the informational online count from a full
// presence snapshot. Membership is untouched.
func (r *Reconciler) ApplyPresence(entries []domain.PresenceEntry) {
	r.mu.Lock()
	r.online = len(entries)
	view := r.rebuildLocked()
	subs := r.subs
	r.mu.Unlock()

	for _, fn := range subs {
		fn(view)
	}
}

// SetLocalMuted records the local mic state and republishes.
func (r *Reconciler) SetLocalMuted(muted bool) {
	r.mu.Lock()
	r.localMute = muted
	view := r.rebuildLocked()
	subs := r.subs
	r.mu.Unlock()

	for _, fn := range subs {
		fn(view)
	}
}

// Snapshot returns the current roster without publishing.
func (r *Reconciler) Snapshot() domain.RosterView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rebuildLocked()
}

func (r *Reconciler) ensureRemote(id domain.Identity) *remoteState {
	if id == "" || id == r.local {
		return nil
	}
	if rs, ok := r.remotes[id]; ok {
		return rs
	}
	rs := &remoteState{}
	r.remotes[id] = rs
	r.joinOrder = append(r.joinOrder, id)
	log.Debug().Str("module", "app.reconciler").Str("identity", string(id)).Msg("remote added")
	return rs
}

func (r *Reconciler) dropRemote(id domain.Identity) {
	if _, ok := r.remotes[id]; !ok {
		return
	}
	delete(r.remotes, id)
	delete(r.speakers, id)
	for i, jid := range r.joinOrder {
		if jid == id {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			break
		}
	}
	log.Debug().Str("module", "app.reconciler").Str("identity", string(id)).Msg("remote removed")
}

func (r *Reconciler) rebuildLocked() domain.RosterView {
	out := make([]domain.Participant, 0, len(r.remotes)+1)
	out = append(out, domain.Participant{
		Identity:   r.local,
		IsLocal:    true,
		IsSpeaking: r.speakers[r.local],
		IsMuted:    r.localMute,
	})
	for _, id := range r.joinOrder {
		rs := r.remotes[id]
		out = append(out, domain.Participant{
			Identity:   id,
			IsSpeaking: r.speakers[id],
			IsMuted:    rs.muted,
		})
	}
	return domain.RosterView{Participants: out, OnlineCount: r.online}
}
