package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yahabaat/voiceroom/internal/core"
	"github.com/yahabaat/voiceroom/internal/domain"
	"github.com/yahabaat/voiceroom/internal/transport"
)

// State is the controller lifecycle position.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateLeaving
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLeaving:
		return "leaving"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

const presenceOpTimeout = 5 * time.Second

// Options wires a Controller. Dialer and Tokens are required; Presence may
// be nil for transport-only callers.
type Options struct {
	ServerURL       string
	Tokens          core.TokenSource
	Dialer          core.MediaDialer
	Sinks           core.SinkFactory
	Presence        core.PresenceStore
	HeartbeatPeriod time.Duration
}

// Controller owns exactly one transport session and one presence entry at a
// time. All transitions are serialized under one mutex; every blocking call
// re-checks the join epoch on resumption so stale results are discarded.
type Controller struct {
	opts Options

	mu          sync.Mutex
	state       State
	epoch       uint64
	sess        *transport.Session
	rec         *Reconciler
	room        domain.Room
	identity    domain.Identity
	lastErr     error
	cancelWatch context.CancelFunc
	subs        []func(domain.RosterView)
}

func NewController(opts Options) *Controller {
	if opts.HeartbeatPeriod <= 0 {
		opts.HeartbeatPeriod = 30 * time.Second
	}
	return &Controller{opts: opts}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error carried by the Failed state, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Subscribe registers a roster listener for the current and all future
// sessions of this controller.
func (c *Controller) Subscribe(fn func(domain.RosterView)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
	if c.rec != nil {
		c.rec.Subscribe(fn)
	}
}

// Roster returns the current roster snapshot, empty when not connected.
func (c *Controller) Roster() domain.RosterView {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	if rec == nil {
		return domain.RosterView{}
	}
	return rec.Snapshot()
}

// Join connects identity to room. A join while one is already in flight
// fails with ErrAlreadyJoining and creates no second session. A join from
// Failed clears the prior error and retries.
func (c *Controller) Join(ctx context.Context, identity domain.Identity, room domain.Room) error {
	if err := domain.ValidateIdentity(string(identity)); err != nil {
		return err
	}
	if err := domain.ValidateRoomName(string(room.Name)); err != nil {
		return err
	}

	c.mu.Lock()
	switch c.state {
	case StateConnecting:
		c.mu.Unlock()
		return core.ErrAlreadyJoining
	case StateConnected, StateLeaving:
		c.mu.Unlock()
		return core.ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.lastErr = nil
	c.epoch++
	epoch := c.epoch
	sess := transport.NewSession(c.opts.ServerURL, room.Name, identity, c.opts.Tokens, c.opts.Dialer, c.opts.Sinks)
	c.sess = sess
	c.room = room
	c.identity = identity
	c.mu.Unlock()

	log.Info().Str("module", "app.controller").Str("room", string(room.Name)).Str("identity", string(identity)).Msg("joining")
	err := sess.Connect(ctx)

	c.mu.Lock()
	if c.epoch != epoch || c.state != StateConnecting {
		// Cancelled while the handshake was in flight; whatever the dial
		// produced is discarded and the controller stays where leave()
		// put it.
		c.mu.Unlock()
		sess.Disconnect()
		log.Info().Str("module", "app.controller").Str("room", string(room.Name)).Msg("join cancelled, result discarded")
		return nil
	}
	if err != nil {
		c.state = StateFailed
		c.lastErr = err
		c.sess = nil
		c.mu.Unlock()
		sess.Disconnect()
		log.Error().Str("module", "app.controller").Err(err).Msg("join failed")
		return err
	}

	c.state = StateConnected
	rec := NewReconciler(identity)
	for _, fn := range c.subs {
		rec.Subscribe(fn)
	}
	c.rec = rec
	watchCtx, cancel := context.WithCancel(context.Background())
	c.cancelWatch = cancel
	c.mu.Unlock()

	// Presence is fire-and-forget relative to the roster.
	go c.writePresence(epoch, room.ID, identity)
	go c.heartbeatLoop(watchCtx, room.ID, identity)
	go c.watchPresence(watchCtx, room.ID, rec)
	go c.pumpEvents(sess, rec, epoch)

	log.Info().Str("module", "app.controller").Str("room", string(room.Name)).Str("identity", string(identity)).Msg("joined")
	return nil
}

// Leave tears the session down: presence entry removed (best effort),
// listeners unsubscribed, transport disconnected, state back to Idle.
// A no-op when already Idle; during Connecting it cancels the attempt.
func (c *Controller) Leave() {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateLeaving:
		c.mu.Unlock()
		return
	case StateFailed:
		c.state = StateIdle
		c.lastErr = nil
		c.mu.Unlock()
		return
	case StateConnecting:
		c.epoch++
		c.state = StateIdle
		sess := c.sess
		c.sess = nil
		c.mu.Unlock()
		if sess != nil {
			sess.Disconnect()
		}
		log.Info().Str("module", "app.controller").Msg("join attempt cancelled")
		return
	}

	c.state = StateLeaving
	c.epoch++
	sess := c.sess
	c.sess = nil
	c.rec = nil
	cancel := c.cancelWatch
	c.cancelWatch = nil
	room := c.room
	identity := c.identity
	c.mu.Unlock()

	c.removePresence(room.ID, identity)
	if cancel != nil {
		cancel()
	}
	sess.Disconnect()

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	log.Info().Str("module", "app.controller").Str("room", string(room.Name)).Msg("left room")
}

// ToggleMic flips the local microphone and returns the resulting muted
// state. Outside Connected it is a no-op reporting muted.
func (c *Controller) ToggleMic() bool {
	c.mu.Lock()
	if c.state != StateConnected || c.sess == nil {
		c.mu.Unlock()
		return true
	}
	sess := c.sess
	rec := c.rec
	c.mu.Unlock()

	enabled := sess.MicrophoneEnabled()
	sess.SetMicrophoneEnabled(!enabled)
	muted := enabled
	if rec != nil {
		rec.SetLocalMuted(muted)
	}
	return muted
}

// pumpEvents applies transport events in delivery order. A transport
// initiated disconnect runs the same leave path as an explicit leave.
func (c *Controller) pumpEvents(sess *transport.Session, rec *Reconciler, epoch uint64) {
	for ev := range sess.Events() {
		if ev.Type == core.EventDisconnected {
			go c.leaveIfCurrent(epoch)
		}
		rec.Apply(ev)
	}
}

// leaveIfCurrent runs Leave only if the session that produced the event is
// still the active one.
func (c *Controller) leaveIfCurrent(epoch uint64) {
	c.mu.Lock()
	current := c.epoch == epoch && c.state == StateConnected
	c.mu.Unlock()
	if current {
		c.Leave()
	}
}

func (c *Controller) writePresence(epoch uint64, room domain.RoomID, identity domain.Identity) {
	if c.opts.Presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceOpTimeout)
	defer cancel()
	if err := c.opts.Presence.SetParticipant(ctx, room, identity); err != nil {
		log.Warn().Str("module", "app.controller").Err(err).Msg("presence write failed")
		return
	}
	// The session may have ended while the write was in flight; a stale
	// entry here would survive the leave that already ran.
	c.mu.Lock()
	stale := c.epoch != epoch || c.state != StateConnected
	c.mu.Unlock()
	if stale {
		if err := c.opts.Presence.RemoveParticipant(ctx, room, identity); err != nil {
			log.Warn().Str("module", "app.controller").Err(err).Msg("stale presence undo failed")
		}
	}
}

func (c *Controller) removePresence(room domain.RoomID, identity domain.Identity) {
	if c.opts.Presence == nil {
		return
	}
	// Best effort with a bounded wait; a failure degrades only the
	// online count, never the leave itself.
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), presenceOpTimeout)
		defer cancel()
		if err := c.opts.Presence.RemoveParticipant(ctx, room, identity); err != nil {
			log.Warn().Str("module", "app.controller").Err(err).Msg("presence remove failed")
		}
	}()
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
	}
}

func (c *Controller) heartbeatLoop(ctx context.Context, room domain.RoomID, identity domain.Identity) {
	if c.opts.Presence == nil {
		return
	}
	ticker := time.NewTicker(c.opts.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hbCtx, cancel := context.WithTimeout(ctx, presenceOpTimeout)
			if err := c.opts.Presence.Heartbeat(hbCtx, room, identity); err != nil {
				log.Debug().Str("module", "app.controller").Err(err).Msg("presence heartbeat failed")
			}
			cancel()
		}
	}
}

func (c *Controller) watchPresence(ctx context.Context, room domain.RoomID, rec *Reconciler) {
	if c.opts.Presence == nil {
		return
	}
	ch, err := c.opts.Presence.Watch(ctx, room)
	if err != nil {
		log.Warn().Str("module", "app.controller").Err(err).Msg("presence watch failed")
		return
	}
	for entries := range ch {
		rec.ApplyPresence(entries)
	}
}
