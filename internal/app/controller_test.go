package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yahabaat/voiceroom/internal/core"
	"github.com/yahabaat/voiceroom/internal/domain"
)

type fakeTokens struct{}

func (fakeTokens) Fetch(context.Context, domain.RoomName, domain.Identity) (string, error) {
	return "tok", nil
}

type fakeRoom struct {
	mu          sync.Mutex
	micEnabled  bool
	disconnects int
}

func (f *fakeRoom) RemoteParticipants() []core.RemoteInfo { return nil }

func (f *fakeRoom) SetMicrophoneEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.micEnabled = enabled
	return nil
}

func (f *fakeRoom) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeRoom) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

type fakeDialer struct {
	mu      sync.Mutex
	err     error
	gate    chan struct{}
	rooms   []*fakeRoom
	handler core.MediaHandlers
}

func (f *fakeDialer) Dial(ctx context.Context, _, _ string, h core.MediaHandlers) (core.MediaRoom, error) {
	f.mu.Lock()
	f.handler = h
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	room := &fakeRoom{}
	f.rooms = append(f.rooms, room)
	return room, nil
}

func (f *fakeDialer) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeDialer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rooms) // only counts dials that produced a room
}

func (f *fakeDialer) lastRoom() *fakeRoom {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rooms) == 0 {
		return nil
	}
	return f.rooms[len(f.rooms)-1]
}

func (f *fakeDialer) handlers() core.MediaHandlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

type fakePresence struct {
	mu      sync.Mutex
	entries map[domain.RoomID]map[domain.Identity]bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{entries: make(map[domain.RoomID]map[domain.Identity]bool)}
}

func (f *fakePresence) SetParticipant(_ context.Context, room domain.RoomID, id domain.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries[room] == nil {
		f.entries[room] = make(map[domain.Identity]bool)
	}
	f.entries[room][id] = true
	return nil
}

func (f *fakePresence) RemoveParticipant(_ context.Context, room domain.RoomID, id domain.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries[room], id)
	return nil
}

func (f *fakePresence) Heartbeat(context.Context, domain.RoomID, domain.Identity) error { return nil }

func (f *fakePresence) Snapshot(_ context.Context, room domain.RoomID) ([]domain.PresenceEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PresenceEntry, 0, len(f.entries[room]))
	for id := range f.entries[room] {
		out = append(out, domain.PresenceEntry{Identity: id})
	}
	return out, nil
}

func (f *fakePresence) Watch(ctx context.Context, _ domain.RoomID) (<-chan []domain.PresenceEntry, error) {
	ch := make(chan []domain.PresenceEntry)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *fakePresence) count(room domain.RoomID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries[room])
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestController(dialer core.MediaDialer, store core.PresenceStore) *Controller {
	return NewController(Options{
		ServerURL:       "ws://test",
		Tokens:          fakeTokens{},
		Dialer:          dialer,
		Presence:        store,
		HeartbeatPeriod: time.Hour,
	})
}

var lobby = domain.Room{ID: "lobby-id", Name: "lobby"}

func TestJoinWhileConnecting(t *testing.T) {
	gate := make(chan struct{})
	dialer := &fakeDialer{gate: gate}
	ctl := newTestController(dialer, newFakePresence())

	done := make(chan error, 1)
	go func() { done <- ctl.Join(context.Background(), "bob", lobby) }()
	waitFor(t, "connecting state", func() bool { return ctl.State() == StateConnecting })

	err := ctl.Join(context.Background(), "bob", lobby)
	assert.ErrorIs(t, err, core.ErrAlreadyJoining)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateConnected, ctl.State())
	assert.Equal(t, 1, dialer.dialCount(), "second join must not create a second session")

	ctl.Leave()
}

func TestLeaveDuringConnecting(t *testing.T) {
	gate := make(chan struct{})
	dialer := &fakeDialer{gate: gate}
	store := newFakePresence()
	ctl := newTestController(dialer, store)

	done := make(chan error, 1)
	go func() { done <- ctl.Join(context.Background(), "bob", lobby) }()
	waitFor(t, "connecting state", func() bool { return ctl.State() == StateConnecting })

	ctl.Leave()
	assert.Equal(t, StateIdle, ctl.State())

	// The in-flight dial now resolves successfully; its result must be
	// discarded without moving the controller out of Idle.
	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, ctl.State())
	waitFor(t, "discarded room teardown", func() bool {
		room := dialer.lastRoom()
		return room != nil && room.disconnectCount() > 0
	})
	assert.Zero(t, store.count(lobby.ID), "cancelled join must not leave a presence entry")
}

func TestLeaveWhenIdleIsNoop(t *testing.T) {
	ctl := newTestController(&fakeDialer{}, newFakePresence())
	assert.NotPanics(t, func() {
		ctl.Leave()
		ctl.Leave()
	})
	assert.Equal(t, StateIdle, ctl.State())
}

func TestJoinFailureThenRetry(t *testing.T) {
	dialer := &fakeDialer{}
	dialer.setErr(errors.New("handshake refused"))
	ctl := newTestController(dialer, newFakePresence())

	err := ctl.Join(context.Background(), "bob", lobby)
	require.ErrorIs(t, err, core.ErrConnectionFailed)
	assert.Equal(t, StateFailed, ctl.State())
	assert.Error(t, ctl.Err())

	dialer.setErr(nil)
	require.NoError(t, ctl.Join(context.Background(), "bob", lobby))
	assert.Equal(t, StateConnected, ctl.State())
	assert.NoError(t, ctl.Err(), "a fresh join clears the prior error")

	ctl.Leave()
}

func TestJoinValidatesInput(t *testing.T) {
	ctl := newTestController(&fakeDialer{}, newFakePresence())
	assert.ErrorIs(t, ctl.Join(context.Background(), "", lobby), domain.ErrIdentityEmpty)
	assert.ErrorIs(t, ctl.Join(context.Background(), "bob", domain.Room{ID: "x"}), domain.ErrRoomNameEmpty)
	assert.Equal(t, StateIdle, ctl.State())
}

func TestLeaveThenRejoinSinglePresenceEntry(t *testing.T) {
	dialer := &fakeDialer{}
	store := newFakePresence()
	ctl := newTestController(dialer, store)

	require.NoError(t, ctl.Join(context.Background(), "bob", lobby))
	waitFor(t, "presence entry", func() bool { return store.count(lobby.ID) == 1 })

	ctl.Leave()
	waitFor(t, "presence removal", func() bool { return store.count(lobby.ID) == 0 })

	require.NoError(t, ctl.Join(context.Background(), "bob", lobby))
	waitFor(t, "presence entry", func() bool { return store.count(lobby.ID) == 1 })
	assert.Equal(t, 1, store.count(lobby.ID))

	ctl.Leave()
}

func TestToggleMic(t *testing.T) {
	dialer := &fakeDialer{}
	ctl := newTestController(dialer, newFakePresence())

	assert.True(t, ctl.ToggleMic(), "no session: still muted")

	require.NoError(t, ctl.Join(context.Background(), "bob", lobby))
	assert.True(t, ctl.ToggleMic(), "mic was live after join, now muted")
	assert.True(t, ctl.Roster().Participants[0].IsMuted)
	assert.False(t, ctl.ToggleMic(), "unmuted again")
	assert.False(t, ctl.Roster().Participants[0].IsMuted)

	ctl.Leave()
	assert.True(t, ctl.ToggleMic(), "after leave: still muted")
}

func TestTransportDisconnectRunsLeavePath(t *testing.T) {
	dialer := &fakeDialer{}
	store := newFakePresence()
	ctl := newTestController(dialer, store)

	require.NoError(t, ctl.Join(context.Background(), "bob", lobby))
	waitFor(t, "presence entry", func() bool { return store.count(lobby.ID) == 1 })

	dialer.handlers().OnDisconnected()

	waitFor(t, "idle state", func() bool { return ctl.State() == StateIdle })
	waitFor(t, "presence removal", func() bool { return store.count(lobby.ID) == 0 })
	assert.Equal(t, 1, dialer.lastRoom().disconnectCount())
}

func TestRosterEmptyWhenIdle(t *testing.T) {
	ctl := newTestController(&fakeDialer{}, newFakePresence())
	assert.Empty(t, ctl.Roster().Participants)
}
