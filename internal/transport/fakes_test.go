package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pion/rtp"

	"github.com/yahabaat/voiceroom/internal/core"
	"github.com/yahabaat/voiceroom/internal/domain"
)

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) Fetch(_ context.Context, _ domain.RoomName, _ domain.Identity) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type fakeRoom struct {
	mu          sync.Mutex
	remotes     []core.RemoteInfo
	micEnabled  bool
	micErr      error
	disconnects int
	micSetCalls []bool
}

func (f *fakeRoom) RemoteParticipants() []core.RemoteInfo {
	return f.remotes
}

func (f *fakeRoom) SetMicrophoneEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.micErr != nil {
		return f.micErr
	}
	f.micEnabled = enabled
	f.micSetCalls = append(f.micSetCalls, enabled)
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
	room    *fakeRoom
	err     error
	gate    chan struct{} // when set, Dial blocks until closed
	mu      sync.Mutex
	handler core.MediaHandlers
	dials   int
}

func (f *fakeDialer) Dial(ctx context.Context, _, _ string, h core.MediaHandlers) (core.MediaRoom, error) {
	f.mu.Lock()
	f.dials++
	f.handler = h
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.room, nil
}

func (f *fakeDialer) handlers() core.MediaHandlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeDialer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// fakeTrack yields no packets; the pump sees a clean end of stream.
type fakeTrack struct{}

func (fakeTrack) ReadRTP() (*rtp.Packet, error) { return nil, io.EOF }

type fakeSink struct {
	mu     sync.Mutex
	writes int
	closed bool
}

func (f *fakeSink) WriteRTP(*rtp.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("sink closed")
	}
	f.writes++
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
