package transport

import (
	"errors"
	"io"
	"sync"

	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"

	"github.com/yahabaat/voiceroom/internal/core"
	"github.com/yahabaat/voiceroom/internal/domain"
)

// sinkRegistry keys playout sinks by identity so rapid add/remove bursts
// (reconnect flapping) can never attach two sinks for one participant.
type sinkRegistry struct {
	mu      sync.Mutex
	factory core.SinkFactory
	sinks   map[domain.Identity]core.AudioSink
}

func newSinkRegistry(factory core.SinkFactory) *sinkRegistry {
	return &sinkRegistry{
		factory: factory,
		sinks:   make(map[domain.Identity]core.AudioSink),
	}
}

// attach creates and registers the sink for identity and starts the RTP
// pump. A second attach for the same identity is a no-op.
func (r *sinkRegistry) attach(id domain.Identity, track core.RemoteTrack) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sinks[id]; ok {
		return false
	}
	sink, err := r.factory(id)
	if err != nil {
		log.Warn().Str("module", "transport").Str("identity", string(id)).Err(err).Msg("sink factory")
		return false
	}
	r.sinks[id] = sink
	go r.pump(id, track, sink)
	return true
}

// detach closes and removes the sink for identity, if any.
func (r *sinkRegistry) detach(id domain.Identity) bool {
	r.mu.Lock()
	sink, ok := r.sinks[id]
	delete(r.sinks, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if err := sink.Close(); err != nil {
		log.Warn().Str("module", "transport").Str("identity", string(id)).Err(err).Msg("sink close")
	}
	return true
}

func (r *sinkRegistry) closeAll() {
	r.mu.Lock()
	sinks := r.sinks
	r.sinks = make(map[domain.Identity]core.AudioSink)
	r.mu.Unlock()
	for id, sink := range sinks {
		if err := sink.Close(); err != nil {
			log.Warn().Str("module", "transport").Str("identity", string(id)).Err(err).Msg("sink close")
		}
	}
}

func (r *sinkRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sinks)
}

// pump copies packets from the remote track into the sink until either side
// ends. The sink may be closed underneath it; write errors end the pump.
func (r *sinkRegistry) pump(id domain.Identity, track core.RemoteTrack, sink core.AudioSink) {
	for {
		pkt, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Str("module", "transport").Str("identity", string(id)).Err(err).Msg("track read ended")
			}
			return
		}
		if err := sink.WriteRTP(pkt); err != nil {
			return
		}
	}
}

// discardSink drops all audio; used when the caller has no playout device.
type discardSink struct{}

func (discardSink) WriteRTP(*rtp.Packet) error { return nil }
func (discardSink) Close() error               { return nil }

// DiscardSinks is the default SinkFactory.
func DiscardSinks(domain.Identity) (core.AudioSink, error) {
	return discardSink{}, nil
}
