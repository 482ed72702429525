package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yahabaat/voiceroom/internal/core"
	"github.com/yahabaat/voiceroom/internal/domain"
)

func newTestRegistry() (*sinkRegistry, map[domain.Identity]*fakeSink) {
	made := make(map[domain.Identity]*fakeSink)
	reg := newSinkRegistry(func(id domain.Identity) (core.AudioSink, error) {
		s := &fakeSink{}
		made[id] = s
		return s, nil
	})
	return reg, made
}

func TestAttachIsKeyedByIdentity(t *testing.T) {
	reg, made := newTestRegistry()

	assert.True(t, reg.attach("carol", fakeTrack{}))
	assert.False(t, reg.attach("carol", fakeTrack{}), "second attach for same identity is a no-op")
	assert.Equal(t, 1, reg.count())
	assert.Len(t, made, 1)
}

func TestDetachClosesExactlyThatSink(t *testing.T) {
	reg, made := newTestRegistry()
	reg.attach("carol", fakeTrack{})
	reg.attach("dave", fakeTrack{})

	assert.True(t, reg.detach("carol"))
	assert.True(t, made["carol"].isClosed())
	assert.False(t, made["dave"].isClosed())
	assert.Equal(t, 1, reg.count())

	assert.False(t, reg.detach("carol"), "detach of an absent identity is a no-op")
}

func TestRapidAddRemoveBurst(t *testing.T) {
	reg, _ := newTestRegistry()
	for i := 0; i < 10; i++ {
		reg.attach("carol", fakeTrack{})
		reg.detach("carol")
	}
	assert.Equal(t, 0, reg.count())
}

func TestCloseAll(t *testing.T) {
	reg, made := newTestRegistry()
	reg.attach("carol", fakeTrack{})
	reg.attach("dave", fakeTrack{})

	reg.closeAll()
	assert.Equal(t, 0, reg.count())
	for id, sink := range made {
		assert.True(t, sink.isClosed(), "sink for %s not closed", id)
	}
}
