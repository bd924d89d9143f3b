package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBus builds a Bus with no live MQTT client, exercising only the
// queue semantics that Subscribe's callback and Poll share.
func newTestBus(depth int) *Bus {
	return &Bus{events: make(chan Event, depth)}
}

func TestPollEmptyQueueNonBlocking(t *testing.T) {
	b := newTestBus(4)
	_, ok := b.Poll(0)
	assert.False(t, ok)
}

func TestPollReturnsEnqueuedEvent(t *testing.T) {
	b := newTestBus(4)
	b.events <- Event{Topic: "sensors/door/bedroom/pir", Payload: map[string]any{"state": "ON"}}

	ev, ok := b.Poll(0)
	require.True(t, ok)
	assert.Equal(t, "sensors/door/bedroom/pir", ev.Topic)
	assert.Equal(t, "ON", ev.Payload["state"])
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	b := newTestBus(2)
	b.events <- Event{Topic: "a"}
	b.events <- Event{Topic: "b"}

	// The Subscribe callback hands every decoded event to enqueue; on a
	// full queue it drops the oldest, then enqueues the newest.
	b.enqueue(Event{Topic: "c"})

	first, ok := b.Poll(0)
	require.True(t, ok)
	assert.Equal(t, "b", first.Topic)

	second, ok := b.Poll(0)
	require.True(t, ok)
	assert.Equal(t, "c", second.Topic)

	_, ok = b.Poll(0)
	assert.False(t, ok)
}
