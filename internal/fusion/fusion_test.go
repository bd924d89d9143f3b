package fusion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homevision/homevision/internal/bus"
	"github.com/homevision/homevision/internal/config"
	"github.com/homevision/homevision/internal/geometry"
	"github.com/homevision/homevision/internal/types"
)

func testGeometry(t *testing.T) config.Geometry {
	t.Helper()
	bedDoor, err := geometry.NewLine(geometry.Point{X: 0.15, Y: 0.30}, geometry.Point{X: 0.35, Y: 0.30})
	require.NoError(t, err)
	bathDoor, err := geometry.NewLine(geometry.Point{X: 0.65, Y: 0.40}, geometry.Point{X: 0.85, Y: 0.40})
	require.NoError(t, err)
	poly, err := geometry.NewPolygon([]geometry.Point{
		{X: 0.2, Y: 0.35}, {X: 0.8, Y: 0.35}, {X: 0.85, Y: 0.9}, {X: 0.15, Y: 0.9},
	})
	require.NoError(t, err)
	return config.Geometry{BedDoor: bedDoor, BathDoor: bathDoor, LivingRoomPolygon: poly}
}

// newTestService builds a Service with no bus/camera (neither is touched
// by the pure state-machine methods under test) and a controllable clock.
func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(0, 0)}
	s := &Service{
		cfg: config.ResolvedFusionConfig{
			FusionConfig: config.FusionConfig{
				DetectionCooldown:      1.0,
				PresenceHoldSeconds:    3.0,
				PresenceConfirmSeconds: 0.5,
				PirCrossWindow:         1.0,
				PirBoostWindow:         2.0,
			},
			Geo: testGeometry(t),
		},
		topics:        defaultTopics(),
		now:           clock.Now,
		lastCrossTime: map[door]time.Time{doorBed: {}, doorBath: {}},
		pirLastOn:     map[string]time.Time{"bedroom": {}, "bathroom": {}},
	}
	return s, clock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Set(seconds float64) {
	c.t = time.Unix(0, int64(seconds*float64(time.Second)))
}

func stubPublish(t *testing.T, fn func(topic string, payload any)) {
	t.Helper()
	orig := publishFn
	publishFn = func(_ *Service, _ context.Context, topic string, payload any) {
		fn(topic, payload)
	}
	t.Cleanup(func() { publishFn = orig })
}

func TestCheckCrossingPublishesIntoLiving(t *testing.T) {
	s, clock := newTestService(t)
	var published []struct {
		topic   string
		payload types.CrossingPayload
	}
	stubPublish(t, func(topic string, payload any) {
		published = append(published, struct {
			topic   string
			payload types.CrossingPayload
		}{topic, payload.(types.CrossingPayload)})
	})

	clock.Set(0.1)
	s.checkCrossing(context.Background(), geometry.Point{X: 0.25, Y: 0.20}, geometry.Point{X: 0.25, Y: 0.40}, clock.Now())

	require.Len(t, published, 1)
	assert.Equal(t, s.topics.BedEventOut, published[0].topic)
	assert.Equal(t, types.DirIntoLiving, published[0].payload.Dir)
	assert.Equal(t, 0.70, published[0].payload.Conf)
}

func TestCheckCrossingBoostsConfidenceWithRecentPir(t *testing.T) {
	s, clock := newTestService(t)
	var published []types.CrossingPayload
	stubPublish(t, func(_ string, payload any) {
		published = append(published, payload.(types.CrossingPayload))
	})

	clock.Set(-0.2)
	s.pirLastOn["bedroom"] = clock.Now()

	clock.Set(0.1)
	s.checkCrossing(context.Background(), geometry.Point{X: 0.25, Y: 0.20}, geometry.Point{X: 0.25, Y: 0.40}, clock.Now())

	require.Len(t, published, 1)
	assert.Equal(t, 0.85, published[0].Conf)
}

func TestCheckCrossingRespectsCooldown(t *testing.T) {
	s, clock := newTestService(t)
	var published []types.CrossingPayload
	stubPublish(t, func(_ string, payload any) {
		published = append(published, payload.(types.CrossingPayload))
	})

	clock.Set(0.1)
	s.checkCrossing(context.Background(), geometry.Point{X: 0.25, Y: 0.20}, geometry.Point{X: 0.25, Y: 0.40}, clock.Now())
	require.Len(t, published, 1)

	// Second crossing at t=0.5 is within the 1.0s cooldown: suppressed.
	clock.Set(0.5)
	s.checkCrossing(context.Background(), geometry.Point{X: 0.25, Y: 0.40}, geometry.Point{X: 0.25, Y: 0.20}, clock.Now())
	require.Len(t, published, 1)

	// Third crossing at t=1.2 clears the cooldown.
	clock.Set(1.2)
	s.checkCrossing(context.Background(), geometry.Point{X: 0.25, Y: 0.20}, geometry.Point{X: 0.25, Y: 0.40}, clock.Now())
	require.Len(t, published, 2)

	// Timestamps of successive publishes on the same door differ by >= cooldown.
	assert.GreaterOrEqual(t, published[1].Ts-published[0].Ts, 1.0)
}

func TestPresenceConfirmAndHold(t *testing.T) {
	s, clock := newTestService(t)
	var presenceEvents []types.PresencePayload
	stubPublish(t, func(_ string, payload any) {
		if p, ok := payload.(types.PresencePayload); ok {
			presenceEvents = append(presenceEvents, p)
		}
	})

	inside := geometry.Point{X: 0.5, Y: 0.5}

	clock.Set(0.0)
	s.updatePresence(context.Background(), &inside, clock.Now())
	assert.Empty(t, presenceEvents)

	clock.Set(0.4)
	s.updatePresence(context.Background(), &inside, clock.Now())
	assert.Empty(t, presenceEvents, "confirm window is 0.5s, should not have fired yet")

	clock.Set(0.5)
	s.updatePresence(context.Background(), &inside, clock.Now())
	require.Len(t, presenceEvents, 1)
	assert.True(t, presenceEvents[0].Present)
	assert.Equal(t, 0.9, presenceEvents[0].Conf)

	// Stays present while inside, no duplicate events.
	clock.Set(5.0)
	s.updatePresence(context.Background(), &inside, clock.Now())
	assert.Len(t, presenceEvents, 1)

	// Leaves the polygon at t=10.0.
	clock.Set(10.0)
	s.updatePresence(context.Background(), nil, clock.Now())
	assert.Len(t, presenceEvents, 1, "exit hold is 3s, should not have fired yet")

	clock.Set(12.9)
	s.updatePresence(context.Background(), nil, clock.Now())
	assert.Len(t, presenceEvents, 1)

	clock.Set(13.0)
	s.updatePresence(context.Background(), nil, clock.Now())
	require.Len(t, presenceEvents, 2)
	assert.False(t, presenceEvents[1].Present)
	assert.Equal(t, 0.8, presenceEvents[1].Conf)
}

func TestPresenceEventsAlternate(t *testing.T) {
	s, clock := newTestService(t)
	var presenceEvents []bool
	stubPublish(t, func(_ string, payload any) {
		if p, ok := payload.(types.PresencePayload); ok {
			presenceEvents = append(presenceEvents, p.Present)
		}
	})

	inside := geometry.Point{X: 0.5, Y: 0.5}
	t0 := 0.0
	for i := 0; i < 6; i++ {
		clock.Set(t0)
		s.updatePresence(context.Background(), &inside, clock.Now())
		t0 += 0.6
		clock.Set(t0)
		s.updatePresence(context.Background(), nil, clock.Now())
		t0 += 4.0
	}

	for i := 1; i < len(presenceEvents); i++ {
		assert.NotEqual(t, presenceEvents[i-1], presenceEvents[i], "consecutive presence events must alternate")
	}
}

func TestHandlePirEventDerivesZoneFromTopic(t *testing.T) {
	s, clock := newTestService(t)
	clock.Set(100.0)

	s.handlePirEvent(bus.Event{Topic: "sensors/door/bedroom/pir", Payload: map[string]any{"state": "ON"}})
	assert.False(t, s.pirLastOn["bedroom"].IsZero())
	assert.True(t, s.pirLastOn["bathroom"].IsZero())
}

func TestHandlePirEventIgnoresOff(t *testing.T) {
	s, _ := newTestService(t)
	s.handlePirEvent(bus.Event{Topic: "sensors/door/bathroom/pir", Payload: map[string]any{"state": "OFF"}})
	assert.True(t, s.pirLastOn["bathroom"].IsZero())
}
