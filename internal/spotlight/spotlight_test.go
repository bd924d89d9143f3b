package spotlight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homevision/homevision/internal/config"
	"github.com/homevision/homevision/internal/hardware"
)

func testConfig() config.SpotlightConfig {
	return config.SpotlightConfig{
		ModuleID:           "doorway_bedroom",
		TriggerOnTopics:    []string{"events/person/bedroom/out"},
		TriggerOffTopics:   []string{"events/person/bathroom/in"},
		LightHoldSeconds:   8.0,
		Brightness:         0.85,
		RestBrightness:     0.0,
		ServoPanAngle:      -20.0,
		ServoTiltAngle:     -5.0,
		ServoRestPan:       0.0,
		ServoRestTilt:      0.0,
		ServoMinAngle:      -90.0,
		ServoMaxAngle:      90.0,
		AutoRest:           true,
	}
}

func newTestController(t *testing.T) (*Controller, *hardware.Mock, *fakeClock) {
	t.Helper()
	mock := hardware.NewMock(hardware.AngleRange{Min: -90, Max: 90})
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New(testConfig(), mock, nil)
	c.now = clock.Now
	return c, mock, clock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Set(seconds float64) {
	c.t = time.Unix(0, int64(seconds*float64(time.Second)))
}

func TestActivateTwiceIsIdempotent(t *testing.T) {
	c, mock, clock := newTestController(t)

	clock.Set(0)
	c.activate()
	clock.Set(0.2)
	c.activate()

	orient, bright := mock.Calls()
	assert.Equal(t, 1, orient)
	assert.Equal(t, 1, bright)
	assert.Equal(t, 0.85, c.CurrentBrightness())
}

func TestDeactivateTwiceIsIdempotent(t *testing.T) {
	c, mock, clock := newTestController(t)

	clock.Set(0)
	c.activate()
	mock2orient, mock2bright := mock.Calls()
	require.Equal(t, 1, mock2orient)
	require.Equal(t, 1, mock2bright)

	c.deactivate()
	c.deactivate()

	orient, bright := mock.Calls()
	assert.Equal(t, 2, orient)
	assert.Equal(t, 2, bright)
	assert.Equal(t, 0.0, c.CurrentBrightness())
}

func TestTickAutoOffAfterHoldSeconds(t *testing.T) {
	c, mock, clock := newTestController(t)

	clock.Set(0)
	c.activate()
	assert.Equal(t, 0.85, c.CurrentBrightness())

	clock.Set(4.0)
	c.Tick()
	assert.Equal(t, 0.85, c.CurrentBrightness(), "hold window not yet elapsed")

	clock.Set(8.01)
	c.Tick()
	assert.Equal(t, 0.0, c.CurrentBrightness(), "hold window elapsed, auto-off should fire")

	pan, tilt, _ := mock.State()
	assert.Equal(t, 0.0, pan)
	assert.Equal(t, 0.0, tilt)
}

func TestTickNoopWhenAlreadyOff(t *testing.T) {
	c, mock, clock := newTestController(t)

	clock.Set(100)
	c.Tick()

	orient, bright := mock.Calls()
	assert.Equal(t, 0, orient)
	assert.Equal(t, 0, bright)
}

func TestDeactivateKeepsOrientationWhenAutoRestDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AutoRest = false
	mock := hardware.NewMock(hardware.AngleRange{Min: -90, Max: 90})
	c := New(cfg, mock, nil)

	c.activate()
	orientBefore, _ := mock.Calls()

	c.deactivate()

	orientAfter, _ := mock.Calls()
	assert.Equal(t, orientBefore, orientAfter, "deactivate must not reorient when auto_rest is false")
	assert.Equal(t, 0.0, c.CurrentBrightness())
}

func TestUniqueTopicsDeduplicatesPreservingOrder(t *testing.T) {
	got := uniqueTopics(
		[]string{"a", "b"},
		[]string{"b", "c", "a"},
	)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestTopicSetMembership(t *testing.T) {
	set := topicSet([]string{"x", "y"})
	assert.True(t, set["x"])
	assert.False(t, set["z"])
}
