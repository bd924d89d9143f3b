package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAngleRangeClamp(t *testing.T) {
	r := AngleRange{Min: -90, Max: 90}
	assert.Equal(t, 90.0, r.Clamp(200))
	assert.Equal(t, -90.0, r.Clamp(-200))
	assert.Equal(t, 10.0, r.Clamp(10))
}

func TestClampBrightness(t *testing.T) {
	assert.Equal(t, 1.0, ClampBrightness(5))
	assert.Equal(t, 0.0, ClampBrightness(-5))
	assert.Equal(t, 0.5, ClampBrightness(0.5))
}

func TestMockRecordsOrientationAndBrightness(t *testing.T) {
	m := NewMock(AngleRange{Min: -90, Max: 90})
	m.SetOrientation(-20, -5)
	m.SetBrightness(0.85)

	pan, tilt, brightness := m.State()
	assert.Equal(t, -20.0, pan)
	assert.Equal(t, -5.0, tilt)
	assert.Equal(t, 0.85, brightness)

	orient, bright := m.Calls()
	assert.Equal(t, 1, orient)
	assert.Equal(t, 1, bright)
}

func TestMockClampsOutOfRangeAngles(t *testing.T) {
	m := NewMock(AngleRange{Min: -90, Max: 90})
	m.SetOrientation(400, -400)

	pan, tilt, _ := m.State()
	assert.Equal(t, 90.0, pan)
	assert.Equal(t, -90.0, tilt)
}

func TestMockShutdown(t *testing.T) {
	m := NewMock(AngleRange{Min: -90, Max: 90})
	assert.False(t, m.ShutdownCalled())
	m.Shutdown()
	assert.True(t, m.ShutdownCalled())
}
