package hardware

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Mock records every orientation/brightness command instead of touching
// GPIO, matching original_source/home_vision/nodes/spotlight_controller.py's
// SpotlightHardware fallback when gpiozero isn't importable. Used in
// development, in tests, and whenever mock hardware is forced; a failure
// of Open to claim real hardware is not replaced by the mock.
type Mock struct {
	mu          sync.Mutex
	angles      AngleRange
	pan, tilt   float64
	brightness  float64
	shutdown    bool
	orientCalls int
	brightCalls int
}

// NewMock constructs a Mock clamping orientations to angles.
func NewMock(angles AngleRange) *Mock {
	return &Mock{angles: angles}
}

func (m *Mock) SetOrientation(pan, tilt float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pan = m.angles.Clamp(pan)
	m.tilt = m.angles.Clamp(tilt)
	m.orientCalls++
	log.Info().Float64("pan", m.pan).Float64("tilt", m.tilt).Msg("mock servo orientation")
}

func (m *Mock) SetBrightness(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brightness = ClampBrightness(value)
	m.brightCalls++
	log.Info().Float64("brightness", m.brightness).Msg("mock led brightness")
}

func (m *Mock) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = true
}

// State returns the current recorded pan, tilt, and brightness, for
// tests to assert against.
func (m *Mock) State() (pan, tilt, brightness float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pan, m.tilt, m.brightness
}

// Calls returns how many times SetOrientation and SetBrightness were
// called, for idempotence assertions.
func (m *Mock) Calls() (orient, bright int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orientCalls, m.brightCalls
}

// ShutdownCalled reports whether Shutdown has run.
func (m *Mock) ShutdownCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}
