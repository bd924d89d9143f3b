package hardware

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// servoFrequency is the standard hobby-servo control frequency: a 20ms frame
// carrying a 0.5-2.5ms high pulse whose width encodes the target angle.
const servoFrequency = 50 * physic.Hertz

// ServoSpec describes one angular servo's pin and its pulse-width-to-angle
// mapping, mirroring gpiozero.AngularServo's constructor arguments.
type ServoSpec struct {
	PinName       string
	MinAngle      float64
	MaxAngle      float64
	MinPulseWidth time.Duration
	MaxPulseWidth time.Duration
}

// LEDSpec describes the PWM-driven LED output.
type LEDSpec struct {
	PinName   string
	Frequency physic.Frequency
}

// Periph drives the spotlight hardware over real GPIO via periph.io,
// translating the angle/brightness commands gpiozero's AngularServo and
// PWMLED would otherwise perform into raw PWM duty cycles.
type Periph struct {
	pan, tilt ServoSpec
	panPin    gpio.PinIO
	tiltPin   gpio.PinIO
	ledPin    gpio.PinIO
	ledFreq   physic.Frequency
	angles    AngleRange
}

// Open claims the configured GPIO pins. Returns an error (never a panic)
// when periph can't initialize the host or a named pin doesn't exist;
// whether that error is fatal is left to the caller.
func Open(pan, tilt ServoSpec, led LEDSpec, angles AngleRange) (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("hardware: initializing periph host: %w", err)
	}

	panPin := gpioreg.ByName(pan.PinName)
	if panPin == nil {
		return nil, fmt.Errorf("hardware: pan servo pin %q not found", pan.PinName)
	}
	tiltPin := gpioreg.ByName(tilt.PinName)
	if tiltPin == nil {
		return nil, fmt.Errorf("hardware: tilt servo pin %q not found", tilt.PinName)
	}
	ledPin := gpioreg.ByName(led.PinName)
	if ledPin == nil {
		return nil, fmt.Errorf("hardware: led pin %q not found", led.PinName)
	}

	return &Periph{
		pan:     pan,
		tilt:    tilt,
		panPin:  panPin,
		tiltPin: tiltPin,
		ledPin:  ledPin,
		ledFreq: led.Frequency,
		angles:  angles,
	}, nil
}

func (p *Periph) SetOrientation(pan, tilt float64) {
	pan = p.angles.Clamp(pan)
	tilt = p.angles.Clamp(tilt)
	if err := driveServo(p.panPin, p.pan, pan); err != nil {
		log.Error().Err(err).Msg("hardware: failed to drive pan servo")
	}
	if err := driveServo(p.tiltPin, p.tilt, tilt); err != nil {
		log.Error().Err(err).Msg("hardware: failed to drive tilt servo")
	}
}

func (p *Periph) SetBrightness(value float64) {
	value = ClampBrightness(value)
	duty := gpio.Duty(value * float64(gpio.DutyMax))
	if err := p.ledPin.PWM(duty, p.ledFreq); err != nil {
		log.Error().Err(err).Msg("hardware: failed to set led brightness")
	}
}

func (p *Periph) Shutdown() {
	// Idle the servos and dark the LED rather than leaving the last pose
	// driven; periph has no explicit pin-close, so this simply stops
	// asserting PWM.
	_ = p.panPin.Out(gpio.Low)
	_ = p.tiltPin.Out(gpio.Low)
	_ = p.ledPin.Out(gpio.Low)
}

// driveServo maps angle onto a pulse width within the servo's configured
// range and asserts it as a duty cycle of the standard 50Hz servo frame.
func driveServo(pin gpio.PinIO, spec ServoSpec, angle float64) error {
	span := spec.MaxAngle - spec.MinAngle
	if span == 0 {
		return fmt.Errorf("hardware: servo angle range is zero")
	}
	frac := (angle - spec.MinAngle) / span
	pulseRange := spec.MaxPulseWidth - spec.MinPulseWidth
	pulseWidth := spec.MinPulseWidth + time.Duration(frac*float64(pulseRange))

	period := time.Second / time.Duration(servoFrequency/physic.Hertz)
	duty := gpio.Duty(float64(pulseWidth) / float64(period) * float64(gpio.DutyMax))
	return pin.PWM(duty, servoFrequency)
}
