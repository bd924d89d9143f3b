package spotlight

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/homevision/homevision/internal/config"
	"github.com/homevision/homevision/internal/hardware"
)

// Pose names the two calibration poses a module can be parked at during
// installation.
type Pose string

const (
	PoseRest   Pose = "rest"
	PoseTarget Pose = "target"
)

// RunCalibration drives the hardware straight to pose's angles and
// brightness (overridden by brightnessOverride when non-nil) and holds
// it for duration, or until stop is closed when duration is zero. It
// never touches the bus. Hardware is released before returning.
func RunCalibration(cfg config.SpotlightConfig, hw hardware.Hardware, pose Pose, brightnessOverride *float64, duration time.Duration, stop <-chan struct{}) {
	defer hw.Shutdown()

	pan, tilt, defaultBrightness := cfg.ServoRestPan, cfg.ServoRestTilt, cfg.RestBrightness
	if pose == PoseTarget {
		pan, tilt, defaultBrightness = cfg.ServoPanAngle, cfg.ServoTiltAngle, cfg.Brightness
	}

	brightness := defaultBrightness
	if brightnessOverride != nil {
		brightness = *brightnessOverride
	}

	hw.SetOrientation(pan, tilt)
	hw.SetBrightness(brightness)
	log.Info().
		Str("pose", string(pose)).
		Float64("pan", pan).
		Float64("tilt", tilt).
		Float64("brightness", brightness).
		Msg("spotlight: calibration pose applied")

	if duration > 0 {
		time.Sleep(duration)
		return
	}

	log.Info().Msg("spotlight: holding calibration pose until interrupted")
	<-stop
}
