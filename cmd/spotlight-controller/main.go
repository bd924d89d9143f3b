package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"

	"github.com/homevision/homevision/internal/bus"
	"github.com/homevision/homevision/internal/config"
	"github.com/homevision/homevision/internal/hardware"
	"github.com/homevision/homevision/internal/logging"
	"github.com/homevision/homevision/internal/spotlight"
)

var (
	configPath     string
	logLevel       string
	mockHardware   bool
	setOrientation string
	setBrightness  float64
	duration       time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spotlight-controller",
		Short: "Reactive doorway spotlight controller",
		Long: `spotlight-controller drives a PWM LED and two angular servos at a single
doorway module. In normal operation it reacts to trigger-on/trigger-off MQTT
topics, with a hold-timer auto-off as a backstop against a missed "off"
message. With --set-orientation it instead parks the beam at a fixed pose for
installation calibration and never touches the bus.`,
		RunE: run,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to spotlight config JSON (env: HOMEVISION_SPOTLIGHT_CONFIG)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error) (env: HOMEVISION_LOG_LEVEL)")
	rootCmd.Flags().BoolVar(&mockHardware, "mock-hardware", false, "Force the recording mock hardware even if GPIO is available (env: HOMEVISION_MOCK_HARDWARE)")
	rootCmd.Flags().StringVar(&setOrientation, "set-orientation", "", "Calibration mode: park the beam at 'rest' or 'target' and exit, no bus connection")
	rootCmd.Flags().Float64Var(&setBrightness, "set-brightness", -1, "Calibration mode: override the LED brightness for --set-orientation (0-1)")
	rootCmd.Flags().DurationVar(&duration, "duration", 0, "Calibration mode: hold the pose for this long, then exit (0 holds until interrupted)")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("spotlight-controller: fatal error")
	}
}

func run(cmd *cobra.Command, args []string) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	if configPath == "" {
		configPath = env.SpotlightConfigPath
	}
	if logLevel == "" {
		logLevel = env.LogLevel
	}
	logging.Setup(logLevel)

	cfg, err := config.LoadSpotlightConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("spotlight-controller: loading config")
	}

	hw, err := openHardware(cfg, env.ForceMockHardware || mockHardware)
	if err != nil {
		log.Fatal().Err(err).Msg("spotlight-controller: hardware unavailable")
	}

	if setOrientation != "" {
		return runCalibration(cfg, hw)
	}

	b, err := bus.Connect(bus.Config{
		Host:     cfg.MqttHost,
		Port:     cfg.MqttPort,
		ClientID: cfg.ClientID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("spotlight-controller: connecting to broker")
	}
	defer b.Disconnect()

	ctl := spotlight.New(cfg, hw, b)
	if err := ctl.Start(); err != nil {
		log.Fatal().Err(err).Msg("spotlight-controller: starting controller")
	}
	defer ctl.Stop()

	ticker, err := ctl.StartTicker()
	if err != nil {
		log.Fatal().Err(err).Msg("spotlight-controller: starting auto-off ticker")
	}
	defer ticker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("spotlight-controller: shutdown signal received")
		cancel()
	}()

	log.Info().Str("module_id", cfg.ModuleID).Msg("spotlight-controller: running")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("spotlight-controller: stopped")
			return nil
		default:
		}

		ctl.RunOnce()
		time.Sleep(50 * time.Millisecond)
	}
}

func runCalibration(cfg config.SpotlightConfig, hw hardware.Hardware) error {
	pose := spotlight.Pose(setOrientation)
	if pose != spotlight.PoseRest && pose != spotlight.PoseTarget {
		log.Fatal().Str("value", setOrientation).Msg("spotlight-controller: --set-orientation must be 'rest' or 'target'")
	}

	var brightnessOverride *float64
	if setBrightness >= 0 {
		brightnessOverride = &setBrightness
	}

	stop := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		close(stop)
	}()

	spotlight.RunCalibration(cfg, hw, pose, brightnessOverride, duration, stop)
	return nil
}

// openHardware claims real GPIO unless forceMock is set. A real-hardware
// failure outside mock mode is an unrecoverable startup failure, not a
// silent downgrade to the mock — only --mock-hardware/HOMEVISION_MOCK_HARDWARE
// licenses falling back.
func openHardware(cfg config.SpotlightConfig, forceMock bool) (hardware.Hardware, error) {
	angles := hardware.AngleRange{Min: cfg.ServoMinAngle, Max: cfg.ServoMaxAngle}
	if forceMock {
		log.Warn().Msg("spotlight-controller: using mock hardware")
		return hardware.NewMock(angles), nil
	}

	minPulse := time.Duration(cfg.ServoMinPulseWidth * float64(time.Second))
	maxPulse := time.Duration(cfg.ServoMaxPulseWidth * float64(time.Second))
	panSpec := hardware.ServoSpec{
		PinName:       fmt.Sprintf("GPIO%d", cfg.ServoPanPin),
		MinAngle:      cfg.ServoMinAngle,
		MaxAngle:      cfg.ServoMaxAngle,
		MinPulseWidth: minPulse,
		MaxPulseWidth: maxPulse,
	}
	tiltSpec := hardware.ServoSpec{
		PinName:       fmt.Sprintf("GPIO%d", cfg.ServoTiltPin),
		MinAngle:      cfg.ServoMinAngle,
		MaxAngle:      cfg.ServoMaxAngle,
		MinPulseWidth: minPulse,
		MaxPulseWidth: maxPulse,
	}
	ledSpec := hardware.LEDSpec{
		PinName:   fmt.Sprintf("GPIO%d", cfg.LedPWMPin),
		Frequency: physic.Frequency(cfg.LedFrequency) * physic.Hertz,
	}

	hw, err := hardware.Open(panSpec, tiltSpec, ledSpec, angles)
	if err != nil {
		return nil, fmt.Errorf("spotlight-controller: GPIO initialization refused: %w", err)
	}
	return hw, nil
}
