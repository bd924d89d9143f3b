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

	"github.com/homevision/homevision/internal/bus"
	"github.com/homevision/homevision/internal/camera"
	"github.com/homevision/homevision/internal/config"
	"github.com/homevision/homevision/internal/fusion"
	"github.com/homevision/homevision/internal/logging"
)

var (
	configPath string
	logLevel   string
	pipeline   string
	mockFrames string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vision-fusion",
		Short: "Vision/PIR fusion node for the living-room doorway cameras",
		Long: `vision-fusion watches the living-room camera, runs background-subtraction
motion detection against the bedroom and bathroom doorway lines, corroborates
crossings and presence with PIR pulses arriving over MQTT, and publishes
person-crossing and room-presence events.`,
		RunE: run,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to fusion config JSON (env: HOMEVISION_FUSION_CONFIG)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error) (env: HOMEVISION_LOG_LEVEL)")
	rootCmd.Flags().StringVar(&pipeline, "gst-pipeline", "v4l2src device=/dev/video0 ! videoconvert ! video/x-raw,format=RGB ! appsink name=videosink",
		"GStreamer pipeline description ending in 'appsink name=videosink'")
	rootCmd.Flags().StringVar(&mockFrames, "mock-camera", "", "If set, use a solid-color mock camera of WxH instead of GStreamer (e.g. 640x480)")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("vision-fusion: fatal error")
	}
}

func run(cmd *cobra.Command, args []string) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	if configPath == "" {
		configPath = env.FusionConfigPath
	}
	if logLevel == "" {
		logLevel = env.LogLevel
	}
	logging.Setup(logLevel)

	cfg, err := config.LoadFusionConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("vision-fusion: loading config")
	}

	camSrc, err := openCamera()
	if err != nil {
		log.Fatal().Err(err).Msg("vision-fusion: camera unavailable")
	}
	if err := camSrc.Start(); err != nil {
		log.Fatal().Err(err).Msg("vision-fusion: starting camera")
	}
	defer camSrc.Close()

	b, err := bus.Connect(bus.Config{
		Host:     cfg.MqttHost,
		Port:     cfg.MqttPort,
		ClientID: cfg.MqttClientID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("vision-fusion: connecting to broker")
	}
	defer b.Disconnect()

	svc := fusion.New(cfg, b, camSrc)
	defer svc.Close()

	if err := svc.Subscribe(); err != nil {
		log.Fatal().Err(err).Msg("vision-fusion: subscribing to pir topic")
	}

	housekeeping := svc.StartHousekeeping()
	defer housekeeping.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("vision-fusion: shutdown signal received")
		cancel()
	}()

	log.Info().Str("module", cfg.MqttClientID).Msg("vision-fusion: running")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("vision-fusion: stopped")
			return nil
		default:
		}

		if !svc.RunOnce(ctx) {
			time.Sleep(20 * time.Millisecond)
		}
	}
}

func openCamera() (camera.Source, error) {
	if mockFrames != "" {
		var w, h int
		if _, err := fmt.Sscanf(mockFrames, "%dx%d", &w, &h); err != nil {
			return nil, fmt.Errorf("vision-fusion: parsing --mock-camera %q: %w", mockFrames, err)
		}
		log.Warn().Str("size", mockFrames).Msg("vision-fusion: using mock camera source")
		src := camera.NewMockSource()
		src.Push(solidFrame(w, h))
		return src, nil
	}
	return camera.NewGstSource(camera.GstConfig{PipelineDescription: pipeline})
}

func solidFrame(w, h int) camera.Frame {
	return camera.Frame{Width: w, Height: h, Pix: make([]byte, w*h*3)}
}
