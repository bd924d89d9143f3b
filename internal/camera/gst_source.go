package camera

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/rs/zerolog/log"
)

var gstInitOnce sync.Once

func initGStreamer() {
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
}

// GstConfig describes the capture pipeline. PipelineDescription must end
// in an appsink named "videosink" producing video/x-raw,format=RGB, e.g.
// "v4l2src ! videoconvert ! video/x-raw,format=RGB ! appsink name=videosink".
type GstConfig struct {
	PipelineDescription string
	// WarmUp mirrors the original's 0.5s post-configure sleep before the
	// first frame is trusted.
	WarmUp time.Duration
}

// GstSource captures RGB frames from a GStreamer pipeline's appsink,
// adapted from desktop/gst_pipeline.go's channel-delivered-frame design
// (there used for compressed H.264 delivery; here for raw RGB).
type GstSource struct {
	cfg      GstConfig
	pipeline *gst.Pipeline
	appsink  *app.Sink
	frames   chan Frame
	running  atomic.Bool
	stopOnce sync.Once
}

// NewGstSource parses the pipeline description but does not start it.
func NewGstSource(cfg GstConfig) (*GstSource, error) {
	initGStreamer()
	if cfg.WarmUp == 0 {
		cfg.WarmUp = 500 * time.Millisecond
	}

	pipeline, err := gst.NewPipelineFromString(cfg.PipelineDescription)
	if err != nil {
		return nil, fmt.Errorf("camera: parsing pipeline: %w", err)
	}

	elem, err := pipeline.GetElementByName("videosink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("camera: pipeline has no videosink element: %w", err)
	}
	sink := app.SinkFromElement(elem)
	if sink == nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("camera: videosink element is not an appsink")
	}

	return &GstSource{
		cfg:      cfg,
		pipeline: pipeline,
		appsink:  sink,
		frames:   make(chan Frame, 2),
	}, nil
}

func (s *GstSource) Start() error {
	if s.running.Load() {
		return nil
	}

	s.appsink.SetProperty("emit-signals", true)
	s.appsink.SetProperty("max-buffers", uint(2))
	s.appsink.SetProperty("drop", true)
	s.appsink.SetProperty("sync", false)
	s.appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	if err := s.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("camera: starting pipeline: %w", err)
	}
	s.running.Store(true)
	time.Sleep(s.cfg.WarmUp)
	log.Info().Str("pipeline", s.cfg.PipelineDescription).Msg("camera pipeline started")
	return nil
}

func (s *GstSource) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	caps := sample.GetCaps()
	width, height := capsDimensions(caps)
	data := buffer.Map(gst.MapRead).Bytes()
	defer buffer.Unmap()

	frame := Frame{Width: width, Height: height, Pix: append([]byte(nil), data...)}
	select {
	case s.frames <- frame:
	default:
		// Drop the oldest buffered frame; detection only ever needs the
		// most recent one.
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- frame:
		default:
		}
	}
	return gst.FlowOK
}

// capsDimensions pulls width/height out of a negotiated video/x-raw caps
// structure.
func capsDimensions(caps *gst.Caps) (int, int) {
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0
	}
	structure := caps.GetStructureAt(0)
	width, _ := structure.GetValue("width")
	height, _ := structure.GetValue("height")
	w, _ := width.(int)
	h, _ := height.(int)
	return w, h
}

func (s *GstSource) Capture() (Frame, bool) {
	select {
	case f := <-s.frames:
		return f, true
	default:
		return Frame{}, false
	}
}

func (s *GstSource) Close() error {
	var err error
	s.stopOnce.Do(func() {
		s.running.Store(false)
		err = s.pipeline.SetState(gst.StateNull)
	})
	return err
}
