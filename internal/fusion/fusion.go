// Package fusion implements the vision/fusion state machine: it drains
// PIR pulses off the bus, pulls frames from a camera, runs detection,
// and turns the combined signal into published room-crossing and
// presence events.
package fusion

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/homevision/homevision/internal/bus"
	"github.com/homevision/homevision/internal/camera"
	"github.com/homevision/homevision/internal/config"
	"github.com/homevision/homevision/internal/detection"
	"github.com/homevision/homevision/internal/geometry"
	"github.com/homevision/homevision/internal/types"
)

// door identifies one of the two monitored doorways.
type door string

const (
	doorBed  door = "bed"
	doorBath door = "bath"
)

// zone maps a door to the PIR sensor zone that corroborates it.
func (d door) zone() string {
	if d == doorBed {
		return "bedroom"
	}
	return "bathroom"
}

// Topics collects every MQTT topic the fusion service touches, fixed at
// construction time from defaultTopics; none of them is read from config.
type Topics struct {
	Pir          string
	VisionState  string
	BedEventOut  string
	BedEventIn   string
	BathEventOut string
	BathEventIn  string
}

func defaultTopics() Topics {
	return Topics{
		Pir:          "sensors/door/+/pir",
		VisionState:  "vision/state/living_room",
		BedEventOut:  "events/person/bedroom/out",
		BedEventIn:   "events/person/bedroom/in",
		BathEventOut: "events/person/bathroom/out",
		BathEventIn:  "events/person/bathroom/in",
	}
}

// Service is the vision/fusion state machine. It owns detection state,
// centroid history, PIR timestamps, presence timers, and crossing
// cooldowns exclusively; nothing else touches them.
type Service struct {
	cfg    config.ResolvedFusionConfig
	topics Topics

	bus      *bus.Bus
	camSrc   camera.Source
	detector *detection.Detector

	now func() time.Time

	lastCentroid    *geometry.Point
	lastCrossTime   map[door]time.Time
	pirLastOn       map[string]time.Time
	presentState    bool
	presenceEnterAt time.Time
	presenceExitAt  time.Time

	jsonlMu   sync.Mutex
	jsonlPath string
}

// New constructs a fusion Service. b and camSrc must already be
// started/connected by the caller; Service does not own their lifecycle
// beyond what Close releases.
func New(cfg config.ResolvedFusionConfig, b *bus.Bus, camSrc camera.Source) *Service {
	return &Service{
		cfg:           cfg,
		topics:        defaultTopics(),
		bus:           b,
		camSrc:        camSrc,
		detector:      detection.New(detection.Config{MinContourArea: cfg.MinContourArea}),
		now:           time.Now,
		lastCrossTime: map[door]time.Time{doorBed: {}, doorBath: {}},
		pirLastOn:     map[string]time.Time{"bedroom": {}, "bathroom": {}},
		jsonlPath:     cfg.LogJSONLPath,
	}
}

// Close releases the detector's OpenCV resources. It does not close the
// bus or camera, which the caller owns.
func (s *Service) Close() error {
	return s.detector.Close()
}

// Subscribe registers the PIR wildcard subscription. Call once after the
// bus is connected and before the first RunOnce.
func (s *Service) Subscribe() error {
	return s.bus.Subscribe(s.topics.Pir)
}

// RunOnce performs one iteration of the main loop: drain pending PIR
// events non-blocking, pull one frame, run detection, and react. It
// returns false when no frame was available this iteration so the
// caller can sleep briefly before calling again.
func (s *Service) RunOnce(ctx context.Context) bool {
	s.drainPirEvents()

	frame, ok := s.camSrc.Capture()
	if !ok {
		return false
	}

	resized, err := detection.Resize(frame, s.cfg.FrameResizeWidth)
	if err != nil {
		log.Warn().Err(err).Msg("fusion: dropping unresizable frame")
		return false
	}

	s.processFrame(ctx, resized)
	return true
}

func (s *Service) drainPirEvents() {
	for {
		ev, ok := s.bus.Poll(0)
		if !ok {
			return
		}
		s.handlePirEvent(ev)
	}
}

func (s *Service) handlePirEvent(ev bus.Event) {
	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", ev.Topic).Msg("fusion: re-encoding pir payload")
		return
	}
	var payload types.PirPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Warn().Err(err).Str("topic", ev.Topic).Msg("fusion: malformed pir payload")
		return
	}
	if err := payload.Validate(); err != nil {
		log.Warn().Err(err).Str("topic", ev.Topic).Msg("fusion: dropping pir payload")
		return
	}
	if payload.State != types.PirOn {
		return
	}

	zone := "bathroom"
	if strings.Contains(ev.Topic, "bedroom") {
		zone = "bedroom"
	}

	ts := s.now()
	if payload.Ts != 0 {
		ts = time.Unix(0, int64(payload.Ts*float64(time.Second)))
	}
	s.pirLastOn[zone] = ts
	log.Debug().Str("zone", zone).Time("ts", ts).Msg("fusion: pir triggered")
}

func (s *Service) pirBoostActive(now time.Time) bool {
	window := time.Duration(s.cfg.PirBoostWindow * float64(time.Second))
	for _, last := range s.pirLastOn {
		if last.IsZero() {
			continue
		}
		if now.Sub(last) <= window {
			return true
		}
	}
	return false
}

func (s *Service) processFrame(ctx context.Context, frame camera.Frame) {
	now := s.now()

	areaScale := 1.0
	if s.pirBoostActive(now) {
		areaScale = 0.6
	}

	centroid, ok := s.detector.Detect(frame, areaScale)
	if !ok {
		s.updatePresence(ctx, nil, now)
		return
	}

	curr := geometry.Point{X: centroid.X, Y: centroid.Y}
	s.updatePresence(ctx, &curr, now)

	prev := s.lastCentroid
	s.lastCentroid = &curr
	if prev == nil {
		return
	}

	s.checkCrossing(ctx, *prev, curr, now)
}

func (s *Service) checkCrossing(ctx context.Context, prev, curr geometry.Point, now time.Time) {
	for _, d := range [...]door{doorBed, doorBath} {
		line := s.cfg.Geo.BedDoor
		if d == doorBath {
			line = s.cfg.Geo.BathDoor
		}

		direction := line.Crossed(prev, curr)
		if direction == geometry.None {
			continue
		}

		cooldown := time.Duration(s.cfg.DetectionCooldown * float64(time.Second))
		if !s.lastCrossTime[d].IsZero() && now.Sub(s.lastCrossTime[d]) < cooldown {
			continue
		}

		s.lastCrossTime[d] = now
		s.emitCrossing(ctx, d, direction, curr, now)
		return
	}
}

func (s *Service) emitCrossing(ctx context.Context, d door, direction geometry.Direction, centroid geometry.Point, now time.Time) {
	zone := d.zone()
	window := time.Duration(s.cfg.PirCrossWindow * float64(time.Second))
	pirRecent := !s.pirLastOn[zone].IsZero() && now.Sub(s.pirLastOn[zone]) <= window

	confidence := 0.70
	if pirRecent {
		confidence = 0.85
	}

	payload := types.CrossingPayload{
		Ts:       tsSeconds(now),
		Dir:      wireDirection(direction),
		Centroid: [2]float64{centroid.X, centroid.Y},
		Conf:     confidence,
	}

	var topic string
	switch {
	case d == doorBed && direction == geometry.IntoLiving:
		topic = s.topics.BedEventOut
	case d == doorBed:
		topic = s.topics.BedEventIn
	case direction == geometry.IntoLiving:
		topic = s.topics.BathEventOut
	default:
		topic = s.topics.BathEventIn
	}

	s.publish(ctx, topic, payload)
}

func wireDirection(d geometry.Direction) types.Direction {
	if d == geometry.IntoLiving {
		return types.DirIntoLiving
	}
	return types.DirIntoRoom
}

func (s *Service) updatePresence(ctx context.Context, centroid *geometry.Point, now time.Time) {
	inPoly := centroid != nil && s.cfg.Geo.LivingRoomPolygon.Contains(*centroid)

	confirmWindow := time.Duration(s.cfg.PresenceConfirmSeconds * float64(time.Second))
	holdWindow := time.Duration(s.cfg.PresenceHoldSeconds * float64(time.Second))

	if inPoly {
		s.presenceExitAt = time.Time{}
		if !s.presentState {
			if s.presenceEnterAt.IsZero() {
				s.presenceEnterAt = now
			} else if now.Sub(s.presenceEnterAt) >= confirmWindow {
				s.presentState = true
				s.presenceExitAt = time.Time{}
				s.publishPresence(ctx, true, now)
			}
		}
		return
	}

	s.presenceEnterAt = time.Time{}
	if s.presentState {
		if s.presenceExitAt.IsZero() {
			s.presenceExitAt = now
		} else if now.Sub(s.presenceExitAt) >= holdWindow {
			s.presentState = false
			s.publishPresence(ctx, false, now)
		}
	}
}

func (s *Service) publishPresence(ctx context.Context, present bool, now time.Time) {
	conf := 0.8
	if present {
		conf = 0.9
	}
	payload := types.PresencePayload{
		Ts:      tsSeconds(now),
		Present: present,
		Conf:    conf,
	}
	s.publish(ctx, s.topics.VisionState, payload)
}

// publishFn is the publish seam; tests replace it to capture outbound
// events without a live bus connection. Production code never reassigns it.
var publishFn = func(s *Service, ctx context.Context, topic string, payload any) {
	log.Debug().Str("topic", topic).Interface("payload", payload).Msg("fusion: publishing")
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("fusion: publish failed")
	}
	s.appendJSONL(topic, payload)
}

func (s *Service) publish(ctx context.Context, topic string, payload any) {
	publishFn(s, ctx, topic, payload)
}

// jsonlRecord is the envelope written to the JSONL mirror, one line per
// published event.
type jsonlRecord struct {
	Ts    float64 `json:"ts"`
	Topic string  `json:"topic"`
	Data  any     `json:"data"`
}

func (s *Service) appendJSONL(topic string, payload any) {
	if s.jsonlPath == "" {
		return
	}

	line, err := json.Marshal(jsonlRecord{Ts: tsSeconds(s.now()), Topic: topic, Data: payload})
	if err != nil {
		log.Warn().Err(err).Msg("fusion: encoding jsonl record")
		return
	}

	s.jsonlMu.Lock()
	defer s.jsonlMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.jsonlPath), 0o755); err != nil {
		log.Warn().Err(err).Str("path", s.jsonlPath).Msg("fusion: creating jsonl directory")
		return
	}
	f, err := os.OpenFile(s.jsonlPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("path", s.jsonlPath).Msg("fusion: opening jsonl mirror")
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Warn().Err(err).Str("path", s.jsonlPath).Msg("fusion: writing jsonl mirror")
	}
}

func tsSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
