// Package spotlight implements the per-doorway reactive controller: it
// reacts to trigger-on/trigger-off bus topics by driving a PWM LED and
// two angular servos, with a hold-timer auto-off and a standalone
// calibration mode.
package spotlight

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/homevision/homevision/internal/bus"
	"github.com/homevision/homevision/internal/config"
	"github.com/homevision/homevision/internal/hardware"
)

// Controller owns the hardware handle and spotlight state exclusively.
// Every mutation goes through the lock so an activate() can never
// interleave with a deactivate().
type Controller struct {
	cfg config.SpotlightConfig
	hw  hardware.Hardware
	bus *bus.Bus

	now func() time.Time

	mu                sync.Mutex
	currentBrightness float64
	lastOn            time.Time
}

// New constructs a Controller. hw and b are not started; call Start to
// move the hardware to rest and subscribe to the trigger topics.
func New(cfg config.SpotlightConfig, hw hardware.Hardware, b *bus.Bus) *Controller {
	return &Controller{
		cfg:               cfg,
		hw:                hw,
		bus:               b,
		now:               time.Now,
		currentBrightness: cfg.RestBrightness,
	}
}

// Start moves the servos to rest, sets the LED to rest brightness, and
// subscribes to the deduplicated union of trigger-on and trigger-off
// topics in first-seen order. These are subscribed leniently: the topic
// itself is the trigger, so a malformed payload must still dispatch
// activate/deactivate rather than being dropped by the bus.
func (c *Controller) Start() error {
	log.Info().Str("module_id", c.cfg.ModuleID).Str("host", c.cfg.MqttHost).Msg("spotlight: starting")
	c.hw.SetOrientation(c.cfg.ServoRestPan, c.cfg.ServoRestTilt)
	c.hw.SetBrightness(c.cfg.RestBrightness)

	for _, topic := range uniqueTopics(c.cfg.TriggerOnTopics, c.cfg.TriggerOffTopics) {
		if err := c.bus.SubscribeLenient(topic); err != nil {
			return err
		}
	}
	return nil
}

// Stop releases the hardware. The bus connection is the caller's to
// disconnect.
func (c *Controller) Stop() {
	log.Info().Str("module_id", c.cfg.ModuleID).Msg("spotlight: stopping")
	c.hw.Shutdown()
}

// RunOnce drains one batch of pending bus events non-blocking and
// dispatches each to activate/deactivate by topic membership.
func (c *Controller) RunOnce() {
	onSet := topicSet(c.cfg.TriggerOnTopics)
	offSet := topicSet(c.cfg.TriggerOffTopics)

	for {
		ev, ok := c.bus.Poll(0)
		if !ok {
			return
		}
		switch {
		case onSet[ev.Topic]:
			log.Info().Str("topic", ev.Topic).Msg("spotlight: trigger on")
			c.activate()
		case offSet[ev.Topic]:
			log.Info().Str("topic", ev.Topic).Msg("spotlight: trigger off")
			c.deactivate()
		default:
			log.Warn().Str("topic", ev.Topic).Msg("spotlight: event on unrecognized topic")
		}
	}
}

// activate moves the beam to its target pose and active brightness.
// Idempotent: a second call before any deactivate is a no-op beyond
// refreshing last_on, so a trigger-on storm issues exactly one pair of
// hardware writes.
func (c *Controller) activate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastOn = c.now()
	if c.currentBrightness == c.cfg.Brightness {
		return
	}
	c.hw.SetOrientation(c.cfg.ServoPanAngle, c.cfg.ServoTiltAngle)
	c.hw.SetBrightness(c.cfg.Brightness)
	c.currentBrightness = c.cfg.Brightness
}

// deactivate rests the LED and, if AutoRest, the servos too.
func (c *Controller) deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deactivateLocked()
}

func (c *Controller) deactivateLocked() {
	if c.currentBrightness == c.cfg.RestBrightness {
		return
	}
	c.hw.SetBrightness(c.cfg.RestBrightness)
	c.currentBrightness = c.cfg.RestBrightness
	if c.cfg.AutoRest {
		c.hw.SetOrientation(c.cfg.ServoRestPan, c.cfg.ServoRestTilt)
	}
}

// Tick is the periodic auto-off check: if the light is on and
// light_hold_seconds has elapsed since the last trigger-on, it turns
// itself off. A missed "off" message must never leave the light on
// forever.
func (c *Controller) Tick() {
	if c.cfg.LightHoldSeconds <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentBrightness != c.cfg.Brightness {
		return
	}
	hold := time.Duration(c.cfg.LightHoldSeconds * float64(time.Second))
	if c.now().Sub(c.lastOn) >= hold {
		log.Info().Str("module_id", c.cfg.ModuleID).Msg("spotlight: auto hold expired")
		c.deactivateLocked()
	}
}

// CurrentBrightness reports the controller's last-applied LED value, for
// tests and health reporting.
func (c *Controller) CurrentBrightness() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentBrightness
}

func topicSet(topics []string) map[string]bool {
	set := make(map[string]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	return set
}

// uniqueTopics returns the deduplicated union of the given topic lists,
// preserving first-seen order.
func uniqueTopics(lists ...[]string) []string {
	seen := make(map[string]bool)
	var ordered []string
	for _, list := range lists {
		for _, topic := range list {
			if seen[topic] {
				continue
			}
			seen[topic] = true
			ordered = append(ordered, topic)
		}
	}
	return ordered
}
