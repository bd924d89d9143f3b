// Package bus wraps an MQTT broker connection behind the small surface
// the fusion and spotlight services need: connect, subscribe, publish,
// and a non-blocking inbound event queue. The broker's own network loop
// runs on its own goroutine; the event queue is the only cross-thread
// boundary besides Publish, which is safe to call from any goroutine.
// Subscription callbacks enqueue onto a bounded channel rather than
// invoking application logic directly or sharing a lock with the network
// goroutine.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// QoS is the delivery quality used for every subscribe/publish in this
// system: at-least-once.
const QoS byte = 1

// Event is one decoded inbound message, handed to the owning service's
// poll loop.
type Event struct {
	Topic   string
	Payload map[string]any
}

// Config describes how to reach the broker.
type Config struct {
	Host      string
	Port      int
	ClientID  string
	Keepalive time.Duration
	// QueueDepth bounds the inbound event queue. A full queue drops the
	// oldest pending event rather than blocking the network goroutine.
	QueueDepth int
}

// Bus is a connected MQTT client with a drainable inbound queue.
type Bus struct {
	client mqtt.Client
	events chan Event
}

// Connect dials the broker and starts its background network loop. The
// returned Bus has no subscriptions yet; call Subscribe for each topic
// the owning service needs.
func Connect(cfg Config) (*Bus, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "homevision-" + uuid.NewString()
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}

	b := &Bus{
		events: make(chan Event, cfg.QueueDepth),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetKeepAlive(cfg.Keepalive).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info().Str("client_id", clientID).Msg("bus connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("client_id", clientID).Msg("bus connection lost, reconnect in progress")
		})

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("bus: connecting to %s:%d: %w", cfg.Host, cfg.Port, token.Error())
	}
	return b, nil
}

// Disconnect closes the connection, releasing the network goroutine.
func (b *Bus) Disconnect() {
	b.client.Disconnect(250)
}

// Subscribe registers a handler that decodes inbound payloads as UTF-8
// JSON and enqueues them for Poll. Malformed payloads are dropped with a
// warning and never reach the queue. This is the general rule; a
// consumer for which the topic itself carries the meaning regardless of
// payload (the trigger topics spotlight listens on, say) should use
// SubscribeLenient instead.
func (b *Bus) Subscribe(topic string) error {
	return b.subscribe(topic, false)
}

// SubscribeLenient is like Subscribe, except a payload that fails to
// decode as JSON still enqueues an Event with an empty Payload rather
// than being dropped. Use this where the topic itself is the signal and
// a malformed body must still be treated as the trigger.
func (b *Bus) SubscribeLenient(topic string) error {
	return b.subscribe(topic, true)
}

func (b *Bus) subscribe(topic string, lenient bool) error {
	token := b.client.Subscribe(topic, QoS, func(_ mqtt.Client, msg mqtt.Message) {
		var payload map[string]any
		if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
			if !lenient {
				log.Warn().Err(err).Str("topic", msg.Topic()).Msg("bus: dropping malformed payload")
				return
			}
			log.Warn().Err(err).Str("topic", msg.Topic()).Msg("bus: malformed payload, dispatching topic anyway")
			payload = map[string]any{}
		}
		b.enqueue(Event{Topic: msg.Topic(), Payload: payload})
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("bus: subscribing to %s: %w", topic, err)
	}
	return nil
}

func (b *Bus) enqueue(event Event) {
	select {
	case b.events <- event:
	default:
		// Queue full: drop the oldest event to make room rather than
		// block the network goroutine that invoked this callback.
		select {
		case <-b.events:
		default:
		}
		select {
		case b.events <- event:
		default:
		}
	}
}

// Publish sends payload (marshaled as compact JSON) to topic at QoS 1,
// retain false. Safe to call from any goroutine.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: encoding payload for %s: %w", topic, err)
	}
	token := b.client.Publish(topic, QoS, false, encoded)
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-done:
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll returns the next queued inbound event, or (Event{}, false) if none
// is available within timeout. A timeout of 0 never blocks.
func (b *Bus) Poll(timeout time.Duration) (Event, bool) {
	if timeout <= 0 {
		select {
		case ev := <-b.events:
			return ev, true
		default:
			return Event{}, false
		}
	}
	select {
	case ev := <-b.events:
		return ev, true
	case <-time.After(timeout):
		return Event{}, false
	}
}
