// Package types defines the JSON-wire payloads carried over the bus:
// plain structs decoded with encoding/json, unrecognized fields ignored,
// missing required fields rejected at the call site rather than panicking.
package types

import "fmt"

// PirState is the sensor state carried on sensors/door/+/pir.
type PirState string

const (
	PirOn  PirState = "ON"
	PirOff PirState = "OFF"
)

// PirPayload is the inbound payload on a sensors/door/<zone>/pir topic.
// Ts is optional; callers fall back to wall-clock when it is zero.
type PirPayload struct {
	State PirState `json:"state"`
	Ts    float64  `json:"ts,omitempty"`
}

// Validate reports whether the payload carries a recognized state. An
// unrecognized or missing state is dropped by the caller with a warning
// rather than propagated.
func (p PirPayload) Validate() error {
	switch p.State {
	case PirOn, PirOff, "":
		if p.State == "" {
			return fmt.Errorf("types: pir payload missing state")
		}
		return nil
	default:
		return fmt.Errorf("types: pir payload has unrecognized state %q", p.State)
	}
}

// Direction mirrors geometry.Direction as a wire value, kept as a plain
// string type here so this package has no dependency on internal/geometry.
type Direction string

const (
	DirIntoLiving Direction = "into_living"
	DirIntoRoom   Direction = "into_room"
)

// CrossingPayload is published on events/person/<zone>/{in,out}.
type CrossingPayload struct {
	Ts       float64   `json:"ts"`
	Dir      Direction `json:"dir"`
	Centroid [2]float64 `json:"centroid"`
	Conf     float64   `json:"conf"`
}

// PresencePayload is published on vision/state/living_room.
type PresencePayload struct {
	Ts      float64 `json:"ts"`
	Present bool    `json:"present"`
	Conf    float64 `json:"conf"`
}

// LightingMode is the mode field of a LightingCommand.
type LightingMode string

const (
	LightingOn   LightingMode = "on"
	LightingOff  LightingMode = "off"
	LightingDim  LightingMode = "dim"
	LightingAim  LightingMode = "aim"
)

// ServoAim is the optional aim target of a LightingCommand, in [-1,1] on
// both axes.
type ServoAim struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LightingCommand is the payload published on cmd/lighting/{room}/set by
// upstream consumers. The spotlight controller itself does not subscribe
// to this topic; it is modeled here for adapters that bridge it onto the
// controller's trigger topics.
type LightingCommand struct {
	Mode       LightingMode `json:"mode"`
	Brightness *int         `json:"brightness,omitempty"`
	Servo      *ServoAim    `json:"servo,omitempty"`
	TTLSeconds *int         `json:"ttl_sec,omitempty"`
}
