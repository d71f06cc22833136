package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Input events
// ============================================================================
// Everything the core senses (wheel motion, button edges, system conditions)
// is expressed as an InputEvent and funneled through the input bus, which
// assigns a bus-wide sequence number establishing one total order.
// ============================================================================

// EventPayload is the marker interface for input event payloads.
type EventPayload interface {
	payloadMarker()
}

// ButtonID identifies a physical button.
type ButtonID string

const (
	ButtonPlayPause ButtonID = "play_pause"
	ButtonNext      ButtonID = "next"
	ButtonPrev      ButtonID = "prev"
	ButtonMenu      ButtonID = "menu"
	ButtonSelect    ButtonID = "select"
)

// ButtonEdge is a press or release transition.
type ButtonEdge string

const (
	EdgePress   ButtonEdge = "press"
	EdgeRelease ButtonEdge = "release"
)

// ButtonEvent is one debounced button edge. Every edge of a physical press
// is preserved end to end: button events are never coalesced or dropped.
type ButtonEvent struct {
	ID   ButtonID   `json:"id"`
	Edge ButtonEdge `json:"edge"`
}

func (ButtonEvent) payloadMarker() {}

// WheelEvent is scroll motion or a tap from the touch wheel.
//
// Delta is the signed shortest-path angular change in revolutions since the
// last accepted sample; Steps is the detent count derived from accumulated
// fractional motion. Tap events carry zero delta.
type WheelEvent struct {
	Delta float64 `json:"delta"`
	Steps int     `json:"steps"`
	Tap   bool    `json:"tap,omitempty"`
}

func (WheelEvent) payloadMarker() {}

// SystemEventKind enumerates conditions surfaced by the core itself.
type SystemEventKind string

const (
	SystemTrackEnded   SystemEventKind = "track_ended"
	SystemDecodeError  SystemEventKind = "decode_error"
	SystemUnderrun     SystemEventKind = "underrun"
	SystemBusOverflow  SystemEventKind = "bus_overflow"
	SystemSensorFault  SystemEventKind = "sensor_fault"
	SystemCalibrated   SystemEventKind = "calibrated"
	SystemCalibPending SystemEventKind = "calibration_pending"
)

// SystemEvent reports a core-internal condition to consumers.
type SystemEvent struct {
	Kind   SystemEventKind `json:"kind"`
	Detail string          `json:"detail,omitempty"`
}

func (SystemEvent) payloadMarker() {}

// InputEvent is one entry in the bus's total order. Seq is assigned by the
// bus at enqueue time; At is the producer's timestamp.
type InputEvent struct {
	Seq     uint64
	At      time.Time
	Payload EventPayload
}

// ============================================================================
// JSON envelope
// ============================================================================
// Events cross the process boundary (state WebSocket, IPC) as JSON with a
// type discriminator, since Go has no union types on the wire.
// ============================================================================

// EventEnvelope wraps an event payload with a type discriminator.
type EventEnvelope struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq,omitempty"`
	At   *time.Time      `json:"at,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalInputEvent serializes an InputEvent into a JSON envelope.
func MarshalInputEvent(ev InputEvent) ([]byte, error) {
	env := EventEnvelope{Seq: ev.Seq}
	if !ev.At.IsZero() {
		at := ev.At
		env.At = &at
	}

	switch p := ev.Payload.(type) {
	case ButtonEvent:
		env.Type = "button"
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal ButtonEvent: %w", err)
		}
		env.Data = data

	case WheelEvent:
		env.Type = "wheel"
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal WheelEvent: %w", err)
		}
		env.Data = data

	case SystemEvent:
		env.Type = "system"
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal SystemEvent: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event payload type: %T", p)
	}

	return json.Marshal(env)
}

// UnmarshalEventPayload deserializes a JSON envelope into a concrete payload.
func UnmarshalEventPayload(data []byte) (EventPayload, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "button":
		var p ButtonEvent
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal ButtonEvent: %w", err)
		}
		return p, nil

	case "wheel":
		var p WheelEvent
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal WheelEvent: %w", err)
		}
		return p, nil

	case "system":
		var p SystemEvent
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal SystemEvent: %w", err)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}
