package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Request Types
// ============================================================================
// Requests represent intent from the input sources (headset via evdev, IPC,
// HTTP webhooks). The daemon loop stamps them with TimedEvent and reduces them.
// ============================================================================

// ButtonPressed is one logical headset button activation.
//
// At is when the press happened, if the source knows (the kernel timestamp
// for evdev). Otherwise the daemon uses the time it received the event.
type ButtonPressed struct {
	Source string    `json:"source,omitempty"` // e.g. "evdev", "ipc", "http"
	At     time.Time `json:"-"`
}

func (ButtonPressed) eventMarker() {}

// TriggerButton triggers a button directly, bypassing click classification.
type TriggerButton struct {
	Button int `json:"button"`
}

func (TriggerButton) eventMarker() {}

// SetTarget records the screen coordinate a button taps.
type SetTarget struct {
	Button int `json:"button"`
	X      int `json:"x"`
	Y      int `json:"y"`
}

func (SetTarget) eventMarker() {}

// ClearTarget resets a button's target to unset.
type ClearTarget struct {
	Button int `json:"button"`
}

func (ClearTarget) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event.
// Button numbers and coordinates are validated here so the reducer only ever
// sees well-formed requests.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "button_pressed":
		var a ButtonPressed
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &a); err != nil {
				return nil, fmt.Errorf("unmarshal ButtonPressed: %w", err)
			}
		}
		if a.Source == "" {
			a.Source = "ipc"
		}
		return a, nil

	case "trigger_button":
		var a TriggerButton
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal TriggerButton: %w", err)
		}
		if err := validateButton(a.Button); err != nil {
			return nil, err
		}
		return a, nil

	case "set_target":
		var a SetTarget
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetTarget: %w", err)
		}
		if err := validateButton(a.Button); err != nil {
			return nil, err
		}
		if err := validateTarget(a.X, a.Y); err != nil {
			return nil, err
		}
		return a, nil

	case "clear_target":
		var a ClearTarget
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal ClearTarget: %w", err)
		}
		if err := validateButton(a.Button); err != nil {
			return nil, err
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}
