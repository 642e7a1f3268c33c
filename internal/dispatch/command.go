// Package dispatch reconciles inputs from both transports into the one
// authoritative LED state.
package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ledstripd/internal/leds"
)

var (
	// ErrMalformed marks payloads that do not parse as a known command shape.
	ErrMalformed = errors.New("malformed command payload")
	// ErrUnknownAction marks a well-formed envelope with an unrecognized action.
	ErrUnknownAction = errors.New("unknown action")
	// ErrUnknownEffect marks a command naming an effect that is not registered.
	ErrUnknownEffect = errors.New("unknown effect")
	// ErrLengthMismatch marks a raw frame whose size does not match the strip.
	ErrLengthMismatch = errors.New("frame length mismatch")
)

// Command is a validated, transport-agnostic action. Commands are
// constructed by ParseJSON, applied once, and discarded.
type Command interface {
	isCommand()
}

// Fill sets a solid color, clears the effect and powers the strip on.
type Fill struct {
	Color leds.Color
}

// Clear powers the strip off.
type Clear struct{}

// Brightness sets the global brightness. Out-of-range values are clamped
// during parsing, never rejected.
type Brightness struct {
	Value uint8
}

// Test requests the startup test sequence out of band; it does not touch
// the persisted LED state.
type Test struct{}

// Envelope is the Home Assistant JSON-schema command. Nil fields were
// absent from the payload and leave the corresponding state field alone.
type Envelope struct {
	On         *bool
	Brightness *uint8
	Color      *leds.Color
	Effect     *string
}

func (Fill) isCommand()       {}
func (Clear) isCommand()      {}
func (Brightness) isCommand() {}
func (Test) isCommand()       {}
func (Envelope) isCommand()   {}

type actionProbe struct {
	Action string `json:"action"`
}

type fillPayload struct {
	Action string `json:"action"`
	Color  []int  `json:"color"`
}

type clearPayload struct {
	Action string `json:"action"`
}

type brightnessPayload struct {
	Action string `json:"action"`
	Value  *int   `json:"value"`
}

type haColor struct {
	R *int `json:"r"`
	G *int `json:"g"`
	B *int `json:"b"`
	W *int `json:"w"`
}

type haPayload struct {
	State      *string  `json:"state"`
	Brightness *int     `json:"brightness"`
	Color      *haColor `json:"color"`
	ColorMode  *string  `json:"color_mode"`
	Effect     *string  `json:"effect"`
}

// ParseJSON turns a JSON payload into a Command. Payloads carrying an
// "action" field use the legacy command schema; everything else must be a
// Home Assistant envelope. Unknown fields and unknown actions are rejected.
func ParseJSON(payload []byte) (Command, error) {
	var probe actionProbe
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if probe.Action != "" {
		return parseAction(probe.Action, payload)
	}
	return parseEnvelope(payload)
}

func strictUnmarshal(payload []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func parseAction(action string, payload []byte) (Command, error) {
	switch action {
	case "fill":
		var p fillPayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return nil, err
		}
		c, err := colorFromSlice(p.Color)
		if err != nil {
			return nil, err
		}
		return Fill{Color: c}, nil

	case "clear":
		var p clearPayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return nil, err
		}
		return Clear{}, nil

	case "brightness":
		var p brightnessPayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.Value == nil {
			return nil, fmt.Errorf("%w: brightness requires a value", ErrMalformed)
		}
		return Brightness{Value: clampByte(*p.Value)}, nil

	case "test":
		var p clearPayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return nil, err
		}
		return Test{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

func parseEnvelope(payload []byte) (Command, error) {
	var p haPayload
	if err := strictUnmarshal(payload, &p); err != nil {
		return nil, err
	}
	if p.State == nil && p.Brightness == nil && p.Color == nil && p.Effect == nil {
		return nil, fmt.Errorf("%w: empty envelope", ErrMalformed)
	}

	var env Envelope
	if p.State != nil {
		switch strings.ToUpper(*p.State) {
		case "ON":
			on := true
			env.On = &on
		case "OFF":
			off := false
			env.On = &off
		default:
			return nil, fmt.Errorf("%w: state %q", ErrMalformed, *p.State)
		}
	}
	if p.Brightness != nil {
		b := clampByte(*p.Brightness)
		env.Brightness = &b
	}
	if p.Color != nil {
		c := leds.Color{
			R: clampByte(intOrZero(p.Color.R)),
			G: clampByte(intOrZero(p.Color.G)),
			B: clampByte(intOrZero(p.Color.B)),
			W: clampByte(intOrZero(p.Color.W)),
		}
		env.Color = &c
	}
	if p.Effect != nil {
		env.Effect = p.Effect
	}
	return env, nil
}

// colorFromSlice accepts [r,g,b] or [r,g,b,w].
func colorFromSlice(v []int) (leds.Color, error) {
	if len(v) != 3 && len(v) != 4 {
		return leds.Color{}, fmt.Errorf("%w: color needs 3 or 4 components, got %d", ErrMalformed, len(v))
	}
	c := leds.Color{R: clampByte(v[0]), G: clampByte(v[1]), B: clampByte(v[2])}
	if len(v) == 4 {
		c.W = clampByte(v[3])
	}
	return c, nil
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
