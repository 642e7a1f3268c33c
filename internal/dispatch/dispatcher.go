package dispatch

import (
	"fmt"
	"log/slog"

	"ledstripd/internal/leds"
)

// EffectRegistry answers whether an effect name is known. The effects
// package implements it for Lua scripts; built-ins are always known.
type EffectRegistry interface {
	Has(name string) bool
}

// Dispatcher is the single writer of the LED state. Both protocol
// front-ends feed it; each accepted command mutates the state as one
// atomic swap visible to the next render tick.
type Dispatcher struct {
	state   *leds.State
	effects EffectRegistry
	logger  *slog.Logger

	direct   []byte // pending one-shot raw frame, canonical layout
	testReq  bool
	changed  bool
	builtins map[string]bool
}

// New creates a dispatcher owning state. effects may be nil when scripted
// effects are disabled.
func New(state *leds.State, effects EffectRegistry, logger *slog.Logger) *Dispatcher {
	builtins := make(map[string]bool)
	for _, name := range leds.BuiltinEffects() {
		builtins[name] = true
	}
	return &Dispatcher{
		state:    state,
		effects:  effects,
		logger:   logger.With("component", "dispatch"),
		builtins: builtins,
	}
}

// HandleRaw validates a raw frame and stages it as a one-shot direct
// write for the next render tick. The frame does not persist as the new
// state color; an active effect resumes on the tick after.
func (d *Dispatcher) HandleRaw(frame []byte) error {
	want := d.state.FrameSize()
	if len(frame) != want {
		d.logger.Debug("raw frame rejected", "got", len(frame), "want", want)
		return fmt.Errorf("%w: got %d bytes, want %d", ErrLengthMismatch, len(frame), want)
	}
	d.direct = append(d.direct[:0], frame...)
	return nil
}

// HandleJSON parses and applies a JSON command. On any error the state is
// left untouched.
func (d *Dispatcher) HandleJSON(payload []byte) error {
	cmd, err := ParseJSON(payload)
	if err != nil {
		d.logger.Debug("command rejected", "err", err)
		return err
	}
	return d.Apply(cmd)
}

// Apply mutates the state according to cmd. The whole command is applied
// as a single state swap, never partially.
func (d *Dispatcher) Apply(cmd Command) error {
	next := *d.state

	switch c := cmd.(type) {
	case Fill:
		next.Color = c.Color
		next.Effect = leds.EffectNone
		next.Power = true

	case Clear:
		next.Power = false

	case Brightness:
		next.Brightness = c.Value

	case Test:
		d.testReq = true
		return nil

	case Envelope:
		if c.Effect != nil && !d.knownEffect(*c.Effect) {
			return fmt.Errorf("%w: %q", ErrUnknownEffect, *c.Effect)
		}
		if c.Brightness != nil {
			next.Brightness = *c.Brightness
		}
		if c.Color != nil {
			next.Color = *c.Color
		}
		if c.Effect != nil {
			next.Effect = *c.Effect
		}
		if c.On != nil {
			next.Power = *c.On
			if !*c.On {
				// Turning off resets the effect, matching the HA light model.
				next.Effect = leds.EffectNone
			}
		}

	default:
		return fmt.Errorf("%w: %T", ErrUnknownAction, cmd)
	}

	if next != *d.state {
		*d.state = next
		d.changed = true
	}
	return nil
}

// TakeDirect returns the pending one-shot frame, if any, and clears it.
func (d *Dispatcher) TakeDirect() ([]byte, bool) {
	if d.direct == nil {
		return nil, false
	}
	frame := d.direct
	d.direct = nil
	return frame, true
}

// TakeTestRequest reports and clears a pending test-sequence request.
func (d *Dispatcher) TakeTestRequest() bool {
	req := d.testReq
	d.testReq = false
	return req
}

// TakeChanged reports and clears whether any command mutated the state
// since the last call. The control loop uses it to drive state publishes
// and persistence.
func (d *Dispatcher) TakeChanged() bool {
	ch := d.changed
	d.changed = false
	return ch
}

func (d *Dispatcher) knownEffect(name string) bool {
	if d.builtins[name] {
		return true
	}
	return d.effects != nil && d.effects.Has(name)
}
