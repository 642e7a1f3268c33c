package dispatch

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"ledstripd/internal/leds"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(t *testing.T, count int, mode string) (*Dispatcher, *leds.State) {
	t.Helper()
	order, err := leds.ParseChannelOrder(mode)
	if err != nil {
		t.Fatal(err)
	}
	state := &leds.State{
		Brightness: 255,
		Effect:     leds.EffectNone,
		LEDCount:   count,
		Order:      order,
	}
	return New(state, nil, testLogger()), state
}

func TestHandleRawLengthMismatch(t *testing.T) {
	d, state := newTestDispatcher(t, 3, "RGB")

	before := *state
	err := d.HandleRaw(make([]byte, 8))
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("err = %v, want ErrLengthMismatch", err)
	}
	if *state != before {
		t.Error("rejected frame mutated state")
	}
	if _, ok := d.TakeDirect(); ok {
		t.Error("rejected frame staged a direct write")
	}
}

func TestHandleRawOneShot(t *testing.T) {
	d, state := newTestDispatcher(t, 3, "RGB")
	state.Effect = leds.EffectRainbow

	frame := []byte{255, 0, 0, 0, 255, 0, 0, 0, 255}
	if err := d.HandleRaw(frame); err != nil {
		t.Fatal(err)
	}

	got, ok := d.TakeDirect()
	if !ok {
		t.Fatal("no direct frame staged")
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("direct frame = %v, want %v", got, frame)
	}
	// One-shot: a second take yields nothing and the effect survives.
	if _, ok := d.TakeDirect(); ok {
		t.Error("direct frame not cleared after take")
	}
	if state.Effect != leds.EffectRainbow {
		t.Errorf("effect = %q, raw data must not persist", state.Effect)
	}
}

func TestFillThenBrightnessScenario(t *testing.T) {
	d, state := newTestDispatcher(t, 1, "RGB")

	if err := d.HandleJSON([]byte(`{"action":"fill","color":[255,0,0,0]}`)); err != nil {
		t.Fatal(err)
	}
	if err := d.HandleJSON([]byte(`{"action":"brightness","value":128}`)); err != nil {
		t.Fatal(err)
	}

	if state.Color != (leds.Color{R: 255}) {
		t.Errorf("color = %+v", state.Color)
	}
	if state.Brightness != 128 {
		t.Errorf("brightness = %d, want 128", state.Brightness)
	}
	if !state.Power {
		t.Error("fill must power the strip on")
	}

	out := leds.NewEngine().Render(*state, 1)
	want := []byte{128, 0, 0}
	if !bytes.Equal(out, want) {
		t.Errorf("render = %v, want %v", out, want)
	}
}

func TestClearPowersOff(t *testing.T) {
	d, state := newTestDispatcher(t, 2, "RGB")
	state.Power = true

	if err := d.HandleJSON([]byte(`{"action":"clear"}`)); err != nil {
		t.Fatal(err)
	}
	if state.Power {
		t.Error("clear must power off")
	}
}

func TestEnvelopeAtomicOnUnknownEffect(t *testing.T) {
	d, state := newTestDispatcher(t, 2, "RGB")
	before := *state

	err := d.HandleJSON([]byte(`{"state":"ON","brightness":10,"effect":"sparkle"}`))
	if !errors.Is(err, ErrUnknownEffect) {
		t.Fatalf("err = %v, want ErrUnknownEffect", err)
	}
	if *state != before {
		t.Error("failed envelope partially applied")
	}
}

func TestEnvelopePartialApply(t *testing.T) {
	d, state := newTestDispatcher(t, 2, "RGB")
	state.Power = true
	state.Color = leds.Color{G: 77}
	state.Brightness = 9

	if err := d.HandleJSON([]byte(`{"effect":"chase"}`)); err != nil {
		t.Fatal(err)
	}
	if state.Effect != leds.EffectChase {
		t.Errorf("effect = %q", state.Effect)
	}
	if state.Color != (leds.Color{G: 77}) || state.Brightness != 9 || !state.Power {
		t.Error("absent envelope fields must leave state unchanged")
	}
}

func TestEnvelopeOffResetsEffect(t *testing.T) {
	d, state := newTestDispatcher(t, 2, "RGB")
	state.Power = true
	state.Effect = leds.EffectStrobe

	if err := d.HandleJSON([]byte(`{"state":"OFF"}`)); err != nil {
		t.Fatal(err)
	}
	if state.Power {
		t.Error("state OFF must power off")
	}
	if state.Effect != leds.EffectNone {
		t.Errorf("effect = %q, want none after OFF", state.Effect)
	}
}

func TestTestCommandOutOfBand(t *testing.T) {
	d, state := newTestDispatcher(t, 2, "RGB")
	before := *state

	if err := d.HandleJSON([]byte(`{"action":"test"}`)); err != nil {
		t.Fatal(err)
	}
	if *state != before {
		t.Error("test command must not alter state")
	}
	if !d.TakeTestRequest() {
		t.Error("test request not staged")
	}
	if d.TakeTestRequest() {
		t.Error("test request not cleared")
	}
}

type fakeRegistry struct{ names map[string]bool }

func (f fakeRegistry) Has(name string) bool { return f.names[name] }

func TestScriptedEffectAccepted(t *testing.T) {
	order, _ := leds.ParseChannelOrder("RGB")
	state := &leds.State{Brightness: 255, Effect: leds.EffectNone, LEDCount: 2, Order: order}
	d := New(state, fakeRegistry{names: map[string]bool{"sparkle": true}}, testLogger())

	if err := d.HandleJSON([]byte(`{"effect":"sparkle"}`)); err != nil {
		t.Fatal(err)
	}
	if state.Effect != "sparkle" {
		t.Errorf("effect = %q, want sparkle", state.Effect)
	}
}
