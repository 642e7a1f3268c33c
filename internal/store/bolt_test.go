package store

import (
	"errors"
	"path/filepath"
	"testing"

	"ledstripd/internal/leds"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLightStateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := &LightState{
		Power:      true,
		Brightness: 128,
		Color:      leds.Color{R: 255, G: 10},
		Effect:     leds.EffectRainbow,
	}
	if err := s.SaveLightState(want); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetLightState()
	if err != nil {
		t.Fatal(err)
	}
	if *got != *want {
		t.Errorf("GetLightState = %+v, want %+v", got, want)
	}
}

func TestGetLightStateNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetLightState()
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveLightState(&LightState{Brightness: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveLightState(&LightState{Brightness: 2, Effect: leds.EffectChase}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetLightState()
	if err != nil {
		t.Fatal(err)
	}
	if got.Brightness != 2 || got.Effect != leds.EffectChase {
		t.Errorf("GetLightState = %+v", got)
	}
}
