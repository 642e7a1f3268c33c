//go:build !no_lua

package effects

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"ledstripd/internal/leds"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sparkleScript = `-- {"name": "sparkle", "enabled": true}
function render(led_count, tick)
	local out = {}
	for i = 1, led_count do
		if (i + tick) % 2 == 0 then
			out[i] = {255, 255, 255}
		else
			out[i] = {0, 0, 0}
		end
	end
	return out
end
`

func writeScript(t *testing.T, dir, name, code string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(code), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestManager(t *testing.T, dir string) *Manager {
	t.Helper()
	m, err := NewManager(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestManagerLoadsScripts(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "sparkle.lua", sparkleScript)

	m := newTestManager(t, dir)

	if !m.Has("sparkle") {
		t.Fatal("sparkle not loaded")
	}
	names := m.Names()
	if len(names) != 1 || names[0] != "sparkle" {
		t.Errorf("Names = %v", names)
	}
}

func TestManagerRender(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "sparkle.lua", sparkleScript)
	m := newTestManager(t, dir)

	colors, err := m.Render("sparkle", 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(colors) != 4 {
		t.Fatalf("got %d colors, want 4", len(colors))
	}
	// (i + 0) % 2 == 0 lights LEDs 2 and 4 (1-based).
	want := []leds.Color{{}, {R: 255, G: 255, B: 255}, {}, {R: 255, G: 255, B: 255}}
	for i := range want {
		if colors[i] != want[i] {
			t.Errorf("colors[%d] = %+v, want %+v", i, colors[i], want[i])
		}
	}
}

func TestManagerRenderUnknown(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	if _, err := m.Render("ghost", 4, 0); err == nil {
		t.Error("expected error for unknown effect")
	}
}

func TestManagerSkipsBrokenScript(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "broken.lua", "this is not lua (")
	writeScript(t, dir, "norender.lua", "x = 1")
	writeScript(t, dir, "sparkle.lua", sparkleScript)

	m := newTestManager(t, dir)
	if m.Has("broken") || m.Has("norender") {
		t.Error("broken scripts must not load")
	}
	if !m.Has("sparkle") {
		t.Error("valid script skipped")
	}
}

func TestManagerSkipsDisabledScript(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "off.lua", `-- {"name": "off", "enabled": false}
function render(n, t) return {} end
`)
	m := newTestManager(t, dir)
	if m.Has("off") {
		t.Error("disabled script loaded")
	}
}

func TestReloadPicksUpNewScript(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	if m.Has("sparkle") {
		t.Fatal("unexpected script")
	}

	writeScript(t, dir, "sparkle.lua", sparkleScript)
	m.Reload()
	if !m.Has("sparkle") {
		t.Error("Reload did not pick up new script")
	}
}

func TestScriptClampsChannels(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "hot.lua", `function render(n, t)
	local out = {}
	for i = 1, n do out[i] = {999, -5, 42} end
	return out
end
`)
	m := newTestManager(t, dir)

	colors, err := m.Render("hot", 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if colors[0] != (leds.Color{R: 255, G: 0, B: 42}) {
		t.Errorf("colors[0] = %+v", colors[0])
	}
}

func TestStripWheelHelper(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "wheel.lua", `function render(n, t)
	local out = {}
	for i = 1, n do
		local r, g, b = strip.wheel(0)
		out[i] = {r, g, b}
	end
	return out
end
`)
	m := newTestManager(t, dir)

	colors, err := m.Render("wheel", 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if colors[0] != (leds.Color{G: 255}) {
		t.Errorf("wheel(0) = %+v, want pure green", colors[0])
	}
}
