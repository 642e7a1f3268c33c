//go:build !no_lua

package effects

import (
	"encoding/json"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"ledstripd/internal/leds"
)

// ScriptMeta holds user-editable metadata parsed from the script header
// line: `-- {"name": "...", "enabled": true}`.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// script is a loaded custom effect. The script must define
// `render(led_count, tick)` returning an array of {r, g, b[, w]} tables.
type script struct {
	id   string // filename stem
	meta ScriptMeta
	vm   *lua.LState
}

func loadScript(id, code string) (*script, error) {
	s := &script{id: id, meta: ScriptMeta{Name: id, Enabled: true}}

	if line, _, ok := strings.Cut(code, "\n"); ok && strings.HasPrefix(line, "-- {") {
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "-- ")), &s.meta); err != nil {
			return nil, fmt.Errorf("script %s: metadata: %w", id, err)
		}
		if s.meta.Name == "" {
			s.meta.Name = id
		}
	}

	vm := lua.NewState()
	registerStripModule(vm)
	if err := vm.DoString(code); err != nil {
		vm.Close()
		return nil, fmt.Errorf("script %s: %w", id, err)
	}
	if vm.GetGlobal("render").Type() != lua.LTFunction {
		vm.Close()
		return nil, fmt.Errorf("script %s: no render function", id)
	}
	s.vm = vm
	return s, nil
}

func (s *script) close() {
	if s.vm != nil {
		s.vm.Close()
	}
}

// render calls the script's render function for one tick.
func (s *script) render(ledCount int, tick uint64) ([]leds.Color, error) {
	L := s.vm
	L.Push(L.GetGlobal("render"))
	L.Push(lua.LNumber(ledCount))
	L.Push(lua.LNumber(tick))
	if err := L.PCall(2, 1, nil); err != nil {
		return nil, fmt.Errorf("script %s: %w", s.id, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("script %s: render returned %s, want table", s.id, ret.Type())
	}

	colors := make([]leds.Color, ledCount)
	for i := 1; i <= ledCount; i++ {
		entry, ok := tbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			continue // missing entries stay dark
		}
		colors[i-1] = leds.Color{
			R: luaChannel(entry, 1),
			G: luaChannel(entry, 2),
			B: luaChannel(entry, 3),
			W: luaChannel(entry, 4),
		}
	}
	return colors, nil
}

func luaChannel(tbl *lua.LTable, idx int) uint8 {
	n, ok := tbl.RawGetInt(idx).(lua.LNumber)
	if !ok {
		return 0
	}
	v := int(n)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// registerStripModule exposes the `strip` helper table to scripts.
func registerStripModule(L *lua.LState) {
	mod := L.NewTable()

	// strip.wheel(pos) — rainbow colors across 0-255 positions.
	mod.RawSetString("wheel", L.NewFunction(func(L *lua.LState) int {
		pos := uint8(L.CheckInt(1) & 255)
		var r, g, b int
		switch {
		case pos < 85:
			r, g = int(pos)*3, 255-int(pos)*3
		case pos < 170:
			pos -= 85
			r, b = 255-int(pos)*3, int(pos)*3
		default:
			pos -= 170
			g, b = int(pos)*3, 255-int(pos)*3
		}
		L.Push(lua.LNumber(r))
		L.Push(lua.LNumber(g))
		L.Push(lua.LNumber(b))
		return 3
	}))

	L.SetGlobal("strip", mod)
}
