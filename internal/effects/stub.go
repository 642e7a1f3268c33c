//go:build no_lua

// Package effects is stubbed out when built with the no_lua tag; only the
// built-in effects remain available.
package effects

import (
	"fmt"
	"log/slog"

	"ledstripd/internal/leds"
)

// ScriptMeta holds user-editable script metadata (stub).
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Manager is a no-op stub when scripted effects are disabled.
type Manager struct{}

// NewManager returns a no-op manager.
func NewManager(_ string, _ *slog.Logger) (*Manager, error) { return &Manager{}, nil }

// Poll reports no changes.
func (m *Manager) Poll() bool { return false }

// Reload is a no-op.
func (m *Manager) Reload() {}

// Has reports false for every name.
func (m *Manager) Has(_ string) bool { return false }

// Names returns nil.
func (m *Manager) Names() []string { return nil }

// Render always fails; built-ins handle everything.
func (m *Manager) Render(name string, _ int, _ uint64) ([]leds.Color, error) {
	return nil, fmt.Errorf("scripted effects disabled (effect %q)", name)
}

// Close is a no-op.
func (m *Manager) Close() {}
