//go:build !no_lua

// Package effects loads user-defined animation effects written as Lua
// scripts and renders them on behalf of the effect engine. Scripts are
// hot-reloaded when the directory changes.
package effects

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"ledstripd/internal/leds"
)

// Manager owns the script VMs. All methods except the fsnotify goroutine
// run on the control loop; the goroutine only signals the pending channel.
type Manager struct {
	dir     string
	logger  *slog.Logger
	scripts map[string]*script // effect name -> script
	watcher *fsnotify.Watcher
	pending chan struct{}
}

// NewManager loads all scripts from dir (created if missing) and starts
// watching it for changes.
func NewManager(dir string, logger *slog.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create effects dir: %w", err)
	}
	m := &Manager{
		dir:     dir,
		logger:  logger.With("component", "effects"),
		scripts: make(map[string]*script),
		pending: make(chan struct{}, 1),
	}
	m.Reload()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("effects watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch effects dir: %w", err)
	}
	m.watcher = watcher
	go m.watch()

	return m, nil
}

// watch forwards directory changes as a single pending signal. Reloading
// itself happens on the control loop via Poll so VM access stays
// single-threaded.
func (m *Manager) watch() {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".lua") {
				continue
			}
			select {
			case m.pending <- struct{}{}:
			default:
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("effects watcher", "err", err)
		}
	}
}

// Poll applies any pending directory change. Returns true when the effect
// list changed, so the caller can re-publish discovery.
func (m *Manager) Poll() bool {
	select {
	case <-m.pending:
	default:
		return false
	}

	before := m.Names()
	m.Reload()
	after := m.Names()
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if before[i] != after[i] {
			return true
		}
	}
	return false
}

// Reload drops all loaded scripts and reloads the directory. Malformed
// scripts are logged and skipped.
func (m *Manager) Reload() {
	for _, s := range m.scripts {
		s.close()
	}
	m.scripts = make(map[string]*script)

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.Warn("read effects dir", "err", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lua") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".lua")
		code, err := os.ReadFile(filepath.Join(m.dir, e.Name()))
		if err != nil {
			m.logger.Warn("read effect script", "file", e.Name(), "err", err)
			continue
		}
		s, err := loadScript(id, string(code))
		if err != nil {
			m.logger.Warn("load effect script", "file", e.Name(), "err", err)
			continue
		}
		if !s.meta.Enabled {
			s.close()
			continue
		}
		m.scripts[s.meta.Name] = s
	}
	m.logger.Info("effect scripts loaded", "count", len(m.scripts))
}

// Has reports whether name is a loaded scripted effect.
func (m *Manager) Has(name string) bool {
	_, ok := m.scripts[name]
	return ok
}

// Names returns the loaded effect names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.scripts))
	for name := range m.scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render runs the named script for one tick. Unknown names and script
// errors yield an error; the caller falls back to a dark frame.
func (m *Manager) Render(name string, ledCount int, tick uint64) ([]leds.Color, error) {
	s, ok := m.scripts[name]
	if !ok {
		return nil, fmt.Errorf("effect %q not loaded", name)
	}
	return s.render(ledCount, tick)
}

// Close stops the watcher and tears down the VMs.
func (m *Manager) Close() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	for _, s := range m.scripts {
		s.close()
	}
	m.scripts = nil
}
