// Package link owns the wireless uplink: it joins the configured network,
// watches for loss, reconnects on a fixed interval and samples signal
// quality for status reporting.
package link

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrConnectTimeout is recorded when a join attempt exceeds its bound.
var ErrConnectTimeout = errors.New("link connect timeout")

// Backend abstracts the platform's network control surface so the manager
// can be tested without touching a real interface.
type Backend interface {
	// Join associates with the configured network. Bounded by ctx.
	Join(ctx context.Context, ssid, psk string) error
	// StartAP brings up the fallback access point. Bounded by ctx.
	StartAP(ctx context.Context, ssid, psk string) error
	// Status reports current association and, when known, signal level
	// in dBm. rssiKnown is false for interfaces without a wireless stats
	// entry (wired, virtual) so a zero sample is never mistaken for 0 dBm.
	Status() (connected bool, rssi int, rssiKnown bool, err error)
}

// Mode selects station or access-point operation.
type Mode string

const (
	ModeStation Mode = "sta"
	ModeAP      Mode = "ap"
)

// Config holds link settings.
type Config struct {
	Mode           Mode
	SSID           string
	Password       string
	APSSID         string
	APPassword     string
	ConnectTimeout time.Duration
	CheckInterval  time.Duration // how often Poll actually probes the backend
	RetryInterval  time.Duration // fixed pause between reconnect attempts
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 20 * time.Second
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 10 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 5 * time.Second
	}
}

// State is a snapshot of link health.
type State struct {
	Connected         bool
	APMode            bool
	LastError         error
	ReconnectAttempts int
	SignalQuality     *int // dBm, nil when unknown or in AP mode
}

// Manager drives the link without ever blocking the control loop for more
// than one bounded attempt.
type Manager struct {
	cfg     Config
	backend Backend
	logger  *slog.Logger

	state       State
	lastCheck   time.Time
	lastAttempt time.Time
}

// NewManager creates a manager; the link stays down until Connect.
func NewManager(cfg Config, backend Backend, logger *slog.Logger) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:     cfg,
		backend: backend,
		logger:  logger.With("component", "link"),
	}
}

// Connect performs the initial bounded join. In station mode a failed join
// falls back to the local access point when one is configured, so the
// device stays reachable without infrastructure.
func (m *Manager) Connect(ctx context.Context) error {
	if m.cfg.Mode == ModeAP {
		return m.startAP(ctx)
	}

	if err := m.join(ctx); err != nil {
		m.logger.Warn("station join failed", "ssid", m.cfg.SSID, "err", err)
		if m.cfg.APSSID != "" {
			return m.startAP(ctx)
		}
		return err
	}
	return nil
}

// Poll refreshes link state at most once per check interval and schedules
// a bounded reconnect attempt when the link is down. Always returns a
// snapshot; never blocks beyond one attempt.
func (m *Manager) Poll(ctx context.Context, now time.Time) State {
	if m.state.APMode {
		return m.state
	}
	if !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < m.cfg.CheckInterval {
		return m.state
	}
	m.lastCheck = now

	connected, rssi, rssiKnown, err := m.backend.Status()
	if err != nil {
		m.logger.Warn("link status probe", "err", err)
		connected = false
	}

	if connected {
		if !m.state.Connected {
			m.logger.Info("link restored", "ssid", m.cfg.SSID)
		}
		m.state.Connected = true
		m.state.LastError = nil
		m.state.SignalQuality = nil
		if rssiKnown {
			q := rssi
			m.state.SignalQuality = &q
		}
		return m.state
	}

	if m.state.Connected {
		m.logger.Warn("link lost", "ssid", m.cfg.SSID)
	}
	m.state.Connected = false
	m.state.SignalQuality = nil

	if m.lastAttempt.IsZero() || now.Sub(m.lastAttempt) >= m.cfg.RetryInterval {
		m.lastAttempt = now
		m.state.ReconnectAttempts++
		if err := m.join(ctx); err != nil {
			m.state.LastError = err
		} else {
			m.state.Connected = true
			m.state.LastError = nil
		}
	}
	return m.state
}

// IsConnected reports the last observed link state.
func (m *Manager) IsConnected() bool { return m.state.Connected }

// SignalQuality returns the last sampled RSSI in dBm.
func (m *Manager) SignalQuality() (int, bool) {
	if m.state.SignalQuality == nil {
		return 0, false
	}
	return *m.state.SignalQuality, true
}

func (m *Manager) join(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	if err := m.backend.Join(ctx, m.cfg.SSID, m.cfg.Password); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrConnectTimeout
		}
		return err
	}
	m.state.Connected = true
	m.state.LastError = nil
	m.logger.Info("link up", "ssid", m.cfg.SSID)
	return nil
}

func (m *Manager) startAP(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	if err := m.backend.StartAP(ctx, m.cfg.APSSID, m.cfg.APPassword); err != nil {
		m.state.LastError = err
		return err
	}
	m.state.Connected = true
	m.state.APMode = true
	m.state.LastError = nil
	m.logger.Info("access point started", "ssid", m.cfg.APSSID)
	return nil
}
