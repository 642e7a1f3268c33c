// Package controller runs the single-threaded control loop: one tick per
// frame interval, each tick polling every input source with a bounded
// deadline, applying commands through the dispatcher and rendering the
// resulting frame to the driver. Nothing in the loop blocks for longer
// than one bounded step.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"ledstripd/internal/dispatch"
	"ledstripd/internal/effects"
	"ledstripd/internal/leds"
	"ledstripd/internal/leds/driver"
	"ledstripd/internal/link"
	"ledstripd/internal/metrics"
	"ledstripd/internal/mqtt"
	"ledstripd/internal/store"
	"ledstripd/internal/udp"
)

const (
	// maxInboundPerTick bounds how many queued messages one tick drains so a
	// flood never starves rendering.
	maxInboundPerTick = 16

	// statePublishDebounce coalesces rapid command bursts into one retained
	// HA state publish.
	statePublishDebounce = 100 * time.Millisecond

	// saveDebounce spaces store writes so effect-speed command streams do
	// not hammer the database.
	saveDebounce = time.Second

	// testPhaseDuration is how long each color of the test sequence holds.
	testPhaseDuration = 500 * time.Millisecond

	// testerHoldDuration is how long each color holds in tester mode.
	testerHoldDuration = time.Second

	// testerSafetyLimit caps the tester-mode LED count before wrapping.
	testerSafetyLimit = 1000
)

// Broadcaster receives every rendered frame, e.g. for a live web preview.
type Broadcaster interface {
	BroadcastFrame(frame []byte)
}

// Config holds controller settings derived from the main configuration.
type Config struct {
	ClientID       string
	Version        string
	ConfigURL      string
	FrameInterval  time.Duration
	StatusInterval time.Duration
	StartupTest    bool
}

// Option configures optional controller inputs.
type Option func(*Controller)

// WithLink attaches the wireless link manager.
func WithLink(m *link.Manager) Option { return func(c *Controller) { c.link = m } }

// WithUDP attaches the raw-frame UDP listener.
func WithUDP(s *udp.Server) Option { return func(c *Controller) { c.udpSrv = s } }

// WithSession attaches the MQTT broker session.
func WithSession(s *mqtt.Session) Option { return func(c *Controller) { c.session = s } }

// WithScripts attaches the scripted effect manager.
func WithScripts(m *effects.Manager) Option { return func(c *Controller) { c.scripts = m } }

// WithStore attaches light-state persistence.
func WithStore(db store.Store) Option { return func(c *Controller) { c.db = db } }

// WithBroadcaster attaches a frame broadcaster.
func WithBroadcaster(b Broadcaster) Option { return func(c *Controller) { c.hub = b } }

// Controller owns the LED state and the control loop. All fields are
// confined to the loop goroutine except the atomic snapshots and the
// commands channel, which exist for the web server's benefit.
type Controller struct {
	cfg    Config
	state  *leds.State
	engine *leds.Engine
	disp   *dispatch.Dispatcher
	drv    driver.Driver
	logger *slog.Logger

	link    *link.Manager
	udpSrv  *udp.Server
	session *mqtt.Session
	scripts *effects.Manager
	db      store.Store
	hub     Broadcaster

	commands chan []byte
	snapshot atomic.Pointer[leds.State]
	names    atomic.Pointer[[]string]

	start time.Time
	tick  uint64

	testQueue    []leds.Color
	testDeadline time.Time

	publishDirty bool
	publishSince time.Time
	saveDirty    bool
	saveSince    time.Time
	lastStatus   time.Time
}

// New assembles a controller around state and drv. Optional inputs are
// attached via options; a controller with none of them still renders.
func New(cfg Config, state *leds.State, drv driver.Driver, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		state:    state,
		engine:   leds.NewEngine(),
		drv:      drv,
		logger:   logger.With("component", "controller"),
		commands: make(chan []byte, 16),
	}
	for _, opt := range opts {
		opt(c)
	}

	var registry dispatch.EffectRegistry
	if c.scripts != nil {
		registry = c.scripts
	}
	c.disp = dispatch.New(state, registry, logger)

	c.restore()
	c.publishSnapshot()
	c.refreshNames()

	if c.session != nil {
		c.session.SetOnConnect(c.announce)
	}
	return c
}

// SetBroadcaster attaches a frame broadcaster after construction. The web
// server needs the controller first, so it cannot be passed as an option.
// Must be called before Run.
func (c *Controller) SetBroadcaster(b Broadcaster) { c.hub = b }

// Run drives the control loop until ctx is cancelled. On shutdown the
// strip is darkened and the final state persisted.
func (c *Controller) Run(ctx context.Context) error {
	c.start = time.Now()
	if c.cfg.StartupTest {
		c.stageTest(c.start)
	}

	ticker := time.NewTicker(c.cfg.FrameInterval)
	defer ticker.Stop()

	c.logger.Info("control loop running",
		"frame_interval", c.cfg.FrameInterval,
		"led_count", c.state.LEDCount,
		"mode", c.state.Order.String())

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case now := <-ticker.C:
			c.step(ctx, now)
		}
	}
}

// step advances the loop by exactly one tick.
func (c *Controller) step(ctx context.Context, now time.Time) {
	c.pollLink(ctx, now)
	c.pollUDP()
	c.pollMQTT(now)
	c.pollWebCommands()
	c.pollScripts()

	if c.disp.TakeTestRequest() {
		c.stageTest(now)
	}
	if c.disp.TakeChanged() {
		if !c.publishDirty {
			c.publishSince = now
		}
		if !c.saveDirty {
			c.saveSince = now
		}
		c.publishDirty = true
		c.saveDirty = true
		c.publishSnapshot()
	}

	frame := c.render(now)
	if err := c.drv.Write(frame); err != nil {
		metrics.DriverError()
		c.logger.Warn("driver write", "err", err)
	} else {
		metrics.FrameRendered()
	}
	if c.hub != nil {
		c.hub.BroadcastFrame(frame)
	}

	c.flushDeferred(now)
	c.tick++
}

func (c *Controller) pollLink(ctx context.Context, now time.Time) {
	if c.link == nil {
		return
	}
	st := c.link.Poll(ctx, now)
	if st.SignalQuality != nil {
		metrics.SetWifiSignal(*st.SignalQuality)
	}
}

func (c *Controller) pollUDP() {
	if c.udpSrv == nil {
		return
	}
	for i := 0; i < maxInboundPerTick; i++ {
		pkt := c.udpSrv.Poll()
		if pkt == nil {
			return
		}
		metrics.UDPPacket()
		if err := c.disp.HandleRaw(pkt); err != nil {
			metrics.CommandError("udp")
		}
	}
}

func (c *Controller) pollMQTT(now time.Time) {
	if c.session == nil {
		return
	}
	c.session.Poll(now)
	topics := c.session.Topics()
	for i := 0; i < maxInboundPerTick; i++ {
		msg, ok := c.session.PollIncoming()
		if !ok {
			return
		}
		if msg.Topic == topics.Data {
			if err := c.disp.HandleRaw(msg.Payload); err != nil {
				metrics.CommandError("mqtt")
			}
			continue
		}
		// Command topic and the HA set topic both carry JSON.
		if err := c.disp.HandleJSON(msg.Payload); err != nil {
			metrics.CommandError("mqtt")
		}
	}
}

func (c *Controller) pollWebCommands() {
	for i := 0; i < maxInboundPerTick; i++ {
		select {
		case payload := <-c.commands:
			if err := c.disp.HandleJSON(payload); err != nil {
				metrics.CommandError("web")
			}
		default:
			return
		}
	}
}

func (c *Controller) pollScripts() {
	if c.scripts == nil {
		return
	}
	if c.scripts.Poll() {
		c.refreshNames()
		c.logger.Info("effect list changed", "effects", len(c.EffectNames()))
		c.announce()
	}
}

// render picks the frame source for this tick: an active test sequence
// wins, then a staged one-shot raw frame, then the selected effect.
func (c *Controller) render(now time.Time) []byte {
	if frame, ok := c.renderTest(now); ok {
		return frame
	}
	if raw, ok := c.disp.TakeDirect(); ok {
		return c.engine.RenderDirect(raw, *c.state)
	}
	if c.scripts != nil && !leds.IsBuiltinEffect(c.state.Effect) && c.scripts.Has(c.state.Effect) {
		return c.renderScript()
	}
	return c.engine.Render(*c.state, c.tick)
}

func (c *Controller) renderScript() []byte {
	if !c.state.Power {
		return make([]byte, c.state.FrameSize())
	}
	colors, err := c.scripts.Render(c.state.Effect, c.state.LEDCount, c.tick)
	if err != nil {
		c.logger.Warn("script effect failed", "effect", c.state.Effect, "err", err)
		return make([]byte, c.state.FrameSize())
	}
	if len(colors) > c.state.LEDCount {
		colors = colors[:c.state.LEDCount]
	}
	padded := make([]leds.Color, c.state.LEDCount)
	copy(padded, colors)
	return leds.Finalize(padded, c.state.Brightness, c.state.Order)
}

// stageTest queues the red/green/blue (plus white on RGBW strips) fill
// sequence. It overrides all other frame sources until it drains.
func (c *Controller) stageTest(now time.Time) {
	c.testQueue = []leds.Color{{R: 255}, {G: 255}, {B: 255}}
	if c.state.Order.HasWhite() {
		c.testQueue = append(c.testQueue, leds.Color{W: 255})
	}
	c.testDeadline = now.Add(testPhaseDuration)
	c.logger.Info("test sequence started", "phases", len(c.testQueue))
}

func (c *Controller) renderTest(now time.Time) ([]byte, bool) {
	if len(c.testQueue) == 0 {
		return nil, false
	}
	if !now.Before(c.testDeadline) {
		c.testQueue = c.testQueue[1:]
		c.testDeadline = now.Add(testPhaseDuration)
		if len(c.testQueue) == 0 {
			return nil, false
		}
	}
	colors := make([]leds.Color, c.state.LEDCount)
	for i := range colors {
		colors[i] = c.testQueue[0]
	}
	return leds.Finalize(colors, c.state.Brightness, c.state.Order), true
}

// flushDeferred runs the debounced publishes: HA state, store saves and
// the periodic status report.
func (c *Controller) flushDeferred(now time.Time) {
	if c.publishDirty && now.Sub(c.publishSince) >= statePublishDebounce {
		c.publishDirty = false
		if c.session != nil && c.session.IsConnected() {
			if err := c.session.PublishState(*c.state); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
				c.logger.Warn("publish state", "err", err)
			}
		}
	}

	if c.saveDirty && now.Sub(c.saveSince) >= saveDebounce {
		c.saveDirty = false
		c.save()
	}

	if c.cfg.StatusInterval > 0 && now.Sub(c.lastStatus) >= c.cfg.StatusInterval {
		c.lastStatus = now
		c.publishStatus()
	}
}

func (c *Controller) publishStatus() {
	if c.session == nil {
		return
	}
	st := mqtt.Status{
		Status:   "online",
		Uptime:   time.Since(c.start).Seconds(),
		LEDCount: c.state.LEDCount,
		LEDMode:  c.state.Order.String(),
		Protocols: mqtt.Protocols{
			UDP:  c.udpSrv != nil && c.udpSrv.Addr() != nil,
			MQTT: c.session.IsConnected(),
		},
	}
	if c.link != nil {
		if rssi, ok := c.link.SignalQuality(); ok {
			st.WifiRSSI = &rssi
		}
	}
	if err := c.session.PublishStatus(st); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		c.logger.Warn("publish status", "err", err)
	}
}

// announce publishes the retained discovery payload followed by the
// current state. Runs on every established connection and whenever the
// effect list changes.
func (c *Controller) announce() {
	if c.session == nil || !c.session.IsConnected() {
		return
	}
	info := mqtt.DeviceInfo{
		ClientID:  c.cfg.ClientID,
		LEDCount:  c.state.LEDCount,
		Mode:      c.state.Order.String(),
		Effects:   c.EffectNames(),
		ConfigURL: c.cfg.ConfigURL,
		Version:   c.cfg.Version,
	}
	if err := c.session.PublishDiscovery(info); err != nil {
		return
	}
	if err := c.session.PublishState(*c.state); err != nil {
		c.logger.Warn("publish state", "err", err)
	}
}

// restore loads the persisted light state, keeping configured defaults
// when nothing has been saved yet. Geometry always comes from config.
func (c *Controller) restore() {
	if c.db == nil {
		return
	}
	saved, err := c.db.GetLightState()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("restore light state", "err", err)
		}
		return
	}
	c.state.Power = saved.Power
	c.state.Brightness = saved.Brightness
	c.state.Color = saved.Color
	c.state.Effect = saved.Effect
	if !leds.IsBuiltinEffect(saved.Effect) && (c.scripts == nil || !c.scripts.Has(saved.Effect)) {
		c.state.Effect = leds.EffectNone
	}
	c.logger.Info("light state restored",
		"power", saved.Power, "brightness", saved.Brightness, "effect", c.state.Effect)
}

func (c *Controller) save() {
	if c.db == nil {
		return
	}
	err := c.db.SaveLightState(&store.LightState{
		Power:      c.state.Power,
		Brightness: c.state.Brightness,
		Color:      c.state.Color,
		Effect:     c.state.Effect,
	})
	if err != nil {
		c.logger.Warn("save light state", "err", err)
	}
}

func (c *Controller) shutdown() {
	c.logger.Info("control loop stopping")
	if err := c.drv.Write(make([]byte, c.state.FrameSize())); err != nil {
		c.logger.Warn("clear strip", "err", err)
	}
	if c.saveDirty {
		c.save()
	}
}

func (c *Controller) publishSnapshot() {
	st := *c.state
	c.snapshot.Store(&st)
}

func (c *Controller) refreshNames() {
	names := leds.BuiltinEffects()
	if c.scripts != nil {
		names = append(names, c.scripts.Names()...)
	}
	c.names.Store(&names)
}

// Snapshot returns the last published LED state. Safe from any goroutine.
func (c *Controller) Snapshot() leds.State {
	return *c.snapshot.Load()
}

// EffectNames returns the built-in effects followed by loaded scripts.
// Safe from any goroutine.
func (c *Controller) EffectNames() []string {
	return *c.names.Load()
}

// Submit enqueues a JSON command from outside the loop (the web server).
// A full queue rejects the command instead of blocking the caller.
func (c *Controller) Submit(payload []byte) error {
	select {
	case c.commands <- payload:
		return nil
	default:
		return errors.New("command queue full")
	}
}

// Uptime reports how long the control loop has been running.
func (c *Controller) Uptime() time.Duration {
	if c.start.IsZero() {
		return 0
	}
	return time.Since(c.start)
}
