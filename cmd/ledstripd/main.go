package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ledstripd/internal/config"
	"ledstripd/internal/controller"
	"ledstripd/internal/effects"
	"ledstripd/internal/leds"
	"ledstripd/internal/leds/driver"
	"ledstripd/internal/link"
	"ledstripd/internal/mqtt"
	"ledstripd/internal/store"
	"ledstripd/internal/udp"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("ledstripd starting", "version", version, "client_id", cfg.Server.MQTT.ClientID)

	state := &leds.State{
		Power:      true,
		Brightness: uint8(cfg.LED.Brightness),
		Effect:     leds.EffectNone,
		LEDCount:   cfg.LED.Count,
		Order:      cfg.ChannelOrder(),
	}

	drv, err := openDriver(cfg, logger)
	if err != nil {
		logger.Error("open led driver", "err", err)
		os.Exit(1)
	}
	defer drv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Tester mode replaces normal operation entirely.
	if cfg.System.LEDTesterMode {
		c := controller.New(controller.Config{Version: version}, state, drv, logger)
		if err := c.RunTester(ctx); err != nil && ctx.Err() == nil {
			logger.Error("tester mode", "err", err)
			os.Exit(1)
		}
		logger.Info("goodbye")
		return
	}

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	scripts, err := effects.NewManager(cfg.EffectsDir, logger)
	if err != nil {
		logger.Error("load effect scripts", "err", err)
		os.Exit(1)
	}
	defer scripts.Close()

	opts := []controller.Option{
		controller.WithStore(db),
		controller.WithScripts(scripts),
	}

	if cfg.Wifi.SSID != "" || cfg.Wifi.Mode == "ap" {
		mgr := link.NewManager(link.Config{
			Mode:           link.Mode(cfg.Wifi.Mode),
			SSID:           cfg.Wifi.SSID,
			Password:       cfg.Wifi.Password,
			APSSID:         cfg.Wifi.AP.SSID,
			APPassword:     cfg.Wifi.AP.Password,
			ConnectTimeout: time.Duration(cfg.Wifi.ConnectionTimeout) * time.Second,
			CheckInterval:  time.Duration(cfg.Wifi.CheckInterval) * time.Second,
		}, link.NewExecBackend(cfg.Wifi.Interface), logger)
		if err := mgr.Connect(ctx); err != nil {
			// The loop keeps retrying; starting offline is not fatal.
			logger.Warn("initial network connect failed", "err", err)
		}
		opts = append(opts, controller.WithLink(mgr))
	}

	if cfg.Server.UDP.Enabled {
		srv := udp.NewServer(udp.Config{
			IP:   cfg.Server.UDP.IP,
			Port: cfg.Server.UDP.Port,
			// The poll deadline must stay well under the frame interval.
			Timeout:  min(cfg.UDPTimeout(), cfg.FrameInterval()/5),
			MaxFrame: state.FrameSize(),
		}, logger)
		if err := srv.Start(); err != nil {
			logger.Error("start udp server", "err", err)
			os.Exit(1)
		}
		defer srv.Close()
		opts = append(opts, controller.WithUDP(srv))
	}

	var session *mqtt.Session
	if cfg.Server.MQTT.Enabled {
		session = mqtt.NewSession(mqtt.Config{
			Broker:    cfg.Server.MQTT.Broker,
			Port:      cfg.Server.MQTT.Port,
			SSL:       cfg.Server.MQTT.SSL,
			Username:  cfg.Server.MQTT.Username,
			Password:  cfg.Server.MQTT.Password,
			ClientID:  cfg.Server.MQTT.ClientID,
			Keepalive: time.Duration(cfg.Server.MQTT.Keepalive) * time.Second,
			QoS:       byte(cfg.Server.MQTT.QoS),
			Topics: mqtt.Topics{
				Data:    cfg.Server.MQTT.Topics.Data,
				Command: cfg.Server.MQTT.Topics.Command,
				Status:  cfg.Server.MQTT.Topics.Status,
			},
		}, logger)
		defer session.Close()
		opts = append(opts, controller.WithSession(session))
	}

	ctrlCfg := controller.Config{
		ClientID:       cfg.Server.MQTT.ClientID,
		Version:        version,
		ConfigURL:      configURL(cfg),
		FrameInterval:  cfg.FrameInterval(),
		StatusInterval: cfg.StatusInterval(),
		StartupTest:    cfg.LED.StartupTest,
	}

	c := controller.New(ctrlCfg, state, drv, logger, opts...)

	// Web server is a build-tag feature; the stub runs the loop bare.
	if err := runWithWeb(ctx, cfg, logger, c); err != nil && ctx.Err() == nil {
		logger.Error("control loop", "err", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
}

// openDriver selects the frame output: a serial pixel bridge when a
// device is configured, otherwise the null driver for headless use.
func openDriver(cfg *config.Config, logger *slog.Logger) (driver.Driver, error) {
	if cfg.LED.Device == "" {
		logger.Warn("no led.device configured, frames are discarded")
		return &driver.Null{}, nil
	}
	logger.Info("opening serial pixel driver", "device", cfg.LED.Device, "baud", cfg.LED.Baud)
	return driver.OpenSerial(cfg.LED.Device, cfg.LED.Baud)
}

func configURL(cfg *config.Config) string {
	if !cfg.Web.Enabled {
		return ""
	}
	return "http://" + cfg.Web.Listen
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel() {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
