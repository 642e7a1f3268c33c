// Package config loads and validates the controller configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"ledstripd/internal/leds"
)

// Config mirrors the YAML configuration file. Zero values are filled
// with defaults by Load.
type Config struct {
	Wifi struct {
		Mode              string `yaml:"mode"` // "sta" or "ap"
		SSID              string `yaml:"ssid"`
		Password          string `yaml:"password"`
		Interface         string `yaml:"interface"`
		ConnectionTimeout int    `yaml:"connection_timeout"` // seconds
		CheckInterval     int    `yaml:"check_interval"`     // seconds
		AP                struct {
			SSID     string `yaml:"ssid"`
			Password string `yaml:"password"`
		} `yaml:"ap"`
	} `yaml:"wifi"`
	LED struct {
		Count         int    `yaml:"count"`
		Mode          string `yaml:"mode"` // channel order, e.g. "RGB", "GRB", "RGBW"
		Device        string `yaml:"device"`
		Baud          int    `yaml:"baud"`
		Brightness    int    `yaml:"brightness"`
		StartupTest   bool   `yaml:"startup_test"`
		FrameInterval int    `yaml:"frame_interval"` // milliseconds
	} `yaml:"led"`
	Server struct {
		UDP struct {
			Enabled bool    `yaml:"enabled"`
			IP      string  `yaml:"ip"`
			Port    int     `yaml:"port"`
			Timeout float64 `yaml:"timeout"` // seconds
		} `yaml:"udp"`
		MQTT struct {
			Enabled   bool   `yaml:"enabled"`
			Broker    string `yaml:"broker"`
			Port      int    `yaml:"port"`
			SSL       bool   `yaml:"ssl"`
			Username  string `yaml:"username"`
			Password  string `yaml:"password"`
			ClientID  string `yaml:"client_id"`
			Keepalive int    `yaml:"keepalive"` // seconds
			QoS       int    `yaml:"qos"`
			Topics    struct {
				Data    string `yaml:"data"`
				Command string `yaml:"command"`
				Status  string `yaml:"status"`
			} `yaml:"topics"`
		} `yaml:"mqtt"`
	} `yaml:"server"`
	System struct {
		LEDTesterMode  bool `yaml:"led_tester_mode"`
		Debug          bool `yaml:"debug"`
		StatusInterval int  `yaml:"status_interval"` // seconds
	} `yaml:"system"`
	Web struct {
		Enabled        bool     `yaml:"enabled"`
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	EffectsDir string `yaml:"effects_dir"`
	Log        struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads the configuration at path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Wifi.Mode == "" {
		c.Wifi.Mode = "sta"
	}
	if c.Wifi.Interface == "" {
		c.Wifi.Interface = "wlan0"
	}
	if c.Wifi.ConnectionTimeout == 0 {
		c.Wifi.ConnectionTimeout = 20
	}
	if c.Wifi.CheckInterval == 0 {
		c.Wifi.CheckInterval = 10
	}
	if c.Wifi.AP.Password == "" {
		c.Wifi.AP.Password = "ledcontroller123"
	}
	if c.LED.Count == 0 {
		c.LED.Count = 4
	}
	if c.LED.Mode == "" {
		c.LED.Mode = "RGB"
	}
	if c.LED.Baud == 0 {
		c.LED.Baud = 921600
	}
	if c.LED.Brightness == 0 {
		c.LED.Brightness = 255
	}
	if c.LED.FrameInterval == 0 {
		c.LED.FrameInterval = 50
	}
	if c.Server.UDP.IP == "" {
		c.Server.UDP.IP = "0.0.0.0"
	}
	if c.Server.UDP.Port == 0 {
		c.Server.UDP.Port = 8000
	}
	if c.Server.UDP.Timeout == 0 {
		c.Server.UDP.Timeout = 1.0
	}
	if c.Server.MQTT.Port == 0 {
		c.Server.MQTT.Port = 1883
	}
	if c.Server.MQTT.ClientID == "" {
		c.Server.MQTT.ClientID = "ledstrip-" + uuid.NewString()[:6]
	}
	if c.Server.MQTT.Keepalive == 0 {
		c.Server.MQTT.Keepalive = 60
	}
	if c.Server.MQTT.Topics.Data == "" {
		c.Server.MQTT.Topics.Data = "led/data"
	}
	if c.Server.MQTT.Topics.Command == "" {
		c.Server.MQTT.Topics.Command = "led/command"
	}
	if c.Server.MQTT.Topics.Status == "" {
		c.Server.MQTT.Topics.Status = "led/status"
	}
	if c.Wifi.AP.SSID == "" {
		suffix := c.Server.MQTT.ClientID
		if len(suffix) > 6 {
			suffix = suffix[len(suffix)-6:]
		}
		c.Wifi.AP.SSID = "AreGeeBee-" + suffix
	}
	if c.System.StatusInterval == 0 {
		c.System.StatusInterval = 30
	}
	if c.Web.Listen == "" {
		c.Web.Listen = "127.0.0.1:8080"
	}
	if c.Store.Path == "" {
		c.Store.Path = "ledstripd.db"
	}
	if c.EffectsDir == "" {
		c.EffectsDir = "effects"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the ranges the rest of the daemon relies on.
func (c *Config) Validate() error {
	switch c.Wifi.Mode {
	case "sta", "ap":
	default:
		return fmt.Errorf("wifi.mode must be \"sta\" or \"ap\", got %q", c.Wifi.Mode)
	}
	if c.Wifi.Mode == "sta" && c.Wifi.SSID == "" {
		return fmt.Errorf("wifi.ssid is required in sta mode")
	}
	if c.LED.Count < 1 || c.LED.Count > 1000 {
		return fmt.Errorf("led.count must be 1-1000, got %d", c.LED.Count)
	}
	if _, err := leds.ParseChannelOrder(c.LED.Mode); err != nil {
		return fmt.Errorf("led.mode: %w", err)
	}
	if c.LED.Brightness < 0 || c.LED.Brightness > 255 {
		return fmt.Errorf("led.brightness must be 0-255, got %d", c.LED.Brightness)
	}
	if c.LED.FrameInterval < 1 {
		return fmt.Errorf("led.frame_interval must be at least 1ms, got %d", c.LED.FrameInterval)
	}
	if c.Server.MQTT.Enabled && c.Server.MQTT.Broker == "" {
		return fmt.Errorf("server.mqtt.broker is required when mqtt is enabled")
	}
	if c.Server.MQTT.QoS < 0 || c.Server.MQTT.QoS > 2 {
		return fmt.Errorf("server.mqtt.qos must be 0-2, got %d", c.Server.MQTT.QoS)
	}
	if c.Server.UDP.Port < 1 || c.Server.UDP.Port > 65535 {
		return fmt.Errorf("server.udp.port must be 1-65535, got %d", c.Server.UDP.Port)
	}
	return nil
}

// ChannelOrder returns the parsed LED channel order. Validate must have
// accepted the config first.
func (c *Config) ChannelOrder() leds.ChannelOrder {
	order, err := leds.ParseChannelOrder(c.LED.Mode)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return order
}

// FrameInterval returns the render tick period.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.LED.FrameInterval) * time.Millisecond
}

// UDPTimeout returns the per-poll read deadline for the UDP server.
func (c *Config) UDPTimeout() time.Duration {
	return time.Duration(c.Server.UDP.Timeout * float64(time.Second))
}

// StatusInterval returns how often the status payload is published.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.System.StatusInterval) * time.Second
}

// LogLevel maps the configured level name onto slog, defaulting to info.
// system.debug forces debug regardless of log.level.
func (c *Config) LogLevel() string {
	if c.System.Debug {
		return "debug"
	}
	return strings.ToLower(c.Log.Level)
}
