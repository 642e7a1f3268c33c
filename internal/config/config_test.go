package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
wifi:
  ssid: HomeNet
  password: hunter2
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Wifi.Mode != "sta" {
		t.Errorf("wifi.mode = %q, want sta", cfg.Wifi.Mode)
	}
	if cfg.Wifi.Interface != "wlan0" {
		t.Errorf("wifi.interface = %q", cfg.Wifi.Interface)
	}
	if cfg.LED.Count != 4 || cfg.LED.Mode != "RGB" || cfg.LED.Brightness != 255 {
		t.Errorf("led defaults = %+v", cfg.LED)
	}
	if cfg.Server.UDP.Port != 8000 || cfg.Server.UDP.IP != "0.0.0.0" {
		t.Errorf("udp defaults = %+v", cfg.Server.UDP)
	}
	if cfg.Server.MQTT.Port != 1883 || cfg.Server.MQTT.Keepalive != 60 {
		t.Errorf("mqtt defaults = %+v", cfg.Server.MQTT)
	}
	if cfg.Server.MQTT.Topics.Data != "led/data" ||
		cfg.Server.MQTT.Topics.Command != "led/command" ||
		cfg.Server.MQTT.Topics.Status != "led/status" {
		t.Errorf("topic defaults = %+v", cfg.Server.MQTT.Topics)
	}
	if !strings.HasPrefix(cfg.Server.MQTT.ClientID, "ledstrip-") {
		t.Errorf("client_id = %q, want ledstrip- prefix", cfg.Server.MQTT.ClientID)
	}
	if !strings.HasPrefix(cfg.Wifi.AP.SSID, "AreGeeBee-") {
		t.Errorf("ap ssid = %q, want AreGeeBee- prefix", cfg.Wifi.AP.SSID)
	}
	if cfg.System.StatusInterval != 30 {
		t.Errorf("status_interval = %d", cfg.System.StatusInterval)
	}
	if cfg.Store.Path != "ledstripd.db" || cfg.EffectsDir != "effects" {
		t.Errorf("paths = %q %q", cfg.Store.Path, cfg.EffectsDir)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
}

func TestLoadFull(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
wifi:
  mode: sta
  ssid: HomeNet
  password: hunter2
  interface: wlp2s0
  ap:
    ssid: Fallback
    password: secret123
led:
  count: 150
  mode: GRB
  device: /dev/ttyACM0
  baud: 1000000
  brightness: 128
  startup_test: true
  frame_interval: 20
server:
  udp:
    enabled: true
    port: 21324
    timeout: 0.5
  mqtt:
    enabled: true
    broker: 192.168.1.10
    username: led
    password: pw
    client_id: livingroom
    qos: 1
system:
  status_interval: 60
  debug: true
log:
  level: warn
  format: json
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LED.Count != 150 || cfg.LED.Mode != "GRB" {
		t.Errorf("led = %+v", cfg.LED)
	}
	if cfg.FrameInterval() != 20*time.Millisecond {
		t.Errorf("FrameInterval = %v", cfg.FrameInterval())
	}
	if cfg.UDPTimeout() != 500*time.Millisecond {
		t.Errorf("UDPTimeout = %v", cfg.UDPTimeout())
	}
	if cfg.StatusInterval() != time.Minute {
		t.Errorf("StatusInterval = %v", cfg.StatusInterval())
	}
	if cfg.Server.MQTT.ClientID != "livingroom" {
		t.Errorf("client_id = %q", cfg.Server.MQTT.ClientID)
	}
	if cfg.ChannelOrder().Width() != 3 {
		t.Errorf("order width = %d", cfg.ChannelOrder().Width())
	}
	// system.debug wins over log.level.
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel())
	}
}

func TestWebAuthSettings(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
web:
  enabled: true
  listen: 0.0.0.0:8080
  api_key: s3cret
  allowed_origins:
    - http://dashboard.local
    - http://192.168.1.5:3000
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.APIKey != "s3cret" {
		t.Errorf("api_key = %q", cfg.Web.APIKey)
	}
	want := []string{"http://dashboard.local", "http://192.168.1.5:3000"}
	if len(cfg.Web.AllowedOrigins) != len(want) {
		t.Fatalf("allowed_origins = %v", cfg.Web.AllowedOrigins)
	}
	for i, origin := range want {
		if cfg.Web.AllowedOrigins[i] != origin {
			t.Errorf("allowed_origins[%d] = %q, want %q", i, cfg.Web.AllowedOrigins[i], origin)
		}
	}
}

func TestShortClientIDKeepsAPSSID(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+"server:\n  mqtt:\n    client_id: led\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Wifi.AP.SSID != "AreGeeBee-led" {
		t.Errorf("ap ssid = %q, want AreGeeBee-led", cfg.Wifi.AP.SSID)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing ssid in sta mode", "wifi:\n  mode: sta\n", "wifi.ssid"},
		{"bad wifi mode", "wifi:\n  mode: mesh\n  ssid: x\n", "wifi.mode"},
		{"count too high", minimalConfig + "led:\n  count: 1001\n", "led.count"},
		{"count negative", minimalConfig + "led:\n  count: -3\n", "led.count"},
		{"bad channel order", minimalConfig + "led:\n  mode: RGX\n", "led.mode"},
		{"brightness out of range", minimalConfig + "led:\n  brightness: 300\n", "led.brightness"},
		{"mqtt enabled without broker", minimalConfig + "server:\n  mqtt:\n    enabled: true\n", "server.mqtt.broker"},
		{"bad qos", minimalConfig + "server:\n  mqtt:\n    qos: 3\n", "server.mqtt.qos"},
		{"bad udp port", minimalConfig + "server:\n  udp:\n    port: 70000\n", "server.udp.port"},
		{"not yaml", "{{{", "parse config"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAPModeNeedsNoSSID(t *testing.T) {
	cfg, err := Load(writeConfig(t, "wifi:\n  mode: ap\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Wifi.Mode != "ap" {
		t.Errorf("mode = %q", cfg.Wifi.Mode)
	}
}
