package link

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ExecBackend drives the link through the platform's network CLI
// (NetworkManager's nmcli) and reads signal level from /proc/net/wireless.
// Every command runs under the caller's context so an attempt can never
// outlive its bound.
type ExecBackend struct {
	// Iface is the wireless interface, e.g. "wlan0".
	Iface string
	// nmcli is the command path; overridable for tests.
	nmcli string
	// wirelessPath is the /proc/net/wireless location; overridable for tests.
	wirelessPath string
	// netClassPath is the /sys/class/net root; overridable for tests.
	netClassPath string
	// runner executes a command and returns combined output.
	runner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewExecBackend creates a backend for iface.
func NewExecBackend(iface string) *ExecBackend {
	return &ExecBackend{
		Iface:        iface,
		nmcli:        "nmcli",
		wirelessPath: "/proc/net/wireless",
		netClassPath: "/sys/class/net",
		runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

func (b *ExecBackend) Join(ctx context.Context, ssid, psk string) error {
	args := []string{"device", "wifi", "connect", ssid, "ifname", b.Iface}
	if psk != "" {
		args = append(args, "password", psk)
	}
	out, err := b.runner(ctx, b.nmcli, args...)
	if err != nil {
		return fmt.Errorf("nmcli connect %s: %w (%s)", ssid, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *ExecBackend) StartAP(ctx context.Context, ssid, psk string) error {
	args := []string{"device", "wifi", "hotspot", "ifname", b.Iface, "ssid", ssid}
	if psk != "" {
		args = append(args, "password", psk)
	}
	out, err := b.runner(ctx, b.nmcli, args...)
	if err != nil {
		return fmt.Errorf("nmcli hotspot %s: %w (%s)", ssid, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *ExecBackend) Status() (bool, int, bool, error) {
	carrier, err := os.ReadFile(filepath.Join(b.netClassPath, b.Iface, "operstate"))
	if err != nil {
		return false, 0, false, fmt.Errorf("read operstate: %w", err)
	}
	if strings.TrimSpace(string(carrier)) != "up" {
		return false, 0, false, nil
	}

	data, err := os.ReadFile(b.wirelessPath)
	if err != nil {
		// Wired or virtual interface: up but no RSSI.
		return true, 0, false, nil
	}
	rssi, ok := parseWirelessRSSI(data, b.Iface)
	if !ok {
		return true, 0, false, nil
	}
	return true, rssi, true, nil
}

// parseWirelessRSSI extracts the signal level column for iface from
// /proc/net/wireless content.
func parseWirelessRSSI(data []byte, iface string) (int, bool) {
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, iface+":") {
			continue
		}
		fields := strings.Fields(line)
		// iface: status link level noise ...
		if len(fields) < 4 {
			return 0, false
		}
		level := strings.TrimSuffix(fields[3], ".")
		v, err := strconv.ParseFloat(level, 64)
		if err != nil {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}
