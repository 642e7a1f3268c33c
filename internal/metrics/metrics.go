// Package metrics exposes Prometheus counters and gauges for the controller.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	framesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledstripd",
		Subsystem: "render",
		Name:      "frames_total",
		Help:      "Frames written to the LED driver",
	})

	driverErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledstripd",
		Subsystem: "render",
		Name:      "driver_errors_total",
		Help:      "Failed writes to the LED driver",
	})

	udpPackets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledstripd",
		Subsystem: "udp",
		Name:      "packets_total",
		Help:      "Raw frame datagrams received",
	})

	commandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledstripd",
		Subsystem: "dispatch",
		Name:      "command_errors_total",
		Help:      "Rejected commands by source",
	}, []string{"source"})

	mqttReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledstripd",
		Subsystem: "mqtt",
		Name:      "reconnects_total",
		Help:      "MQTT reconnect attempts",
	})

	mqttDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledstripd",
		Subsystem: "mqtt",
		Name:      "dropped_publishes_total",
		Help:      "Publishes dropped while the broker was unreachable",
	})

	wifiSignal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledstripd",
		Subsystem: "wifi",
		Name:      "signal_dbm",
		Help:      "Last sampled WiFi signal level in dBm",
	})
)

// FrameRendered counts one frame pushed to the driver.
func FrameRendered() { framesRendered.Inc() }

// DriverError counts a failed driver write.
func DriverError() { driverErrors.Inc() }

// UDPPacket counts one received datagram.
func UDPPacket() { udpPackets.Inc() }

// CommandError counts a rejected command. source is "udp", "mqtt" or "web".
func CommandError(source string) { commandErrors.WithLabelValues(source).Inc() }

// MQTTReconnect counts one broker reconnect attempt.
func MQTTReconnect() { mqttReconnects.Inc() }

// MQTTDropped counts one publish dropped while disconnected.
func MQTTDropped() { mqttDropped.Inc() }

// SetWifiSignal records the last RSSI sample.
func SetWifiSignal(dbm int) { wifiSignal.Set(float64(dbm)) }

// Handler returns the HTTP handler serving all registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
