package mqtt

// Protocols reports per-transport connectivity in the status message.
type Protocols struct {
	UDP  bool `json:"udp"`
	MQTT bool `json:"mqtt"`
}

// Status is the periodic telemetry payload on the status topic.
type Status struct {
	Status    string    `json:"status"`
	Uptime    float64   `json:"uptime"` // seconds
	LEDCount  int       `json:"led_count"`
	LEDMode   string    `json:"led_mode"`
	WifiRSSI  *int      `json:"wifi_rssi"`
	Protocols Protocols `json:"protocols"`
}

// PublishStatus emits one status report. Best-effort: a failure is the
// session's problem to recover from, not the caller's.
func (s *Session) PublishStatus(st Status) error {
	if s.cfg.Topics.Status == "" {
		return nil
	}
	return s.Publish(s.cfg.Topics.Status, mustJSON(st), s.cfg.QoS, false)
}
