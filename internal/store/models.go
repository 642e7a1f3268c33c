package store

import "ledstripd/internal/leds"

// LightState is the user-facing part of the LED state worth restoring
// across restarts. Strip geometry (count, mode) always comes from config.
type LightState struct {
	Power      bool       `json:"power"`
	Brightness uint8      `json:"brightness"`
	Color      leds.Color `json:"color"`
	Effect     string     `json:"effect"`
}
