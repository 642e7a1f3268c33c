package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"ledstripd/internal/leds"
)

// HATopics is the Home Assistant discovery topic set for one device.
type HATopics struct {
	Discovery    string // retained entity registration
	Command      string // inbound HA command envelopes
	State        string // retained current on/off/brightness/color/effect
	Availability string // retained online/offline, also the session LWT
}

// TopicsFor derives the HA topic set from the configured client id.
func TopicsFor(clientID string) HATopics {
	base := "homeassistant/light/" + clientID
	return HATopics{
		Discovery:    base + "/config",
		Command:      base + "/set",
		State:        base + "/state",
		Availability: base + "/availability",
	}
}

// DeviceInfo is everything the discovery payload needs. Identical input
// must produce a byte-identical payload so re-publishing on reconnect is
// idempotent.
type DeviceInfo struct {
	ClientID  string
	LEDCount  int
	Mode      string
	Effects   []string
	ConfigURL string
	Version   string
}

type haDevice struct {
	Identifiers      []string `json:"identifiers"`
	Manufacturer     string   `json:"manufacturer"`
	Model            string   `json:"model"`
	Name             string   `json:"name"`
	SWVersion        string   `json:"sw_version"`
	ConfigurationURL string   `json:"configuration_url,omitempty"`
}

type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	ObjectID            string   `json:"object_id"`
	CommandTopic        string   `json:"command_topic"`
	StateTopic          string   `json:"state_topic"`
	AvailabilityTopic   string   `json:"availability_topic"`
	PayloadAvailable    string   `json:"payload_available"`
	PayloadNotAvailable string   `json:"payload_not_available"`
	Schema              string   `json:"schema"`
	Brightness          bool     `json:"brightness"`
	BrightnessScale     int      `json:"brightness_scale"`
	SupportedColorModes []string `json:"supported_color_modes"`
	Effect              bool     `json:"effect"`
	EffectList          []string `json:"effect_list"`
	Optimistic          bool     `json:"optimistic"`
	Device              haDevice `json:"device"`
}

// BuildDiscovery renders the retained entity-registration payload.
func BuildDiscovery(info DeviceInfo) []byte {
	topics := TopicsFor(info.ClientID)

	mode := strings.ToUpper(info.Mode)
	colorMode := "rgb"
	if strings.Contains(mode, "W") {
		colorMode = "rgbw"
	}

	payload := haDiscovery{
		Name:                "WS2812B Strip",
		UniqueID:            info.ClientID,
		ObjectID:            strings.ReplaceAll(strings.ToLower(info.ClientID), "-", "_"),
		CommandTopic:        topics.Command,
		StateTopic:          topics.State,
		AvailabilityTopic:   topics.Availability,
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Schema:              "json",
		Brightness:          true,
		BrightnessScale:     255,
		SupportedColorModes: []string{colorMode},
		Effect:              true,
		EffectList:          info.Effects,
		Optimistic:          false,
		Device: haDevice{
			Identifiers:      []string{info.ClientID},
			Manufacturer:     "AreGeeBee",
			Model:            fmt.Sprintf("%s strip controller", mode),
			Name:             fmt.Sprintf("WS2812B Strip (%s)", info.ClientID),
			SWVersion:        info.Version,
			ConfigurationURL: info.ConfigURL,
		},
	}
	return mustJSON(payload)
}

// PublishDiscovery emits the retained registration message. Called once
// per established connection; discovery is not assumed to survive broker
// restarts.
func (s *Session) PublishDiscovery(info DeviceInfo) error {
	return s.Publish(s.ha.Discovery, BuildDiscovery(info), s.cfg.QoS, true)
}

type haColorState struct {
	R uint8  `json:"r"`
	G uint8  `json:"g"`
	B uint8  `json:"b"`
	W *uint8 `json:"w,omitempty"`
}

type haState struct {
	State      string        `json:"state"`
	Brightness uint8         `json:"brightness"`
	Effect     string        `json:"effect"`
	ColorMode  string        `json:"color_mode"`
	Color      *haColorState `json:"color,omitempty"`
	LEDCount   int           `json:"led_count"`
	LEDMode    string        `json:"led_mode"`
}

// BuildStatePayload renders the retained HA state message for st.
func BuildStatePayload(st leds.State) []byte {
	payload := haState{
		State:      "OFF",
		Brightness: st.Brightness,
		Effect:     st.Effect,
		ColorMode:  "rgb",
		LEDCount:   st.LEDCount,
		LEDMode:    st.Order.String(),
	}
	if st.Power {
		payload.State = "ON"
	}
	color := &haColorState{R: st.Color.R, G: st.Color.G, B: st.Color.B}
	if st.Order.HasWhite() {
		payload.ColorMode = "rgbw"
		w := st.Color.W
		color.W = &w
	}
	payload.Color = color
	return mustJSON(payload)
}

// PublishState emits the retained HA state message.
func (s *Session) PublishState(st leds.State) error {
	return s.Publish(s.ha.State, BuildStatePayload(st), s.cfg.QoS, true)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
