// Package leds holds the authoritative strip state and the effect
// rendering engine that turns it into output frames.
package leds

import (
	"fmt"
	"strings"
)

// Color is a canonical RGB(W) color. W is ignored on 3-channel strips.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	W uint8 `json:"w,omitempty"`
}

// Built-in effect names. These are the values accepted on command topics
// and advertised in the Home Assistant discovery effect list.
const (
	EffectNone         = "none"
	EffectRainbow      = "rainbow"
	EffectChase        = "chase"
	EffectFade         = "fade"
	EffectStrobe       = "strobe"
	EffectColorWipe    = "color_wipe"
	EffectTheaterChase = "theater_chase"
	EffectRainbowCycle = "rainbow_cycle"
)

// BuiltinEffects lists the built-in effects in discovery order.
func BuiltinEffects() []string {
	return []string{
		EffectNone,
		EffectRainbow,
		EffectChase,
		EffectFade,
		EffectStrobe,
		EffectColorWipe,
		EffectTheaterChase,
		EffectRainbowCycle,
	}
}

// IsBuiltinEffect reports whether name is one of the built-in effects.
func IsBuiltinEffect(name string) bool {
	switch name {
	case EffectNone, EffectRainbow, EffectChase, EffectFade, EffectStrobe,
		EffectColorWipe, EffectTheaterChase, EffectRainbowCycle:
		return true
	}
	return false
}

// ChannelOrder is the permutation applied when packing canonical RGB(W)
// colors into the strip's wire format. The permutation is the last step of
// rendering; effect algorithms always work in canonical space.
type ChannelOrder struct {
	name string
	// perm[i] selects the canonical channel (0=R 1=G 2=B 3=W) written at
	// output position i.
	perm  [4]int
	width int
}

var canonicalIndex = map[byte]int{'R': 0, 'G': 1, 'B': 2, 'W': 3}

// ParseChannelOrder parses a mode string like "RGB", "GRB" or "GRBW".
// Each of R, G, B must appear exactly once; W is optional and makes the
// strip 4 channels wide.
func ParseChannelOrder(mode string) (ChannelOrder, error) {
	name := strings.ToUpper(strings.TrimSpace(mode))
	if len(name) != 3 && len(name) != 4 {
		return ChannelOrder{}, fmt.Errorf("channel order %q: must be 3 or 4 characters", mode)
	}

	var order ChannelOrder
	order.name = name
	order.width = len(name)

	seen := make(map[byte]bool, 4)
	for i := 0; i < len(name); i++ {
		ch := name[i]
		idx, ok := canonicalIndex[ch]
		if !ok {
			return ChannelOrder{}, fmt.Errorf("channel order %q: unknown channel %q", mode, ch)
		}
		if seen[ch] {
			return ChannelOrder{}, fmt.Errorf("channel order %q: duplicate channel %q", mode, ch)
		}
		seen[ch] = true
		order.perm[i] = idx
	}
	if !seen['R'] || !seen['G'] || !seen['B'] {
		return ChannelOrder{}, fmt.Errorf("channel order %q: R, G and B are all required", mode)
	}
	if len(name) == 4 && !seen['W'] {
		return ChannelOrder{}, fmt.Errorf("channel order %q: 4-channel mode requires W", mode)
	}
	return order, nil
}

// String returns the mode name, e.g. "GRB".
func (o ChannelOrder) String() string { return o.name }

// Width is the number of bytes per LED (3 or 4).
func (o ChannelOrder) Width() int { return o.width }

// HasWhite reports whether the order carries a white channel.
func (o ChannelOrder) HasWhite() bool { return o.width == 4 }

// pack writes c, already brightness-scaled, into dst using the permutation.
func (o ChannelOrder) pack(dst []byte, c Color) {
	canonical := [4]uint8{c.R, c.G, c.B, c.W}
	for i := 0; i < o.width; i++ {
		dst[i] = canonical[o.perm[i]]
	}
}

// State is the single source of truth for rendering. It is owned by the
// control loop; the command dispatcher is the only writer and every write
// replaces the whole struct so a render tick never observes a half-applied
// command.
type State struct {
	Power      bool
	Brightness uint8
	Color      Color
	Effect     string
	LEDCount   int
	Order      ChannelOrder
}

// FrameSize is the expected raw frame length for this state.
func (s State) FrameSize() int { return s.LEDCount * s.Order.Width() }

// scale applies multiplicative brightness with integer rounding.
func scale(v, brightness uint8) uint8 {
	return uint8((int(v)*int(brightness) + 127) / 255)
}

// Finalize converts a canonical per-LED color slice into an output frame:
// brightness scaling first, channel reorder last.
func Finalize(colors []Color, brightness uint8, order ChannelOrder) []byte {
	w := order.Width()
	out := make([]byte, len(colors)*w)
	for i, c := range colors {
		scaled := Color{
			R: scale(c.R, brightness),
			G: scale(c.G, brightness),
			B: scale(c.B, brightness),
			W: scale(c.W, brightness),
		}
		order.pack(out[i*w:(i+1)*w], scaled)
	}
	return out
}

// UnpackCanonical parses a raw canonical RGB(W) byte frame into colors.
// The frame length must be a multiple of width.
func UnpackCanonical(frame []byte, width int) []Color {
	n := len(frame) / width
	colors := make([]Color, n)
	for i := 0; i < n; i++ {
		off := i * width
		colors[i] = Color{R: frame[off], G: frame[off+1], B: frame[off+2]}
		if width == 4 {
			colors[i].W = frame[off+3]
		}
	}
	return colors
}
