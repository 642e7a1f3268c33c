package leds

// fadePeriod is the length of one fade up/down cycle in ticks.
const fadePeriod = 128

// strobePeriod is the number of ticks the strobe stays in each phase.
const strobePeriod = 4

// Engine renders the current state into an output frame once per tick.
// Rendering is a pure function of (state, tick) plus the engine's phase
// counters, which advance exactly once per tick and wrap modulo their
// cycle length.
type Engine struct {
	lastTick uint64
	started  bool

	chaseOffset int // wraps mod 3
	wipeIndex   int // wraps mod led_count+1
	strobeTick  int // wraps mod 2*strobePeriod
	fadeTick    int // wraps mod 2*fadePeriod
}

// NewEngine returns an engine with all phase counters at zero.
func NewEngine() *Engine {
	return &Engine{}
}

// Render produces the output frame for one tick. power=false yields an
// all-zero frame regardless of the selected effect.
func (e *Engine) Render(s State, tick uint64) []byte {
	e.advance(s, tick)

	if !s.Power {
		return make([]byte, s.FrameSize())
	}

	colors := make([]Color, s.LEDCount)
	switch s.Effect {
	case EffectRainbow:
		e.rainbow(colors)
	case EffectChase:
		e.chase(colors, Color{R: 255, G: 255, B: 255})
	case EffectFade:
		e.fade(colors, s.displayColor())
	case EffectStrobe:
		e.strobe(colors, Color{R: 255, G: 255, B: 255})
	case EffectColorWipe:
		e.colorWipe(colors, s.displayColor())
	case EffectTheaterChase:
		e.chase(colors, s.displayColor())
	case EffectRainbowCycle:
		e.rainbowCycle(colors, tick)
	default: // EffectNone and anything unrecognized render the solid color
		fill(colors, s.displayColor())
	}

	return Finalize(colors, s.Brightness, s.Order)
}

// RenderDirect finalizes an externally supplied canonical frame. Direct
// frames bypass the effect machinery but still get brightness scaling and
// channel reordering.
func (e *Engine) RenderDirect(frame []byte, s State) []byte {
	return Finalize(UnpackCanonical(frame, s.Order.Width()), s.Brightness, s.Order)
}

// advance steps the phase counters. Re-rendering the same tick (or a state
// snapshot taken before boot) does not advance them twice.
func (e *Engine) advance(s State, tick uint64) {
	if e.started && tick == e.lastTick {
		return
	}
	e.started = true
	e.lastTick = tick

	e.chaseOffset = (e.chaseOffset + 1) % 3
	e.wipeIndex = (e.wipeIndex + 1) % (s.LEDCount + 1)
	e.strobeTick = (e.strobeTick + 1) % (2 * strobePeriod)
	e.fadeTick = (e.fadeTick + 1) % (2 * fadePeriod)
}

// displayColor is the color effects operate on: the last commanded color,
// or white when nothing has been set yet.
func (s State) displayColor() Color {
	if s.Color == (Color{}) {
		return Color{R: 255, G: 255, B: 255}
	}
	return s.Color
}

func fill(colors []Color, c Color) {
	for i := range colors {
		colors[i] = c
	}
}

// rainbow spreads a static hue gradient across the strip.
func (e *Engine) rainbow(colors []Color) {
	n := len(colors)
	for i := range colors {
		hue := (i * 360 / n) % 360
		colors[i] = hsvToColor(hue)
	}
}

// rainbowCycle is the continuous hue wheel over LED index plus tick phase.
func (e *Engine) rainbowCycle(colors []Color, tick uint64) {
	n := len(colors)
	for i := range colors {
		pos := uint8((i*256/n + int(tick)) & 255)
		colors[i] = wheel(pos)
	}
}

// chase lights every third LED, shifting one position per tick.
func (e *Engine) chase(colors []Color, c Color) {
	for i := range colors {
		if (i+e.chaseOffset)%3 == 0 {
			colors[i] = c
		}
	}
}

// colorWipe fills the strip one LED per tick, then starts over.
func (e *Engine) colorWipe(colors []Color, c Color) {
	for i := 0; i < e.wipeIndex && i < len(colors); i++ {
		colors[i] = c
	}
}

// strobe alternates between full-on and dark every strobePeriod ticks.
func (e *Engine) strobe(colors []Color, c Color) {
	if e.strobeTick < strobePeriod {
		fill(colors, c)
	}
}

// fade ramps the color up and down as a triangle wave.
func (e *Engine) fade(colors []Color, c Color) {
	level := e.fadeTick
	if level >= fadePeriod {
		level = 2*fadePeriod - 1 - level
	}
	v := uint8(level * 255 / (fadePeriod - 1))
	faded := Color{R: scale(c.R, v), G: scale(c.G, v), B: scale(c.B, v), W: scale(c.W, v)}
	fill(colors, faded)
}

// wheel generates rainbow colors across 0-255 positions.
func wheel(pos uint8) Color {
	switch {
	case pos < 85:
		return Color{R: pos * 3, G: 255 - pos*3}
	case pos < 170:
		pos -= 85
		return Color{R: 255 - pos*3, B: pos * 3}
	default:
		pos -= 170
		return Color{G: pos * 3, B: 255 - pos*3}
	}
}

// hsvToColor converts a hue in degrees (full saturation and value) to RGB.
func hsvToColor(hue int) Color {
	h := hue % 360
	region := h / 60
	rem := h % 60
	ramp := uint8(rem * 255 / 60)
	switch region {
	case 0:
		return Color{R: 255, G: ramp}
	case 1:
		return Color{R: 255 - ramp, G: 255}
	case 2:
		return Color{G: 255, B: ramp}
	case 3:
		return Color{G: 255 - ramp, B: 255}
	case 4:
		return Color{R: ramp, B: 255}
	default:
		return Color{R: 255, B: 255 - ramp}
	}
}
