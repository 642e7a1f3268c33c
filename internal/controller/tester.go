package controller

import (
	"context"
	"time"

	"ledstripd/internal/leds"
)

// RunTester runs the interactive strip tester instead of the normal
// control loop: it lights 1 LED, then 2, and so on, holding red, green,
// blue (and white on RGBW strips) for each count. Useful for finding the
// real length and channel order of an unknown strip. Wraps at the safety
// limit and runs until ctx is cancelled.
func (c *Controller) RunTester(ctx context.Context) error {
	return c.runTester(ctx, testerHoldDuration)
}

func (c *Controller) runTester(ctx context.Context, hold time.Duration) error {
	colors := c.testerColors()

	c.logger.Info("tester mode running", "mode", c.state.Order.String())

	count := 1
	for {
		c.logger.Info("testing", "leds", count)
		if err := c.testerStep(ctx, count, colors, hold); err != nil {
			return err
		}
		count = nextTesterCount(count)
		if count == 1 {
			c.logger.Info("safety limit reached, restarting", "limit", testerSafetyLimit)
		}
	}
}

// testerColors is the per-count hold cycle: red, green, blue, and white
// when the strip has a white channel.
func (c *Controller) testerColors() []leds.Color {
	colors := []leds.Color{{R: 255}, {G: 255}, {B: 255}}
	if c.state.Order.HasWhite() {
		colors = append(colors, leds.Color{W: 255})
	}
	return colors
}

// testerStep runs one full color cycle for the given count, ending with
// a clear held for half the color hold.
func (c *Controller) testerStep(ctx context.Context, count int, colors []leds.Color, hold time.Duration) error {
	for _, color := range colors {
		if err := c.writeTester(count, color); err != nil {
			return err
		}
		if err := sleepCtx(ctx, hold); err != nil {
			return err
		}
	}
	if err := c.writeTester(count, leds.Color{}); err != nil {
		return err
	}
	return sleepCtx(ctx, hold/2)
}

// nextTesterCount advances the count, wrapping past the safety limit.
func nextTesterCount(count int) int {
	count++
	if count > testerSafetyLimit {
		count = 1
	}
	return count
}

// writeTester fills the first count LEDs with color at full brightness.
func (c *Controller) writeTester(count int, color leds.Color) error {
	colors := make([]leds.Color, count)
	for i := range colors {
		colors[i] = color
	}
	return c.drv.Write(leds.Finalize(colors, 255, c.state.Order))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
