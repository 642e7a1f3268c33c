//go:build no_web

package main

import (
	"context"
	"log/slog"

	"ledstripd/internal/config"
	"ledstripd/internal/controller"
)

func runWithWeb(ctx context.Context, _ *config.Config, _ *slog.Logger, c *controller.Controller) error {
	return c.Run(ctx)
}
