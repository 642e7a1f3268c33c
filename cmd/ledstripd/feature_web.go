//go:build !no_web

package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"ledstripd/internal/config"
	"ledstripd/internal/controller"
	"ledstripd/internal/web"
)

// runWithWeb wraps the control loop with the HTTP server when enabled.
func runWithWeb(ctx context.Context, cfg *config.Config, logger *slog.Logger, c *controller.Controller) error {
	if !cfg.Web.Enabled {
		return c.Run(ctx)
	}

	opts := []web.ServerOption{web.WithVersion(version)}
	if cfg.Web.APIKey != "" {
		opts = append(opts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		opts = append(opts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webServer := web.NewServer(c, logger, opts...)
	defer webServer.Stop()
	c.SetBroadcaster(webServer)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", "err", err)
		}
	}()

	return c.Run(ctx)
}
