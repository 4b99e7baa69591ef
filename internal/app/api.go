package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	v1 "github.com/jaennil/guide_helper/backend/styles/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/backend/styles/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/styles/pkg/http_server"
)

const shutdownTimeout = 30 * time.Second

// Serve runs the HTTP API until ctx is cancelled, then shuts it down gracefully.
func (a *App) Serve(ctx context.Context) error {
	h := handler.NewHandler(a.tiles)
	router := v1.NewRouter(h, a.logger, a.cfg.Telemetry.Enabled, a.cfg.Telemetry.ServiceName)

	httpServer := http_server.NewServer(a.cfg.HTTP.Server, router, a.logger)

	go func() {
		ready, err := a.provider.WhenReady(ctx)
		switch {
		case ready:
			cfg, _ := a.provider.Config()
			a.logger.Info("tile source ready", "style", cfg.Username()+"/"+cfg.StyleID(), "tile_size", cfg.TileSize())
		case err != nil && ctx.Err() == nil:
			a.logger.Error("tile source failed to resolve credentials", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting http server...", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("http server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down http server...", "address", httpServer.Addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown failed", "error", err)
		return err
	}
	a.logger.Info("http server stopped", "address", httpServer.Addr)

	return nil
}
