package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaennil/guide_helper/backend/styles/internal/credential"
	"github.com/jaennil/guide_helper/backend/styles/internal/provider"
	"github.com/jaennil/guide_helper/backend/styles/internal/transport"
	"github.com/jaennil/guide_helper/backend/styles/internal/usecase"
	"github.com/jaennil/guide_helper/backend/styles/pkg/config"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
	"github.com/jaennil/guide_helper/backend/styles/pkg/telemetry"
)

// App holds the wired style tile service.
type App struct {
	cfg    *config.Config
	logger logger.Logger

	provider *provider.Provider
	tiles    *usecase.TileUseCase
	seed     *usecase.SeedUseCase

	closers []func(context.Context) error
}

// New wires every component from cfg. ctx bounds the access token resolution.
func New(ctx context.Context, cfg *config.Config, l logger.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: l,
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		a.closers = append(a.closers, shutdown)
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	opts, err := providerOptions(cfg.Style)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}

	upstream := transport.NewHTTP(transport.HTTPConfig{
		Timeout:           cfg.Upstream.Timeout,
		UserAgent:         cfg.Upstream.UserAgent,
		Referer:           cfg.Upstream.Referer,
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		Burst:             cfg.Upstream.Burst,
	}, l)

	policy := provider.BackoffPolicy{
		MaxRetries:          cfg.Retry.MaxRetries,
		InitialInterval:     cfg.Retry.InitialInterval,
		MaxInterval:         cfg.Retry.MaxInterval,
		Multiplier:          cfg.Retry.Multiplier,
		RandomizationFactor: cfg.Retry.RandomizationFactor,
		RetryIf:             transport.IsTemporary,
	}

	p, err := provider.New(ctx, opts, upstream,
		provider.WithLogger(l),
		provider.WithMaxAttempts(cfg.Retry.MaxAttempts),
		provider.WithRetryObserver(policy.Observe),
	)
	if err != nil {
		a.Close(context.Background())
		return nil, fmt.Errorf("failed to create tile provider: %w", err)
	}
	a.provider = p

	tileCache, closer, err := newTileCache(cfg, l)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, func(context.Context) error { return closer.Close() })
	}

	a.tiles = usecase.NewTileUseCase(p, tileCache, l)
	a.seed = usecase.NewSeedUseCase(a.tiles, l)

	return a, nil
}

func providerOptions(s config.Style) (provider.Options, error) {
	opts := provider.Options{
		URL:          s.URL,
		Username:     s.Username,
		StyleID:      s.ID,
		TileSize:     s.TileSize,
		ScaleFactor:  s.ScaleFactor,
		MinimumLevel: config.Level(s.MinimumLevel),
		MaximumLevel: config.Level(s.MaximumLevel),
		Credit:       s.Credit,
	}

	// an empty token leaves the provider on its default credentials
	if s.AccessToken != "" {
		source, err := credential.Ref(s.AccessToken)
		if err != nil {
			return opts, fmt.Errorf("invalid STYLE_ACCESS_TOKEN: %w", err)
		}
		opts.Credentials = source
	}

	return opts, nil
}

// Tiles returns the tile use case.
func (a *App) Tiles() *usecase.TileUseCase {
	return a.tiles
}

// Close waits for pending cache stores, then releases the cache backend and
// flushes telemetry. Errors are joined.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.tiles != nil {
		if err := a.tiles.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush tile cache: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
