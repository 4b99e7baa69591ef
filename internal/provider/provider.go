// Package provider turns a style id and account credentials into tile image
// requests against a remote style tile service.
//
// A Provider resolves its configuration in the background and refuses tile
// requests until that finishes. Each requested tile is driven by its own
// goroutine through Unissued, InFlight and finally Received or Failed.
// Failed attempts are announced on the provider's ErrorEvent; an observer
// that sets Retry on the decision gets the tile issued again.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/styles/internal/credential"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
	"github.com/jaennil/guide_helper/backend/styles/pkg/metrics"
)

type Provider struct {
	transport   Transport
	logger      logger.Logger
	errorEvent  *ErrorEvent
	gate        *Gate
	maxAttempts int

	// written once before gate resolves, read only after
	cfg *TileSourceConfig
}

// New validates opts synchronously and starts resolving the access token in
// the background. ctx bounds the token resolution only.
func New(ctx context.Context, opts Options, transport Transport, options ...Option) (*Provider, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, &ConfigError{Field: "transport", Err: errors.New("transport is nil")}
	}

	p := &Provider{
		transport:  transport,
		logger:     logger.NewNop(),
		errorEvent: &ErrorEvent{},
		gate:       NewGate(),
	}
	for _, o := range options {
		o(p)
	}

	base := newBaseSource(opts)
	source := tokenSource(opts)

	go p.resolve(ctx, base, source)

	return p, nil
}

func tokenSource(opts Options) credential.Source {
	if opts.AccessToken != "" {
		return credential.Static(opts.AccessToken)
	}
	if opts.Credentials != nil {
		return opts.Credentials
	}
	return credential.Static(credential.DefaultAccessToken)
}

func (p *Provider) resolve(ctx context.Context, base baseSource, source credential.Source) {
	token, err := source.Resolve(ctx)
	if err != nil {
		p.logger.Error("access token resolution failed", "style", base.opts.StyleID, "error", err)
		p.gate.Reject(&CredentialResolutionError{Err: err})
		return
	}

	p.cfg = base.resolve(token)
	p.gate.Resolve()

	p.logger.Info("tile source ready",
		"style", p.cfg.styleID,
		"base_url", p.cfg.baseURL,
		"tile_size", p.cfg.tileSize,
		"scale_factor", p.cfg.scaleFactor,
	)
}

// Ready reports whether the configuration has been resolved.
func (p *Provider) Ready() bool {
	return p.gate.Ready()
}

// WhenReady waits for the readiness gate to settle.
func (p *Provider) WhenReady(ctx context.Context) (bool, error) {
	return p.gate.Wait(ctx)
}

// Gate exposes the provider's readiness gate.
func (p *Provider) Gate() *Gate {
	return p.gate
}

// ErrorEvent is the channel failed attempts are announced on.
func (p *Provider) ErrorEvent() *ErrorEvent {
	return p.errorEvent
}

// Config returns the resolved configuration.
func (p *Provider) Config() (*TileSourceConfig, error) {
	if err := p.checkReady(); err != nil {
		return nil, err
	}
	return p.cfg, nil
}

func (p *Provider) checkReady() error {
	select {
	case <-p.gate.Done():
		return p.gate.Err()
	default:
		return ErrNotReady
	}
}

// URL builds the request URL of a tile without issuing it.
func (p *Provider) URL(level, x, y int) (string, error) {
	if err := p.checkReady(); err != nil {
		return "", err
	}
	if !p.cfg.HasLevel(level) {
		return "", ErrLevelOutOfRange
	}
	return BuildURL(p.cfg, level, x, y), nil
}

// RequestImage issues the tile (level, x, y) and returns its request, already
// in flight. The outcome is delivered through the request's Wait or Done.
// ctx is used for every attempt of the request.
func (p *Provider) RequestImage(ctx context.Context, level, x, y int) (*TileRequest, error) {
	if err := p.checkReady(); err != nil {
		return nil, err
	}
	if !p.cfg.HasLevel(level) {
		metrics.TilesOutOfRange.Inc()
		return nil, ErrLevelOutOfRange
	}

	metrics.TilesRequests.Inc()

	req := newTileRequest(level, x, y)
	url := BuildURL(p.cfg, level, x, y)
	attempt := req.beginAttempt()

	go p.run(ctx, req, url, attempt)

	return req, nil
}

func (p *Provider) run(ctx context.Context, req *TileRequest, url string, attempt int) {
	for {
		img, err := p.issue(ctx, req, url, attempt)
		if err == nil {
			metrics.TilesReceived.Inc()
			req.receive(img)
			return
		}

		failure := &TransportFailure{URL: url, Attempt: attempt, Err: err}

		if ctx.Err() != nil {
			p.fail(req, attempt, ctx.Err())
			return
		}

		decision := &RetryDecision{
			Level:        req.level,
			X:            req.x,
			Y:            req.y,
			URL:          url,
			TimesRetried: attempt - 1,
			Err:          failure,
		}
		p.errorEvent.Raise(decision)

		if !decision.Retry {
			p.fail(req, attempt, failure)
			return
		}
		if p.maxAttempts > 0 && attempt >= p.maxAttempts {
			p.logger.Warn("retry refused, attempt cap reached", "tile", req.ID(), "attempts", attempt)
			p.fail(req, attempt, failure)
			return
		}

		if err := p.waitRetry(ctx, req, decision.Delay); err != nil {
			p.fail(req, attempt, fmt.Errorf("%w: %w", err, failure))
			return
		}

		metrics.TilesRetries.Inc()
		p.logger.Info("retrying tile",
			"tile", req.ID(),
			"z", req.level, "x", req.x, "y", req.y,
			"times_retried", decision.TimesRetried,
			"delay", decision.Delay,
		)
		attempt = req.beginAttempt()
	}
}

func (p *Provider) issue(ctx context.Context, req *TileRequest, url string, attempt int) (*Image, error) {
	p.logger.Debug("issuing tile", "tile", req.ID(), "z", req.level, "x", req.x, "y", req.y, "attempt", attempt)
	metrics.TilesAttempts.Inc()

	img, err := p.transport.Issue(ctx, url)
	if err != nil {
		p.logger.Warn("tile attempt failed", "tile", req.ID(), "attempt", attempt, "error", err)
		return nil, err
	}
	if img == nil {
		return nil, errors.New("transport returned no image")
	}
	return img, nil
}

// waitRetry holds the next attempt back for delay. Releasing the request or
// cancelling ctx abandons the retry.
func (p *Provider) waitRetry(ctx context.Context, req *TileRequest, delay time.Duration) error {
	if req.isReleased() {
		return ErrReleased
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		if req.isReleased() {
			return ErrReleased
		}
		return nil
	case <-req.released:
		return ErrReleased
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provider) fail(req *TileRequest, attempts int, err error) {
	metrics.TilesFailures.Inc()
	p.logger.Warn("tile request failed",
		"tile", req.ID(),
		"z", req.level, "x", req.x, "y", req.y,
		"attempts", attempts,
		"error", err,
	)
	req.fail(&RequestFailedError{
		Level:    req.level,
		X:        req.x,
		Y:        req.y,
		Attempts: attempts,
		Err:      err,
	})
}
