package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jaennil/guide_helper/backend/styles/internal/provider"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
	"github.com/jaennil/guide_helper/backend/styles/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	tracerName       = "github.com/jaennil/guide_helper/backend/styles/internal/transport"
	defaultUserAgent = "GuideHelperStyles/1.0 (https://github.com/jaennil/guide_helper)"
	maxTileBytes     = 16 << 20
)

// StatusError is returned when the remote service answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Temporary reports whether a retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

// IsTemporary reports whether err is worth another attempt. Status errors
// decide by code; network errors and empty bodies are always temporary.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

var ErrEmptyTile = errors.New("upstream returned an empty tile")

type HTTPConfig struct {
	Timeout   time.Duration
	UserAgent string
	Referer   string
	// RequestsPerSecond limits attempts issued by this transport. Zero disables the limit.
	RequestsPerSecond float64
	Burst             int
}

// HTTP issues tile attempts over net/http.
type HTTP struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	referer   string
	logger    logger.Logger
	tracer    trace.Tracer
}

var _ provider.Transport = (*HTTP)(nil)

func NewHTTP(cfg HTTPConfig, l logger.Logger) *HTTP {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTP{
		client: &http.Client{
			Timeout: timeout,
		},
		limiter:   limiter,
		userAgent: userAgent,
		referer:   cfg.Referer,
		logger:    l,
		tracer:    otel.Tracer(tracerName),
	}
}

func (t *HTTP) Issue(ctx context.Context, url string) (*provider.Image, error) {
	ctx, span := t.tracer.Start(ctx, "styles.tile.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, "rate limiter")
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)
	if t.referer != "" {
		req.Header.Set("Referer", t.referer)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := t.client.Do(req)
	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch")
		return nil, fmt.Errorf("failed to fetch tile from upstream: %w", err)
	}
	defer resp.Body.Close()

	metrics.UpstreamRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		t.logger.Debug("upstream returned non-200", "status", resp.StatusCode)
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		span.SetStatus(codes.Error, resp.Status)
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}
	if len(data) == 0 {
		span.SetStatus(codes.Error, "empty tile")
		return nil, ErrEmptyTile
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	span.SetAttributes(attribute.Int("http.response.size", len(data)))
	span.SetStatus(codes.Ok, "")

	return &provider.Image{Data: data, ContentType: contentType}, nil
}
