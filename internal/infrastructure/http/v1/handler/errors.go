package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/jaennil/guide_helper/backend/styles/internal/provider"
	"github.com/jaennil/guide_helper/backend/styles/internal/transport"
	"github.com/jaennil/guide_helper/backend/styles/internal/usecase"
)

var (
	ErrInvalidCoordinate = errors.New("z, x and y should be integers")
	ErrUpstream          = errors.New("failed to get tile from upstream")
	ErrNotReady          = errors.New("tile source is not ready")
	ErrTileNotFound      = errors.New("tile not found")
	ErrTimeout           = errors.New("timed out waiting for tile")
	ErrClientClosed      = errors.New("client closed request")
)

// StatusClientClosedRequest is reported when the client went away before the
// tile was ready. Nginx uses the same code.
const StatusClientClosedRequest = 499

// statusFor maps a tile error to the HTTP status and the error shown to clients.
func statusFor(err error) (int, error) {
	var credErr *provider.CredentialResolutionError
	var statusErr *transport.StatusError

	switch {
	case errors.Is(err, provider.ErrNotReady), errors.As(err, &credErr):
		return http.StatusServiceUnavailable, ErrNotReady
	case errors.Is(err, provider.ErrLevelOutOfRange):
		return http.StatusNotFound, err
	case errors.Is(err, usecase.ErrInvalidCoordinates):
		return http.StatusBadRequest, usecase.ErrInvalidCoordinates
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, ErrClientClosed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrTimeout
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound, ErrTileNotFound
	default:
		return http.StatusBadGateway, ErrUpstream
	}
}
