package http_server

import (
	"net/http"

	"github.com/jaennil/guide_helper/backend/styles/pkg/config"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
)

func NewServer(cfg config.Server, handler http.Handler, l logger.Logger) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withLogger(l, handler),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// withLogger makes l available to handlers through logger.FromContext.
func withLogger(l logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(logger.WithLogger(r.Context(), l)))
	})
}
