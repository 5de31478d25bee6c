// Package server builds the HTTP server and router shared by the service entry points.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/product-catalog/pkg/config"
	"github.com/abgdnv/product-catalog/pkg/web"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPServer creates an HTTP server for handler, wrapped in an OpenTelemetry span per request.
func NewHTTPServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           otelhttp.NewHandler(handler, "http.server"),
		ReadTimeout:       cfg.Timeout.Read,
		WriteTimeout:      cfg.Timeout.Write,
		IdleTimeout:       cfg.Timeout.Idle,
		ReadHeaderTimeout: cfg.Timeout.ReadHeader,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

// NewChiRouter returns a router that injects the request id, logs every request
// and turns panics into 500 responses.
func NewChiRouter(logger *slog.Logger) *chi.Mux {
	mux := chi.NewRouter()
	mux.Use(web.RequestIDInjector)
	mux.Use(web.StructuredLogger(logger.With("component", "http")))
	mux.Use(web.Recoverer(logger))
	return mux
}
