// Package app contains the application setup for the product catalog.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/product-catalog/internal/config"
	"github.com/abgdnv/product-catalog/internal/service"
	"github.com/abgdnv/product-catalog/internal/store"
	natstransport "github.com/abgdnv/product-catalog/internal/transport/nats"
	"github.com/abgdnv/product-catalog/internal/transport/rest"
	"github.com/abgdnv/product-catalog/pkg/server"
	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
)

type Dependencies struct {
	Store          store.ProductStore
	ProductService service.ProductService
	Metrics        http.Handler
	Logger         *slog.Logger
}

// SetupDependencies applies the uniqueness rules to the store and builds the service on top of it.
// metrics may be nil.
func SetupDependencies(ctx context.Context, productStore store.ProductStore, uniqueFields []string, metrics http.Handler, logger *slog.Logger) (*Dependencies, error) {
	if err := productStore.EnsureUniqueFields(ctx, uniqueFields); err != nil {
		return nil, fmt.Errorf("failed to apply unique fields: %w", err)
	}
	logger.Info("Unique fields applied", "fields", uniqueFields)

	return &Dependencies{
		Store:          productStore,
		ProductService: service.NewService(productStore, logger),
		Metrics:        metrics,
		Logger:         logger,
	}, nil
}

// SetupHttpHandler initializes the router and routes of the application.
// Used by tests to exercise the HTTP surface without a listener.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

// wireRoutes sets up the HTTP routes of the application.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	productHandler := rest.NewHandler(deps.ProductService, deps.Store, deps.Metrics, deps.Logger)
	productHandler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures the HTTP server of the application.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(cfg.HTTPServer, SetupHttpHandler(deps))
}

// SetupRPCServer creates the NATS request/reply server of the application.
func SetupRPCServer(deps *Dependencies, nc *nats.Conn, cfg *config.Config) *natstransport.Server {
	return natstransport.NewServer(nc, deps.ProductService, natstransport.Config{
		Queue:   cfg.NATS.Queue,
		Workers: cfg.NATS.Workers,
	}, deps.Logger)
}
