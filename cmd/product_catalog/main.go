// Package main runs the product catalog service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "net/http/pprof"

	"github.com/abgdnv/product-catalog/internal/app"
	"github.com/abgdnv/product-catalog/internal/config"
	"github.com/abgdnv/product-catalog/internal/store"
	"github.com/abgdnv/product-catalog/pkg/bootstrap"
	pkgconfig "github.com/abgdnv/product-catalog/pkg/config"
	"github.com/abgdnv/product-catalog/pkg/config/configloader"
	pnats "github.com/abgdnv/product-catalog/pkg/nats"
	"github.com/abgdnv/product-catalog/pkg/telemetry"
	"golang.org/x/sync/errgroup"
)

const serviceName = "products"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run loads the configuration, opens the store and the NATS connection and serves
// RPC, HTTP and pprof until ctx is cancelled.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("Product catalog starting...", "env", cfg.Env)

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, serviceName, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to create tracer provider: %w", err)
		}
		defer shutdownProvider(logger, "tracer", cfg, tp.Shutdown)
	}
	mp, metricsHandler, err := telemetry.NewMeterProvider(serviceName)
	if err != nil {
		return fmt.Errorf("failed to create meter provider: %w", err)
	}
	defer shutdownProvider(logger, "meter", cfg, mp.Shutdown)

	productStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	natsConn, err := pnats.NewClient(cfg.NATS.Servers, cfg.NATS.Name, cfg.NATS.Timeout, logger)
	if err != nil {
		return fmt.Errorf("failed to create NATS connection: %w", err)
	}
	defer natsConn.Close()
	logger.Info("Connected to NATS", "url", natsConn.ConnectedUrlRedacted())

	deps, err := app.SetupDependencies(ctx, productStore, cfg.Catalog.UniqueFields, metricsHandler, logger)
	if err != nil {
		return err
	}
	httpServer := app.SetupHttpServer(deps, cfg)
	rpcServer := app.SetupRPCServer(deps, natsConn, cfg)

	g, gCtx := errgroup.WithContext(ctx)

	// Start the RPC server, then drain the NATS connection once it has stopped
	g.Go(func() error {
		err := rpcServer.Start(gCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("RPC server failed", "error", err)
			return err
		}
		logger.Info("RPC server stopped gracefully.")
		if err := natsConn.FlushTimeout(cfg.Shutdown.Flush); err != nil {
			logger.Warn("Failed to flush pending replies", "error", err)
		}
		logger.Info("Draining NATS connection...")
		if err := natsConn.Drain(); err != nil {
			return fmt.Errorf("nats drain failed: %w", err)
		}
		return nil
	})

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		pprofServer := &http.Server{
			Addr: cfg.PProf.Addr,
		}
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		// gracefully shutdown pprof server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}

// openStore creates the configured product store and returns the function that releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.ProductStore, func(), error) {
	if cfg.Database.Driver == pkgconfig.DriverMemory {
		logger.Warn("Using in-memory store, data is lost on restart")
		return store.NewMemStore(), func() {}, nil
	}

	if cfg.Database.Migrate {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		logger.Info("Database migrations applied")
	}
	dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	logger.Info("Successfully connected to the database!")
	return store.NewPgStore(dbPool), dbPool.Close, nil
}

func shutdownProvider(logger *slog.Logger, name string, cfg *config.Config, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("Failed to shut down provider", "provider", name, "error", err)
	}
}
