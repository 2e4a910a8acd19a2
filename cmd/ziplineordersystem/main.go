// Package main boots the Zipline order system HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/th2484/ziplineordersystem/internal/catalog"
	"github.com/th2484/ziplineordersystem/internal/config"
	"github.com/th2484/ziplineordersystem/internal/fulfillment"
	httpapi "github.com/th2484/ziplineordersystem/internal/http"
	"github.com/th2484/ziplineordersystem/internal/notify"
	"github.com/th2484/ziplineordersystem/internal/obs"
	"github.com/th2484/ziplineordersystem/internal/queue"
	"github.com/th2484/ziplineordersystem/internal/store"
)

func main() {
	if err := run(); err != nil {
		obs.Logger.Errorw("service_failed", "error", err)
		obs.Sync()
		os.Exit(1)
	}
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		db, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store.NewGorm(db), nil
	default:
		return store.New(), nil
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	obs.InitLogger(cfg.LogLevel)
	defer obs.Sync()
	obs.Logger.Infow("service_starting",
		"env", cfg.Env,
		"store", cfg.StoreDriver,
		"notify_sink", cfg.NotifySink,
		"max_shipment_mass_g", cfg.MaxShipmentMass,
	)
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := obs.SetupTracing(ctx, cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tcancel()
		if err := shutdownTracing(tctx); err != nil {
			obs.Logger.Warnw("tracing_shutdown_error", "error", err)
		}
	}()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	pub, err := notify.FromConfig(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			obs.Logger.Warnw("publisher_close_error", "error", err)
		}
	}()

	mgr := queue.NewManager(cfg, queue.New(128), pub)
	mgr.Start(ctx)

	engine, err := fulfillment.New(st, cfg.MaxShipmentMass,
		fulfillment.WithNotifier(mgr),
		fulfillment.WithTracerProvider(otel.GetTracerProvider()),
	)
	if err != nil {
		return err
	}
	if err := catalog.Bootstrap(ctx, engine, cfg.CatalogPath); err != nil {
		return fmt.Errorf("catalog bootstrap: %w", err)
	}

	app := httpapi.NewApp(cfg, engine, mgr)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		obs.Logger.Infow("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigc:
		obs.Logger.Infow("shutdown_signal", "signal", s.String())
	case err := <-errc:
		mgr.Stop()
		return fmt.Errorf("http server: %w", err)
	}

	app.StartShutdown()
	obs.Logger.Infow("shutdown_drain_begin", "backlog_size", mgr.BacklogSize(), "worker_count", mgr.WorkerCount())

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := mgr.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warnw("shutdown_drain_timeout", "backlog_size", mgr.BacklogSize())
	} else {
		obs.Logger.Infow("shutdown_drain_complete")
	}

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Errorw("http_shutdown_error", "error", err)
	}
	mgr.Stop()
	obs.Logger.Infow("service_stopped")
	return nil
}
