package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"alertreport/config"
	"alertreport/db"
	"alertreport/handlers"
	"alertreport/logging"
	"alertreport/middleware"
	"alertreport/services"
)

// app holds the wired components for one process.
type app struct {
	cfg      config.Config
	logger   *logrus.Logger
	registry *prometheus.Registry
	runner   *services.Runner
	store    *db.RunStore

	conn  *sql.DB
	redis *goredis.Client
}

func newApp(ctx context.Context, configPath string, out io.Writer) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logging.NewLoggerWithService("alertreport", cfg.LogLevel),
		registry: prometheus.NewRegistry(),
	}
	a.logger.WithFields(logging.Fields{
		"provider":   cfg.Email.Provider,
		"timeframes": cfg.Features.TimeframesEnabled,
		"strict":     cfg.Features.StrictDispatch,
		"ledger":     cfg.Features.LedgerEnabled,
		"lock":       cfg.Features.LockEnabled,
		"auth":       cfg.Features.AuthEnabled,
	}).Debug("Features")

	opts := []services.RunnerOption{
		services.WithRunnerLogger(a.logger),
		services.WithOutput(out),
	}

	if cfg.Features.MetricsEnabled {
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, services.WithRunnerMetrics(services.NewMetrics(a.registry)))
	}

	if cfg.Features.LedgerEnabled {
		conn, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.conn = conn
		if err := db.Migrate(ctx, conn); err != nil {
			a.Close()
			return nil, err
		}
		a.store = db.NewRunStore(conn)
		opts = append(opts, services.WithRunRecorder(a.store))
		a.logger.Debug("Database schema verified")
	}

	if cfg.Features.LockEnabled {
		client, err := db.OpenRedis(ctx, cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = client
		opts = append(opts, services.WithRunLock(services.NewRedisRunLock(client, cfg.Redis.LockTTL)))
	}

	runner, err := services.NewRunner(cfg, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runner = runner
	return a, nil
}

func (a *app) Close() {
	if a.conn != nil {
		_ = a.conn.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *app) router() (*gin.Engine, error) {
	if a.cfg.Features.AuthEnabled && a.cfg.Server.JWTSecret == "" {
		return nil, &services.Error{
			Kind: services.KindConfiguration,
			Op:   "serve",
			Err:  errors.New("AUTH_ENABLED requires JWT_SECRET"),
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(a.logger))

	h := &handlers.Handlers{Runner: a.runner, Logger: a.logger}
	if a.store != nil {
		h.Ledger = a.store
	}

	var metrics http.Handler
	if a.cfg.Features.MetricsEnabled {
		metrics = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	}
	h.Register(r, middleware.AuthRequired(a.cfg.Features.AuthEnabled, []byte(a.cfg.Server.JWTSecret)), metrics)
	return r, nil
}

// serve runs the HTTP API until ctx is cancelled, then shuts down gracefully.
func (a *app) serve(ctx context.Context) error {
	r, err := a.router()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + a.cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("port", a.cfg.Server.Port).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("Server stopped")
	return nil
}
