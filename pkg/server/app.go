package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"StormFlow/internal/usecase"
	pkgch "StormFlow/pkg/clickhouse"
	"StormFlow/pkg/config"
	xhttp "StormFlow/pkg/http"
	pkgkafka "StormFlow/pkg/kafka"
	applogger "StormFlow/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	ingest     *usecase.IngestService
	handler    xhttp.Handler
	chClient   *pkgch.Client
	producer   *pkgkafka.Producer
	httpServer *xhttp.Server
}

// New creates an App with all dependencies. The producer may be nil
// when the ClickHouse backend writes directly.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	ingest *usecase.IngestService,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		ingest:   ingest,
		handler:  handler,
		chClient: chClient,
		producer: producer,
	}
}

// Run starts ingestion and the HTTP API, then blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	}
	if !a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(""))
	} else if a.cfg.Metrics.Path != "" {
		opts = append(opts, xhttp.WithMetricsPath(a.cfg.Metrics.Path))
	}
	a.httpServer = xhttp.NewServer(a.log, a.handler, opts...)

	if err := a.ingest.Start(ctx); err != nil {
		return err
	}
	a.log.Info("ingest scheduler started")

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops ingestion first so no writes race the closing clients.
func (a *App) shutdown(ctx context.Context) error {
	if err := a.ingest.Stop(); err != nil {
		a.log.Warn("ingest stop error", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
