package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"VolCast/internal/usecase"
	pkgch "VolCast/pkg/clickhouse"
	"VolCast/pkg/config"
	xhttp "VolCast/pkg/http"
	pkgkafka "VolCast/pkg/kafka"
	applogger "VolCast/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	collector   *usecase.TickCollector
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	chClient    *pkgch.Client
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	logger      *applogger.Logger
	TickProc    *usecase.TickProcessor
}

// New creates a new App instance with all dependencies. collector,
// consumer, kh, and chClient may be nil when live ingest is disabled.
func New(
	cfg *config.Config,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		chClient:  chClient,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetLogger allows DI to inject the application logger.
func (a *App) SetLogger(l *applogger.Logger) { a.logger = l }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fall back to a console logger when DI did not inject one
	l := a.logger
	if l == nil {
		l, _ = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Start live ingest when configured
	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				l.Error("collector error", applogger.Error(err))
			}
		}()
		l.Info("collector started", applogger.Strings("symbols", a.cfg.Stream.Symbols))
	}

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l := a.logger
	if l == nil {
		var err error
		l, err = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
		if err != nil {
			log.Printf("failed to create logger: %v", err)
			return err
		}
	}
	l.Info("shutting down...")

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Flush aggregated logs before the producer goes away with TickProc
	l.RemoveCollector()

	// Close tick processor resources (publisher/storage)
	if a.TickProc != nil {
		a.TickProc.Close()
	}

	l.Info("shutdown complete")
	return nil
}
