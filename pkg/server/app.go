package server

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"RigWatch/internal/handler/ws"
	mid "RigWatch/internal/middleware"
	"RigWatch/internal/refdata"
	pkgch "RigWatch/pkg/clickhouse"
	"RigWatch/pkg/config"
	xhttp "RigWatch/pkg/http"
	xmiddleware "RigWatch/pkg/http/middleware"
	pkgkafka "RigWatch/pkg/kafka"
	applogger "RigWatch/pkg/logger"
)

// App encapsulates the entire application lifecycle: lane workers, the
// Kafka consumer, the reference-data refresher, the alert hub and the ops
// HTTP server, with graceful drain on shutdown.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	lanes       *mid.SensorLanes
	hub         *ws.Hub
	refresher   *refdata.Refresher
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	producer    *pkgkafka.Producer
	chClient    *pkgch.Client
	pgDB        *sql.DB
	closers     []func() error
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	lanes *mid.SensorLanes,
	hub *ws.Hub,
	refresher *refdata.Refresher,
	httpHandler xhttp.Handler,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	pgDB *sql.DB,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		consumer:    consumer,
		kh:          kh,
		lanes:       lanes,
		hub:         hub,
		refresher:   refresher,
		httpHandler: httpHandler,
		producer:    producer,
		chClient:    chClient,
		pgDB:        pgDB,
	}
}

// AddCloser registers an extra resource to close on shutdown.
func (a *App) AddCloser(fn func() error) { a.closers = append(a.closers, fn) }

// producerPublisher adapts the Kafka producer to the log collector.
type producerPublisher struct {
	p *pkgkafka.Producer
}

func (pp producerPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return pp.p.Publish(ctx, topic, nil, payload)
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.log

	// Aggregate repeated log lines onto a Kafka topic for offline triage.
	if a.producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "service-logs",
			Publisher:      producerPublisher{a.producer},
		})
	}

	go a.hub.Run(ctx)
	go a.refresher.Run(ctx)
	l.Info("reference data refresher started",
		applogger.Duration("period", a.cfg.Detection.RefdataPeriod))

	a.lanes.Start(ctx)
	l.Info("sensor lanes started",
		applogger.Int("lanes", a.cfg.Detection.Lanes),
		applogger.Int("buffer", a.cfg.Detection.LaneBuffer))

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	a.httpServer.Echo().Use(echo.WrapMiddleware(xmiddleware.Metrics(l, 500*time.Millisecond)))
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx, cancel)
}

// shutdown stops ingestion first, drains the lanes, then tears the rest down.
func (a *App) shutdown(ctx context.Context, cancel context.CancelFunc) error {
	l := a.log

	if a.consumer != nil {
		stopCtx, stopCancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.consumer.Stop(stopCtx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
		stopCancel()
	}

	// Drain buffered readings before the sinks go away.
	a.lanes.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	// Stops the hub and the refresher.
	cancel()

	l.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.pgDB != nil {
		if err := a.pgDB.Close(); err != nil {
			l.Warn("postgres close error", applogger.Error(err))
		}
	}
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			l.Warn("resource close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
