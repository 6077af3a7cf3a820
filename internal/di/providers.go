package di

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"RigWatch/internal/dedup"
	"RigWatch/internal/detector"
	domrepo "RigWatch/internal/domain/repository"
	"RigWatch/internal/escalation"
	"RigWatch/internal/fanout"
	"RigWatch/internal/handler/api"
	"RigWatch/internal/handler/ws"
	mid "RigWatch/internal/middleware"
	"RigWatch/internal/refdata"
	internalrepo "RigWatch/internal/repository"
	"RigWatch/internal/usecase"
	pkgch "RigWatch/pkg/clickhouse"
	"RigWatch/pkg/config"
	xhttp "RigWatch/pkg/http"
	pkgkafka "RigWatch/pkg/kafka"
	applogger "RigWatch/pkg/logger"
	"RigWatch/pkg/metrics"
	"RigWatch/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.Schema()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvidePostgres opens the reference-data and alert-log database.
func ProvidePostgres(cfg *config.Config) (*sql.DB, error) {
	db, err := refdata.OpenPostgres(cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := internalrepo.EnsureAlertSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the readings consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideThresholdStore loads the initial threshold snapshot. A failure here
// aborts startup.
func ProvideThresholdStore(db *sql.DB, log *applogger.Logger) (*refdata.ThresholdStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return refdata.NewThresholdStore(ctx, db, log)
}

// ProvideRuleStore loads the initial escalation rule snapshot.
func ProvideRuleStore(db *sql.DB, log *applogger.Logger) (*refdata.RuleStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return refdata.NewRuleStore(ctx, db, log)
}

// ProvideRefresher periodically reloads both snapshots.
func ProvideRefresher(cfg *config.Config, log *applogger.Logger, ts *refdata.ThresholdStore, rs *refdata.RuleStore) *refdata.Refresher {
	return refdata.NewRefresher(cfg.Detection.RefdataPeriod, log, ts, rs)
}

// ProvideDetectorPipeline builds the three detectors over a shared state store.
func ProvideDetectorPipeline(cfg *config.Config, ts *refdata.ThresholdStore, m domrepo.Metrics) *detector.Pipeline {
	store := detector.NewStore()
	th := detector.NewThresholdDetector(ts)
	ma := detector.NewMovingAverageDetector(store, detector.MovingAverageConfig{
		WindowSize: cfg.Detection.MovingAverage.WindowSize,
		MinSamples: cfg.Detection.MovingAverage.MinSamples,
		Multiplier: cfg.Detection.MovingAverage.Multiplier,
	})
	roc := detector.NewRateOfChangeDetector(store, detector.RateOfChangeConfig{
		MaxRate: cfg.Detection.RateOfChange.MaxRatePerSecond,
		MaxGap:  cfg.Detection.RateOfChange.MaxGap,
	})
	return detector.NewPipeline(th, ma, roc, m)
}

// ProvideDedupStore picks Redis when configured, in-memory otherwise.
func ProvideDedupStore(cfg *config.Config, log *applogger.Logger) (domrepo.DedupStore, error) {
	if cfg.Dedup.Redis.Enabled {
		store, err := dedup.NewRedisStore(
			dedup.WithRedisHost(cfg.Dedup.Redis.Host),
			dedup.WithRedisPort(cfg.Dedup.Redis.Port),
			dedup.WithRedisPassword(cfg.Dedup.Redis.Password),
			dedup.WithRedisDB(cfg.Dedup.Redis.DB),
		)
		if err != nil {
			return nil, fmt.Errorf("redis dedup store: %w", err)
		}
		log.Info("using redis dedup store", applogger.String("host", cfg.Dedup.Redis.Host))
		return store, nil
	}
	return dedup.NewMemoryStore(5 * time.Minute), nil
}

// ProvideDeduplicator creates the dedup state machine.
func ProvideDeduplicator(cfg *config.Config, store domrepo.DedupStore, m domrepo.Metrics) *dedup.Deduplicator {
	return dedup.New(store, cfg.Dedup.Window, m)
}

// ProvideNotifier builds the dispatch notifier with per-target throttling.
func ProvideNotifier(cfg *config.Config, log *applogger.Logger) domrepo.Notifier {
	opts := []escalation.NotifierOption{
		escalation.WithNotifyTimeout(cfg.Escalation.NotifyTimeout),
	}
	if cfg.Escalation.ThrottleBurst > 0 {
		opts = append(opts, escalation.WithThrottle(
			escalation.NewThrottle(),
			cfg.Escalation.ThrottleBurst,
			cfg.Escalation.ThrottleRefill,
		))
	}
	client := xhttp.NewClient(xhttp.WithTimeout(cfg.Escalation.NotifyTimeout))
	return escalation.NewDispatchNotifier(client, log, opts...)
}

// ProvideEscalationEngine creates the escalation engine.
func ProvideEscalationEngine(cfg *config.Config, rs *refdata.RuleStore, notifier domrepo.Notifier, m domrepo.Metrics, log *applogger.Logger) *escalation.Engine {
	return escalation.NewEngine(rs, notifier, m, log,
		escalation.WithBackoff(cfg.Escalation.BackoffMin, cfg.Escalation.BackoffMax),
	)
}

// ProvideAlertLog creates the Postgres alert store.
func ProvideAlertLog(db *sql.DB, log *applogger.Logger) *internalrepo.PGAlertLog {
	s := internalrepo.NewPGAlertLog(db)
	s.SetLogger(log)
	return s
}

// ProvideFanOut assembles the durable sink set: ClickHouse time series,
// Kafka alert topic, Postgres alert log.
func ProvideFanOut(cfg *config.Config, ch *pkgch.Client, producer *pkgkafka.Producer, alertLog *internalrepo.PGAlertLog, m domrepo.Metrics, log *applogger.Logger) *fanout.FanOut {
	chSink := internalrepo.NewCHEventSink(ch)
	chSink.SetLogger(log)
	kafkaSink := internalrepo.NewKafkaAlertSink(producer, cfg.Kafka.AlertsTopic)

	return fanout.New(
		[]domrepo.EventSink{chSink, kafkaSink, alertLog},
		m, log,
		fanout.WithSinkTimeout(cfg.Fanout.SinkTimeout),
	)
}

// ProvideHub creates the live alert hub.
func ProvideHub(log *applogger.Logger) *ws.Hub {
	return ws.NewHub(log)
}

// ProvideReadingProcessor wires the detection chain.
func ProvideReadingProcessor(
	pipeline *detector.Pipeline,
	dd *dedup.Deduplicator,
	eng *escalation.Engine,
	sinks *fanout.FanOut,
	alertLog *internalrepo.PGAlertLog,
	hub *ws.Hub,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.ReadingProcessor {
	return usecase.NewReadingProcessor(pipeline, dd, eng, sinks, alertLog, hub, m, log)
}

// ProvideSensorLanes partitions readings onto parallel lanes.
func ProvideSensorLanes(cfg *config.Config, proc *usecase.ReadingProcessor, m domrepo.Metrics) *mid.SensorLanes {
	return mid.NewSensorLanes(proc, m,
		mid.WithLaneCount(cfg.Detection.Lanes),
		mid.WithLaneBuffer(cfg.Detection.LaneBuffer),
	)
}

// ProvideReadingsHandler consumes the readings topic.
func ProvideReadingsHandler(cfg *config.Config, lanes *mid.SensorLanes, m domrepo.Metrics) *usecase.KafkaReadingsHandler {
	return usecase.NewKafkaReadingsHandler(cfg.Kafka.ReadingsTopic, lanes, m)
}

// ProvideHTTPHandler exposes the ops API.
func ProvideHTTPHandler(log *applogger.Logger, alertLog *internalrepo.PGAlertLog, hub *ws.Hub, ts *refdata.ThresholdStore, rs *refdata.RuleStore) xhttp.Handler {
	return api.NewAlertsEchoHandler(log, alertLog, hub, ts, rs)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaReadingsHandler,
	lanes *mid.SensorLanes,
	hub *ws.Hub,
	refresher *refdata.Refresher,
	httpHandler xhttp.Handler,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	pgDB *sql.DB,
	dedupStore domrepo.DedupStore,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	app := server.New(cfg, log, consumer, kh, lanes, hub, refresher, httpHandler, producer, chClient, pgDB)
	if closer, ok := dedupStore.(io.Closer); ok {
		app.AddCloser(closer.Close)
	}
	return app
}
