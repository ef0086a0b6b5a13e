package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"VolCast/internal/domain/repository"
	"VolCast/internal/handler/api"
	mid "VolCast/internal/middleware"
	internalrepo "VolCast/internal/repository"
	"VolCast/internal/service/stream"
	"VolCast/internal/services/forecast"
	"VolCast/internal/usecase"
	"VolCast/pkg/cache"
	pkgch "VolCast/pkg/clickhouse"
	"VolCast/pkg/config"
	pkgkafka "VolCast/pkg/kafka"
	applogger "VolCast/pkg/logger"
	"VolCast/pkg/metrics"
	"VolCast/pkg/server"

	kafkago "github.com/segmentio/kafka-go"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client.
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

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		"CREATE TABLE IF NOT EXISTS " + db + ".ticks_raw (ts DateTime64(9), symbol String, price Float64, size Float64, side String) ENGINE=MergeTree ORDER BY (symbol, ts)",
		"CREATE TABLE IF NOT EXISTS " + db + ".predictions_log (ts DateTime64(3), symbol String, horizon_days Int32, predicted_vol Float64, ci_lower Float64, ci_upper Float64, confidence Float64, coverage Float64, contributing String, model_version String) ENGINE=MergeTree ORDER BY (symbol, ts)",
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
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

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
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

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideTickStorage creates ClickHouse storage repository.
func ProvideTickStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseTickStore(chClient, cfg.ClickHouse.Database+".ticks_raw")
}

// ProvideTickPublisher creates Kafka publisher repository.
func ProvideTickPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.Topic)
}

// ProvidePredictionSink creates the ClickHouse prediction audit log.
func ProvidePredictionSink(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.PredictionSink {
	return internalrepo.NewClickHousePredictionLog(chClient, cfg.ClickHouse.Database+".predictions_log", l)
}

// ProvideKafkaTicksHandler registers handler for ticks topic.
func ProvideKafkaTicksHandler(store repository.Storage, metrics repository.Metrics, cfg *config.Config) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.Topic, store, metrics)
}

// ProvideMarketStream creates the WebSocket tick stream.
func ProvideMarketStream(cfg *config.Config) repository.MarketStream {
	return stream.New(
		cfg.Stream.APIKey,
		cfg.Stream.WebSocketURL,
		cfg.Stream.Symbols,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
	)
}

// ProvideTickProcessor creates the tick processor use case.
func ProvideTickProcessor(
	pub repository.Publisher,
	store repository.Storage,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.TickProcessor {
	return usecase.NewTickProcessor(pub, store, metrics, cfg.Ingest.Backend)
}

// ProvideTickCollector creates the tick collector use case.
func ProvideTickCollector(
	ms repository.MarketStream,
	processor *usecase.TickProcessor,
	metrics repository.Metrics,
) *usecase.TickCollector {
	// Pipeline between WebSocket and the ingest backend
	pipe := mid.NewRealtimePipeline(processor, metrics,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewTickCollector(ms, processor, metrics, pipe)
}

// ProvideCacheService builds the prediction cache: layered Redis when
// enabled, in-memory otherwise.
func ProvideCacheService(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}

	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, err
	}
	return cache.NewLayeredCache(rc), nil
}

// ProvideTickArchive creates the historical tick source.
func ProvideTickArchive(cfg *config.Config, l *applogger.Logger, m repository.Metrics) repository.TickSource {
	return internalrepo.NewTickArchive(cfg.Data.TickDir, cfg.Data.CacheDir, cfg.Data.MaxFilesProbe, l, m)
}

// ProvideBarAggregator creates the tick-to-bar aggregator.
func ProvideBarAggregator(cfg *config.Config, l *applogger.Logger, m repository.Metrics) *usecase.BarAggregator {
	return usecase.NewBarAggregator(cfg.Data.CacheDir, l, m)
}

// ProvideBundle loads the frozen model bundle from disk.
func ProvideBundle(cfg *config.Config) (*forecast.Bundle, error) {
	return forecast.Load(cfg.Model.BundlePath)
}

// ProvideForecaster creates the volatility forecasting use case.
func ProvideForecaster(
	ticks repository.TickSource,
	bars *usecase.BarAggregator,
	bundle *forecast.Bundle,
	cacheSvc cache.Service,
	sink repository.PredictionSink,
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.VolatilityForecaster {
	return usecase.NewVolatilityForecaster(ticks, bars, bundle, cacheSvc, sink, usecase.ForecasterConfig{
		Timeframe: repository.NormalizeTimeframe(cfg.Data.BarFrequency),
		CacheTTL:  cfg.Model.CacheTTL,
	}, l, m)
}

// ProvideForecastHandler creates the Echo HTTP handler.
func ProvideForecastHandler(l *applogger.Logger, f *usecase.VolatilityForecaster, ticks repository.TickSource) *api.ForecastEchoHandler {
	return api.NewForecastEchoHandler(l, f, ticks)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	chClient *pkgch.Client,
	handler *api.ForecastEchoHandler,
	producer *pkgkafka.Producer,
	l *applogger.Logger,
	m repository.Metrics,
) *server.App {
	if !cfg.Ingest.Enabled {
		collector = nil
		consumer = nil
	}
	if cfg.Kafka.LogTopic != "" && producer != nil {
		// Ship aggregated error logs to Kafka alongside the tick stream
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	if consumer != nil {
		audit := pkgkafka.HookFuncs{
			Err: func(_ context.Context, topic string, _ kafkago.Message, _ []byte, err error) {
				m.RecordError("consume")
				l.Warn("consumer handler error",
					applogger.String("topic", topic),
					applogger.Error(err),
				)
			},
		}
		consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.NoopHook{}, audit))
	}
	app := server.New(cfg, collector, consumer, kh, chClient)
	app.SetHTTPHandler(handler)
	app.SetLogger(l)
	if collector != nil {
		app.TickProc = collector.Processor()
	}
	return app
}
