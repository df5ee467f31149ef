package di

import (
	"context"
	"fmt"
	"time"

	drepo "StormFlow/internal/domain/repository"
	"StormFlow/internal/handler/api"
	internalrepo "StormFlow/internal/repository"
	"StormFlow/internal/service/cache"
	"StormFlow/internal/service/ratelimit"
	"StormFlow/internal/service/sources"
	"StormFlow/internal/usecase"
	pkgch "StormFlow/pkg/clickhouse"
	"StormFlow/pkg/config"
	pkghttp "StormFlow/pkg/http"
	pkgkafka "StormFlow/pkg/kafka"
	"StormFlow/pkg/logger"
	"StormFlow/pkg/metrics"
	"StormFlow/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideClickHouseClient creates a ClickHouse client and prepares the
// schema. Reads always come from ClickHouse regardless of the ingest
// backend.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
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

	db := cfg.ClickHouse.Database
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		`CREATE TABLE IF NOT EXISTS ` + db + `.weather_data (
			timestamp DateTime,
			location_name String,
			latitude Float64,
			longitude Float64,
			temperature Float64,
			temperature_min Float64,
			temperature_max Float64,
			humidity Float64,
			wind_speed Float64,
			wind_direction Float64,
			precipitation Float64,
			pressure Float64,
			weather_code Int32,
			weather_description String,
			raw_data String
		) ENGINE=MergeTree ORDER BY (location_name, timestamp)`,
		`CREATE TABLE IF NOT EXISTS ` + db + `.polymarket_data (
			timestamp DateTime,
			scraped_at DateTime,
			event_title String,
			market_id String,
			outcome_name String,
			probability Float64,
			volume Float64
		) ENGINE=MergeTree ORDER BY (market_id, outcome_name, timestamp)`,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates the producer for the kafka ingest
// backend. Returns nil when ClickHouse is written directly.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Ingest.Backend != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatchSize(cfg.Kafka.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.ReadTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideLimiter builds the admission limiter from the configured
// per-endpoint policies.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	policies := make([]ratelimit.Policy, 0, len(cfg.RateLimit.Policies))
	for _, p := range cfg.RateLimit.Policies {
		windows := make([]ratelimit.Window, 0, len(p.Windows))
		for _, w := range p.Windows {
			windows = append(windows, ratelimit.Window{Max: w.MaxRequests, Duration: w.Window})
		}
		policies = append(policies, ratelimit.Policy{ID: p.ID, Windows: windows})
	}
	return ratelimit.New(policies)
}

// ProvideHTTPClient creates the outbound HTTP client shared by the
// source connectors.
func ProvideHTTPClient() *pkghttp.Client {
	return pkghttp.NewClient(pkghttp.WithTimeout(15 * time.Second))
}

// ProvideObservationStore creates the weather persistence repository.
func ProvideObservationStore(chClient *pkgch.Client, cfg *config.Config) drepo.ObservationStore {
	return internalrepo.NewClickHouseWeatherStore(chClient.DB(), cfg.ClickHouse.Database+".weather_data")
}

// ProvideQuoteStore creates the market quote persistence repository.
func ProvideQuoteStore(chClient *pkgch.Client, cfg *config.Config) drepo.QuoteStore {
	return internalrepo.NewClickHouseQuoteStore(chClient.DB(), cfg.ClickHouse.Database+".polymarket_data")
}

// ProvideSinks selects the write path for the ingest backend. The
// stores stay wired either way so the analysis API can read.
func ProvideSinks(
	obs drepo.ObservationStore,
	quotes drepo.QuoteStore,
	producer *pkgkafka.Producer,
	cfg *config.Config,
) usecase.Sinks {
	sinks := usecase.Sinks{Observations: obs, Quotes: quotes}
	if cfg.Ingest.Backend == "kafka" && producer != nil {
		sinks.Publisher = internalrepo.NewKafkaPublisher(producer, cfg.Kafka.WeatherTopic, cfg.Kafka.MarketTopic)
	}
	return sinks
}

func gateConfig(cfg *config.Config) sources.GateConfig {
	return sources.GateConfig{
		MaxRetries: cfg.Ingest.MaxRetries,
		BackoffMin: cfg.Ingest.BackoffMin,
		BackoffMax: cfg.Ingest.BackoffMax,
		FailFast:   cfg.Ingest.FailFast,
	}
}

// ProvideWeatherSources creates every enabled weather connector, each
// behind its own admission gate on the shared weather budget.
func ProvideWeatherSources(
	cfg *config.Config,
	client *pkghttp.Client,
	limiter *ratelimit.Limiter,
	m drepo.Metrics,
	log *logger.Logger,
) []sources.WeatherSource {
	var out []sources.WeatherSource
	locs := cfg.Weather.Locations
	gc := gateConfig(cfg)
	if cfg.Weather.OpenMeteo.Enabled {
		gate := sources.NewGate("openmeteo", "weather", limiter, gc, m, log)
		out = append(out, sources.NewOpenMeteo(cfg.Weather.OpenMeteo, locs, client, gate, log))
	}
	if cfg.Weather.OpenWeather.Enabled {
		gate := sources.NewGate("openweather", "weather", limiter, gc, m, log)
		out = append(out, sources.NewOpenWeather(cfg.Weather.OpenWeather, locs, client, gate, log))
	}
	if cfg.Weather.WeatherAPI.Enabled {
		gate := sources.NewGate("weatherapi", "weather", limiter, gc, m, log)
		out = append(out, sources.NewWeatherAPI(cfg.Weather.WeatherAPI, locs, client, gate, log))
	}
	return out
}

// ProvideQuoteSources creates the Polymarket REST connector when enabled.
func ProvideQuoteSources(
	cfg *config.Config,
	client *pkghttp.Client,
	limiter *ratelimit.Limiter,
	m drepo.Metrics,
	log *logger.Logger,
) []sources.QuoteSource {
	if !cfg.Polymarket.Enabled {
		return nil
	}
	gate := sources.NewGate("polymarket", "market_listing", limiter, gateConfig(cfg), m, log)
	return []sources.QuoteSource{
		sources.NewPolymarket(cfg.Polymarket.BaseURL, cfg.Polymarket.Markets, client, gate, log),
	}
}

// ProvideQuoteStream creates the live quote stream when configured.
func ProvideQuoteStream(cfg *config.Config, log *logger.Logger) sources.QuoteStream {
	if !cfg.Polymarket.Enabled || !cfg.Polymarket.Stream {
		return nil
	}
	return sources.NewPolymarketStream(
		cfg.Polymarket.WebSocketURL,
		cfg.Polymarket.Markets,
		cfg.Polymarket.ReconnectDelay,
		cfg.Polymarket.PingInterval,
		log,
	)
}

// ProvideIngestService creates the polling ingest use case.
func ProvideIngestService(
	weather []sources.WeatherSource,
	quotes []sources.QuoteSource,
	stream sources.QuoteStream,
	sinks usecase.Sinks,
	m drepo.Metrics,
	log *logger.Logger,
	cfg *config.Config,
) *usecase.IngestService {
	return usecase.NewIngestService(weather, quotes, stream, sinks, m, log, usecase.IngestConfig{
		PollInterval: cfg.Ingest.PollInterval,
		CycleTimeout: cfg.Ingest.CycleTimeout,
	})
}

// ProvideResultCache creates the in-memory analysis result cache.
func ProvideResultCache(cfg *config.Config) *cache.ResultCache {
	return cache.NewResultCache(cfg.Cache.Capacity, cfg.Cache.TTL)
}

// ProvideAnalysisService creates the statistical query use case.
func ProvideAnalysisService(
	obs drepo.ObservationStore,
	quotes drepo.QuoteStore,
	rc *cache.ResultCache,
	m drepo.Metrics,
	log *logger.Logger,
	cfg *config.Config,
) *usecase.AnalysisService {
	return usecase.NewAnalysisService(obs, quotes, rc, m, log, usecase.AnalysisConfig{
		GridStep:        cfg.Analysis.GridStep,
		MaxGapSteps:     cfg.Analysis.MaxGapSteps,
		MinSamples:      cfg.Analysis.MinSamples,
		MaxLag:          cfg.Analysis.MaxLag,
		GrangerMaxOrder: cfg.Analysis.GrangerMaxOrder,
		ADFAlpha:        cfg.Analysis.ADFAlpha,
		SampleSizeFloor: cfg.Analysis.SampleSizeFloor,
	})
}

// ProvideBytesCache selects the response cache backend: redis when
// configured, otherwise process-local memory.
func ProvideBytesCache(cfg *config.Config) cache.BytesCache {
	if cfg.Cache.Redis.Enabled {
		return cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
	}
	return cache.NewTTLCache()
}

// ProvideAnalysisHandler creates the HTTP API handler.
func ProvideAnalysisHandler(
	log *logger.Logger,
	svc *usecase.AnalysisService,
	limiter *ratelimit.Limiter,
	m drepo.Metrics,
	chClient *pkgch.Client,
	bc cache.BytesCache,
	cfg *config.Config,
) *api.AnalysisHandler {
	health := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return chClient.Health(ctx)
	}
	h := api.NewAnalysisHandler(log, svc, limiter, m, health)
	h.SetResponseCache(bc, cfg.Cache.TTL)
	return h
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	ingest *usecase.IngestService,
	handler *api.AnalysisHandler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
) *server.App {
	return server.New(cfg, log, ingest, handler, chClient, producer)
}
