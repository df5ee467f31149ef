package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"StormFlow/internal/domain/models"
	drepo "StormFlow/internal/domain/repository"
	"StormFlow/internal/service/sources"
	"StormFlow/pkg/logger"
)

// IngestConfig tunes the polling loop.
type IngestConfig struct {
	PollInterval time.Duration
	CycleTimeout time.Duration
	// FlushInterval bounds how long streamed quotes sit in memory before
	// they are persisted.
	FlushInterval time.Duration
	// FlushSize flushes the stream buffer early once this many quotes
	// are pending.
	FlushSize int
}

// Sinks bundles the persistence targets. Either the stores or the
// publisher may be nil depending on the configured backend.
type Sinks struct {
	Observations drepo.ObservationStore
	Quotes       drepo.QuoteStore
	Publisher    drepo.Publisher
}

// IngestService polls every configured source on a schedule, fans the
// batches out to the sinks and keeps the live quote stream drained.
type IngestService struct {
	weather []sources.WeatherSource
	quotes  []sources.QuoteSource
	stream  sources.QuoteStream

	sinks   Sinks
	metrics drepo.Metrics
	log     *logger.Logger
	cfg     IngestConfig

	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewIngestService creates the ingest orchestrator.
func NewIngestService(
	weather []sources.WeatherSource,
	quotes []sources.QuoteSource,
	stream sources.QuoteStream,
	sinks Sinks,
	metrics drepo.Metrics,
	log *logger.Logger,
	cfg IngestConfig,
) *IngestService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 2 * time.Minute
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 200
	}
	return &IngestService{
		weather:   weather,
		quotes:    quotes,
		stream:    stream,
		sinks:     sinks,
		metrics:   metrics,
		log:       log,
		cfg:       cfg,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the polling cycle and, when a stream is configured,
// begins draining it.
func (s *IngestService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.scheduler.Every(s.cfg.PollInterval).Do(func() {
		s.RunCycle(ctx)
	}); err != nil {
		return err
	}
	s.scheduler.StartAsync()

	if s.stream != nil {
		if err := s.stream.Connect(ctx); err != nil {
			return err
		}
		if err := s.stream.Subscribe(ctx); err != nil {
			return err
		}
		s.wg.Add(1)
		go s.consumeStream(ctx)
	}
	return nil
}

// RunCycle fetches one batch from every source concurrently. A fetch
// failure from one source never blocks the others.
func (s *IngestService) RunCycle(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	for _, src := range s.weather {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.collectWeather(ctx, src)
		}()
	}
	for _, src := range s.quotes {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.collectQuotes(ctx, src)
		}()
	}
	wg.Wait()
	s.metrics.RecordLatency("ingest_cycle", time.Since(start).Seconds())
}

func (s *IngestService) collectWeather(ctx context.Context, src sources.WeatherSource) {
	obs, dropped, err := src.Fetch(ctx)
	if dropped > 0 {
		s.metrics.RecordDropped(src.Name(), dropped)
	}
	if err != nil {
		s.metrics.RecordError("fetch")
		s.log.Error("weather fetch failed", logger.String("source", src.Name()), logger.Error(err))
		// partial batches before the failure are still worth keeping
	}
	if len(obs) == 0 {
		return
	}
	if err := s.storeObservations(ctx, obs); err != nil {
		s.metrics.RecordError("store")
		s.log.Error("weather store failed", logger.String("source", src.Name()), logger.Error(err))
		return
	}
	s.metrics.RecordIngested(src.Name(), len(obs))
	s.log.Info("weather batch stored",
		logger.String("source", src.Name()),
		logger.Int("records", len(obs)))
}

func (s *IngestService) collectQuotes(ctx context.Context, src sources.QuoteSource) {
	quotes, dropped, err := src.Fetch(ctx)
	if dropped > 0 {
		s.metrics.RecordDropped(src.Name(), dropped)
	}
	if err != nil {
		s.metrics.RecordError("fetch")
		s.log.Error("quote fetch failed", logger.String("source", src.Name()), logger.Error(err))
	}
	if len(quotes) == 0 {
		return
	}
	if err := s.storeQuotes(ctx, quotes); err != nil {
		s.metrics.RecordError("store")
		s.log.Error("quote store failed", logger.String("source", src.Name()), logger.Error(err))
		return
	}
	s.metrics.RecordIngested(src.Name(), len(quotes))
	s.log.Info("quote batch stored",
		logger.String("source", src.Name()),
		logger.Int("records", len(quotes)))
}

// consumeStream buffers live quotes and flushes them on size or time,
// whichever comes first. Stream errors trigger a reconnect.
func (s *IngestService) consumeStream(ctx context.Context) {
	defer s.wg.Done()

	quoteCh, errCh := s.stream.Read(ctx)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	var pending []models.MarketQuote
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := s.storeQuotes(ctx, pending); err != nil {
			s.metrics.RecordError("store")
			s.log.Error("stream flush failed", logger.Error(err))
		} else {
			s.metrics.RecordIngested("polymarket_stream", len(pending))
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case err := <-errCh:
			if err != nil {
				s.metrics.RecordError("stream")
				s.log.Warn("stream error, reconnecting", logger.Error(err))
				if rerr := s.stream.Reconnect(ctx); rerr != nil {
					s.log.Error("stream reconnect failed", logger.Error(rerr))
					return
				}
				quoteCh, errCh = s.stream.Read(ctx)
			}
		case q, ok := <-quoteCh:
			if !ok {
				flush()
				return
			}
			pending = append(pending, q)
			if len(pending) >= s.cfg.FlushSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *IngestService) storeObservations(ctx context.Context, obs []models.WeatherObservation) error {
	if s.sinks.Publisher != nil {
		return s.sinks.Publisher.PublishObservations(ctx, obs)
	}
	return s.sinks.Observations.StoreBatch(ctx, obs)
}

func (s *IngestService) storeQuotes(ctx context.Context, quotes []models.MarketQuote) error {
	if s.sinks.Publisher != nil {
		return s.sinks.Publisher.PublishQuotes(ctx, quotes)
	}
	return s.sinks.Quotes.StoreBatch(ctx, quotes)
}

// Stop halts the scheduler and the stream consumer.
func (s *IngestService) Stop() error {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.stream != nil {
		err = s.stream.Close()
	}
	s.wg.Wait()
	return err
}
