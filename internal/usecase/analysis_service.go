package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"StormFlow/internal/domain/models"
	drepo "StormFlow/internal/domain/repository"
	"StormFlow/internal/service/cache"
	"StormFlow/internal/services/analytics"
	"StormFlow/pkg/logger"
)

// SeriesSelector names one stored series.
type SeriesSelector struct {
	// Kind is "weather" or "market".
	Kind     string
	Location string
	MarketID string
	Outcome  string
	Field    string
}

func (s SeriesSelector) key() string {
	if s.Kind == "market" {
		return cache.Key(s.Kind, s.MarketID, s.Outcome, s.Field)
	}
	return cache.Key(s.Kind, s.Location, s.Field)
}

// PairRequest selects two series and a shared time range.
type PairRequest struct {
	A    SeriesSelector
	B    SeriesSelector
	From time.Time
	To   time.Time
	// GridStep and Interpolation override the configured alignment when
	// set.
	GridStep      time.Duration
	Interpolation analytics.Interpolation
}

// CorrelationRequest is a lagged cross-correlation query.
type CorrelationRequest struct {
	PairRequest
	Method models.CorrelationMethod
	MaxLag int
}

// CausalityRequest is a Granger causality query.
type CausalityRequest struct {
	PairRequest
	MaxOrder int
}

// PartialCorrelationRequest adds control series to remove.
type PartialCorrelationRequest struct {
	PairRequest
	Controls []SeriesSelector
}

// SeriesRequest selects a single series and time range.
type SeriesRequest struct {
	Selector SeriesSelector
	From     time.Time
	To       time.Time
}

// TrendRequest is a rolling trend and crossover query.
type TrendRequest struct {
	SeriesRequest
	Window      int
	ShortWindow int
	LongWindow  int
}

// TrendResult bundles the rolling fit with MA crossovers.
type TrendResult struct {
	SeriesID   string              `json:"series_id"`
	Points     []models.TrendPoint `json:"points"`
	Crossovers []models.Crossover  `json:"crossovers,omitempty"`
}

// ChangePointRequest is a shift detection query.
type ChangePointRequest struct {
	SeriesRequest
	Threshold     float64
	Window        int
	MinSeparation int
}

// DecomposeRequest is a seasonal decomposition query.
type DecomposeRequest struct {
	SeriesRequest
	Period int
}

// AnalysisConfig carries the tuning shared by every analysis call.
type AnalysisConfig struct {
	GridStep        time.Duration
	MaxGapSteps     int
	MinSamples      int
	MaxLag          int
	GrangerMaxOrder int
	ADFAlpha        float64
	SampleSizeFloor int
}

// AnalysisService answers statistical queries over the stored series.
// Results are cached; identical queries inside the TTL share one
// computation.
type AnalysisService struct {
	observations drepo.ObservationStore
	quotes       drepo.QuoteStore
	cache        *cache.ResultCache
	metrics      drepo.Metrics
	log          *logger.Logger
	cfg          AnalysisConfig
}

// NewAnalysisService creates the analysis orchestrator.
func NewAnalysisService(
	observations drepo.ObservationStore,
	quotes drepo.QuoteStore,
	rc *cache.ResultCache,
	metrics drepo.Metrics,
	log *logger.Logger,
	cfg AnalysisConfig,
) *AnalysisService {
	if cfg.GridStep <= 0 {
		cfg.GridStep = 15 * time.Minute
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 30
	}
	if cfg.MaxLag <= 0 {
		cfg.MaxLag = 24
	}
	if cfg.GrangerMaxOrder <= 0 {
		cfg.GrangerMaxOrder = 6
	}
	if cfg.ADFAlpha <= 0 {
		cfg.ADFAlpha = 0.05
	}
	if cfg.SampleSizeFloor <= 0 {
		cfg.SampleSizeFloor = 30
	}
	return &AnalysisService{
		observations: observations,
		quotes:       quotes,
		cache:        rc,
		metrics:      metrics,
		log:          log,
		cfg:          cfg,
	}
}

// Correlation runs the lagged cross-correlation scan for a pair.
func (s *AnalysisService) Correlation(ctx context.Context, req CorrelationRequest) (models.CorrelationResult, bool, error) {
	if req.Method == "" {
		req.Method = models.Pearson
	}
	if req.MaxLag <= 0 {
		req.MaxLag = s.cfg.MaxLag
	}
	key := cache.Key("correlation", req.A.key(), req.B.key(),
		string(req.Method), strconv.Itoa(req.MaxLag), s.rangeKey(req.PairRequest))

	v, cached, err := s.compute(ctx, key, "correlation", func(ctx context.Context) (interface{}, error) {
		a, b, err := s.alignPair(ctx, req.PairRequest)
		if err != nil {
			return nil, err
		}
		return analytics.CrossCorrelate(s.pairID(req.PairRequest), a, b, analytics.CorrelationConfig{
			MaxLag:      req.MaxLag,
			Method:      req.Method,
			SampleFloor: s.cfg.SampleSizeFloor,
		})
	})
	if err != nil {
		return models.CorrelationResult{}, false, err
	}
	return v.(models.CorrelationResult), cached, nil
}

// Causality runs the two-sided Granger test for a pair.
func (s *AnalysisService) Causality(ctx context.Context, req CausalityRequest) (models.CausalityResult, bool, error) {
	if req.MaxOrder <= 0 {
		req.MaxOrder = s.cfg.GrangerMaxOrder
	}
	key := cache.Key("causality", req.A.key(), req.B.key(),
		strconv.Itoa(req.MaxOrder), s.rangeKey(req.PairRequest))

	v, cached, err := s.compute(ctx, key, "causality", func(ctx context.Context) (interface{}, error) {
		a, b, err := s.alignPair(ctx, req.PairRequest)
		if err != nil {
			return nil, err
		}
		return analytics.GrangerCausality(s.pairID(req.PairRequest), a, b, analytics.GrangerConfig{
			MaxOrder:    req.MaxOrder,
			Alpha:       0.05,
			ADFAlpha:    s.cfg.ADFAlpha,
			SampleFloor: s.cfg.SampleSizeFloor,
		})
	})
	if err != nil {
		return models.CausalityResult{}, false, err
	}
	return v.(models.CausalityResult), cached, nil
}

// PartialCorrelation removes the controls' linear influence from a pair.
func (s *AnalysisService) PartialCorrelation(ctx context.Context, req PartialCorrelationRequest) (models.PartialCorrelationResult, bool, error) {
	parts := []string{"partial", req.A.key(), req.B.key(), s.rangeKey(req.PairRequest)}
	for _, c := range req.Controls {
		parts = append(parts, c.key())
	}
	key := cache.Key(parts...)

	v, cached, err := s.compute(ctx, key, "partial_correlation", func(ctx context.Context) (interface{}, error) {
		samples, err := s.alignedSamples(ctx, req.PairRequest)
		if err != nil {
			return nil, err
		}
		a := make([]float64, len(samples))
		b := make([]float64, len(samples))
		for i, smp := range samples {
			a[i] = smp.A
			b[i] = smp.B
		}

		// Controls are resampled against series A's grid so every vector
		// has the same ticks.
		controls := make([]analytics.ControlSeries, 0, len(req.Controls))
		for _, sel := range req.Controls {
			cs, err := s.loadSeries(ctx, sel, req.From, req.To)
			if err != nil {
				return nil, err
			}
			vals, err := s.resampleOnTicks(cs, samples, s.gridStep(req.PairRequest))
			if err != nil {
				return nil, fmt.Errorf("control %s: %w", cs.ID, err)
			}
			controls = append(controls, analytics.ControlSeries{ID: cs.ID, Values: vals})
		}
		return analytics.PartialCorrelation(s.pairID(req.PairRequest), a, b, controls, s.cfg.SampleSizeFloor)
	})
	if err != nil {
		return models.PartialCorrelationResult{}, false, err
	}
	return v.(models.PartialCorrelationResult), cached, nil
}

// Trend computes the rolling trend and MA crossovers for one series.
func (s *AnalysisService) Trend(ctx context.Context, req TrendRequest) (TrendResult, bool, error) {
	if req.Window <= 0 {
		req.Window = 24
	}
	key := cache.Key("trend", req.Selector.key(), strconv.Itoa(req.Window),
		strconv.Itoa(req.ShortWindow), strconv.Itoa(req.LongWindow),
		strconv.FormatInt(req.From.Unix(), 10), strconv.FormatInt(req.To.Unix(), 10))

	v, cached, err := s.compute(ctx, key, "trend", func(ctx context.Context) (interface{}, error) {
		series, err := s.loadSeries(ctx, req.Selector, req.From, req.To)
		if err != nil {
			return nil, err
		}
		points, err := analytics.RollingTrend(series, req.Window)
		if err != nil {
			return nil, err
		}
		res := TrendResult{SeriesID: series.ID, Points: points}
		if req.ShortWindow > 0 && req.LongWindow > req.ShortWindow {
			crossovers, err := analytics.Crossovers(series, req.ShortWindow, req.LongWindow)
			if err != nil {
				return nil, err
			}
			res.Crossovers = crossovers
		}
		return res, nil
	})
	if err != nil {
		return TrendResult{}, false, err
	}
	return v.(TrendResult), cached, nil
}

// ChangePoints locates mean and variance shifts in one series.
func (s *AnalysisService) ChangePoints(ctx context.Context, req ChangePointRequest) ([]models.ChangePoint, bool, error) {
	if req.Threshold <= 0 {
		req.Threshold = 5
	}
	if req.Window <= 0 {
		req.Window = 12
	}
	if req.MinSeparation <= 0 {
		req.MinSeparation = req.Window
	}
	key := cache.Key("changepoints", req.Selector.key(),
		strconv.FormatFloat(req.Threshold, 'f', -1, 64),
		strconv.Itoa(req.Window), strconv.Itoa(req.MinSeparation),
		strconv.FormatInt(req.From.Unix(), 10), strconv.FormatInt(req.To.Unix(), 10))

	v, cached, err := s.compute(ctx, key, "changepoints", func(ctx context.Context) (interface{}, error) {
		series, err := s.loadSeries(ctx, req.Selector, req.From, req.To)
		if err != nil {
			return nil, err
		}
		return analytics.ChangePoints(series, analytics.ChangePointConfig{
			Threshold:     req.Threshold,
			Window:        req.Window,
			MinSeparation: req.MinSeparation,
		})
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]models.ChangePoint), cached, nil
}

// Decompose splits one series into trend, seasonal and residual parts.
func (s *AnalysisService) Decompose(ctx context.Context, req DecomposeRequest) (models.Decomposition, bool, error) {
	if req.Period <= 0 {
		req.Period = 24
	}
	key := cache.Key("decompose", req.Selector.key(), strconv.Itoa(req.Period),
		strconv.FormatInt(req.From.Unix(), 10), strconv.FormatInt(req.To.Unix(), 10))

	v, cached, err := s.compute(ctx, key, "decompose", func(ctx context.Context) (interface{}, error) {
		series, err := s.loadSeries(ctx, req.Selector, req.From, req.To)
		if err != nil {
			return nil, err
		}
		return analytics.Decompose(series, req.Period)
	})
	if err != nil {
		return models.Decomposition{}, false, err
	}
	return v.(models.Decomposition), cached, nil
}

func (s *AnalysisService) compute(ctx context.Context, key, op string, fn cache.ComputeFunc) (interface{}, bool, error) {
	start := time.Now()
	v, cached, err := s.cache.GetOrCompute(ctx, key, fn)
	s.metrics.RecordCacheHit(cached)
	s.metrics.RecordLatency(op, time.Since(start).Seconds())
	if err != nil {
		s.log.Warn("analysis failed", logger.String("op", op), logger.Error(err))
	}
	return v, cached, err
}

// alignPair loads both series and returns their aligned value vectors.
func (s *AnalysisService) alignPair(ctx context.Context, req PairRequest) ([]float64, []float64, error) {
	samples, err := s.alignedSamples(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	a := make([]float64, len(samples))
	b := make([]float64, len(samples))
	for i, smp := range samples {
		a[i] = smp.A
		b[i] = smp.B
	}
	return a, b, nil
}

func (s *AnalysisService) alignedSamples(ctx context.Context, req PairRequest) ([]models.AlignedSample, error) {
	a, err := s.loadSeries(ctx, req.A, req.From, req.To)
	if err != nil {
		return nil, err
	}
	b, err := s.loadSeries(ctx, req.B, req.From, req.To)
	if err != nil {
		return nil, err
	}

	step := s.gridStep(req)
	interp := req.Interpolation
	if interp == "" {
		interp = analytics.InterpLinear
	}
	return analytics.Align(a, b, analytics.AlignConfig{
		GridStep:      step,
		Interpolation: interp,
		MaxGapSteps:   s.cfg.MaxGapSteps,
		Coverage:      analytics.CoverIntersection,
		MinSamples:    s.cfg.MinSamples,
	})
}

func (s *AnalysisService) loadSeries(ctx context.Context, sel SeriesSelector, from, to time.Time) (models.Series, error) {
	switch sel.Kind {
	case "weather":
		return s.observations.Range(ctx, sel.Location, sel.Field, from, to)
	case "market":
		return s.quotes.Range(ctx, sel.MarketID, sel.Outcome, sel.Field, from, to)
	default:
		return models.Series{}, fmt.Errorf("unknown series kind %q", sel.Kind)
	}
}

// resampleOnTicks evaluates a control series at exactly the ticks the
// pair was aligned on. The step must be the grid the pair used, not
// one inferred from sample spacing, because aligned ticks may have
// holes.
func (s *AnalysisService) resampleOnTicks(cs models.Series, samples []models.AlignedSample, step time.Duration) ([]float64, error) {
	if len(samples) == 0 {
		return nil, analytics.ErrInsufficientOverlap
	}
	aligned, err := analytics.Align(cs, cs, analytics.AlignConfig{
		GridStep:      step,
		Interpolation: analytics.InterpLinear,
		MaxGapSteps:   s.cfg.MaxGapSteps,
		Coverage:      analytics.CoverIntersection,
	})
	if err != nil {
		return nil, err
	}
	byTick := make(map[int64]float64, len(aligned))
	for _, smp := range aligned {
		byTick[smp.T.Unix()] = smp.A
	}
	out := make([]float64, len(samples))
	for i, smp := range samples {
		v, ok := byTick[smp.T.Unix()]
		if !ok {
			return nil, fmt.Errorf("%w: control missing tick %s", analytics.ErrInsufficientOverlap, smp.T)
		}
		out[i] = v
	}
	return out, nil
}

func (s *AnalysisService) gridStep(req PairRequest) time.Duration {
	if req.GridStep > 0 {
		return req.GridStep
	}
	return s.cfg.GridStep
}

func (s *AnalysisService) pairID(req PairRequest) string {
	return req.A.key() + "~" + req.B.key()
}

func (s *AnalysisService) rangeKey(req PairRequest) string {
	return cache.Key(
		strconv.FormatInt(req.From.Unix(), 10),
		strconv.FormatInt(req.To.Unix(), 10),
		req.GridStep.String(),
		string(req.Interpolation),
	)
}
