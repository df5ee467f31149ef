package api

import (
	"errors"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"StormFlow/internal/domain/models"
	drepo "StormFlow/internal/domain/repository"
	svccache "StormFlow/internal/service/cache"
	"StormFlow/internal/service/ratelimit"
	"StormFlow/internal/services/analytics"
	"StormFlow/internal/usecase"
	xhttp "StormFlow/pkg/http"
	xlogger "StormFlow/pkg/logger"
	"StormFlow/pkg/util"
)

// AnalysisHandler serves the statistical query API.
type AnalysisHandler struct {
	logger    *xlogger.Logger
	svc       *usecase.AnalysisService
	clients   *clientLimiter
	health    func() error
	respCache svccache.BytesCache
	respTTL   time.Duration
}

// NewAnalysisHandler creates the handler. The limiter throttles each
// client address independently; health is consulted by the liveness
// endpoint and may be nil.
func NewAnalysisHandler(logger *xlogger.Logger, svc *usecase.AnalysisService, limiter *ratelimit.Limiter, m drepo.Metrics, health func() error) *AnalysisHandler {
	return &AnalysisHandler{
		logger:  logger,
		svc:     svc,
		clients: newClientLimiter(limiter, []ratelimit.Window{{Max: 30, Duration: 10 * time.Second}}, m),
		health:  health,
	}
}

// SetResponseCache enables serialized response caching on the query
// endpoints. Must be called before RegisterRoutes.
func (h *AnalysisHandler) SetResponseCache(bc svccache.BytesCache, ttl time.Duration) {
	h.respCache = bc
	h.respTTL = ttl
}

func (h *AnalysisHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	if h.respCache != nil {
		g.Use(ResponseCache(h.respCache, h.respTTL))
	}
	g.GET("/correlation", h.Correlation)
	g.GET("/correlation/partial", h.PartialCorrelation)
	g.GET("/causality", h.Causality)
	g.GET("/trend", h.Trend)
	g.GET("/changepoints", h.ChangePoints)
	g.GET("/decompose", h.Decompose)
	e.GET("/healthz", h.Healthz)
}

// PairParams selects a weather series and a market series plus the
// shared range and alignment overrides. Exported so the binder,
// defaulter, and validator can reach it through embedding.
type PairParams struct {
	Location      string `query:"location" validate:"required"`
	Field         string `query:"field" default:"temperature" validate:"oneof=temperature humidity wind_speed precipitation pressure"`
	MarketID      string `query:"market_id" validate:"required"`
	Outcome       string `query:"outcome" validate:"required"`
	MarketField   string `query:"market_field" default:"probability" validate:"oneof=probability volume"`
	From          string `query:"from" validate:"required"`
	To            string `query:"to" validate:"required"`
	GridStep      string `query:"grid_step"`
	Interpolation string `query:"interpolation" default:"linear" validate:"oneof=linear nearest none"`
}

func (p *PairParams) toRequest() (usecase.PairRequest, *xhttp.AppError) {
	from, ok := util.ParseTime(p.From)
	if !ok {
		return usecase.PairRequest{}, xhttp.BadRequestError("invalid 'from' timestamp")
	}
	to, ok := util.ParseTime(p.To)
	if !ok {
		return usecase.PairRequest{}, xhttp.BadRequestError("invalid 'to' timestamp")
	}
	if !to.After(from) {
		return usecase.PairRequest{}, xhttp.BadRequestError("'to' must be after 'from'")
	}
	step := util.ParseDuration(p.GridStep, 0)
	from, to = util.AlignFromTo(from, to, step)
	return usecase.PairRequest{
		A:             usecase.SeriesSelector{Kind: "weather", Location: p.Location, Field: p.Field},
		B:             usecase.SeriesSelector{Kind: "market", MarketID: p.MarketID, Outcome: p.Outcome, Field: p.MarketField},
		From:          from,
		To:            to,
		GridStep:      step,
		Interpolation: analytics.Interpolation(p.Interpolation),
	}, nil
}

type correlationParams struct {
	PairParams
	Method string `query:"method" default:"pearson" validate:"oneof=pearson spearman kendall"`
	MaxLag int    `query:"max_lag" validate:"gte=0,lte=500"`
}

func (h *AnalysisHandler) Correlation(c echo.Context) error {
	if err := h.throttle(c); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	params := &correlationParams{}
	if verr := xhttp.ReadAndValidateRequest(c, params); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	pair, aerr := params.toRequest()
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	res, cached, err := h.svc.Correlation(c.Request().Context(), usecase.CorrelationRequest{
		PairRequest: pair,
		Method:      models.CorrelationMethod(params.Method),
		MaxLag:      params.MaxLag,
	})
	if err != nil {
		h.logger.Error("correlation query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapAnalysisError(err))
	}
	setCacheHeader(c, cached)
	return xhttp.SuccessResponse(c, res)
}

type partialParams struct {
	PairParams
	// Controls names extra weather fields of the same location to
	// regress out, comma separated.
	Controls string `query:"controls" validate:"required"`
}

func (h *AnalysisHandler) PartialCorrelation(c echo.Context) error {
	if err := h.throttle(c); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	params := &partialParams{}
	if verr := xhttp.ReadAndValidateRequest(c, params); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	pair, aerr := params.toRequest()
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	var controls []usecase.SeriesSelector
	for _, field := range util.SplitCSV(params.Controls) {
		controls = append(controls, usecase.SeriesSelector{
			Kind: "weather", Location: params.Location, Field: field,
		})
	}

	res, cached, err := h.svc.PartialCorrelation(c.Request().Context(), usecase.PartialCorrelationRequest{
		PairRequest: pair,
		Controls:    controls,
	})
	if err != nil {
		h.logger.Error("partial correlation query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapAnalysisError(err))
	}
	setCacheHeader(c, cached)
	return xhttp.SuccessResponse(c, res)
}

type causalityParams struct {
	PairParams
	MaxOrder int `query:"max_order" validate:"gte=0,lte=48"`
}

func (h *AnalysisHandler) Causality(c echo.Context) error {
	if err := h.throttle(c); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	params := &causalityParams{}
	if verr := xhttp.ReadAndValidateRequest(c, params); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	pair, aerr := params.toRequest()
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	res, cached, err := h.svc.Causality(c.Request().Context(), usecase.CausalityRequest{
		PairRequest: pair,
		MaxOrder:    params.MaxOrder,
	})
	if err != nil {
		h.logger.Error("causality query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapAnalysisError(err))
	}
	setCacheHeader(c, cached)
	return xhttp.SuccessResponse(c, res)
}

// SeriesParams selects one stored series. Exported for the same
// embedding reason as PairParams.
type SeriesParams struct {
	Kind     string `query:"kind" default:"weather" validate:"oneof=weather market"`
	Location string `query:"location"`
	Field    string `query:"field" default:"temperature"`
	MarketID string `query:"market_id"`
	Outcome  string `query:"outcome"`
	From     string `query:"from" validate:"required"`
	To       string `query:"to" validate:"required"`
}

func (p *SeriesParams) toRequest() (usecase.SeriesRequest, *xhttp.AppError) {
	if p.Kind == "weather" && p.Location == "" {
		return usecase.SeriesRequest{}, xhttp.BadRequestError("'location' is required for weather series")
	}
	if p.Kind == "market" && (p.MarketID == "" || p.Outcome == "") {
		return usecase.SeriesRequest{}, xhttp.BadRequestError("'market_id' and 'outcome' are required for market series")
	}
	from, ok := util.ParseTime(p.From)
	if !ok {
		return usecase.SeriesRequest{}, xhttp.BadRequestError("invalid 'from' timestamp")
	}
	to, ok := util.ParseTime(p.To)
	if !ok {
		return usecase.SeriesRequest{}, xhttp.BadRequestError("invalid 'to' timestamp")
	}
	if !to.After(from) {
		return usecase.SeriesRequest{}, xhttp.BadRequestError("'to' must be after 'from'")
	}
	field := p.Field
	if p.Kind == "market" && field == "temperature" {
		field = models.FieldProbability
	}
	return usecase.SeriesRequest{
		Selector: usecase.SeriesSelector{
			Kind:     p.Kind,
			Location: p.Location,
			MarketID: p.MarketID,
			Outcome:  p.Outcome,
			Field:    field,
		},
		From: from,
		To:   to,
	}, nil
}

type trendParams struct {
	SeriesParams
	Window      int `query:"window" validate:"gte=0,lte=10000"`
	ShortWindow int `query:"short_window" validate:"gte=0"`
	LongWindow  int `query:"long_window" validate:"gte=0"`
}

func (h *AnalysisHandler) Trend(c echo.Context) error {
	if err := h.throttle(c); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	params := &trendParams{}
	if verr := xhttp.ReadAndValidateRequest(c, params); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	series, aerr := params.toRequest()
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	res, cached, err := h.svc.Trend(c.Request().Context(), usecase.TrendRequest{
		SeriesRequest: series,
		Window:        params.Window,
		ShortWindow:   params.ShortWindow,
		LongWindow:    params.LongWindow,
	})
	if err != nil {
		h.logger.Error("trend query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapAnalysisError(err))
	}
	setCacheHeader(c, cached)
	return xhttp.SuccessResponse(c, res)
}

type changePointParams struct {
	SeriesParams
	Threshold     float64 `query:"threshold" validate:"gte=0"`
	Window        int     `query:"window" validate:"gte=0"`
	MinSeparation int     `query:"min_separation" validate:"gte=0"`
}

func (h *AnalysisHandler) ChangePoints(c echo.Context) error {
	if err := h.throttle(c); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	params := &changePointParams{}
	if verr := xhttp.ReadAndValidateRequest(c, params); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	series, aerr := params.toRequest()
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	res, cached, err := h.svc.ChangePoints(c.Request().Context(), usecase.ChangePointRequest{
		SeriesRequest: series,
		Threshold:     params.Threshold,
		Window:        params.Window,
		MinSeparation: params.MinSeparation,
	})
	if err != nil {
		h.logger.Error("changepoint query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapAnalysisError(err))
	}
	setCacheHeader(c, cached)
	return xhttp.SuccessResponse(c, res)
}

type decomposeParams struct {
	SeriesParams
	Period int `query:"period" validate:"gte=0,lte=10000"`
}

func (h *AnalysisHandler) Decompose(c echo.Context) error {
	if err := h.throttle(c); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	params := &decomposeParams{}
	if verr := xhttp.ReadAndValidateRequest(c, params); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	series, aerr := params.toRequest()
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	res, cached, err := h.svc.Decompose(c.Request().Context(), usecase.DecomposeRequest{
		SeriesRequest: series,
		Period:        params.Period,
	})
	if err != nil {
		h.logger.Error("decompose query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapAnalysisError(err))
	}
	setCacheHeader(c, cached)
	return xhttp.SuccessResponse(c, res)
}

// Healthz reports process liveness and, when wired, backend health.
func (h *AnalysisHandler) Healthz(c echo.Context) error {
	if h.health != nil {
		if err := h.health(); err != nil {
			return xhttp.DataResponse(c, 503, map[string]string{"status": "degraded", "error": err.Error()})
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *AnalysisHandler) throttle(c echo.Context) error {
	d := h.clients.admit(c.RealIP())
	if d.Allowed {
		return nil
	}
	return xhttp.TooManyRequestsError(d.RetryAfter.Seconds())
}

func setCacheHeader(c echo.Context, cached bool) {
	if cached {
		c.Response().Header().Set("X-Cache", "hit")
	} else {
		c.Response().Header().Set("X-Cache", "miss")
	}
}

// mapAnalysisError converts engine errors into HTTP shapes: bad
// parameters are 400, ranges the engine cannot compute are 422.
func mapAnalysisError(err error) error {
	switch {
	case errors.Is(err, analytics.ErrBadConfig):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, analytics.ErrInsufficientOverlap),
		errors.Is(err, analytics.ErrInsufficientData),
		errors.Is(err, analytics.ErrSingularControls),
		errors.Is(err, analytics.ErrZeroVariance):
		return xhttp.UnprocessableError(err.Error())
	default:
		return xhttp.InternalError("analysis failed")
	}
}

// clientLimiter registers an admission policy per client address on
// first sight.
type clientLimiter struct {
	limiter *ratelimit.Limiter
	windows []ratelimit.Window
	metrics drepo.Metrics

	mu    sync.Mutex
	known map[string]struct{}
}

func newClientLimiter(l *ratelimit.Limiter, windows []ratelimit.Window, m drepo.Metrics) *clientLimiter {
	return &clientLimiter{limiter: l, windows: windows, metrics: m, known: make(map[string]struct{})}
}

func (cl *clientLimiter) admit(addr string) ratelimit.Decision {
	if cl.limiter == nil {
		return ratelimit.Decision{Allowed: true}
	}
	id := "api:" + addr
	cl.mu.Lock()
	if _, ok := cl.known[id]; !ok {
		cl.limiter.Register(ratelimit.Policy{ID: id, Windows: cl.windows})
		cl.known[id] = struct{}{}
	}
	cl.mu.Unlock()

	d, err := cl.limiter.Admit(id)
	if err != nil {
		return ratelimit.Decision{Allowed: true}
	}
	if !d.Allowed && cl.metrics != nil {
		cl.metrics.RecordRateLimitDenied(id)
	}
	return d
}
