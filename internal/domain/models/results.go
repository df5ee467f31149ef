package models

import "time"

// CorrelationMethod selects the correlation coefficient.
type CorrelationMethod string

const (
	Pearson  CorrelationMethod = "pearson"
	Spearman CorrelationMethod = "spearman"
	Kendall  CorrelationMethod = "kendall"
)

// LagCorrelation is the coefficient at one signed lag (units = grid steps).
// Positive lag means series A leads series B by that many steps.
type LagCorrelation struct {
	Lag           int     `json:"lag"`
	Coefficient   float64 `json:"coefficient"`
	PValue        float64 `json:"p_value"`
	SampleSize    int     `json:"sample_size"`
	LowConfidence bool    `json:"low_confidence,omitempty"`
}

// CorrelationResult is the outcome of a lagged cross-correlation scan.
type CorrelationResult struct {
	PairID        string            `json:"pair_id"`
	Method        CorrelationMethod `json:"method"`
	BestLag       int               `json:"best_lag"`
	Coefficient   float64           `json:"coefficient"`
	PValue        float64           `json:"p_value"`
	SampleSize    int               `json:"sample_size"`
	LowConfidence bool              `json:"low_confidence,omitempty"`
	ByLag         []LagCorrelation  `json:"by_lag,omitempty"`
}

// CausalDirection reports which way a Granger test points.
type CausalDirection string

const (
	DirectionAToB CausalDirection = "a_to_b"
	DirectionBToA CausalDirection = "b_to_a"
	DirectionBoth CausalDirection = "bidirectional"
	DirectionNone CausalDirection = "none"
)

// WarnNonStationary marks a causality result computed on differenced data
// after the stationarity pre-check failed on the raw series.
const WarnNonStationary = "non_stationary"

// CausalityResult is the outcome of a two-sided Granger causality test.
type CausalityResult struct {
	PairID        string          `json:"pair_id"`
	Direction     CausalDirection `json:"direction"`
	LagOrder      int             `json:"lag_order"`
	FStatAB       float64         `json:"f_stat_a_to_b"`
	PValueAB      float64         `json:"p_value_a_to_b"`
	FStatBA       float64         `json:"f_stat_b_to_a"`
	PValueBA      float64         `json:"p_value_b_to_a"`
	SampleSize    int             `json:"sample_size"`
	Differenced   bool            `json:"differenced,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
	LowConfidence bool            `json:"low_confidence,omitempty"`
}

// PartialCorrelationResult is A~B with the linear effect of controls removed.
type PartialCorrelationResult struct {
	PairID        string   `json:"pair_id"`
	Controls      []string `json:"controls"`
	Coefficient   float64  `json:"coefficient"`
	PValue        float64  `json:"p_value"`
	SampleSize    int      `json:"sample_size"`
	LowConfidence bool     `json:"low_confidence,omitempty"`
}

// TrendPoint is the fitted slope and goodness of fit for one rolling window,
// anchored at the window's last tick.
type TrendPoint struct {
	T     time.Time `json:"t"`
	Slope float64   `json:"slope"`
	R2    float64   `json:"r2"`
}

// CrossDirection labels a moving-average crossover.
type CrossDirection string

const (
	CrossWarming CrossDirection = "warming"
	CrossCooling CrossDirection = "cooling"
)

// Crossover marks a tick where the short MA crossed the long MA.
type Crossover struct {
	T         time.Time      `json:"t"`
	Index     int            `json:"index"`
	Direction CrossDirection `json:"direction"`
}

// ChangePoint marks an abrupt shift in a series' mean or variance.
type ChangePoint struct {
	SeriesID  string    `json:"series_id"`
	Index     int       `json:"index"`
	T         time.Time `json:"t"`
	Magnitude float64   `json:"magnitude"`
	Method    string    `json:"method"` // "cusum" or "variance"
}

// Decomposition splits a series into trend + seasonal + residual
// components. Trend and Residual are nil at the half-window edges the
// centered moving average cannot cover, which serializes as JSON null.
type Decomposition struct {
	Period   int        `json:"period"`
	Trend    []*float64 `json:"trend"`
	Seasonal []float64  `json:"seasonal"`
	Residual []*float64 `json:"residual"`
}
