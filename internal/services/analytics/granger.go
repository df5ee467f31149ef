package analytics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"StormFlow/internal/domain/models"
)

// GrangerConfig tunes the two-sided Granger causality test.
type GrangerConfig struct {
	// MaxOrder bounds the lag order search.
	MaxOrder int
	// Alpha is the F-test significance level for declaring a direction.
	Alpha float64
	// ADFAlpha is the significance level of the stationarity pre-check.
	ADFAlpha float64
	// SampleFloor marks results computed from fewer effective samples as
	// low confidence.
	SampleFloor int
}

// GrangerCausality tests whether lagged values of a improve predictions
// of b and vice versa. Non-stationary inputs are first-differenced once
// and the result carries a warning; the test still runs. The lag order
// is the one minimizing the summed AIC of both unrestricted models.
func GrangerCausality(pairID string, a, b []float64, cfg GrangerConfig) (models.CausalityResult, error) {
	if cfg.MaxOrder < 1 || cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		return models.CausalityResult{}, ErrBadConfig
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	a, b = a[:n], b[:n]
	if n < 3*cfg.MaxOrder+10 {
		return models.CausalityResult{}, ErrInsufficientData
	}

	res := models.CausalityResult{PairID: pairID}

	statA, _, errA := ADFStationary(a, cfg.ADFAlpha)
	statB, _, errB := ADFStationary(b, cfg.ADFAlpha)
	if errA != nil || errB != nil || !statA || !statB {
		a, b = difference(a), difference(b)
		n--
		res.Differenced = true
		res.Warnings = append(res.Warnings, models.WarnNonStationary)
	}

	order, err := selectOrder(a, b, cfg.MaxOrder)
	if err != nil {
		return models.CausalityResult{}, err
	}
	res.LagOrder = order
	res.SampleSize = n - order

	res.FStatAB, res.PValueAB, err = grangerF(a, b, order)
	if err != nil {
		return models.CausalityResult{}, err
	}
	res.FStatBA, res.PValueBA, err = grangerF(b, a, order)
	if err != nil {
		return models.CausalityResult{}, err
	}

	ab := res.PValueAB < cfg.Alpha
	ba := res.PValueBA < cfg.Alpha
	switch {
	case ab && ba:
		res.Direction = models.DirectionBoth
	case ab:
		res.Direction = models.DirectionAToB
	case ba:
		res.Direction = models.DirectionBToA
	default:
		res.Direction = models.DirectionNone
	}
	res.LowConfidence = res.SampleSize < cfg.SampleFloor
	return res, nil
}

// selectOrder minimizes the summed AIC of the two unrestricted models
// across candidate lag orders.
func selectOrder(a, b []float64, maxOrder int) (int, error) {
	best, bestAIC := 0, math.Inf(1)
	for p := 1; p <= maxOrder; p++ {
		aicAB, err := unrestrictedAIC(a, b, p)
		if err != nil {
			continue
		}
		aicBA, err := unrestrictedAIC(b, a, p)
		if err != nil {
			continue
		}
		if sum := aicAB + aicBA; sum < bestAIC {
			best, bestAIC = p, sum
		}
	}
	if best == 0 {
		return 0, ErrInsufficientData
	}
	return best, nil
}

func unrestrictedAIC(cause, effect []float64, order int) (float64, error) {
	y, X := grangerDesign(cause, effect, order, true)
	_, rss, err := olsFit(y, X)
	if err != nil {
		return 0, err
	}
	n, k := X.Dims()
	if rss <= 0 {
		rss = math.SmallestNonzeroFloat64
	}
	return float64(n)*math.Log(rss/float64(n)) + 2*float64(k), nil
}

// grangerF runs the restricted-vs-unrestricted F-test for
// cause -> effect at the given lag order.
func grangerF(cause, effect []float64, order int) (float64, float64, error) {
	yR, XR := grangerDesign(cause, effect, order, false)
	_, rssR, err := olsFit(yR, XR)
	if err != nil {
		return 0, 0, err
	}
	yU, XU := grangerDesign(cause, effect, order, true)
	_, rssU, err := olsFit(yU, XU)
	if err != nil {
		return 0, 0, err
	}

	n, kU := XU.Dims()
	df2 := float64(n - kU)
	if df2 <= 0 {
		return 0, 0, ErrInsufficientData
	}
	if rssU <= 0 {
		// Perfect unrestricted fit; the restriction is maximally rejected.
		return math.Inf(1), 0, nil
	}
	f := ((rssR - rssU) / float64(order)) / (rssU / df2)
	if f < 0 {
		f = 0
	}
	dist := distuv.F{D1: float64(order), D2: df2}
	return f, dist.Survival(f), nil
}

// grangerDesign builds the regression of effect on its own lags, plus
// the cause's lags when unrestricted.
func grangerDesign(cause, effect []float64, order int, unrestricted bool) ([]float64, *mat.Dense) {
	rows := len(effect) - order
	y := make([]float64, rows)
	ncols := order
	if unrestricted {
		ncols *= 2
	}
	cols := make([][]float64, ncols)
	for j := range cols {
		cols[j] = make([]float64, rows)
	}
	for i := 0; i < rows; i++ {
		t := i + order
		y[i] = effect[t]
		for j := 1; j <= order; j++ {
			cols[j-1][i] = effect[t-j]
			if unrestricted {
				cols[order+j-1][i] = cause[t-j]
			}
		}
	}
	return y, designMatrix(rows, cols)
}
