package analytics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StormFlow/internal/domain/models"
)

func grangerFixture(t *testing.T) (a, b []float64) {
	t.Helper()
	n := 300
	rng := rand.New(rand.NewSource(21))
	a = make([]float64, n)
	b = make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = rng.NormFloat64()
	}
	for i := 2; i < n; i++ {
		b[i] = 0.9*a[i-2] + 0.1*rng.NormFloat64()
	}
	return a, b
}

func TestGrangerDetectsDrivingSeries(t *testing.T) {
	a, b := grangerFixture(t)
	cfg := GrangerConfig{MaxOrder: 4, Alpha: 0.05, ADFAlpha: 0.05, SampleFloor: 50}

	res, err := GrangerCausality("pair", a, b, cfg)
	require.NoError(t, err)

	assert.False(t, res.Differenced)
	assert.Empty(t, res.Warnings)
	assert.GreaterOrEqual(t, res.LagOrder, 2, "the true lag is 2")
	assert.Less(t, res.PValueAB, 1e-6, "a strongly predicts b")
	assert.Contains(t, []models.CausalDirection{models.DirectionAToB, models.DirectionBoth}, res.Direction)
	assert.False(t, res.LowConfidence)
}

func TestGrangerDirectionSwapsWithArguments(t *testing.T) {
	a, b := grangerFixture(t)
	cfg := GrangerConfig{MaxOrder: 4, Alpha: 0.05, ADFAlpha: 0.05, SampleFloor: 50}

	fwd, err := GrangerCausality("fwd", a, b, cfg)
	require.NoError(t, err)
	rev, err := GrangerCausality("rev", b, a, cfg)
	require.NoError(t, err)

	assert.Equal(t, fwd.LagOrder, rev.LagOrder)
	assert.InDelta(t, fwd.FStatAB, rev.FStatBA, 1e-9)
	assert.InDelta(t, fwd.FStatBA, rev.FStatAB, 1e-9)
	assert.InDelta(t, fwd.PValueAB, rev.PValueBA, 1e-12)
	assert.Contains(t, []models.CausalDirection{models.DirectionBToA, models.DirectionBoth}, rev.Direction)
}

func TestGrangerDifferencesNonStationaryInput(t *testing.T) {
	n := 300
	rng := rand.New(rand.NewSource(22))
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = 0.5*float64(i) + rng.NormFloat64()
		b[i] = 0.3*float64(i) + rng.NormFloat64()
	}
	cfg := GrangerConfig{MaxOrder: 3, Alpha: 0.05, ADFAlpha: 0.05, SampleFloor: 50}

	res, err := GrangerCausality("trending", a, b, cfg)
	require.NoError(t, err)
	assert.True(t, res.Differenced)
	assert.Contains(t, res.Warnings, models.WarnNonStationary)
}

func TestGrangerRejectsShortInput(t *testing.T) {
	cfg := GrangerConfig{MaxOrder: 4, Alpha: 0.05, ADFAlpha: 0.05}
	_, err := GrangerCausality("short", noise(30, 15), noise(31, 15), cfg)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestGrangerRejectsBadConfig(t *testing.T) {
	_, err := GrangerCausality("bad", noise(32, 100), noise(33, 100), GrangerConfig{MaxOrder: 0, Alpha: 0.05})
	assert.ErrorIs(t, err, ErrBadConfig)
	_, err = GrangerCausality("bad", noise(34, 100), noise(35, 100), GrangerConfig{MaxOrder: 2, Alpha: 0})
	assert.ErrorIs(t, err, ErrBadConfig)
}

func TestADFAcceptsMeanRevertingSeries(t *testing.T) {
	n := 200
	rng := rand.New(rand.NewSource(23))
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = math.Sin(float64(i)*0.7) + 0.3*rng.NormFloat64()
	}

	stationary, tstat, err := ADFStationary(vals, 0.05)
	require.NoError(t, err)
	assert.True(t, stationary)
	assert.Less(t, tstat, -4.0)
}

func TestADFRejectsTrendingSeries(t *testing.T) {
	n := 200
	rng := rand.New(rand.NewSource(24))
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i) + 0.5*rng.NormFloat64()
	}

	stationary, tstat, err := ADFStationary(vals, 0.05)
	require.NoError(t, err)
	assert.False(t, stationary)
	assert.Greater(t, tstat, -2.86)
}

func TestADFShortInput(t *testing.T) {
	_, _, err := ADFStationary([]float64{1, 2, 3}, 0.05)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
