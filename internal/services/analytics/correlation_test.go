package analytics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StormFlow/internal/domain/models"
)

func noise(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func TestCrossCorrelateSelfIsPerfectAtLagZero(t *testing.T) {
	a := noise(1, 200)
	res, err := CrossCorrelate("self", a, a, CorrelationConfig{MaxLag: 5, Method: models.Pearson, SampleFloor: 30})
	require.NoError(t, err)

	assert.Equal(t, 0, res.BestLag)
	assert.InDelta(t, 1.0, res.Coefficient, 1e-12)
	assert.InDelta(t, 0.0, res.PValue, 1e-12)
	assert.False(t, res.LowConfidence)
	assert.Len(t, res.ByLag, 11)
}

func TestCrossCorrelateFindsShiftedLag(t *testing.T) {
	const shift = 3
	a := noise(2, 200)
	b := make([]float64, len(a))
	for i := range b {
		if i >= shift {
			b[i] = a[i-shift]
		} else {
			b[i] = 0.01 * float64(i)
		}
	}

	res, err := CrossCorrelate("shifted", a, b, CorrelationConfig{MaxLag: 6, Method: models.Pearson, SampleFloor: 30})
	require.NoError(t, err)

	assert.Equal(t, shift, res.BestLag, "a leads b by %d steps", shift)
	assert.Greater(t, math.Abs(res.Coefficient), 0.99)
	assert.Less(t, res.PValue, 1e-6)
}

func TestCrossCorrelateSpearmanHandlesMonotoneNonlinearity(t *testing.T) {
	n := 100
	a := make([]float64, n)
	b := make([]float64, n)
	for i := range a {
		a[i] = float64(i)
		b[i] = math.Exp(float64(i) / 20) // monotone but far from linear
	}

	res, err := CrossCorrelate("mono", a, b, CorrelationConfig{MaxLag: 0, Method: models.Spearman, SampleFloor: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, res.BestLag)
	assert.InDelta(t, 1.0, res.Coefficient, 1e-9)
}

func TestCrossCorrelateKendallOnConcordantPairs(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	b := []float64{2, 4, 5, 7, 9, 12, 13, 20}
	res, err := CrossCorrelate("kendall", a, b, CorrelationConfig{MaxLag: 0, Method: models.Kendall, SampleFloor: 5})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Coefficient, 1e-9)
	assert.True(t, res.LowConfidence == false)
}

func TestCrossCorrelateFlagsSmallSamples(t *testing.T) {
	a := noise(3, 20)
	b := noise(4, 20)
	res, err := CrossCorrelate("small", a, b, CorrelationConfig{MaxLag: 2, Method: models.Pearson, SampleFloor: 30})
	require.NoError(t, err)
	assert.True(t, res.LowConfidence)
}

func TestCrossCorrelateRejectsTinyInput(t *testing.T) {
	_, err := CrossCorrelate("tiny", []float64{1, 2}, []float64{2, 1}, CorrelationConfig{MaxLag: 0, Method: models.Pearson})
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = CrossCorrelate("neg", noise(5, 50), noise(6, 50), CorrelationConfig{MaxLag: -1, Method: models.Pearson})
	assert.ErrorIs(t, err, ErrBadConfig)
}

func TestPartialCorrelationRemovesCommonDriver(t *testing.T) {
	n := 150
	z := noise(7, n)
	ea := noise(8, n)
	eb := noise(9, n)
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = z[i] + 0.2*ea[i]
		b[i] = z[i] + 0.2*eb[i]
	}

	raw, err := CrossCorrelate("raw", a, b, CorrelationConfig{MaxLag: 0, Method: models.Pearson, SampleFloor: 30})
	require.NoError(t, err)
	require.Greater(t, raw.Coefficient, 0.8, "shared driver dominates the raw correlation")

	part, err := PartialCorrelation("part", a, b, []ControlSeries{{ID: "driver", Values: z}}, 30)
	require.NoError(t, err)

	assert.Equal(t, []string{"driver"}, part.Controls)
	assert.Less(t, math.Abs(part.Coefficient), 0.3, "controlling the driver collapses the association")
	assert.Less(t, math.Abs(part.Coefficient), raw.Coefficient)
}

func TestPartialCorrelationRejectsCollinearControls(t *testing.T) {
	n := 60
	c1 := noise(10, n)
	c2 := make([]float64, n)
	for i := range c2 {
		c2[i] = 2 * c1[i]
	}

	_, err := PartialCorrelation("bad", noise(11, n), noise(12, n), []ControlSeries{
		{ID: "c1", Values: c1},
		{ID: "c2", Values: c2},
	}, 30)
	assert.ErrorIs(t, err, ErrSingularControls)
}

func TestPartialCorrelationLengthMismatch(t *testing.T) {
	_, err := PartialCorrelation("len", noise(13, 50), noise(14, 40), nil, 10)
	assert.ErrorIs(t, err, ErrBadConfig)
}

func TestRanksAverageTies(t *testing.T) {
	got := ranks([]float64{10, 20, 20, 30})
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, got)
}
