package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredict_TooFewPoints(t *testing.T) {
	cases := [][]float64{
		nil,
		{},
		{100},
		{100, 101},
		{100, 101, 102, 103},
	}
	for _, prices := range cases {
		assert.Nil(t, Predict(prices))
	}
}

func TestPredict_FlatSeries(t *testing.T) {
	p := Predict([]float64{100, 100, 100, 100, 100})
	require.NotNil(t, p)

	// No trend, no momentum, zero volatility.
	assert.Equal(t, 100.0, p.PredictedPrice)
	assert.Equal(t, 70.0, p.Confidence)
	assert.Equal(t, 0.0, p.Volatility)
	assert.Equal(t, "down", p.Direction)
}

func TestPredict_UpwardTrend(t *testing.T) {
	p := Predict([]float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109})
	require.NotNil(t, p)

	assert.Equal(t, "up", p.Direction)
	assert.Greater(t, p.PredictedPrice, 109.0)
	// trend=9, momentum=(108-104.5)=3.5 -> 109 + 2.7 + 0.7
	assert.InDelta(t, 112.4, p.PredictedPrice, 1e-9)
}

func TestPredict_ConfidenceBounds(t *testing.T) {
	cases := [][]float64{
		{100, 100, 100, 100, 100},
		{100, 101, 102, 103, 104, 105, 106, 107, 108, 109},
		{10, 500, 3, 900, 42, 7, 650, 12, 800, 5}, // wildly volatile
		{1, 1, 1, 1, 1, 1000},
	}
	for _, prices := range cases {
		p := Predict(prices)
		require.NotNil(t, p)
		assert.GreaterOrEqual(t, p.Confidence, 50.0)
		assert.LessOrEqual(t, p.Confidence, 95.0)
	}
}

func TestPredict_UsesTrailingWindowOnly(t *testing.T) {
	// A huge head value outside the 10-point window must not affect the result.
	base := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}
	withHead := append([]float64{1e9}, base...)

	assert.Equal(t, Predict(base), Predict(withHead))
}

func TestPredict_DownwardTrend(t *testing.T) {
	p := Predict([]float64{110, 108, 106, 104, 102, 100})
	require.NotNil(t, p)

	assert.Equal(t, "down", p.Direction)
	assert.Less(t, p.PredictedPrice, 100.0)
}
