package forecast

import (
	"math"

	"github.com/quotedesk/pkg/models"
)

const (
	// minPoints is the minimum series length a forecast can be built from.
	minPoints = 5
	// window is the trailing window the forecast considers.
	window = 10
	// momentumSpan is the trailing span used for short-term momentum.
	momentumSpan = 3

	trendWeight    = 0.3
	momentumWeight = 0.2

	baseConfidence = 70.0
	minConfidence  = 50.0
	maxConfidence  = 95.0
)

// Predict extrapolates the next price from an ordered series.
// Returns nil when the series has fewer than 5 points.
func Predict(prices []float64) *models.Prediction {
	if len(prices) < minPoints {
		return nil
	}

	recent := prices
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}

	var sum float64
	for _, p := range recent {
		sum += p
	}
	avg := sum / float64(len(recent))

	last := recent[len(recent)-1]
	trend := last - recent[0]

	var variance float64
	for _, p := range recent {
		variance += (p - avg) * (p - avg)
	}
	volatility := math.Sqrt(variance / float64(len(recent)))

	tail := recent[len(recent)-momentumSpan:]
	var tailSum float64
	for _, p := range tail {
		tailSum += p
	}
	momentum := tailSum/float64(momentumSpan) - avg

	predicted := last + trend*trendWeight + momentum*momentumWeight

	denom := avg
	if denom == 0 {
		denom = 1
	}
	confidence := baseConfidence - (volatility/denom)*100
	confidence = math.Max(minConfidence, math.Min(maxConfidence, confidence))

	direction := "down"
	if predicted > last {
		direction = "up"
	}

	return &models.Prediction{
		PredictedPrice: predicted,
		Confidence:     round(confidence, 1),
		Direction:      direction,
		Volatility:     round(volatility, 2),
	}
}

func round(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
