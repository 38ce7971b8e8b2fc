// Package simulation prices future terminal distributions with a Monte
// Carlo walk over historical log returns, caching results on disk so a
// given (symbol, expiry, resolution, iterations) key is only ever
// computed once.
package simulation

import (
	"math"
	"math/rand"

	"github.com/montanaflynn/stats"

	apperrors "hedge-lords/internal/errors"
)

// Result is one simulated price matrix: rows are time steps (row 0 is
// the seed price), columns are independent iterations.
type Result struct {
	Prices [][]float64
}

// TerminalPrices returns the last row, one terminal price per iteration.
func (r *Result) TerminalPrices() []float64 {
	if len(r.Prices) == 0 {
		return nil
	}
	return r.Prices[len(r.Prices)-1]
}

// laplace draws from the standard Laplace distribution via inverse CDF.
// Heavier tails than a gaussian, which crypto return series reward.
func laplace(rng *rand.Rand) float64 {
	u := rng.Float64() - 0.5
	if u >= 0 {
		return -math.Log(1 - 2*u)
	}
	return math.Log(1 + 2*u)
}

// Simulate walks candles-1 steps forward from the last close, one path
// per iteration. Each step applies exp(drift + stdev*z) with z drawn
// from a Laplace distribution; drift and stdev come from the log
// returns of the close series.
func Simulate(closes []float64, candles, iterations int, rng *rand.Rand) (*Result, error) {
	// At least two returns, so the sample variance is defined.
	if len(closes) < 3 {
		return nil, apperrors.ErrNotComputable
	}
	if candles < 1 || iterations < 1 {
		return nil, apperrors.NewValidationError("candles/iterations", candles, "must be positive")
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return nil, apperrors.ErrNotComputable
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}

	mean, err := stats.Mean(returns)
	if err != nil {
		return nil, apperrors.Wrap(err, "computing return mean")
	}
	variance, err := stats.SampleVariance(returns)
	if err != nil {
		return nil, apperrors.Wrap(err, "computing return variance")
	}

	n := float64(len(closes))
	drift := mean - 0.5*variance*(n-2)/n
	stdev := math.Sqrt(variance)

	prices := make([][]float64, candles)
	seed := closes[len(closes)-1]

	prices[0] = make([]float64, iterations)
	for j := range prices[0] {
		prices[0][j] = seed
	}
	for t := 1; t < candles; t++ {
		prices[t] = make([]float64, iterations)
		for j := 0; j < iterations; j++ {
			prices[t][j] = prices[t-1][j] * math.Exp(drift+stdev*laplace(rng))
		}
	}

	return &Result{Prices: prices}, nil
}
