// Package payoff computes option strategy payoffs: single-leg payoff
// arithmetic, aggregate payoff curves over a price grid, and expected
// value distributions against simulated terminal prices.
package payoff

import (
	"math"
	"sort"

	"hedge-lords/internal/models"
)

// PayoffAt returns the settlement payoff of one option leg at one
// underlying price.
func PayoffAt(price, strike, premium, direction, lotSize float64, isCall bool) float64 {
	var intrinsic float64
	if isCall {
		intrinsic = math.Max(0, price-strike)
	} else {
		intrinsic = math.Max(0, strike-price)
	}
	return direction * lotSize * (intrinsic - premium)
}

// Payoffs evaluates one leg over a slice of underlying prices.
func Payoffs(prices []float64, strike, premium, direction, lotSize float64, isCall bool) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = PayoffAt(p, strike, premium, direction, lotSize, isCall)
	}
	return out
}

// priceGrid spans [minStrike*(1-rangePct), maxStrike*(1+rangePct)] with
// the given number of evenly spaced points.
func priceGrid(minStrike, maxStrike, rangePct float64, points int) []float64 {
	lo := minStrike * (1 - rangePct)
	hi := maxStrike * (1 + rangePct)

	grid := make([]float64, points)
	if points == 1 {
		grid[0] = lo
		return grid
	}
	step := (hi - lo) / float64(points-1)
	for i := range grid {
		grid[i] = lo + float64(i)*step
	}
	return grid
}

// leg is one selected contract resolved against live market data.
type leg struct {
	symbol    string
	strike    float64
	premium   float64
	direction float64
	isCall    bool
}

// premiumFor picks the execution price for a leg: the ask when buying,
// the bid when selling. Absent quotes price the leg at zero.
func premiumFor(ticker *models.Ticker, position models.Position) float64 {
	if position == models.PositionBuy {
		if ask, ok := ticker.BestAsk(); ok {
			return ask
		}
		return 0
	}
	if bid, ok := ticker.BestBid(); ok {
		return bid
	}
	return 0
}

// resolveLegs pairs each selection with its ticker and drops legs that
// have no usable strike. Missing tickers are skipped too: the stream
// may simply not have produced the contract yet.
func resolveLegs(selection map[string]models.Position, tickers []models.Ticker) []leg {
	bySymbol := make(map[string]*models.Ticker, len(tickers))
	for i := range tickers {
		bySymbol[tickers[i].Symbol] = &tickers[i]
	}

	var legs []leg
	for symbol, position := range selection {
		ticker, ok := bySymbol[symbol]
		if !ok || !ticker.IsOption() {
			continue
		}
		strike, ok := ticker.Strike()
		if !ok || strike <= 0 {
			continue
		}
		legs = append(legs, leg{
			symbol:    symbol,
			strike:    strike,
			premium:   premiumFor(ticker, position),
			direction: position.Direction(),
			isCall:    ticker.ContractType == models.CallOption,
		})
	}

	sort.Slice(legs, func(i, j int) bool { return legs[i].symbol < legs[j].symbol })
	return legs
}

// curveFromLegs sums per-leg payoffs over the strike-derived grid.
func curveFromLegs(legs []leg, rangePct, lotSize float64, points int) models.Curve {
	if len(legs) == 0 || points < 1 {
		return models.Curve{X: []float64{}, Y: []float64{}}
	}

	minStrike, maxStrike := legs[0].strike, legs[0].strike
	for _, l := range legs[1:] {
		minStrike = math.Min(minStrike, l.strike)
		maxStrike = math.Max(maxStrike, l.strike)
	}

	grid := priceGrid(minStrike, maxStrike, rangePct, points)
	total := make([]float64, len(grid))
	for _, l := range legs {
		for i, p := range grid {
			total[i] += PayoffAt(p, l.strike, l.premium, l.direction, lotSize, l.isCall)
		}
	}
	return models.Curve{X: grid, Y: total}
}
