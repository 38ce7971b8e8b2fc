package ingest

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hedge-lords/internal/errors"
	"hedge-lords/internal/models"
)

const optionFrame = `{
	"type": "v2/ticker",
	"symbol": "C-BTC-75600-010325",
	"timestamp": 1740700800000000,
	"contract_type": "call_options",
	"underlying_asset_symbol": "BTC",
	"mark_price": "118.5",
	"spot_price": "75514.2",
	"strike_price": "75600",
	"oi_contracts": "42",
	"quotes": {
		"best_bid": "115",
		"best_ask": "120",
		"bid_iv": "0.52"
	},
	"greeks": {
		"delta": "0.48",
		"theta": "-85.2"
	},
	"price_band": {
		"lower_limit": "10",
		"upper_limit": "900"
	}
}`

func TestNormalizeOptionTicker(t *testing.T) {
	ticker, err := Normalize([]byte(optionFrame))
	require.NoError(t, err)

	assert.Equal(t, "C-BTC-75600-010325", ticker.Symbol)
	assert.Equal(t, int64(1740700800000), ticker.Timestamp)
	assert.Equal(t, models.CallOption, ticker.ContractType)
	assert.Equal(t, "BTC", ticker.Underlying)
	assert.Equal(t, "118.5", ticker.MarkPrice.String())

	require.NotNil(t, ticker.Option)
	assert.Equal(t, "75600", ticker.Option.StrikePrice.String())
	require.NotNil(t, ticker.Option.Greeks)
	assert.Equal(t, "0.48", ticker.Option.Greeks.Delta.String())
	assert.Nil(t, ticker.Option.Greeks.Gamma)

	require.NotNil(t, ticker.Quote)
	assert.Equal(t, "115", ticker.Quote.BestBid.String())
	assert.Equal(t, "120", ticker.Quote.BestAsk.String())
	assert.Nil(t, ticker.Quote.AskIV)

	require.NotNil(t, ticker.OIContracts)
	assert.Equal(t, int64(42), *ticker.OIContracts)
	require.NotNil(t, ticker.PriceBand)
	assert.Nil(t, ticker.Future)
}

func TestNormalizeFutureTicker(t *testing.T) {
	frame := `{
		"type": "v2/ticker",
		"symbol": "BTCUSD",
		"timestamp": 1740700800000000,
		"contract_type": "perpetual_futures",
		"underlying_asset_symbol": "BTC",
		"mark_price": 75514.2,
		"funding_rate": "0.0001",
		"mark_basis": "-3.2"
	}`

	ticker, err := Normalize([]byte(frame))
	require.NoError(t, err)

	assert.True(t, ticker.IsFuture())
	assert.Nil(t, ticker.Option)
	require.NotNil(t, ticker.Future)
	assert.Equal(t, "0.0001", ticker.Future.FundingRate.String())
	assert.Equal(t, "-3.2", ticker.Future.MarkBasis.String())
}

func TestNormalizeRejectsBadFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not a ticker", `{"type":"subscriptions","channels":[]}`},
		{"missing symbol", `{"type":"v2/ticker","contract_type":"call_options","mark_price":"1","strike_price":"1"}`},
		{"unknown contract type", `{"type":"v2/ticker","symbol":"X","contract_type":"interest_rate_swaps","mark_price":"1"}`},
		{"missing mark price", `{"type":"v2/ticker","symbol":"X","contract_type":"call_options","strike_price":"1"}`},
		{"malformed json", `{"type":"v2/ticker",`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize([]byte(tt.frame))
			require.Error(t, err)

			var derr *apperrors.DecodeError
			assert.ErrorAs(t, err, &derr)
		})
	}
}

func TestNormalizeGarbledFieldBecomesAbsent(t *testing.T) {
	frame := `{
		"type": "v2/ticker",
		"symbol": "C-BTC-75600-010325",
		"timestamp": 1740700800000000,
		"contract_type": "call_options",
		"mark_price": "118.5",
		"strike_price": "75600",
		"spot_price": "not-a-number",
		"volume": "",
		"quotes": {"best_bid": "abc", "best_ask": "120"}
	}`

	ticker, err := Normalize([]byte(frame))
	require.NoError(t, err)

	assert.Nil(t, ticker.SpotPrice)
	assert.Nil(t, ticker.Volume)
	require.NotNil(t, ticker.Quote)
	assert.Nil(t, ticker.Quote.BestBid)
	assert.Equal(t, "120", ticker.Quote.BestAsk.String())
}

func TestNormalizeOptionWithGarbledStrikeKeepsTick(t *testing.T) {
	frame := `{
		"type": "v2/ticker",
		"symbol": "C-BTC-75600-010325",
		"timestamp": 1740700800000000,
		"contract_type": "call_options",
		"mark_price": "118.5",
		"strike_price": "not-a-number"
	}`

	ticker, err := Normalize([]byte(frame))
	require.NoError(t, err)

	assert.Equal(t, "118.5", ticker.MarkPrice.String())
	require.NotNil(t, ticker.Option)
	assert.Nil(t, ticker.Option.StrikePrice)
}

func TestNormalizeEmptyQuoteBlockOmitted(t *testing.T) {
	frame := `{
		"type": "v2/ticker",
		"symbol": "C-BTC-75600-010325",
		"contract_type": "call_options",
		"mark_price": "1",
		"strike_price": "75600",
		"quotes": {"best_bid": null, "best_ask": null}
	}`

	ticker, err := Normalize([]byte(frame))
	require.NoError(t, err)
	assert.Nil(t, ticker.Quote)
}

func TestProperty_NormalizePreservesDecimalText(t *testing.T) {
	// Feature: hedge-lords, Property: decimal fields survive
	// normalization without float rounding, whether the exchange sends
	// them as strings or numbers.
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("string prices round-trip exactly", prop.ForAll(
		func(units int, cents int) bool {
			price := fmt.Sprintf("%d.%02d", units, cents)
			frame := fmt.Sprintf(`{
				"type": "v2/ticker",
				"symbol": "C-BTC-75600-010325",
				"contract_type": "call_options",
				"mark_price": %q,
				"strike_price": "75600"
			}`, price)

			ticker, err := Normalize([]byte(frame))
			if err != nil {
				return false
			}
			return ticker.MarkPrice.Equal(mustDecimal(price))
		},
		gen.IntRange(0, 1000000),
		gen.IntRange(0, 99),
	))

	properties.TestingRun(t)
}
