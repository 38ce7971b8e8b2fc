package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"hedge-lords/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func optionTicker(symbol string, strike float64) *models.Ticker {
	return &models.Ticker{
		Symbol:       symbol,
		Timestamp:    time.Now().UnixMilli(),
		ContractType: models.CallOption,
		Underlying:   "BTCUSD",
		MarkPrice:    decimal.NewFromFloat(120.5),
		SpotPrice:    dec(76100),
		Quote: &models.Quote{
			BestBid: dec(118),
			BestAsk: dec(122),
		},
		Option: &models.OptionDetail{
			StrikePrice: dec(strike),
			Greeks: &models.Greeks{
				Delta: dec(0.42),
				Vega:  dec(11.2),
			},
		},
	}
}

func TestUpsertInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := optionTicker("C-BTC-75600-010325", 75600)
	if err := s.Upsert(ctx, in); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := s.Get(ctx, "C-BTC-75600-010325")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a stored ticker")
	}
	if !got.MarkPrice.Equal(in.MarkPrice) {
		t.Errorf("mark price = %s, want %s", got.MarkPrice, in.MarkPrice)
	}
	strike, ok := got.Strike()
	if !ok || strike != 75600 {
		t.Errorf("strike = %v (%v), want 75600", strike, ok)
	}
	if got.Option.Greeks == nil || got.Option.Greeks.Delta == nil {
		t.Fatal("greeks lost on round trip")
	}
	if got.Future != nil {
		t.Error("option ticker must not carry futures detail")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get(context.Background(), "C-BTC-0-010101")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing symbol, got %+v", got)
	}
}

func TestUpsertMergePreservesOmittedFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	full := optionTicker("C-BTC-75600-010325", 75600)
	if err := s.Upsert(ctx, full); err != nil {
		t.Fatalf("initial upsert failed: %v", err)
	}

	// A sparse tick: new mark price, but no strike, quotes or greeks.
	sparse := &models.Ticker{
		Symbol:       full.Symbol,
		Timestamp:    full.Timestamp + 100,
		ContractType: models.CallOption,
		Underlying:   "BTCUSD",
		MarkPrice:    decimal.NewFromFloat(121.0),
		Option:       &models.OptionDetail{},
	}
	if err := s.Upsert(ctx, sparse); err != nil {
		t.Fatalf("sparse upsert failed: %v", err)
	}

	got, err := s.Get(ctx, full.Symbol)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.MarkPrice.Equal(decimal.NewFromFloat(121.0)) {
		t.Errorf("mark price not updated: %s", got.MarkPrice)
	}
	if got.Quote == nil || got.Quote.BestBid == nil || !got.Quote.BestBid.Equal(decimal.NewFromInt(118)) {
		t.Error("omitted quote fields must be preserved across sparse ticks")
	}
	if got.Option == nil || got.Option.StrikePrice == nil || !got.Option.StrikePrice.Equal(decimal.NewFromInt(75600)) {
		t.Error("omitted strike must be preserved across sparse ticks")
	}
	if got.Option.Greeks == nil || got.Option.Greeks.Delta == nil {
		t.Error("omitted greeks must be preserved across sparse ticks")
	}
	if got.Timestamp != sparse.Timestamp {
		t.Errorf("timestamp = %d, want %d", got.Timestamp, sparse.Timestamp)
	}
}

func TestFutureTickerRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := &models.Ticker{
		Symbol:       "BTCUSD",
		Timestamp:    time.Now().UnixMilli(),
		ContractType: models.PerpetualFuture,
		Underlying:   "BTCUSD",
		MarkPrice:    decimal.NewFromFloat(76000.5),
		Future: &models.FutureDetail{
			MarkBasis:   dec(3.4),
			FundingRate: dec(0.0001),
		},
	}
	if err := s.Upsert(ctx, in); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := s.Get(ctx, "BTCUSD")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Future == nil || got.Future.FundingRate == nil {
		t.Fatal("futures detail lost on round trip")
	}
	if got.Option != nil {
		t.Error("futures ticker must not carry option detail or greeks")
	}
}

func TestListBySymbolsAndClearAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, sym := range []string{"C-BTC-74000-010325", "C-BTC-75600-010325", "P-BTC-76000-010325"} {
		if err := s.Upsert(ctx, optionTicker(sym, 75000)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	listed, err := s.ListBySymbols(ctx, []string{"C-BTC-74000-010325", "P-BTC-76000-010325", "C-BTC-99999-010325"})
	if err != nil {
		t.Fatalf("ListBySymbols failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("listed %d tickers, want 2", len(listed))
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("store not empty after clear: %d rows", len(all))
	}
}

func TestReplaceAndCloses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	first := []models.Candle{
		{Symbol: "BTCUSD", Timestamp: base, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Symbol: "BTCUSD", Timestamp: base.Add(time.Hour), Open: 1.5, High: 3, Low: 1, Close: 2.5, Volume: 12},
	}
	if err := s.Replace(ctx, first); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	second := []models.Candle{
		{Symbol: "BTCUSD", Timestamp: base.Add(2 * time.Hour), Open: 2.5, High: 4, Low: 2, Close: 3.5, Volume: 9},
	}
	if err := s.Replace(ctx, second); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	closes, err := s.Closes(ctx)
	if err != nil {
		t.Fatalf("Closes failed: %v", err)
	}
	if len(closes) != 1 {
		t.Fatalf("Replace must clear prior rows: got %d closes", len(closes))
	}
	if closes[0].Close != 3.5 {
		t.Errorf("close = %v, want 3.5", closes[0].Close)
	}
}

// Feature: hedge-lords, Property: Merge-upsert idempotency
//
// Property: Applying the same ticker twice yields the same stored row as
// applying it once, and a sparse follow-up tick never nulls a previously
// non-null field.
func TestProperty_UpsertIdempotentAndNeverNulls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 60
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	strikeGen := gen.IntRange(1000, 100000)
	priceGen := gen.Float64Range(0.5, 5000.0)
	hasQuoteGen := gen.Bool()

	properties.Property("upsert twice equals upsert once; sparse merge keeps fields", prop.ForAll(
		func(strike int, price float64, sparseHasQuote bool) bool {
			sym := fmt.Sprintf("C-BTC-%d-010325", strike)

			full := optionTicker(sym, float64(strike))
			full.MarkPrice = decimal.NewFromFloat(price)

			if err := s.Upsert(ctx, full); err != nil {
				t.Logf("upsert failed: %v", err)
				return false
			}
			once, err := s.Get(ctx, sym)
			if err != nil {
				return false
			}
			if err := s.Upsert(ctx, full); err != nil {
				return false
			}
			twice, err := s.Get(ctx, sym)
			if err != nil {
				return false
			}

			if !tickersEquiv(once, twice) {
				t.Logf("idempotency violated for %s", sym)
				return false
			}

			sparse := &models.Ticker{
				Symbol:       sym,
				Timestamp:    full.Timestamp + 1,
				ContractType: models.CallOption,
				Underlying:   full.Underlying,
				MarkPrice:    decimal.NewFromFloat(price + 1),
				Option:       &models.OptionDetail{StrikePrice: dec(float64(strike))},
			}
			if sparseHasQuote {
				sparse.Quote = &models.Quote{BestAsk: dec(price + 2)}
			}
			if err := s.Upsert(ctx, sparse); err != nil {
				return false
			}
			merged, err := s.Get(ctx, sym)
			if err != nil {
				return false
			}

			// Previously non-null fields must survive the sparse tick.
			if merged.Quote == nil || merged.Quote.BestBid == nil {
				t.Logf("best_bid nulled by sparse tick for %s", sym)
				return false
			}
			if merged.Option.Greeks == nil || merged.Option.Greeks.Delta == nil {
				t.Logf("greeks nulled by sparse tick for %s", sym)
				return false
			}
			return true
		},
		strikeGen,
		priceGen,
		hasQuoteGen,
	))

	properties.TestingRun(t)
}

func tickersEquiv(a, b *models.Ticker) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Symbol != b.Symbol || a.Timestamp != b.Timestamp || !a.MarkPrice.Equal(b.MarkPrice) {
		return false
	}
	aBid, aOK := a.BestBid()
	bBid, bOK := b.BestBid()
	return aOK == bOK && aBid == bBid
}
