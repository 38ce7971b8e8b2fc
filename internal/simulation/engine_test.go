package simulation

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hedge-lords/internal/errors"
	"hedge-lords/internal/models"
	"hedge-lords/internal/store"
)

func TestSimulateShapeAndSeedRow(t *testing.T) {
	closes := []float64{100, 101, 99, 102, 103}
	rng := rand.New(rand.NewSource(1))

	result, err := Simulate(closes, 10, 50, rng)
	require.NoError(t, err)

	require.Len(t, result.Prices, 10)
	for _, row := range result.Prices {
		assert.Len(t, row, 50)
	}
	for _, v := range result.Prices[0] {
		assert.Equal(t, 103.0, v)
	}
	for _, v := range result.TerminalPrices() {
		assert.Greater(t, v, 0.0)
	}
}

func TestSimulateDeterministicForSeed(t *testing.T) {
	closes := []float64{100, 101, 99, 102, 103}

	a, err := Simulate(closes, 5, 20, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	b, err := Simulate(closes, 5, 20, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	assert.Equal(t, a.Prices, b.Prices)
}

func TestSimulateRejectsBadInput(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	_, err := Simulate([]float64{100}, 5, 10, rng)
	assert.ErrorIs(t, err, apperrors.ErrNotComputable)

	// Two closes yield a single return, not enough for a variance estimate.
	_, err = Simulate([]float64{100, 101}, 5, 10, rng)
	assert.ErrorIs(t, err, apperrors.ErrNotComputable)

	_, err = Simulate([]float64{100, 0, 101}, 5, 10, rng)
	assert.ErrorIs(t, err, apperrors.ErrNotComputable)

	_, err = Simulate([]float64{100, 101, 102}, 0, 10, rng)
	assert.Error(t, err)
}

func TestSimulateConstantSeriesStaysFlat(t *testing.T) {
	// Zero variance means zero drift and zero noise amplitude.
	closes := []float64{100, 100, 100, 100}

	result, err := Simulate(closes, 4, 8, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	for _, row := range result.Prices {
		for _, v := range row {
			assert.InDelta(t, 100.0, v, 1e-9)
		}
	}
}

func TestCacheKeyFilename(t *testing.T) {
	key := CacheKey{
		Symbol:     "BTCUSD",
		Expiry:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Resolution: models.Hour1,
		Iterations: 10000,
	}
	assert.Equal(t, "sim_BTCUSD_20250301_HOUR_1_10000.csv", key.Filename())
}

func TestProperty_CacheKeyUniqueness(t *testing.T) {
	// Feature: hedge-lords, Property: distinct cache keys never map to
	// the same artifact file name.
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	resolutions := []models.Resolution{models.Minute5, models.Hour1, models.Day1}
	properties.Property("filename injective over key fields", prop.ForAll(
		func(day1, day2, iters1, iters2, res1, res2 int) bool {
			k1 := CacheKey{
				Symbol:     "BTCUSD",
				Expiry:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day1),
				Resolution: resolutions[res1],
				Iterations: iters1,
			}
			k2 := CacheKey{
				Symbol:     "BTCUSD",
				Expiry:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day2),
				Resolution: resolutions[res2],
				Iterations: iters2,
			}
			if k1 == k2 {
				return k1.Filename() == k2.Filename()
			}
			return k1.Filename() != k2.Filename()
		},
		gen.IntRange(0, 30), gen.IntRange(0, 30),
		gen.IntRange(1, 100000), gen.IntRange(1, 100000),
		gen.IntRange(0, 2), gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}

func TestArtifactStoreRoundTrip(t *testing.T) {
	artifacts, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	key := CacheKey{Symbol: "BTCUSD", Expiry: time.Now(), Resolution: models.Hour1, Iterations: 3}
	matrix := [][]float64{{1, 2, 3}, {1.5, 2.25, 3.125}}

	assert.False(t, artifacts.Exists(key))
	require.NoError(t, artifacts.Write(key, matrix))
	assert.True(t, artifacts.Exists(key))

	loaded, ok := artifacts.Read(key)
	require.True(t, ok)
	assert.Equal(t, matrix, loaded)

	require.NoError(t, artifacts.DeleteAll())
	assert.False(t, artifacts.Exists(key))
}

func TestArtifactStoreCorruptFileIsMiss(t *testing.T) {
	dir := t.TempDir()
	artifacts, err := NewArtifactStore(dir)
	require.NoError(t, err)

	key := CacheKey{Symbol: "BTCUSD", Expiry: time.Now(), Resolution: models.Hour1, Iterations: 3}
	require.NoError(t, os.WriteFile(filepath.Join(dir, key.Filename()), []byte("1,two,3\n"), 0o644))

	_, ok := artifacts.Read(key)
	assert.False(t, ok)
}

func newEngineFixture(t *testing.T, anchor time.Duration) (*Engine, *store.SQLiteStore, *ArtifactStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	artifacts, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	engine := NewEngine(st, artifacts, EngineConfig{Anchor: anchor, Workers: 2}, zerolog.Nop())
	return engine, st, artifacts
}

// loadCloses writes an hourly close series whose last bar lands at the
// given instant.
func loadCloses(t *testing.T, st *store.SQLiteStore, last time.Time, closes []float64) {
	t.Helper()
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		ts := last.Add(-time.Duration(len(closes)-1-i) * time.Hour)
		candles[i] = models.Candle{Symbol: "BTCUSD", Timestamp: ts, Close: c}
	}
	require.NoError(t, st.Replace(context.Background(), candles))
}

func TestTerminalPricesComputesAndCaches(t *testing.T) {
	ctx := context.Background()
	engine, st, artifacts := newEngineFixture(t, 12*time.Hour)

	last := time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)
	loadCloses(t, st, last, []float64{75000, 75200, 74900, 75500, 75400})

	key := CacheKey{
		Symbol:     "BTCUSD",
		Expiry:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Resolution: models.Hour1,
		Iterations: 40,
	}

	first, err := engine.TerminalPrices(ctx, key)
	require.NoError(t, err)
	require.Len(t, first, 40)
	assert.True(t, artifacts.Exists(key))

	// Second run must come from the artifact even if the history is gone.
	require.NoError(t, st.ClearHistory(ctx))
	second, err := engine.TerminalPrices(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTerminalPricesAnchorGate(t *testing.T) {
	ctx := context.Background()
	engine, st, _ := newEngineFixture(t, 12*time.Hour)

	// Last bar at 13:00 UTC, anchor requires 12:00.
	last := time.Date(2025, 2, 28, 13, 0, 0, 0, time.UTC)
	loadCloses(t, st, last, []float64{75000, 75200, 74900})

	key := CacheKey{
		Symbol:     "BTCUSD",
		Expiry:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Resolution: models.Hour1,
		Iterations: 10,
	}

	_, err := engine.TerminalPrices(ctx, key)
	assert.ErrorIs(t, err, apperrors.ErrNotComputable)
}

func TestTerminalPricesNoHistory(t *testing.T) {
	engine, _, _ := newEngineFixture(t, 12*time.Hour)

	key := CacheKey{
		Symbol:     "BTCUSD",
		Expiry:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Resolution: models.Hour1,
		Iterations: 10,
	}

	_, err := engine.TerminalPrices(context.Background(), key)
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
}

func TestTerminalPricesExpiredKey(t *testing.T) {
	ctx := context.Background()
	engine, st, _ := newEngineFixture(t, 12*time.Hour)

	last := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	loadCloses(t, st, last, []float64{75000, 75200, 74900})

	// Expiry already behind the last bar.
	key := CacheKey{
		Symbol:     "BTCUSD",
		Expiry:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Resolution: models.Hour1,
		Iterations: 10,
	}

	_, err := engine.TerminalPrices(ctx, key)
	assert.ErrorIs(t, err, apperrors.ErrNotComputable)
}

func TestTerminalPricesSpanPlausible(t *testing.T) {
	ctx := context.Background()
	engine, st, _ := newEngineFixture(t, 12*time.Hour)

	last := time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 75000 * math.Exp(0.001*math.Sin(float64(i)))
	}
	loadCloses(t, st, last, closes)

	key := CacheKey{
		Symbol:     "BTCUSD",
		Expiry:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Resolution: models.Hour1,
		Iterations: 100,
	}

	prices, err := engine.TerminalPrices(ctx, key)
	require.NoError(t, err)
	require.Len(t, prices, 100)
	for _, p := range prices {
		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 10*75000.0)
	}
}
