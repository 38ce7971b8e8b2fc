package simulation

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	apperrors "hedge-lords/internal/errors"
	"hedge-lords/internal/logging"
	"hedge-lords/internal/store"
)

// EngineConfig tunes the simulation engine.
type EngineConfig struct {
	// Anchor is the time of day (UTC) at which bars must close for the
	// series to be simulatable, and at which contracts expire.
	Anchor time.Duration
	// Workers caps the goroutines used per simulation run.
	Workers int
}

// Engine runs simulations over the stored candle history and caches
// the resulting matrices.
type Engine struct {
	history   store.HistoricalStore
	artifacts *ArtifactStore
	logger    zerolog.Logger
	cfg       EngineConfig
}

// NewEngine creates a simulation engine.
func NewEngine(history store.HistoricalStore, artifacts *ArtifactStore, cfg EngineConfig, logger zerolog.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Engine{
		history:   history,
		artifacts: artifacts,
		logger:    logging.WithService(logger, "simulation"),
		cfg:       cfg,
	}
}

// expiryInstant is the moment the contract settles: the expiry date at
// the anchor time of day, UTC.
func (e *Engine) expiryInstant(expiry time.Time) time.Time {
	y, m, d := expiry.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(e.cfg.Anchor)
}

// anchored reports whether the bar timestamp closes at the anchor time
// of day. A series whose last bar sits elsewhere in the day would make
// the step count fractional, so it is rejected rather than rounded.
func (e *Engine) anchored(ts time.Time) bool {
	ts = ts.UTC()
	midnight := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	return ts.Sub(midnight) == e.cfg.Anchor
}

// TerminalPrices returns one simulated settlement price per iteration
// for the key. A cached artifact is reused verbatim; otherwise the
// engine simulates from the stored close series, persists the matrix,
// and returns its last row.
func (e *Engine) TerminalPrices(ctx context.Context, key CacheKey) ([]float64, error) {
	start := time.Now()

	if e.artifacts.Exists(key) {
		if matrix, ok := e.artifacts.Read(key); ok && len(matrix) > 0 {
			logging.LogSimulation(e.logger, key.Symbol, len(matrix), key.Iterations, true, time.Since(start))
			return matrix[len(matrix)-1], nil
		}
		// Unreadable artifact, fall through and recompute.
	}

	points, err := e.history.Closes(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading close history")
	}
	if len(points) < 2 {
		return nil, apperrors.ErrDataNotFound
	}

	last := points[len(points)-1]
	if !e.anchored(last.Timestamp) {
		return nil, apperrors.ErrNotComputable
	}

	barLength := key.Resolution.Duration()
	if barLength <= 0 {
		return nil, apperrors.NewValidationError("resolution", string(key.Resolution), "unknown resolution")
	}
	candles := int(e.expiryInstant(key.Expiry).Sub(last.Timestamp) / barLength)
	if candles < 1 {
		return nil, apperrors.ErrNotComputable
	}

	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
	}

	matrix, err := e.simulateParallel(ctx, key, closes, candles)
	if err != nil {
		return nil, apperrors.NewComputationError("simulate", key.Symbol, err)
	}

	if err := e.artifacts.Write(key, matrix); err != nil {
		// A failed cache write costs a recompute next time, nothing more.
		e.logger.Warn().Err(err).Str("symbol", key.Symbol).Msg("Failed to cache simulation")
	}

	logging.LogSimulation(e.logger, key.Symbol, candles, key.Iterations, false, time.Since(start))
	return matrix[len(matrix)-1], nil
}

// simulateParallel splits the iterations across worker chunks, each
// with its own deterministically seeded source, then stitches the
// chunk matrices back together column-wise.
func (e *Engine) simulateParallel(ctx context.Context, key CacheKey, closes []float64, candles int) ([][]float64, error) {
	workers := e.cfg.Workers
	if workers > key.Iterations {
		workers = key.Iterations
	}

	chunkSizes := make([]int, workers)
	for i := range chunkSizes {
		chunkSizes[i] = key.Iterations / workers
	}
	chunkSizes[workers-1] += key.Iterations % workers

	baseSeed := keySeed(key)
	chunks := make([]*Result, workers)

	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(workers)
	for i := range chunkSizes {
		i := i
		p.Go(func(ctx context.Context) error {
			rng := rand.New(rand.NewSource(baseSeed + int64(i)))
			result, err := Simulate(closes, candles, chunkSizes[i], rng)
			if err != nil {
				return err
			}
			chunks[i] = result
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	matrix := make([][]float64, candles)
	for t := 0; t < candles; t++ {
		row := make([]float64, 0, key.Iterations)
		for _, chunk := range chunks {
			row = append(row, chunk.Prices[t]...)
		}
		matrix[t] = row
	}
	return matrix, nil
}

// DeleteArtifacts clears the on-disk simulation cache.
func (e *Engine) DeleteArtifacts() error {
	return e.artifacts.DeleteAll()
}

func keySeed(key CacheKey) int64 {
	h := fnv.New64a()
	h.Write([]byte(key.Filename()))
	return int64(h.Sum64())
}
