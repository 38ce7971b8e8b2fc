package simulation

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"hedge-lords/internal/models"
)

// CacheKey identifies one simulation artifact. Two runs with the same
// key reuse the same artifact byte for byte.
type CacheKey struct {
	Symbol     string
	Expiry     time.Time
	Resolution models.Resolution
	Iterations int
}

// Filename returns the artifact file name for this key, e.g.
// sim_BTCUSD_20250301_HOUR_1_10000.csv.
func (k CacheKey) Filename() string {
	return fmt.Sprintf("sim_%s_%s_%s_%d.csv",
		k.Symbol, k.Expiry.Format("20060102"), k.Resolution.Name(), k.Iterations)
}

// ArtifactStore persists simulation matrices as CSV files in one
// directory. IO failures on read are treated as cache misses so a
// corrupt or concurrently written file can never poison a run.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates the artifact directory if needed.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &ArtifactStore{dir: dir}, nil
}

func (s *ArtifactStore) path(key CacheKey) string {
	return filepath.Join(s.dir, key.Filename())
}

// Exists reports whether a non-empty artifact is present for the key.
func (s *ArtifactStore) Exists(key CacheKey) bool {
	info, err := os.Stat(s.path(key))
	return err == nil && info.Size() > 0
}

// Read loads the artifact matrix, or (nil, false) on any failure.
func (s *ArtifactStore) Read(key CacheKey) ([][]float64, bool) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil || len(records) == 0 {
		return nil, false
	}

	matrix := make([][]float64, len(records))
	for i, record := range records {
		row := make([]float64, len(record))
		for j, cell := range record {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, false
			}
			row[j] = v
		}
		matrix[i] = row
	}
	return matrix, true
}

// Write stores the matrix for the key, replacing any previous artifact.
func (s *ArtifactStore) Write(key CacheKey, matrix [][]float64) error {
	f, err := os.Create(s.path(key))
	if err != nil {
		return fmt.Errorf("creating artifact: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	record := make([]string, 0, 64)
	for _, row := range matrix {
		record = record[:0]
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing artifact row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// DeleteAll removes every simulation artifact in the directory.
func (s *ArtifactStore) DeleteAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("listing artifacts: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "sim_") || !strings.HasSuffix(name, ".csv") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("removing artifact %s: %w", name, err)
		}
	}
	return nil
}
