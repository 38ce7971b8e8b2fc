// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"hedge-lords/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Tickers table, one row per contract symbol.
	-- Decimal fields are stored as TEXT to preserve precision.
	CREATE TABLE IF NOT EXISTS tickers (
		symbol TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		contract_type TEXT NOT NULL,
		underlying TEXT NOT NULL,
		mark_price TEXT NOT NULL,
		spot_price TEXT,
		open TEXT,
		high TEXT,
		low TEXT,
		close TEXT,
		volume TEXT,
		turnover TEXT,
		oi TEXT,
		oi_value TEXT,
		oi_contracts INTEGER,
		best_bid TEXT,
		best_ask TEXT,
		bid_size TEXT,
		ask_size TEXT,
		bid_iv TEXT,
		ask_iv TEXT,
		mark_iv TEXT,
		impact_mid_price TEXT,
		delta TEXT,
		gamma TEXT,
		theta TEXT,
		vega TEXT,
		rho TEXT,
		lower_limit TEXT,
		upper_limit TEXT,
		strike_price TEXT,
		mark_basis TEXT,
		funding_rate TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Candle history for the simulated underlying.
	CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		UNIQUE(symbol, timestamp)
	);

	CREATE INDEX IF NOT EXISTS idx_tickers_underlying ON tickers(underlying);
	CREATE INDEX IF NOT EXISTS idx_candles_timestamp ON candles(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Ticker Methods
// ============================================================================

// tickerColumns is the column list shared by reads and writes, symbol first.
const tickerColumns = `symbol, timestamp, contract_type, underlying, mark_price, spot_price,
	open, high, low, close, volume, turnover, oi, oi_value, oi_contracts,
	best_bid, best_ask, bid_size, ask_size, bid_iv, ask_iv, mark_iv, impact_mid_price,
	delta, gamma, theta, vega, rho, lower_limit, upper_limit,
	strike_price, mark_basis, funding_rate`

// Upsert merge-writes a ticker row. The merge works field by field: a NULL
// incoming value keeps whatever the row already holds, so sparse ticks never
// erase previously seen quotes or greeks.
func (s *SQLiteStore) Upsert(ctx context.Context, t *models.Ticker) error {
	var (
		quote  models.Quote
		greeks models.Greeks
		band   models.PriceBand
	)
	if t.Quote != nil {
		quote = *t.Quote
	}
	if t.Option != nil && t.Option.Greeks != nil {
		greeks = *t.Option.Greeks
	}
	if t.PriceBand != nil {
		band = *t.PriceBand
	}

	var strike, markBasis, fundingRate interface{}
	if t.Option != nil {
		strike = nullDecimal(t.Option.StrikePrice)
	}
	if t.Future != nil {
		markBasis = nullDecimal(t.Future.MarkBasis)
		fundingRate = nullDecimal(t.Future.FundingRate)
	}

	var oiContracts interface{}
	if t.OIContracts != nil {
		oiContracts = *t.OIContracts
	}

	query := `INSERT INTO tickers (` + tickerColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(symbol) DO UPDATE SET
		timestamp = excluded.timestamp,
		contract_type = excluded.contract_type,
		underlying = excluded.underlying,
		mark_price = excluded.mark_price,
		spot_price = COALESCE(excluded.spot_price, tickers.spot_price),
		open = COALESCE(excluded.open, tickers.open),
		high = COALESCE(excluded.high, tickers.high),
		low = COALESCE(excluded.low, tickers.low),
		close = COALESCE(excluded.close, tickers.close),
		volume = COALESCE(excluded.volume, tickers.volume),
		turnover = COALESCE(excluded.turnover, tickers.turnover),
		oi = COALESCE(excluded.oi, tickers.oi),
		oi_value = COALESCE(excluded.oi_value, tickers.oi_value),
		oi_contracts = COALESCE(excluded.oi_contracts, tickers.oi_contracts),
		best_bid = COALESCE(excluded.best_bid, tickers.best_bid),
		best_ask = COALESCE(excluded.best_ask, tickers.best_ask),
		bid_size = COALESCE(excluded.bid_size, tickers.bid_size),
		ask_size = COALESCE(excluded.ask_size, tickers.ask_size),
		bid_iv = COALESCE(excluded.bid_iv, tickers.bid_iv),
		ask_iv = COALESCE(excluded.ask_iv, tickers.ask_iv),
		mark_iv = COALESCE(excluded.mark_iv, tickers.mark_iv),
		impact_mid_price = COALESCE(excluded.impact_mid_price, tickers.impact_mid_price),
		delta = COALESCE(excluded.delta, tickers.delta),
		gamma = COALESCE(excluded.gamma, tickers.gamma),
		theta = COALESCE(excluded.theta, tickers.theta),
		vega = COALESCE(excluded.vega, tickers.vega),
		rho = COALESCE(excluded.rho, tickers.rho),
		lower_limit = COALESCE(excluded.lower_limit, tickers.lower_limit),
		upper_limit = COALESCE(excluded.upper_limit, tickers.upper_limit),
		strike_price = COALESCE(excluded.strike_price, tickers.strike_price),
		mark_basis = COALESCE(excluded.mark_basis, tickers.mark_basis),
		funding_rate = COALESCE(excluded.funding_rate, tickers.funding_rate),
		updated_at = CURRENT_TIMESTAMP`

	_, err := s.db.ExecContext(ctx, query,
		t.Symbol, t.Timestamp, string(t.ContractType), t.Underlying,
		t.MarkPrice.String(), nullDecimal(t.SpotPrice),
		nullDecimal(t.Open), nullDecimal(t.High), nullDecimal(t.Low), nullDecimal(t.Close),
		nullDecimal(t.Volume), nullDecimal(t.Turnover), nullDecimal(t.OI), nullDecimal(t.OIValue),
		oiContracts,
		nullDecimal(quote.BestBid), nullDecimal(quote.BestAsk),
		nullDecimal(quote.BidSize), nullDecimal(quote.AskSize),
		nullDecimal(quote.BidIV), nullDecimal(quote.AskIV),
		nullDecimal(quote.MarkIV), nullDecimal(quote.ImpactMidPrice),
		nullDecimal(greeks.Delta), nullDecimal(greeks.Gamma), nullDecimal(greeks.Theta),
		nullDecimal(greeks.Vega), nullDecimal(greeks.Rho),
		nullDecimal(band.LowerLimit), nullDecimal(band.UpperLimit),
		strike, markBasis, fundingRate,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ticker %s: %w", t.Symbol, err)
	}
	return nil
}

// Get returns the stored ticker for a symbol, or nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, symbol string) (*models.Ticker, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tickerColumns+` FROM tickers WHERE symbol = ?`, symbol)

	t, err := scanTicker(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker %s: %w", symbol, err)
	}
	return t, nil
}

// ListBySymbols returns the stored tickers for the given symbols.
func (s *SQLiteStore) ListBySymbols(ctx context.Context, symbols []string) ([]models.Ticker, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(symbols))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(symbols))
	for i, sym := range symbols {
		args[i] = sym
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tickerColumns+` FROM tickers WHERE symbol IN (`+placeholders+`) ORDER BY symbol`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	return collectTickers(rows)
}

// All returns every stored ticker.
func (s *SQLiteStore) All(ctx context.Context) ([]models.Ticker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tickerColumns+` FROM tickers ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	return collectTickers(rows)
}

// ClearAll truncates the ticker store.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tickers`); err != nil {
		return fmt.Errorf("failed to clear tickers: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTicker(row scanner) (*models.Ticker, error) {
	var (
		t           models.Ticker
		contractRaw string
		markPrice   string
		oiContracts sql.NullInt64

		spot, open, high, low, closeP      sql.NullString
		volume, turnover, oi, oiValue      sql.NullString
		bestBid, bestAsk, bidSize, askSize sql.NullString
		bidIV, askIV, markIV, impactMid    sql.NullString
		delta, gamma, theta, vega, rho     sql.NullString
		lowerLimit, upperLimit             sql.NullString
		strike, markBasis, fundingRate     sql.NullString
	)

	err := row.Scan(
		&t.Symbol, &t.Timestamp, &contractRaw, &t.Underlying, &markPrice, &spot,
		&open, &high, &low, &closeP, &volume, &turnover, &oi, &oiValue, &oiContracts,
		&bestBid, &bestAsk, &bidSize, &askSize, &bidIV, &askIV, &markIV, &impactMid,
		&delta, &gamma, &theta, &vega, &rho, &lowerLimit, &upperLimit,
		&strike, &markBasis, &fundingRate,
	)
	if err != nil {
		return nil, err
	}

	t.ContractType = models.ContractType(contractRaw)
	mark, err := decimal.NewFromString(markPrice)
	if err != nil {
		return nil, fmt.Errorf("corrupt mark_price for %s: %w", t.Symbol, err)
	}
	t.MarkPrice = mark

	t.SpotPrice = scanDecimal(spot)
	t.Open = scanDecimal(open)
	t.High = scanDecimal(high)
	t.Low = scanDecimal(low)
	t.Close = scanDecimal(closeP)
	t.Volume = scanDecimal(volume)
	t.Turnover = scanDecimal(turnover)
	t.OI = scanDecimal(oi)
	t.OIValue = scanDecimal(oiValue)
	if oiContracts.Valid {
		v := oiContracts.Int64
		t.OIContracts = &v
	}

	quote := models.Quote{
		BestBid:        scanDecimal(bestBid),
		BestAsk:        scanDecimal(bestAsk),
		BidSize:        scanDecimal(bidSize),
		AskSize:        scanDecimal(askSize),
		BidIV:          scanDecimal(bidIV),
		AskIV:          scanDecimal(askIV),
		MarkIV:         scanDecimal(markIV),
		ImpactMidPrice: scanDecimal(impactMid),
	}
	if quote != (models.Quote{}) {
		t.Quote = &quote
	}

	band := models.PriceBand{
		LowerLimit: scanDecimal(lowerLimit),
		UpperLimit: scanDecimal(upperLimit),
	}
	if band != (models.PriceBand{}) {
		t.PriceBand = &band
	}

	if t.ContractType.IsOption() {
		detail := &models.OptionDetail{StrikePrice: scanDecimal(strike)}
		gs := models.Greeks{
			Delta: scanDecimal(delta),
			Gamma: scanDecimal(gamma),
			Theta: scanDecimal(theta),
			Vega:  scanDecimal(vega),
			Rho:   scanDecimal(rho),
		}
		if gs != (models.Greeks{}) {
			detail.Greeks = &gs
		}
		t.Option = detail
	} else if t.ContractType.IsFuture() {
		t.Future = &models.FutureDetail{
			MarkBasis:   scanDecimal(markBasis),
			FundingRate: scanDecimal(fundingRate),
		}
	}

	return &t, nil
}

func collectTickers(rows *sql.Rows) ([]models.Ticker, error) {
	var tickers []models.Ticker
	for rows.Next() {
		t, err := scanTicker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}
	return tickers, nil
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanDecimal(v sql.NullString) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil
	}
	return &d
}

// ============================================================================
// Candle Methods
// ============================================================================

// Replace atomically clears the candle history and bulk-inserts the given
// rows in one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, candles []models.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM candles`); err != nil {
		return fmt.Errorf("failed to clear candles: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, c.Symbol, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Closes returns the full close-price series ascending by time.
func (s *SQLiteStore) Closes(ctx context.Context) ([]models.ClosePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, close FROM candles ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query closes: %w", err)
	}
	defer rows.Close()

	var points []models.ClosePoint
	for rows.Next() {
		var p models.ClosePoint
		if err := rows.Scan(&p.Timestamp, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		points = append(points, p)
	}

	return points, rows.Err()
}

// ClearHistory truncates the candle history.
func (s *SQLiteStore) ClearHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM candles`); err != nil {
		return fmt.Errorf("failed to clear candles: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
