package exec

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"riskdesk/internal/model"
)

// Journal persists paper fills to SQLite for analysis and audit.
type Journal struct {
	mu  sync.Mutex
	db  *sql.DB
	log zerolog.Logger
}

// NewJournal opens (or creates) the SQLite trade journal.
func NewJournal(dbPath string, log zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS paper_trades (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id       TEXT NOT NULL,
		venue          TEXT NOT NULL,
		market         TEXT NOT NULL,
		side           TEXT NOT NULL,
		size           REAL NOT NULL,
		fill_price     REAL NOT NULL,
		status         TEXT NOT NULL,
		execution_mode TEXT NOT NULL,
		data_quality   TEXT,
		price_source   TEXT,
		filled_at      DATETIME NOT NULL,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_paper_trades_market ON paper_trades(venue, market);
	CREATE INDEX IF NOT EXISTS idx_paper_trades_filled_at ON paper_trades(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("trade journal opened")
	return &Journal{db: db, log: log}, nil
}

// RecordFill persists one fill to the journal.
func (j *Journal) RecordFill(res model.OrderResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO paper_trades (order_id, venue, market, side, size, fill_price, status, execution_mode, data_quality, price_source, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.OrderID,
		res.Venue,
		res.Market,
		res.Side,
		res.Size,
		res.FillPrice,
		res.Status,
		res.ExecutionMode,
		res.DataContext.DataQuality,
		res.DataContext.PriceSource,
		res.TS.Format(time.RFC3339),
	)
	return err
}

// TradeRecord is one row from the paper_trades table.
type TradeRecord struct {
	ID            int64   `json:"id"`
	OrderID       string  `json:"order_id"`
	Venue         string  `json:"venue"`
	Market        string  `json:"market"`
	Side          string  `json:"side"`
	Size          float64 `json:"size"`
	FillPrice     float64 `json:"fill_price"`
	Status        string  `json:"status"`
	ExecutionMode string  `json:"execution_mode"`
	DataQuality   string  `json:"data_quality"`
	PriceSource   string  `json:"price_source"`
	FilledAt      string  `json:"filled_at"`
}

// GetTrades returns the last N fills, newest first.
func (j *Journal) GetTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, venue, market, side, size, fill_price, status, execution_mode,
		        COALESCE(data_quality, ''), COALESCE(price_source, ''), filled_at
		 FROM paper_trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Venue, &t.Market, &t.Side, &t.Size,
			&t.FillPrice, &t.Status, &t.ExecutionMode, &t.DataQuality, &t.PriceSource, &t.FilledAt); err != nil {
			j.log.Warn().Err(err).Msg("journal row scan failed")
			continue
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
