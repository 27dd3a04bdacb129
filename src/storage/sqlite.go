package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quote-streamer/src/logger"
	"quote-streamer/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteQuoteStore struct {
	Config *models.MStorageConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteQuoteStore(cfg *models.MStorageConfig, log *logger.Logger) *SQLiteQuoteStore {
	return &SQLiteQuoteStore{
		Config: cfg,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func (d *SQLiteQuoteStore) Initialize() error {
	if dir := filepath.Dir(d.Config.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory '%s': %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", d.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database '%s': %w", d.Config.DBPath, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("SQLiteQuoteStore : failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("SQLiteQuoteStore : failed to set synchronous mode: %v", err)
	}

	// SQLite types: TEXT keeps prices exactly as received
	query := `
		CREATE TABLE IF NOT EXISTS quotes (
			symbol TEXT PRIMARY KEY,
			bid TEXT NOT NULL,
			ask TEXT NOT NULL,
			bid_volume TEXT NOT NULL,
			ask_volume TEXT NOT NULL,
			bid_dir TEXT NOT NULL,
			ask_dir TEXT NOT NULL,
			high TEXT,
			low TEXT,
			open TEXT,
			close TEXT,
			updated_at INTEGER NOT NULL
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create quotes: %w", err)
	}

	d.Logger.Info("SQLiteQuoteStore : initialized at %s", d.Config.DBPath)
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteQuoteStore) SaveQuotes(records []models.MQuoteRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO quotes (symbol, bid, ask, bid_volume, ask_volume, bid_dir, ask_dir, high, low, open, close, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			bid = excluded.bid,
			ask = excluded.ask,
			bid_volume = excluded.bid_volume,
			ask_volume = excluded.ask_volume,
			bid_dir = excluded.bid_dir,
			ask_dir = excluded.ask_dir,
			high = excluded.high,
			low = excluded.low,
			open = excluded.open,
			close = excluded.close,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, r := range records {
		_, err := stmt.Exec(r.Symbol, r.Bid, r.Ask, r.BidVolume, r.AskVolume, string(r.BidDir), string(r.AskDir),
			r.High, r.Low, r.Open, r.Close, now)
		if err != nil {
			return fmt.Errorf("failed to save quote %s: %w", r.Symbol, err)
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteQuoteStore) LoadQuotes() (map[string]models.MQuoteRecord, error) {
	rows, err := d.DB.Query(`
		SELECT symbol, bid, ask, bid_volume, ask_volume, bid_dir, ask_dir, high, low, open, close
		FROM quotes
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	return scanQuotes(rows)
}

// -----------------------------------------------------------------------------

func (d *SQLiteQuoteStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
