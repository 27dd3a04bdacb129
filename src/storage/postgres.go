package storage

import (
	"database/sql"
	"fmt"
	"time"

	"quote-streamer/src/logger"
	"quote-streamer/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresQuoteStore struct {
	Config *models.MStorageConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewPostgresQuoteStore creates a store whose tables live in the given schema
func NewPostgresQuoteStore(cfg *models.MStorageConfig, schema string, log *logger.Logger) *PostgresQuoteStore {
	return &PostgresQuoteStore{
		Config: cfg,
		Schema: schema,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func (d *PostgresQuoteStore) Initialize() error {
	db, err := sql.Open("postgres", d.Config.DBConnectionString)
	if err != nil {
		return fmt.Errorf("failed to open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping postgres database: %w", err)
	}

	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT PRIMARY KEY,
			bid TEXT NOT NULL,
			ask TEXT NOT NULL,
			bid_volume TEXT NOT NULL,
			ask_volume TEXT NOT NULL,
			bid_dir TEXT NOT NULL,
			ask_dir TEXT NOT NULL,
			high NUMERIC,
			low NUMERIC,
			open NUMERIC,
			close NUMERIC,
			updated_at TIMESTAMPTZ NOT NULL
		);
	`, d.table())
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create quotes: %w", err)
	}

	d.Logger.Info("PostgresQuoteStore : initialized (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresQuoteStore) SaveQuotes(records []models.MQuoteRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, bid, ask, bid_volume, ask_volume, bid_dir, ask_dir, high, low, open, close, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (symbol) DO UPDATE SET
			bid = EXCLUDED.bid,
			ask = EXCLUDED.ask,
			bid_volume = EXCLUDED.bid_volume,
			ask_volume = EXCLUDED.ask_volume,
			bid_dir = EXCLUDED.bid_dir,
			ask_dir = EXCLUDED.ask_dir,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			open = EXCLUDED.open,
			close = EXCLUDED.close,
			updated_at = EXCLUDED.updated_at
	`, d.table())

	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		_, err = stmt.Exec(r.Symbol, r.Bid, r.Ask, r.BidVolume, r.AskVolume, string(r.BidDir), string(r.AskDir),
			r.High, r.Low, r.Open, r.Close, now)
		if err != nil {
			return fmt.Errorf("failed to save quote %s: %w", r.Symbol, err)
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresQuoteStore) LoadQuotes() (map[string]models.MQuoteRecord, error) {
	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT symbol, bid, ask, bid_volume, ask_volume, bid_dir, ask_dir, high, low, open, close
		FROM %s
	`, d.table()))
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	return scanQuotes(rows)
}

// -----------------------------------------------------------------------------

func (d *PostgresQuoteStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresQuoteStore) table() string {
	return fmt.Sprintf(`"%s"."quotes"`, d.Schema)
}
