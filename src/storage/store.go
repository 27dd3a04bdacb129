package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"quote-streamer/src/interfaces"
	"quote-streamer/src/logger"
	"quote-streamer/src/models"
)

// -----------------------------------------------------------------------------

// NewQuoteStore returns the store selected by db_type, or nil for "none"
func NewQuoteStore(cfg *models.MConfig, log *logger.Logger) (interfaces.IQuoteStore, error) {
	switch cfg.Storage.DBType {
	case "", "none":
		return nil, nil
	case "sqlite":
		return NewSQLiteQuoteStore(&cfg.Storage, log), nil
	case "postgres":
		return NewPostgresQuoteStore(&cfg.Storage, schemaName(cfg.Name), log), nil
	default:
		return nil, fmt.Errorf("unsupported database type '%s'", cfg.Storage.DBType)
	}
}

// -----------------------------------------------------------------------------

// schemaName turns the service name into a Postgres identifier
func schemaName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "quote_streamer"
	}
	return b.String()
}

// -----------------------------------------------------------------------------

// scanQuotes reads the shared quotes column layout
func scanQuotes(rows *sql.Rows) (map[string]models.MQuoteRecord, error) {
	result := make(map[string]models.MQuoteRecord)
	for rows.Next() {
		var r models.MQuoteRecord
		var bidDir, askDir string
		if err := rows.Scan(&r.Symbol, &r.Bid, &r.Ask, &r.BidVolume, &r.AskVolume, &bidDir, &askDir,
			&r.High, &r.Low, &r.Open, &r.Close); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		r.BidDir = models.MDirection(bidDir)
		r.AskDir = models.MDirection(askDir)
		result[r.Symbol] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read quotes: %w", err)
	}
	return result, nil
}

// -----------------------------------------------------------------------------
// QuoteWriter batches changed records from published snapshots and writes
// the latest version of each symbol every interval.
// -----------------------------------------------------------------------------

type QuoteWriter struct {
	store    interfaces.IQuoteStore
	interval time.Duration
	logger   *logger.Logger

	mu      sync.Mutex
	pending map[string]models.MQuoteRecord
	started bool

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// -----------------------------------------------------------------------------

func NewQuoteWriter(store interfaces.IQuoteStore, interval time.Duration, log *logger.Logger) *QuoteWriter {
	return &QuoteWriter{
		store:    store,
		interval: interval,
		logger:   log,
		pending:  make(map[string]models.MQuoteRecord),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// OnSnapshot keeps the latest changed version of each symbol until the next write
func (w *QuoteWriter) OnSnapshot(snapshot models.MSnapshot, changed []models.MQuoteRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, record := range changed {
		w.pending[record.Symbol] = record
	}
}

// -----------------------------------------------------------------------------

// Start runs the periodic writer until Stop
func (w *QuoteWriter) Start() {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.Flush()
			case <-w.stop:
				w.Flush()
				return
			}
		}
	}()
}

// -----------------------------------------------------------------------------

// Stop writes what is pending and waits for the writer to exit
func (w *QuoteWriter) Stop() {
	w.once.Do(func() {
		w.mu.Lock()
		started := w.started
		w.mu.Unlock()

		close(w.stop)
		if started {
			<-w.done
		} else {
			w.Flush()
		}
	})
}

// -----------------------------------------------------------------------------

// Flush writes every pending record now
func (w *QuoteWriter) Flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	records := make([]models.MQuoteRecord, 0, len(w.pending))
	for _, record := range w.pending {
		records = append(records, record)
	}
	w.pending = make(map[string]models.MQuoteRecord)
	w.mu.Unlock()

	if err := w.store.SaveQuotes(records); err != nil {
		w.logger.Error("QuoteWriter : failed to save %d quotes: %v", len(records), err)
		return
	}
	w.logger.Debug("QuoteWriter : saved %d quotes", len(records))
}
