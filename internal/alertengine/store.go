package alertengine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"livermore/internal/model"
)

// Store is the single-writer, WAL-mode SQLite sink for alert records.
// Records arrive one at a time off the detection path; once inserted a
// record is never updated or deleted. Candle and indicator history is
// deliberately not persisted anywhere — the cache is the only home for
// market data, and this store holds alert records alone.
type Store struct {
	db *sql.DB
}

// Open creates/opens the SQLite database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("alertengine: sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("alertengine: schema: %w", err)
	}
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id                 TEXT PRIMARY KEY,
			exchange_id        TEXT    NOT NULL,
			symbol             TEXT    NOT NULL,
			timeframe          TEXT    NOT NULL,
			alert_type         TEXT    NOT NULL,
			triggered_at       INTEGER NOT NULL,
			price              REAL    NOT NULL,
			trigger_value      REAL    NOT NULL,
			trigger_label      TEXT    NOT NULL,
			previous_label     TEXT,
			details            TEXT    NOT NULL,
			notification_sent  INTEGER NOT NULL,
			notification_error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_series ON alerts (exchange_id, symbol, timeframe, triggered_at);
	`)
	return err
}

// Insert persists one alert record in a single transaction. Records are
// immutable after insert, so there is no corresponding update path.
func (s *Store) Insert(record model.AlertRecord) error {
	details, err := json.Marshal(record.Details)
	if err != nil {
		return fmt.Errorf("alertengine: marshal details: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("alertengine: begin tx: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO alerts (
			id, exchange_id, symbol, timeframe, alert_type, triggered_at,
			price, trigger_value, trigger_label, previous_label, details,
			notification_sent, notification_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.ExchangeID, record.Symbol, record.Timeframe, record.AlertType, record.TriggeredAt,
		record.Price, record.TriggerValue, record.TriggerLabel, record.PreviousLabel, string(details),
		record.NotificationSent, record.NotificationError,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("alertengine: insert: %w", err)
	}
	return tx.Commit()
}

// Recent returns up to limit alert records for (exchangeID, symbol, tf),
// newest first, for the REST surface's alert/signal reads.
func (s *Store) Recent(exchangeID, symbol, tf string, limit int) ([]model.AlertRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, exchange_id, symbol, timeframe, alert_type, triggered_at,
		       price, trigger_value, trigger_label, previous_label, details,
		       notification_sent, notification_error
		FROM alerts
		WHERE exchange_id = ? AND symbol = ? AND timeframe = ?
		ORDER BY triggered_at DESC
		LIMIT ?`, exchangeID, symbol, tf, limit)
	if err != nil {
		return nil, fmt.Errorf("alertengine: query recent: %w", err)
	}
	defer rows.Close()

	var out []model.AlertRecord
	for rows.Next() {
		var r model.AlertRecord
		var previousLabel, notificationError sql.NullString
		var details string
		if err := rows.Scan(
			&r.ID, &r.ExchangeID, &r.Symbol, &r.Timeframe, &r.AlertType, &r.TriggeredAt,
			&r.Price, &r.TriggerValue, &r.TriggerLabel, &previousLabel, &details,
			&r.NotificationSent, &notificationError,
		); err != nil {
			return nil, fmt.Errorf("alertengine: scan: %w", err)
		}
		r.PreviousLabel = previousLabel.String
		r.NotificationError = notificationError.String
		if err := json.Unmarshal([]byte(details), &r.Details); err != nil {
			return nil, fmt.Errorf("alertengine: unmarshal details: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentBefore returns up to limit alert records for (exchangeID, symbol,
// tf) with triggered_at strictly less than beforeTS, newest first — the
// cursor-paginated variant of Recent used by the public REST surface.
// beforeTS <= 0 means no cursor: start from the newest record.
func (s *Store) RecentBefore(exchangeID, symbol, tf string, beforeTS int64, limit int) ([]model.AlertRecord, error) {
	if beforeTS <= 0 {
		beforeTS = time.Now().UnixMilli() + 1
	}
	rows, err := s.db.Query(`
		SELECT id, exchange_id, symbol, timeframe, alert_type, triggered_at,
		       price, trigger_value, trigger_label, previous_label, details,
		       notification_sent, notification_error
		FROM alerts
		WHERE exchange_id = ? AND symbol = ? AND timeframe = ? AND triggered_at < ?
		ORDER BY triggered_at DESC
		LIMIT ?`, exchangeID, symbol, tf, beforeTS, limit)
	if err != nil {
		return nil, fmt.Errorf("alertengine: query recent before: %w", err)
	}
	defer rows.Close()

	var out []model.AlertRecord
	for rows.Next() {
		var r model.AlertRecord
		var previousLabel, notificationError sql.NullString
		var details string
		if err := rows.Scan(
			&r.ID, &r.ExchangeID, &r.Symbol, &r.Timeframe, &r.AlertType, &r.TriggeredAt,
			&r.Price, &r.TriggerValue, &r.TriggerLabel, &previousLabel, &details,
			&r.NotificationSent, &notificationError,
		); err != nil {
			return nil, fmt.Errorf("alertengine: scan: %w", err)
		}
		r.PreviousLabel = previousLabel.String
		r.NotificationError = notificationError.String
		if err := json.Unmarshal([]byte(details), &r.Details); err != nil {
			return nil, fmt.Errorf("alertengine: unmarshal details: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }
