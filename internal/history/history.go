package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/karmakaze/quicklog/internal/security"

	_ "modernc.org/sqlite"
)

// History is an append-only journal of webhook deliveries in SQLite.
// Nothing in request handling reads it back.
type History struct {
	db *sql.DB
}

// NewHistory opens (creating if needed) the journal at dbPath.
func NewHistory(dbPath string) (*History, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), security.PermDirectory); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite: single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if dbPath != ":memory:" {
		if err := os.Chmod(dbPath, security.PermDBFile); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set database permissions: %w", err)
		}
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			delivery_id TEXT,
			event TEXT,
			full_name TEXT NOT NULL,
			ref TEXT NOT NULL,
			outcome TEXT NOT NULL,
			received_at TEXT NOT NULL,
			completed_at TEXT,
			duration_seconds REAL,
			commit_hash TEXT,
			head_before TEXT,
			head_after TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_deliveries_received
		ON deliveries(received_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Record appends a delivery. A zero ReceivedAt is set to now; CompletedAt
// defaults to now as well.
func (h *History) Record(ctx context.Context, d *Delivery) (int64, error) {
	now := time.Now().UTC()

	receivedAt := d.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	completedAt := now
	if d.CompletedAt != nil {
		completedAt = d.CompletedAt.UTC()
	}

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO deliveries
		(delivery_id, event, full_name, ref, outcome, received_at, completed_at,
		 duration_seconds, commit_hash, head_before, head_after, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.DeliveryID,
		d.Event,
		d.FullName,
		d.Ref,
		d.Outcome,
		receivedAt.UTC().Format(time.RFC3339Nano),
		completedAt.Format(time.RFC3339Nano),
		d.DurationSeconds,
		d.CommitHash,
		d.HeadBefore,
		d.HeadAfter,
		d.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert delivery: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// Recent returns up to limit deliveries, newest first. A non-empty outcome
// filters by outcome.
func (h *History) Recent(ctx context.Context, limit int, outcome string) ([]Delivery, error) {
	query := `
		SELECT id, delivery_id, event, full_name, ref, outcome, received_at,
		       completed_at, duration_seconds, commit_hash, head_before,
		       head_after, error_message
		FROM deliveries`
	args := []interface{}{}
	if outcome != "" {
		query += ` WHERE outcome = ?`
		args = append(args, outcome)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return deliveries, nil
}

// Latest returns the newest delivery, or nil if the journal is empty.
func (h *History) Latest(ctx context.Context) (*Delivery, error) {
	deliveries, err := h.Recent(ctx, 1, "")
	if err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return nil, nil
	}
	return &deliveries[0], nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDelivery(s scanner) (*Delivery, error) {
	var d Delivery
	var receivedAtStr string
	var completedAtStr sql.NullString

	err := s.Scan(
		&d.ID,
		&d.DeliveryID,
		&d.Event,
		&d.FullName,
		&d.Ref,
		&d.Outcome,
		&receivedAtStr,
		&completedAtStr,
		&d.DurationSeconds,
		&d.CommitHash,
		&d.HeadBefore,
		&d.HeadAfter,
		&d.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	receivedAt, err := time.Parse(time.RFC3339Nano, receivedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse received_at timestamp: %w", err)
	}
	d.ReceivedAt = receivedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339Nano, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		d.CompletedAt = &completedAt
	}

	return &d, nil
}
