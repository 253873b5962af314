// Package history persists completed decodes to PostgreSQL so past
// translations can be inspected and re-served.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/syntaxmt/forest-decoder/pkg/postgres"
	"github.com/syntaxmt/forest-decoder/pkg/resilience"
)

// Record is one persisted decode.
//
// The store requires a `decode_history` table:
//
//	CREATE TABLE decode_history (
//	    id           BIGSERIAL PRIMARY KEY,
//	    request_hash TEXT NOT NULL,
//	    best_text    TEXT NOT NULL,
//	    best_score   DOUBLE PRECISION NOT NULL,
//	    hypotheses   INT NOT NULL,
//	    duration_ms  BIGINT NOT NULL,
//	    decoded_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX decode_history_hash_idx ON decode_history (request_hash);
type Record struct {
	RequestHash string    `json:"requestHash"`
	BestText    string    `json:"bestText"`
	BestScore   float64   `json:"bestScore"`
	Hypotheses  int       `json:"hypotheses"`
	DurationMs  int64     `json:"durationMs"`
	DecodedAt   time.Time `json:"decodedAt"`
}

// Store writes and reads decode history. A nil *Store is valid and makes
// every operation a no-op, so callers need no nil checks when Postgres is
// not configured.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a Store over the given client.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "history-store"),
	}
}

// Save persists one record, retrying transient failures with backoff.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return nil
	}
	if rec.DecodedAt.IsZero() {
		rec.DecodedAt = time.Now().UTC()
	}
	err := resilience.Retry(ctx, "history-save", resilience.RetryConfig{}, func() error {
		_, err := s.db.DB.ExecContext(ctx,
			`INSERT INTO decode_history (request_hash, best_text, best_score, hypotheses, duration_ms, decoded_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.RequestHash, rec.BestText, rec.BestScore, rec.Hypotheses, rec.DurationMs, rec.DecodedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving decode record: %w", err)
	}
	return nil
}

// Latest returns the most recent record for a request hash, or nil, nil
// when none exists.
func (s *Store) Latest(ctx context.Context, requestHash string) (*Record, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var rec Record
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT request_hash, best_text, best_score, hypotheses, duration_ms, decoded_at
		 FROM decode_history WHERE request_hash = $1 ORDER BY decoded_at DESC LIMIT 1`,
		requestHash,
	).Scan(&rec.RequestHash, &rec.BestText, &rec.BestScore, &rec.Hypotheses, &rec.DurationMs, &rec.DecodedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying decode record: %w", err)
	}
	return &rec, nil
}

// List returns the last limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT request_hash, best_text, best_score, hypotheses, duration_ms, decoded_at
		 FROM decode_history ORDER BY decoded_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing decode records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.RequestHash, &rec.BestText, &rec.BestScore,
			&rec.Hypotheses, &rec.DurationMs, &rec.DecodedAt); err != nil {
			return nil, fmt.Errorf("scanning decode record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
