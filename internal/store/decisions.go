// Package store persists gated decisions to PostgreSQL for offline
// analysis. Persistence is optional: a nil pool turns every call into
// a logged no-op so the engine runs without a database.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolInterface defines the interface for database pool operations
type PoolInterface interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// DecisionRecord is one persisted decision outcome.
type DecisionRecord struct {
	ID             uuid.UUID `json:"id"`
	Symbol         string    `json:"symbol"`
	Action         string    `json:"action"`
	Confidence     float64   `json:"confidence"`
	OverallScore   float64   `json:"overall_score"`
	OverrideReason string    `json:"override_reason"`
	Quantity       float64   `json:"quantity"`
	Reasoning      string    `json:"reasoning"`
	CreatedAt      time.Time `json:"created_at"`
}

// DecisionStore writes and reads decision records.
type DecisionStore struct {
	pool PoolInterface
}

// NewDecisionStore creates a store backed by the given pool. A nil
// pool disables persistence.
func NewDecisionStore(pool PoolInterface) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// NewDecisionStoreWithPool creates a store backed by a pgxpool.Pool.
func NewDecisionStoreWithPool(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// Insert persists a decision record. No-op when persistence is disabled.
func (s *DecisionStore) Insert(ctx context.Context, record *DecisionRecord) error {
	if s.pool == nil {
		log.Debug().Str("symbol", record.Symbol).Msg("Persistence disabled, skipping decision insert")
		return nil
	}

	query := `
		INSERT INTO decisions (
			id, symbol, action, confidence, overall_score,
			override_reason, quantity, reasoning, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(
		ctx,
		query,
		record.ID,
		record.Symbol,
		record.Action,
		record.Confidence,
		record.OverallScore,
		record.OverrideReason,
		record.Quantity,
		record.Reasoning,
		record.CreatedAt,
	)
	return err
}

// RecentBySymbol retrieves the most recent decisions for a symbol,
// newest first. Returns nil when persistence is disabled.
func (s *DecisionStore) RecentBySymbol(ctx context.Context, symbol string, limit int) ([]*DecisionRecord, error) {
	if s.pool == nil {
		return nil, nil
	}

	query := `
		SELECT
			id, symbol, action, confidence, overall_score,
			override_reason, quantity, reasoning, created_at
		FROM decisions
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		err := rows.Scan(
			&r.ID,
			&r.Symbol,
			&r.Action,
			&r.Confidence,
			&r.OverallScore,
			&r.OverrideReason,
			&r.Quantity,
			&r.Reasoning,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}
