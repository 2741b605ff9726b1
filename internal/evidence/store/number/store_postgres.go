package number

import (
	"context"
	"database/sql"
	"fmt"

	"shahin/pkg/platform/tx"
)

// Postgres allocates daily evidence number sequences with an atomic upsert.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed number store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) q(ctx context.Context) querier {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

// Next returns the next sequence for the tenant's day, starting at 1. The
// upsert increments under the row lock so concurrent callers never share a
// sequence.
func (s *Postgres) Next(ctx context.Context, tenantCode, dateKey string) (int, error) {
	query := `
		INSERT INTO evidence_number_counters (tenant_code, date_key, last_sequence)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_code, date_key)
		DO UPDATE SET last_sequence = evidence_number_counters.last_sequence + 1
		RETURNING last_sequence
	`
	var sequence int
	if err := s.q(ctx).QueryRowContext(ctx, query, tenantCode, dateKey).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("next evidence sequence: %w", err)
	}
	return sequence, nil
}
