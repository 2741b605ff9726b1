package counter

import (
	"context"
	"database/sql"
	"fmt"

	"shahin/internal/serialcode/models"
	"shahin/pkg/platform/tx"
)

// Postgres allocates sequences from counter rows in PostgreSQL. A single
// upsert with RETURNING makes the increment atomic; concurrent callers never
// see the same sequence.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed counter store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Next(ctx context.Context, key models.CounterKey) (int, error) {
	query := `
		INSERT INTO serial_code_counters (prefix, tenant_code, stage, year, current_sequence)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (prefix, tenant_code, stage, year) DO UPDATE SET
			current_sequence = serial_code_counters.current_sequence + 1
		RETURNING current_sequence
	`
	var q interface {
		QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	} = s.db
	if sqlTx, ok := tx.From(ctx); ok {
		q = sqlTx
	}

	var sequence int
	if err := q.QueryRowContext(ctx, query,
		key.Prefix, key.TenantCode, key.Stage, key.Year).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return sequence, nil
}
