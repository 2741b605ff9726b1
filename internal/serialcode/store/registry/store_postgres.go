package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"shahin/internal/serialcode/models"
	"shahin/pkg/platform/sentinel"
	"shahin/pkg/platform/tx"
)

const registryColumns = `code, prefix, tenant_code, stage, year, sequence, version,
	entity_type, entity_id, status, status_reason, previous_version_code,
	created_by, created_at, updated_at`

// Postgres persists registry entries in PostgreSQL.
// Pure I/O; status rules live in the service.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registry store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the transaction from context when present so writes join the
// caller's unit of work.
func (s *Postgres) q(ctx context.Context) querier {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, entry *models.RegistryEntry) error {
	query := `
		INSERT INTO serial_code_registry (` + registryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		entry.Code, entry.Prefix, entry.TenantCode, entry.Stage, entry.Year,
		entry.Sequence, entry.Version, entry.EntityType, entry.EntityID,
		entry.Status, nullString(entry.StatusReason), nullString(entry.PreviousVersionCode),
		entry.CreatedBy, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("code %s already registered: %w", entry.Code, sentinel.ErrConflict)
		}
		return fmt.Errorf("create registry entry: %w", err)
	}
	return nil
}

func (s *Postgres) FindByCode(ctx context.Context, code string) (*models.RegistryEntry, error) {
	query := `SELECT ` + registryColumns + ` FROM serial_code_registry WHERE code = $1`
	entry, err := scanEntry(s.q(ctx).QueryRowContext(ctx, query, code))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("registry entry not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find registry entry: %w", err)
	}
	return entry, nil
}

func (s *Postgres) FindByPreviousCode(ctx context.Context, previousCode string) (*models.RegistryEntry, error) {
	query := `SELECT ` + registryColumns + ` FROM serial_code_registry WHERE previous_version_code = $1`
	entry, err := scanEntry(s.q(ctx).QueryRowContext(ctx, query, previousCode))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("registry entry not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find registry entry by previous code: %w", err)
	}
	return entry, nil
}

func (s *Postgres) ListActiveByEntity(ctx context.Context, entityID uuid.UUID) ([]*models.RegistryEntry, error) {
	query := `
		SELECT ` + registryColumns + `
		FROM serial_code_registry
		WHERE entity_id = $1 AND status = $2
		ORDER BY created_at
	`
	rows, err := s.q(ctx).QueryContext(ctx, query, entityID, models.RegistryStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active registry entries: %w", err)
	}
	defer rows.Close()

	var out []*models.RegistryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registry entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active registry entries: %w", err)
	}
	return out, nil
}

// Execute locks the row with FOR UPDATE, validates, mutates and persists the
// mutable columns. When the context carries no transaction the store opens
// its own so the lock spans validate and write.
func (s *Postgres) Execute(ctx context.Context, code string,
	validate func(*models.RegistryEntry) error,
	mutate func(*models.RegistryEntry)) (*models.RegistryEntry, error) {
	if sqlTx, ok := tx.From(ctx); ok {
		return s.executeIn(ctx, sqlTx, code, validate, mutate)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin execute: %w", err)
	}
	entry, err := s.executeIn(ctx, sqlTx, code, validate, mutate)
	if err != nil {
		_ = sqlTx.Rollback()
		return entry, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit execute: %w", err)
	}
	return entry, nil
}

func (s *Postgres) executeIn(ctx context.Context, sqlTx *sql.Tx, code string,
	validate func(*models.RegistryEntry) error,
	mutate func(*models.RegistryEntry)) (*models.RegistryEntry, error) {
	query := `SELECT ` + registryColumns + ` FROM serial_code_registry WHERE code = $1 FOR UPDATE`
	entry, err := scanEntry(sqlTx.QueryRowContext(ctx, query, code))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("registry entry not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock registry entry: %w", err)
	}

	if err := validate(entry); err != nil {
		return entry, err
	}
	mutate(entry)

	update := `
		UPDATE serial_code_registry
		SET status = $2, status_reason = $3, updated_at = $4
		WHERE code = $1
	`
	if _, err := sqlTx.ExecContext(ctx, update,
		entry.Code, entry.Status, nullString(entry.StatusReason), entry.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update registry entry: %w", err)
	}
	return entry, nil
}

type entryRow interface {
	Scan(dest ...any) error
}

func scanEntry(row entryRow) (*models.RegistryEntry, error) {
	var entry models.RegistryEntry
	var statusReason, previousCode sql.NullString
	if err := row.Scan(
		&entry.Code, &entry.Prefix, &entry.TenantCode, &entry.Stage, &entry.Year,
		&entry.Sequence, &entry.Version, &entry.EntityType, &entry.EntityID,
		&entry.Status, &statusReason, &previousCode,
		&entry.CreatedBy, &entry.CreatedAt, &entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	entry.StatusReason = statusReason.String
	entry.PreviousVersionCode = previousCode.String
	return &entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
