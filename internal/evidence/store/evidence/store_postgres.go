package evidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"shahin/internal/evidence/models"
	"shahin/pkg/platform/sentinel"
	"shahin/pkg/platform/tx"
)

const evidenceColumns = `id, evidence_number, tenant_code, workspace_id, title,
	description, evidence_type, file_path, verification_status, comments,
	collected_by, verified_by, verified_at, modified_by, created_at, updated_at`

// Postgres persists evidence records in PostgreSQL.
// Pure I/O; the state machine lives in the service.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed evidence store.
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

func (s *Postgres) Create(ctx context.Context, evidence *models.Evidence) error {
	query := `
		INSERT INTO evidence (` + evidenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		evidence.ID, evidence.EvidenceNumber, evidence.TenantCode,
		uuid.NullUUID{UUID: evidence.WorkspaceID, Valid: evidence.WorkspaceID != uuid.Nil},
		evidence.Title, evidence.Description, evidence.EvidenceType, evidence.FilePath,
		evidence.VerificationStatus, evidence.Comments, evidence.CollectedBy,
		evidence.VerifiedBy, evidence.VerifiedAt, evidence.ModifiedBy,
		evidence.CreatedAt, evidence.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("evidence number %s already taken: %w", evidence.EvidenceNumber, sentinel.ErrConflict)
		}
		return fmt.Errorf("create evidence: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE id = $1`
	evidence, err := scanEvidence(s.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("evidence not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find evidence: %w", err)
	}
	return evidence, nil
}

func (s *Postgres) FindByNumber(ctx context.Context, tenantCode, number string) (*models.Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE tenant_code = $1 AND evidence_number = $2`
	evidence, err := scanEvidence(s.q(ctx).QueryRowContext(ctx, query, tenantCode, number))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("evidence not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find evidence by number: %w", err)
	}
	return evidence, nil
}

func (s *Postgres) ListByTenant(ctx context.Context, tenantCode string, status models.VerificationStatus) ([]*models.Evidence, error) {
	query := `
		SELECT ` + evidenceColumns + `
		FROM evidence
		WHERE tenant_code = $1 AND ($2 = '' OR verification_status = $2)
		ORDER BY evidence_number
	`
	rows, err := s.q(ctx).QueryContext(ctx, query, tenantCode, string(status))
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	var out []*models.Evidence
	for rows.Next() {
		evidence, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		out = append(out, evidence)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	return out, nil
}

// Execute locks the row with FOR UPDATE, validates, mutates and persists the
// mutable columns. When the context carries no transaction the store opens
// its own so the lock spans validate and write.
func (s *Postgres) Execute(ctx context.Context, id uuid.UUID,
	validate func(*models.Evidence) error,
	mutate func(*models.Evidence)) (*models.Evidence, error) {
	if sqlTx, ok := tx.From(ctx); ok {
		return s.executeIn(ctx, sqlTx, id, validate, mutate)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin execute: %w", err)
	}
	evidence, err := s.executeIn(ctx, sqlTx, id, validate, mutate)
	if err != nil {
		_ = sqlTx.Rollback()
		return evidence, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit execute: %w", err)
	}
	return evidence, nil
}

func (s *Postgres) executeIn(ctx context.Context, sqlTx *sql.Tx, id uuid.UUID,
	validate func(*models.Evidence) error,
	mutate func(*models.Evidence)) (*models.Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE id = $1 FOR UPDATE`
	evidence, err := scanEvidence(sqlTx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("evidence not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock evidence: %w", err)
	}

	if err := validate(evidence); err != nil {
		return evidence, err
	}
	mutate(evidence)

	update := `
		UPDATE evidence
		SET verification_status = $2, comments = $3, verified_by = $4,
			verified_at = $5, modified_by = $6, updated_at = $7
		WHERE id = $1
	`
	if _, err := sqlTx.ExecContext(ctx, update,
		evidence.ID, evidence.VerificationStatus, evidence.Comments,
		evidence.VerifiedBy, evidence.VerifiedAt, evidence.ModifiedBy,
		evidence.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update evidence: %w", err)
	}
	return evidence, nil
}

type evidenceRow interface {
	Scan(dest ...any) error
}

func scanEvidence(row evidenceRow) (*models.Evidence, error) {
	var evidence models.Evidence
	var workspaceID uuid.NullUUID
	var verifiedAt sql.NullTime
	if err := row.Scan(
		&evidence.ID, &evidence.EvidenceNumber, &evidence.TenantCode, &workspaceID,
		&evidence.Title, &evidence.Description, &evidence.EvidenceType, &evidence.FilePath,
		&evidence.VerificationStatus, &evidence.Comments, &evidence.CollectedBy,
		&evidence.VerifiedBy, &verifiedAt, &evidence.ModifiedBy,
		&evidence.CreatedAt, &evidence.UpdatedAt,
	); err != nil {
		return nil, err
	}
	evidence.WorkspaceID = workspaceID.UUID
	if verifiedAt.Valid {
		t := verifiedAt.Time
		evidence.VerifiedAt = &t
	}
	return &evidence, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
