package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"shahin/internal/serialcode/models"
	"shahin/pkg/platform/sentinel"
	"shahin/pkg/platform/tx"
)

const reservationColumns = `id, reserved_code, prefix, tenant_code, stage, year, sequence,
	entity_type, status, expires_at, confirmed_at, cancelled_at, created_by, created_at`

// Postgres persists reservations in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed reservation store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) q(ctx context.Context) querier {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, reservation *models.Reservation) error {
	query := `
		INSERT INTO serial_code_reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		reservation.ID, reservation.ReservedCode, reservation.Prefix,
		reservation.TenantCode, reservation.Stage, reservation.Year,
		reservation.Sequence, reservation.EntityType, reservation.Status,
		reservation.ExpiresAt, reservation.ConfirmedAt, reservation.CancelledAt,
		reservation.CreatedBy, reservation.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("reservation %s already exists: %w", reservation.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM serial_code_reservations WHERE id = $1`
	reservation, err := scanReservation(s.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("reservation not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find reservation: %w", err)
	}
	return reservation, nil
}

func (s *Postgres) ListExpired(ctx context.Context, asOf time.Time) ([]*models.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM serial_code_reservations
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at
	`
	rows, err := s.q(ctx).QueryContext(ctx, query, models.ReservationStatusReserved, asOf)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	return out, nil
}

// Execute locks the row with FOR UPDATE, validates, mutates and persists the
// mutable columns.
func (s *Postgres) Execute(ctx context.Context, id uuid.UUID,
	validate func(*models.Reservation) error,
	mutate func(*models.Reservation)) (*models.Reservation, error) {
	if sqlTx, ok := tx.From(ctx); ok {
		return s.executeIn(ctx, sqlTx, id, validate, mutate)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin execute: %w", err)
	}
	reservation, err := s.executeIn(ctx, sqlTx, id, validate, mutate)
	if err != nil {
		_ = sqlTx.Rollback()
		return reservation, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit execute: %w", err)
	}
	return reservation, nil
}

func (s *Postgres) executeIn(ctx context.Context, sqlTx *sql.Tx, id uuid.UUID,
	validate func(*models.Reservation) error,
	mutate func(*models.Reservation)) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM serial_code_reservations WHERE id = $1 FOR UPDATE`
	reservation, err := scanReservation(sqlTx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("reservation not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}

	if err := validate(reservation); err != nil {
		return reservation, err
	}
	mutate(reservation)

	update := `
		UPDATE serial_code_reservations
		SET status = $2, confirmed_at = $3, cancelled_at = $4
		WHERE id = $1
	`
	if _, err := sqlTx.ExecContext(ctx, update,
		reservation.ID, reservation.Status, reservation.ConfirmedAt, reservation.CancelledAt); err != nil {
		return nil, fmt.Errorf("update reservation: %w", err)
	}
	return reservation, nil
}

type reservationRow interface {
	Scan(dest ...any) error
}

func scanReservation(row reservationRow) (*models.Reservation, error) {
	var reservation models.Reservation
	var confirmedAt, cancelledAt sql.NullTime
	if err := row.Scan(
		&reservation.ID, &reservation.ReservedCode, &reservation.Prefix,
		&reservation.TenantCode, &reservation.Stage, &reservation.Year,
		&reservation.Sequence, &reservation.EntityType, &reservation.Status,
		&reservation.ExpiresAt, &confirmedAt, &cancelledAt,
		&reservation.CreatedBy, &reservation.CreatedAt,
	); err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		reservation.ConfirmedAt = &confirmedAt.Time
	}
	if cancelledAt.Valid {
		reservation.CancelledAt = &cancelledAt.Time
	}
	return &reservation, nil
}
