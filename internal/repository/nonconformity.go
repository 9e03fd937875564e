// Package repository wraps all SQL used by the API and the worker. It
// implements the storage.Store contract on top of a pgx pool.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/networg/constructsafe/internal/model"
	"github.com/networg/constructsafe/internal/storage"
)

// Repository is the postgres-backed store.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateNonConformity inserts a new record. A collision on the ticket unique
// index surfaces as storage.ErrDuplicateTicket so the creation path can
// recompute and retry.
func (r *Repository) CreateNonConformity(ctx context.Context, rec *model.NonConformity) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	mgrID, mgrName, mgrEmail := managerColumns(rec.AssignedManager)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO nonconformities
			(id, ticket_number, name, type, severity, status, location, description,
			 date_reported, assigned_manager_id, assigned_manager_name, assigned_manager_email,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, rec.ID, rec.TicketNumber, rec.Name, rec.Type, rec.Severity, rec.Status,
		rec.Location, rec.Description, rec.DateReported, mgrID, mgrName, mgrEmail,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isTicketConflict(err) {
			return fmt.Errorf("insert non-conformity: %w", storage.ErrDuplicateTicket)
		}
		return fmt.Errorf("insert non-conformity: %w", err)
	}
	return nil
}

// GetNonConformity returns a record by id.
func (r *Repository) GetNonConformity(ctx context.Context, id string) (*model.NonConformity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, COALESCE(ticket_number,''), name, type, severity, status, location, description,
		       date_reported, assigned_manager_id, assigned_manager_name, assigned_manager_email,
		       created_at, updated_at
		FROM nonconformities WHERE id=$1
	`, id)
	return scanNonConformity(row)
}

// UpdateNonConformity writes the mutable columns. The ticket number and the
// creation timestamp are deliberately not part of the statement.
func (r *Repository) UpdateNonConformity(ctx context.Context, rec *model.NonConformity) error {
	rec.UpdatedAt = time.Now().UTC()
	mgrID, mgrName, mgrEmail := managerColumns(rec.AssignedManager)
	tag, err := r.pool.Exec(ctx, `
		UPDATE nonconformities
		SET name=$1, type=$2, severity=$3, status=$4, location=$5, description=$6,
		    date_reported=$7, assigned_manager_id=$8, assigned_manager_name=$9,
		    assigned_manager_email=$10, updated_at=$11
		WHERE id=$12
	`, rec.Name, rec.Type, rec.Severity, rec.Status, rec.Location, rec.Description,
		rec.DateReported, mgrID, mgrName, mgrEmail, rec.UpdatedAt, rec.ID)
	if err != nil {
		return fmt.Errorf("update non-conformity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// LastTicketNumber returns the ticket of the most recently created record
// whose ticket starts with prefix, or "" when none exists. Creation timestamps
// can collide at clock resolution, so ties fall back to the numerically larger
// ticket (longer suffix first, then lexicographic) or the generator could keep
// recomputing a number that already exists.
func (r *Repository) LastTicketNumber(ctx context.Context, prefix string) (string, error) {
	var ticket string
	err := r.pool.QueryRow(ctx, `
		SELECT ticket_number FROM nonconformities
		WHERE ticket_number IS NOT NULL AND ticket_number LIKE $1 || '%'
		ORDER BY created_at DESC, length(ticket_number) DESC, ticket_number DESC
		LIMIT 1
	`, prefix).Scan(&ticket)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select last ticket: %w", err)
	}
	return ticket, nil
}

func scanNonConformity(row pgx.Row) (*model.NonConformity, error) {
	var (
		rec      model.NonConformity
		mgrID    sql.NullString
		mgrName  sql.NullString
		mgrEmail sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.TicketNumber, &rec.Name, &rec.Type, &rec.Severity,
		&rec.Status, &rec.Location, &rec.Description, &rec.DateReported,
		&mgrID, &mgrName, &mgrEmail, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select non-conformity: %w", err)
	}
	if mgrID.Valid || mgrEmail.Valid {
		rec.AssignedManager = &model.ManagerRef{
			ID:    mgrID.String,
			Name:  mgrName.String,
			Email: mgrEmail.String,
		}
	}
	return &rec, nil
}

func managerColumns(ref *model.ManagerRef) (id, name, email *string) {
	if !ref.Assigned() {
		return nil, nil, nil
	}
	return &ref.ID, &ref.Name, &ref.Email
}

// isTicketConflict recognizes a unique violation on the ticket index.
func isTicketConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "ticket")
}
