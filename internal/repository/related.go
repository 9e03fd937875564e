package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/networg/constructsafe/internal/model"
	"github.com/networg/constructsafe/internal/storage"
)

// CreateCorrectiveAction inserts a follow-up task for a record.
func (r *Repository) CreateCorrectiveAction(ctx context.Context, action *model.CorrectiveAction) error {
	now := time.Now().UTC()
	action.CreatedAt = now
	action.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO corrective_actions
			(id, nonconformity_id, name, description, due_date, priority, status, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, action.ID, action.NonConformityID, action.Name, action.Description,
		action.DueDate, action.Priority, action.Status, action.Notes,
		action.CreatedAt, action.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert corrective action: %w", err)
	}
	return nil
}

// ListCorrectiveActions returns the actions attached to a record, newest first.
func (r *Repository) ListCorrectiveActions(ctx context.Context, recordID string) ([]model.CorrectiveAction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, nonconformity_id, name, description, due_date, priority, status, notes, created_at, updated_at
		FROM corrective_actions WHERE nonconformity_id=$1
		ORDER BY created_at DESC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("select corrective actions: %w", err)
	}
	defer rows.Close()
	out := make([]model.CorrectiveAction, 0)
	for rows.Next() {
		var (
			action model.CorrectiveAction
			due    sql.NullTime
		)
		if err := rows.Scan(&action.ID, &action.NonConformityID, &action.Name, &action.Description,
			&due, &action.Priority, &action.Status, &action.Notes, &action.CreatedAt, &action.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan corrective action: %w", err)
		}
		if due.Valid {
			t := due.Time
			action.DueDate = &t
		}
		out = append(out, action)
	}
	return out, rows.Err()
}

// CreateEvidence inserts an attachment row after the object is in storage.
func (r *Repository) CreateEvidence(ctx context.Context, ev *model.Evidence) error {
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO evidence
			(id, nonconformity_id, name, file_type, object_key, text_key, extracted_text, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NULL,NULL,$6,$7,$8)
	`, ev.ID, ev.NonConformityID, ev.Name, ev.FileType, ev.ObjectKey, ev.Notes, ev.CreatedAt, ev.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

// GetEvidence returns one attachment row.
func (r *Repository) GetEvidence(ctx context.Context, id string) (*model.Evidence, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, nonconformity_id, name, file_type, object_key, COALESCE(text_key,''), COALESCE(extracted_text,''), notes, created_at, updated_at
		FROM evidence WHERE id=$1
	`, id)
	var ev model.Evidence
	err := row.Scan(&ev.ID, &ev.NonConformityID, &ev.Name, &ev.FileType, &ev.ObjectKey,
		&ev.TextKey, &ev.ExtractedText, &ev.Notes, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select evidence: %w", err)
	}
	return &ev, nil
}

// ListEvidence returns the attachments for a record, newest first.
func (r *Repository) ListEvidence(ctx context.Context, recordID string) ([]model.Evidence, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, nonconformity_id, name, file_type, object_key, COALESCE(text_key,''), COALESCE(extracted_text,''), notes, created_at, updated_at
		FROM evidence WHERE nonconformity_id=$1
		ORDER BY created_at DESC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("select evidence list: %w", err)
	}
	defer rows.Close()
	out := make([]model.Evidence, 0)
	for rows.Next() {
		var ev model.Evidence
		if err := rows.Scan(&ev.ID, &ev.NonConformityID, &ev.Name, &ev.FileType, &ev.ObjectKey,
			&ev.TextKey, &ev.ExtractedText, &ev.Notes, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SetEvidenceText stores the extraction result for a PDF attachment.
func (r *Repository) SetEvidenceText(ctx context.Context, id, textKey, text string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE evidence SET text_key=$1, extracted_text=$2, updated_at=$3 WHERE id=$4
	`, textKey, text, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update evidence text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
