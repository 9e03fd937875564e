// Package storage defines the record store contract consumed by the service
// layer and the worker, plus an in-memory implementation used by tests and
// local development. The production implementation lives in
// internal/repository.
package storage

import (
	"context"
	"errors"

	"github.com/networg/constructsafe/internal/model"
)

var (
	// ErrNotFound is returned when a record id does not resolve.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateTicket is returned when an insert collides with the unique
	// index on ticket_number. The creation path treats it as a signal to
	// recompute the candidate number.
	ErrDuplicateTicket = errors.New("duplicate ticket number")
)

// Store is the full persistence surface of the system.
type Store interface {
	CreateNonConformity(ctx context.Context, rec *model.NonConformity) error
	GetNonConformity(ctx context.Context, id string) (*model.NonConformity, error)
	UpdateNonConformity(ctx context.Context, rec *model.NonConformity) error
	// LastTicketNumber returns the ticket of the most recently created record
	// whose ticket starts with prefix, or "" when there is none.
	LastTicketNumber(ctx context.Context, prefix string) (string, error)

	CreateCorrectiveAction(ctx context.Context, action *model.CorrectiveAction) error
	ListCorrectiveActions(ctx context.Context, recordID string) ([]model.CorrectiveAction, error)

	CreateEvidence(ctx context.Context, ev *model.Evidence) error
	GetEvidence(ctx context.Context, id string) (*model.Evidence, error)
	ListEvidence(ctx context.Context, recordID string) ([]model.Evidence, error)
	SetEvidenceText(ctx context.Context, id, textKey, text string) error
}
