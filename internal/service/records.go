// Package service owns the commit path for non-conformities: validation gate,
// ticket assignment with its retry loop, persistence, and the post-commit
// notification enqueue.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/networg/constructsafe/internal/formrules"
	"github.com/networg/constructsafe/internal/model"
	"github.com/networg/constructsafe/internal/queue"
	"github.com/networg/constructsafe/internal/storage"
	"github.com/networg/constructsafe/internal/ticket"
	"github.com/networg/constructsafe/internal/validation"
)

// RecordStore is the slice of the store the service needs.
type RecordStore interface {
	CreateNonConformity(ctx context.Context, rec *model.NonConformity) error
	GetNonConformity(ctx context.Context, id string) (*model.NonConformity, error)
	UpdateNonConformity(ctx context.Context, rec *model.NonConformity) error
	LastTicketNumber(ctx context.Context, prefix string) (string, error)
}

// TaskQueue is the post-commit side effect channel. Enqueue failures are
// logged, never propagated: the commit has already happened.
type TaskQueue interface {
	EnqueueNotify(ctx context.Context, payload queue.NotifyPayload) error
}

// Records orchestrates creates and updates.
type Records struct {
	store   RecordStore
	tickets *ticket.Generator
	tasks   TaskQueue

	// MaxAttempts bounds the assign-insert loop under ticket contention.
	MaxAttempts int
}

// NewRecords constructs the service.
func NewRecords(store RecordStore, tickets *ticket.Generator, tasks TaskQueue) *Records {
	return &Records{
		store:       store,
		tickets:     tickets,
		tasks:       tasks,
		MaxAttempts: ticket.MaxAttempts,
	}
}

// Create validates, numbers, and persists a new record, then enqueues a
// Created notification when a manager is assigned. Gate rejections come back
// as *validation.Rejection via the error return; store failures are fatal and
// leave nothing persisted.
func (s *Records) Create(ctx context.Context, rec *model.NonConformity) (*model.NonConformity, error) {
	s.normalize(rec)
	if rej := validation.Validate(rec); rej != nil {
		return nil, rej
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DateReported.IsZero() {
		rec.DateReported = time.Now().UTC()
	}

	// A caller-supplied ticket (pre-seeded import) is used as-is; a collision
	// on it is a real conflict, not contention we can recompute around.
	supplied := rec.TicketNumber != ""

	for attempt := 0; attempt < s.MaxAttempts; attempt++ {
		if _, err := s.tickets.Assign(ctx, rec); err != nil {
			return nil, err
		}
		err := s.store.CreateNonConformity(ctx, rec)
		if err == nil {
			s.enqueueNotify(ctx, rec, queue.TriggerCreated)
			return rec, nil
		}
		if errors.Is(err, storage.ErrDuplicateTicket) && !supplied {
			// Lost the race on the unique index; recompute and try again.
			rec.TicketNumber = ""
			continue
		}
		return nil, fmt.Errorf("create non-conformity: %w", err)
	}
	return nil, ticket.ErrContention
}

// Update applies a delta to an existing record. The gate runs against the
// merged record; an Updated notification is enqueued only when the delta
// materially changed status, severity, or the assigned manager.
func (s *Records) Update(ctx context.Context, id string, delta *model.Delta) (*model.NonConformity, error) {
	old, err := s.store.GetNonConformity(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := old.Clone()
	delta.ApplyTo(merged)
	s.normalize(merged)
	if rej := validation.Validate(merged); rej != nil {
		return nil, rej
	}
	if err := s.store.UpdateNonConformity(ctx, merged); err != nil {
		return nil, fmt.Errorf("update non-conformity: %w", err)
	}
	if materialChange(old, merged) {
		s.enqueueNotify(ctx, merged, queue.TriggerUpdated)
	}
	return merged, nil
}

// Get returns a record by id.
func (s *Records) Get(ctx context.Context, id string) (*model.NonConformity, error) {
	return s.store.GetNonConformity(ctx, id)
}

// normalize applies server-side defaults and re-runs the forced-value rules so
// the "safety implies severity high" invariant holds no matter what the client
// sent.
func (s *Records) normalize(rec *model.NonConformity) {
	if rec.Status == "" {
		rec.Status = model.StatusOpen
	}
	if rec.Severity == "" {
		rec.Severity = model.SeverityLow
	}
	formrules.Apply(rec.Type, rec)
}

// materialChange implements the notification filter: only status, severity,
// and assigned manager count. Edits to description or any other field must
// not fan out mail.
func materialChange(old, updated *model.NonConformity) bool {
	if old.Status != updated.Status {
		return true
	}
	if old.Severity != updated.Severity {
		return true
	}
	if !old.AssignedManager.Equal(updated.AssignedManager) {
		return true
	}
	return false
}

func (s *Records) enqueueNotify(ctx context.Context, rec *model.NonConformity, trigger queue.Trigger) {
	if trigger == queue.TriggerCreated && !rec.AssignedManager.Assigned() {
		return
	}
	payload := queue.NotifyPayload{RecordID: rec.ID, Trigger: trigger}
	if err := s.tasks.EnqueueNotify(ctx, payload); err != nil {
		log.Printf("enqueue %s notification for %s: %v", trigger, rec.ID, err)
	}
}
