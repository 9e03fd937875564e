package storage

import (
	"context"
	"sync"
	"time"

	"github.com/networg/constructsafe/internal/model"
)

// MemoryStore keeps everything in maps behind one RWMutex. It enforces the
// same ticket uniqueness rule as the postgres schema so the optimistic retry
// loop in the creation path behaves identically against both backends.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*model.NonConformity
	actions  map[string]*model.CorrectiveAction
	evidence map[string]*model.Evidence
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*model.NonConformity),
		actions:  make(map[string]*model.CorrectiveAction),
		evidence: make(map[string]*model.Evidence),
	}
}

func (m *MemoryStore) CreateNonConformity(_ context.Context, rec *model.NonConformity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.TicketNumber != "" {
		for _, existing := range m.records {
			if existing.TicketNumber == rec.TicketNumber {
				return ErrDuplicateTicket
			}
		}
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) GetNonConformity(_ context.Context, id string) (*model.NonConformity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) UpdateNonConformity(_ context.Context, rec *model.NonConformity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[rec.ID]
	if !ok {
		return ErrNotFound
	}
	updated := rec.Clone()
	updated.TicketNumber = existing.TicketNumber
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	m.records[rec.ID] = updated
	return nil
}

func (m *MemoryStore) LastTicketNumber(_ context.Context, prefix string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		latest string
		at     time.Time
	)
	for _, rec := range m.records {
		if rec.TicketNumber == "" || !hasPrefix(rec.TicketNumber, prefix) {
			continue
		}
		// Creation timestamps can collide at clock resolution; fall back to
		// the numerically larger ticket so the generator always advances.
		if latest == "" || rec.CreatedAt.After(at) ||
			(rec.CreatedAt.Equal(at) && ticketGreater(rec.TicketNumber, latest)) {
			latest = rec.TicketNumber
			at = rec.CreatedAt
		}
	}
	return latest, nil
}

func (m *MemoryStore) CreateCorrectiveAction(_ context.Context, action *model.CorrectiveAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[action.NonConformityID]; !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	action.CreatedAt = now
	action.UpdatedAt = now
	stored := *action
	m.actions[action.ID] = &stored
	return nil
}

func (m *MemoryStore) ListCorrectiveActions(_ context.Context, recordID string) ([]model.CorrectiveAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.CorrectiveAction, 0)
	for _, action := range m.actions {
		if action.NonConformityID == recordID {
			out = append(out, *action)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateEvidence(_ context.Context, ev *model.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[ev.NonConformityID]; !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	stored := *ev
	m.evidence[ev.ID] = &stored
	return nil
}

func (m *MemoryStore) GetEvidence(_ context.Context, id string) (*model.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.evidence[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *ev
	return &out, nil
}

func (m *MemoryStore) ListEvidence(_ context.Context, recordID string) ([]model.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Evidence, 0)
	for _, ev := range m.evidence {
		if ev.NonConformityID == recordID {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (m *MemoryStore) SetEvidenceText(_ context.Context, id, textKey, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.evidence[id]
	if !ok {
		return ErrNotFound
	}
	ev.TextKey = textKey
	ev.ExtractedText = text
	ev.UpdatedAt = time.Now().UTC()
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// ticketGreater orders zero-padded tickets of the same prefix numerically:
// longer suffixes are larger, equal lengths compare lexicographically.
func ticketGreater(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}
