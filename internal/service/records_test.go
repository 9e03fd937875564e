package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networg/constructsafe/internal/mailer"
	"github.com/networg/constructsafe/internal/model"
	"github.com/networg/constructsafe/internal/notify"
	"github.com/networg/constructsafe/internal/queue"
	"github.com/networg/constructsafe/internal/storage"
	"github.com/networg/constructsafe/internal/ticket"
	"github.com/networg/constructsafe/internal/validation"
)

type fakeQueue struct {
	mu       sync.Mutex
	payloads []queue.NotifyPayload
	err      error
}

func (f *fakeQueue) EnqueueNotify(_ context.Context, payload queue.NotifyPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeQueue) all() []queue.NotifyPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]queue.NotifyPayload, len(f.payloads))
	copy(out, f.payloads)
	return out
}

func newService() (*Records, *storage.MemoryStore, *fakeQueue) {
	store := storage.NewMemoryStore()
	tasks := &fakeQueue{}
	svc := NewRecords(store, ticket.NewGenerator(store), tasks)
	return svc, store, tasks
}

func TestCreateAssignsFirstTicket(t *testing.T) {
	svc, _, tasks := newService()
	rec, err := svc.Create(context.Background(), &model.NonConformity{
		Name: "Cracked beam", Type: model.TypeQuality, Description: "Visible crack",
	})
	require.NoError(t, err)
	assert.Equal(t, "NC-00001", rec.TicketNumber)
	assert.Equal(t, model.StatusOpen, rec.Status)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.DateReported.IsZero())
	assert.Empty(t, tasks.all(), "no manager, no notification")
}

func TestCreateSequencesTickets(t *testing.T) {
	svc, _, _ := newService()
	for i := 1; i <= 3; i++ {
		rec, err := svc.Create(context.Background(), &model.NonConformity{
			Name: fmt.Sprintf("record %d", i), Type: model.TypeOther,
		})
		require.NoError(t, err)
		assert.Equal(t, ticket.Format("NC", i), rec.TicketNumber)
	}
}

func TestCreateSafetyForcesSeverity(t *testing.T) {
	svc, _, _ := newService()
	rec, err := svc.Create(context.Background(), &model.NonConformity{
		Name: "Open edge", Type: model.TypeSafety, Location: "Roof",
		Severity: model.SeverityLow,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, rec.Severity)
}

func TestCreateSafetyWithoutLocationRejected(t *testing.T) {
	svc, store, tasks := newService()
	_, err := svc.Create(context.Background(), &model.NonConformity{
		Name: "Open edge", Type: model.TypeSafety, Location: "  ",
	})
	var rej *validation.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, validation.CodeSafetyLocationRequired, rej.Code)

	// Nothing was numbered, persisted, or notified.
	last, lerr := store.LastTicketNumber(context.Background(), "NC-")
	require.NoError(t, lerr)
	assert.Empty(t, last)
	assert.Empty(t, tasks.all())
}

func TestCreateWithManagerEnqueuesCreated(t *testing.T) {
	svc, _, tasks := newService()
	rec, err := svc.Create(context.Background(), &model.NonConformity{
		Name: "Spill", Type: model.TypeEnvironmental, Location: "Dock",
		Description:     "Oil spill",
		AssignedManager: &model.ManagerRef{ID: "mgr-1", Email: "mgr@example.com"},
	})
	require.NoError(t, err)
	payloads := tasks.all()
	require.Len(t, payloads, 1)
	assert.Equal(t, rec.ID, payloads[0].RecordID)
	assert.Equal(t, queue.TriggerCreated, payloads[0].Trigger)
}

func TestCreateKeepsSuppliedTicket(t *testing.T) {
	svc, _, _ := newService()
	rec, err := svc.Create(context.Background(), &model.NonConformity{
		Name: "Imported", Type: model.TypeOther, TicketNumber: "NC-07777",
	})
	require.NoError(t, err)
	assert.Equal(t, "NC-07777", rec.TicketNumber)

	// A supplied duplicate is a conflict, not contention to retry around.
	_, err = svc.Create(context.Background(), &model.NonConformity{
		Name: "Imported again", Type: model.TypeOther, TicketNumber: "NC-07777",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrDuplicateTicket)
	assert.NotErrorIs(t, err, ticket.ErrContention)
}

func TestConcurrentCreatesYieldDistinctSequentialTickets(t *testing.T) {
	svc, store, _ := newService()
	// Wider bound than production: the in-memory store makes collisions far
	// more likely than postgres would.
	svc.MaxAttempts = 50

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := svc.Create(context.Background(), &model.NonConformity{
				Name: fmt.Sprintf("concurrent %d", i), Type: model.TypeOther,
			})
			errs[i] = err
			if err == nil {
				ids[i] = rec.ID
			}
		}(i)
	}
	wg.Wait()

	tickets := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		rec, err := store.GetNonConformity(context.Background(), ids[i])
		require.NoError(t, err)
		tickets[rec.TicketNumber] = true
	}
	require.Len(t, tickets, n, "every creation got a distinct ticket")
	for i := 1; i <= n; i++ {
		assert.True(t, tickets[ticket.Format("NC", i)], "expected %s with no gaps", ticket.Format("NC", i))
	}
}

func TestUpdateDescriptionDoesNotNotify(t *testing.T) {
	svc, _, tasks := newService()
	rec, err := svc.Create(context.Background(), &model.NonConformity{
		Name: "Noise", Type: model.TypeOther,
		AssignedManager: &model.ManagerRef{ID: "mgr-1", Email: "mgr@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, tasks.all(), 1) // the Created notification

	desc := "updated wording only"
	_, err = svc.Update(context.Background(), rec.ID, &model.Delta{Description: &desc})
	require.NoError(t, err)
	assert.Len(t, tasks.all(), 1, "description-only updates are not material")
}

func TestUpdateStatusNotifies(t *testing.T) {
	svc, _, tasks := newService()
	rec, err := svc.Create(context.Background(), &model.NonConformity{
		Name: "Noise", Type: model.TypeOther,
		AssignedManager: &model.ManagerRef{ID: "mgr-1", Email: "mgr@example.com"},
	})
	require.NoError(t, err)

	status := model.StatusInProgress
	updated, err := svc.Update(context.Background(), rec.ID, &model.Delta{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, updated.Status)

	payloads := tasks.all()
	require.Len(t, payloads, 2)
	assert.Equal(t, queue.TriggerUpdated, payloads[1].Trigger)
}

func TestUpdateManagerChangeNotifies(t *testing.T) {
	svc, _, tasks := newService()
	rec, err := svc.Create(context.Background(), &model.NonConformity{
		Name: "Noise", Type: model.TypeOther,
	})
	require.NoError(t, err)
	require.Empty(t, tasks.all())

	_, err = svc.Update(context.Background(), rec.ID, &model.Delta{
		AssignedManager: &model.ManagerRef{ID: "mgr-2", Email: "second@example.com"},
	})
	require.NoError(t, err)
	payloads := tasks.all()
	require.Len(t, payloads, 1)
	assert.Equal(t, queue.TriggerUpdated, payloads[0].Trigger)
}

func TestUpdateToSafetyWithoutLocationRejected(t *testing.T) {
	svc, _, _ := newService()
	rec, err := svc.Create(context.Background(), &model.NonConformity{
		Name: "Typo in report", Type: model.TypeDocumentation, Description: "wrong date",
	})
	require.NoError(t, err)

	typ := model.TypeSafety
	_, err = svc.Update(context.Background(), rec.ID, &model.Delta{Type: &typ})
	var rej *validation.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, validation.CodeSafetyLocationRequired, rej.Code)

	// The stored record is untouched by the rejected update.
	stored, err := svc.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TypeDocumentation, stored.Type)
}

func TestUpdateUnknownRecord(t *testing.T) {
	svc, _, _ := newService()
	status := model.StatusClosed
	_, err := svc.Update(context.Background(), "missing", &model.Delta{Status: &status})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateSurvivesEnqueueFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	tasks := &fakeQueue{err: errors.New("redis down")}
	svc := NewRecords(store, ticket.NewGenerator(store), tasks)

	rec, err := svc.Create(context.Background(), &model.NonConformity{
		Name: "Spill", Type: model.TypeOther,
		AssignedManager: &model.ManagerRef{ID: "mgr-1", Email: "mgr@example.com"},
	})
	require.NoError(t, err, "notification failure must never fail the commit")
	assert.Equal(t, "NC-00001", rec.TicketNumber)
}

// End to end: rejected save, corrected resubmission, exactly one notification
// with the expected subject.
func TestCreateRejectThenFixThenNotify(t *testing.T) {
	svc, store, tasks := newService()

	candidate := &model.NonConformity{
		Name: "Unsecured ladder", Type: model.TypeSafety, Location: "",
		Description:     "Ladder not tied off",
		AssignedManager: &model.ManagerRef{ID: "mgr-1", Name: "Dana Vesela", Email: "dana@example.com"},
	}
	_, err := svc.Create(context.Background(), candidate)
	var rej *validation.Rejection
	require.ErrorAs(t, err, &rej)
	require.Empty(t, tasks.all(), "no notification before a successful commit")

	candidate.Location = "Level 3"
	rec, err := svc.Create(context.Background(), candidate)
	require.NoError(t, err)
	assert.Equal(t, "NC-00001", rec.TicketNumber)
	assert.Equal(t, model.SeverityHigh, rec.Severity)

	payloads := tasks.all()
	require.Len(t, payloads, 1)

	// Drain the queued task through the dispatcher the worker would run.
	transport := &fakeTransport{}
	dispatcher := notify.NewDispatcher(store, transport, "noreply@constructsafe.local", time.Second)
	dispatcher.Dispatch(context.Background(), payloads[0].RecordID, payloads[0].Trigger)

	require.Len(t, transport.created, 1)
	subject := transport.created[0].Subject
	assert.Contains(t, subject, "NEW")
	assert.Contains(t, subject, "NC-00001")
}

type fakeTransport struct {
	created []mailer.Message
	sent    []string
}

func (f *fakeTransport) CreateMessage(_ context.Context, msg mailer.Message) (string, error) {
	f.created = append(f.created, msg)
	return fmt.Sprintf("msg-%d", len(f.created)), nil
}

func (f *fakeTransport) Send(_ context.Context, id string) error {
	f.sent = append(f.sent, id)
	return nil
}
