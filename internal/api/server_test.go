package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networg/constructsafe/internal/config"
	"github.com/networg/constructsafe/internal/model"
	"github.com/networg/constructsafe/internal/queue"
	"github.com/networg/constructsafe/internal/service"
	"github.com/networg/constructsafe/internal/storage"
	"github.com/networg/constructsafe/internal/ticket"
	"github.com/networg/constructsafe/internal/validation"
)

type fakeTasks struct {
	notifies []queue.NotifyPayload
	extracts []queue.ExtractPayload
}

func (f *fakeTasks) EnqueueNotify(_ context.Context, p queue.NotifyPayload) error {
	f.notifies = append(f.notifies, p)
	return nil
}

func (f *fakeTasks) EnqueueExtract(_ context.Context, p queue.ExtractPayload) error {
	f.extracts = append(f.extracts, p)
	return nil
}

func newTestServer() (*httptest.Server, *storage.MemoryStore, *fakeTasks) {
	cfg := &config.Config{MaxUploadSize: 1 << 20}
	store := storage.NewMemoryStore()
	tasks := &fakeTasks{}
	records := service.NewRecords(store, ticket.NewGenerator(store), tasks)
	srv := New(cfg, records, store, nil, tasks, nil)
	return httptest.NewServer(srv.Handler()), store, tasks
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestCreateRejectedSafetyRecord(t *testing.T) {
	ts, _, tasks := newTestServer()
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/nonconformities", map[string]any{
		"name": "Open edge", "type": "safety", "location": "   ",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var rej validation.Rejection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rej))
	assert.Equal(t, validation.CodeSafetyLocationRequired, rej.Code)
	assert.Empty(t, tasks.notifies)
}

func TestCreateAndFetchRecord(t *testing.T) {
	ts, _, tasks := newTestServer()
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/nonconformities", map[string]any{
		"name": "Open edge", "type": "safety", "location": "Roof",
		"description": "Unprotected edge on the roof deck",
		"assignedManager": map[string]string{
			"id": "mgr-1", "name": "Dana Vesela", "email": "dana@example.com",
		},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.NonConformity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "NC-00001", created.TicketNumber)
	assert.Equal(t, model.SeverityHigh, created.Severity)
	require.Len(t, tasks.notifies, 1)
	assert.Equal(t, queue.TriggerCreated, tasks.notifies[0].Trigger)

	getResp, err := http.Get(ts.URL + "/nonconformities/" + created.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var fetched model.NonConformity
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&fetched))
	assert.Equal(t, created.TicketNumber, fetched.TicketNumber)
}

func TestCreateUnknownTypeRejected(t *testing.T) {
	ts, _, _ := newTestServer()
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/nonconformities", map[string]any{
		"name": "??", "type": "mystery",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateUnknownEnumValuesRejected(t *testing.T) {
	ts, _, _ := newTestServer()
	defer ts.Close()

	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"bogus severity", map[string]any{"name": "x", "type": "other", "severity": "bogus"}},
		{"bogus status", map[string]any{"name": "x", "type": "other", "status": "weird"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/nonconformities", tc.payload)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	// Empty values still pass and pick up the service defaults.
	resp := postJSON(t, ts.URL+"/nonconformities", map[string]any{"name": "x", "type": "other"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.NonConformity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, model.SeverityLow, created.Severity)
	assert.Equal(t, model.StatusOpen, created.Status)
}

func TestPatchUnknownEnumValuesRejected(t *testing.T) {
	ts, _, _ := newTestServer()
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/nonconformities", map[string]any{"name": "x", "type": "other"})
	var created model.NonConformity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	for _, payload := range []map[string]any{
		{"severity": "bogus"},
		{"status": "weird"},
	} {
		body, err := json.Marshal(payload)
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPatch, ts.URL+"/nonconformities/"+created.ID, bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		patchResp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		patchResp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, patchResp.StatusCode)
	}

	// The stored record is untouched by the rejected deltas.
	getResp, err := http.Get(ts.URL + "/nonconformities/" + created.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	var stored model.NonConformity
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&stored))
	assert.Equal(t, model.SeverityLow, stored.Severity)
	assert.Equal(t, model.StatusOpen, stored.Status)
}

func TestPatchStatusNotifies(t *testing.T) {
	ts, _, tasks := newTestServer()
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/nonconformities", map[string]any{
		"name": "Noise", "type": "other",
		"assignedManager": map[string]string{"id": "mgr-1", "email": "mgr@example.com"},
	})
	var created model.NonConformity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.Len(t, tasks.notifies, 1)

	body, _ := json.Marshal(map[string]any{"status": "in_progress"})
	req, err := http.NewRequest(http.MethodPatch, ts.URL+"/nonconformities/"+created.ID, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	patchResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer patchResp.Body.Close()
	require.Equal(t, http.StatusOK, patchResp.StatusCode)

	require.Len(t, tasks.notifies, 2)
	assert.Equal(t, queue.TriggerUpdated, tasks.notifies[1].Trigger)
}

func TestGetMissingRecord(t *testing.T) {
	ts, _, _ := newTestServer()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/nonconformities/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReportWithoutWorkflowConfigured(t *testing.T) {
	ts, store, _ := newTestServer()
	defer ts.Close()

	rec := &model.NonConformity{ID: "rec-1", TicketNumber: "NC-00001", Name: "x", Type: model.TypeOther, Severity: model.SeverityLow, Status: model.StatusOpen}
	require.NoError(t, store.CreateNonConformity(context.Background(), rec))

	resp, err := http.Post(ts.URL+"/nonconformities/rec-1/report", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCorrectiveActionLifecycle(t *testing.T) {
	ts, store, _ := newTestServer()
	defer ts.Close()

	rec := &model.NonConformity{ID: "rec-1", TicketNumber: "NC-00001", Name: "x", Type: model.TypeQuality, Severity: model.SeverityLow, Status: model.StatusOpen}
	require.NoError(t, store.CreateNonConformity(context.Background(), rec))

	resp := postJSON(t, ts.URL+"/nonconformities/rec-1/actions", map[string]any{
		"name": "Re-train crew", "priority": "high",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	listResp, err := http.Get(ts.URL + "/nonconformities/rec-1/actions")
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var actions []model.CorrectiveAction
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&actions))
	require.Len(t, actions, 1)
	assert.Equal(t, model.PriorityHigh, actions[0].Priority)
	assert.Equal(t, model.StatusOpen, actions[0].Status)
}
