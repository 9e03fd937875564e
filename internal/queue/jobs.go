// Package queue defines the asynq task types exchanged between the API and
// the worker, plus a small client wrapper the service layer depends on.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TaskNotifyManager is enqueued after a commit that should notify the
	// assigned manager.
	TaskNotifyManager = "notify:manager"
	// TaskExtractEvidence is enqueued when a PDF evidence attachment needs its
	// text extracted.
	TaskExtractEvidence = "evidence:extract"
)

// Trigger says why a notification fired.
type Trigger string

const (
	TriggerCreated Trigger = "created"
	TriggerUpdated Trigger = "updated"
)

// NotifyPayload identifies the committed record; the dispatcher re-reads the
// full record itself since the triggering delta may be partial.
type NotifyPayload struct {
	RecordID string  `json:"record_id"`
	Trigger  Trigger `json:"trigger"`
}

// ExtractPayload tells the worker which evidence object to pull from storage.
type ExtractPayload struct {
	EvidenceID string `json:"evidence_id"`
	ObjectKey  string `json:"object_key"`
	FileName   string `json:"file_name"`
}

// Client wraps an asynq client with typed enqueue helpers.
type Client struct {
	inner *asynq.Client
}

// NewClient constructs a Client.
func NewClient(inner *asynq.Client) *Client {
	return &Client{inner: inner}
}

// EnqueueNotify schedules a manager notification. MaxRetry is zero: the
// dispatcher gets exactly one attempt and degrades to log-and-drop on failure,
// it must never be replayed against a record that has since moved on.
func (c *Client) EnqueueNotify(ctx context.Context, payload NotifyPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notify payload: %w", err)
	}
	task := asynq.NewTask(TaskNotifyManager, data)
	if _, err := c.inner.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("enqueue notify task: %w", err)
	}
	return nil
}

// EnqueueExtract schedules evidence text extraction. Extraction is safe to
// retry, so transient storage failures get a few more attempts.
func (c *Client) EnqueueExtract(ctx context.Context, payload ExtractPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal extract payload: %w", err)
	}
	task := asynq.NewTask(TaskExtractEvidence, data)
	if _, err := c.inner.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue extract task: %w", err)
	}
	return nil
}
