// Package worker plugs the notification dispatcher and the evidence
// extraction pipeline into the asynq worker loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/networg/constructsafe/internal/notify"
	"github.com/networg/constructsafe/internal/pdfextract"
	"github.com/networg/constructsafe/internal/queue"
	"github.com/networg/constructsafe/internal/s3storage"
	"github.com/networg/constructsafe/internal/storage"
)

// Processor handles the task types defined in internal/queue.
type Processor struct {
	store      storage.Store
	objects    *s3storage.Storage
	dispatcher *notify.Dispatcher
}

// NewProcessor constructs a worker processor.
func NewProcessor(store storage.Store, objects *s3storage.Storage, dispatcher *notify.Dispatcher) *Processor {
	return &Processor{store: store, objects: objects, dispatcher: dispatcher}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskNotifyManager, p.handleNotify)
	mux.HandleFunc(queue.TaskExtractEvidence, p.handleExtract)
	return mux
}

// handleNotify always returns nil: the dispatcher degrades to log-and-drop
// internally and a notification must never be replayed by the queue.
func (p *Processor) handleNotify(ctx context.Context, task *asynq.Task) error {
	var payload queue.NotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		log.Printf("notify: decode payload: %v", err)
		return nil
	}
	p.dispatcher.Dispatch(ctx, payload.RecordID, payload.Trigger)
	return nil
}

// handleExtract downloads a PDF attachment, extracts its text, and stores the
// result on the evidence row and in the text bucket. Errors propagate so
// asynq retries transient storage failures.
func (p *Processor) handleExtract(ctx context.Context, task *asynq.Task) error {
	var payload queue.ExtractPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode extract payload: %w", err)
	}
	data, err := p.objects.DownloadAttachment(ctx, payload.ObjectKey)
	if err != nil {
		return fmt.Errorf("download evidence %s: %w", payload.EvidenceID, err)
	}
	text, err := pdfextract.ExtractText(data)
	if err != nil {
		// A malformed PDF will not get better on retry.
		log.Printf("extract: evidence %s unreadable: %v", payload.EvidenceID, err)
		return nil
	}
	textKey := textObjectKey(payload.ObjectKey)
	if err := p.objects.UploadExtractedText(ctx, textKey, []byte(text)); err != nil {
		return fmt.Errorf("store extracted text for %s: %w", payload.EvidenceID, err)
	}
	if err := p.store.SetEvidenceText(ctx, payload.EvidenceID, textKey, text); err != nil {
		return fmt.Errorf("record extracted text for %s: %w", payload.EvidenceID, err)
	}
	log.Printf("extract: evidence %s processed (%d bytes)", payload.EvidenceID, len(text))
	return nil
}

func textObjectKey(objectKey string) string {
	base := strings.TrimSuffix(objectKey, filepath.Ext(objectKey))
	return fmt.Sprintf("%s.txt", base)
}
