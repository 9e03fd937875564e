// Package notify composes and delivers manager notifications after a record
// commit. It runs on the worker side of the queue; nothing here can fail the
// save that triggered it.
package notify

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"github.com/networg/constructsafe/internal/mailer"
	"github.com/networg/constructsafe/internal/model"
	"github.com/networg/constructsafe/internal/queue"
)

// RecordStore is the read-side slice of the store the dispatcher needs.
type RecordStore interface {
	GetNonConformity(ctx context.Context, id string) (*model.NonConformity, error)
}

// DefaultTimeout bounds the whole dispatch (store re-read plus send).
const DefaultTimeout = 15 * time.Second

// Dispatcher re-reads the committed record and mails the assigned manager.
type Dispatcher struct {
	store   RecordStore
	mail    mailer.Transport
	from    string
	timeout time.Duration
}

// NewDispatcher constructs a Dispatcher. A non-positive timeout falls back to
// DefaultTimeout.
func NewDispatcher(store RecordStore, mail mailer.Transport, from string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{store: store, mail: mail, from: from, timeout: timeout}
}

// Dispatch delivers one notification for the given record and trigger. The
// triggering payload is just an id: the full record is re-read so the message
// reflects a consistent snapshot, not a partial delta. Every failure mode is
// logged and dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, recordID string, trigger queue.Trigger) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	rec, err := d.store.GetNonConformity(ctx, recordID)
	if err != nil {
		log.Printf("notify: load record %s: %v", recordID, err)
		return
	}
	if !rec.AssignedManager.Assigned() {
		log.Printf("notify: record %s has no assigned manager, skipping", recordID)
		return
	}
	body, err := ComposeBody(trigger, rec)
	if err != nil {
		log.Printf("notify: compose body for %s: %v", recordID, err)
		return
	}
	msg := mailer.Message{
		From:     d.from,
		To:       rec.AssignedManager.Email,
		ToName:   rec.AssignedManager.Name,
		Subject:  Subject(trigger, rec),
		HTMLBody: body,
	}
	id, err := d.mail.CreateMessage(ctx, msg)
	if err != nil {
		log.Printf("notify: create message for %s: %v", recordID, err)
		return
	}
	if err := d.mail.Send(ctx, id); err != nil {
		log.Printf("notify: send for %s: %v", recordID, err)
		return
	}
	log.Printf("notify: %s notification for %s sent to %s", trigger, rec.TicketNumber, rec.AssignedManager.Email)
}

// Subject builds the deterministic subject line, e.g.
// "[ConstructSafe] NEW: Non-Conformity NC-00001 - Loose scaffolding".
func Subject(trigger queue.Trigger, rec *model.NonConformity) string {
	return fmt.Sprintf("[ConstructSafe] %s: Non-Conformity %s - %s", action(trigger), rec.TicketNumber, rec.Name)
}

func action(trigger queue.Trigger) string {
	if trigger == queue.TriggerUpdated {
		return "UPDATED"
	}
	return "NEW"
}

var bodyTmpl = template.Must(template.New("notification").Parse(`<html>
<body style="font-family: Segoe UI, Arial, sans-serif; color: #333;">
	<h2 style="color: #c0392b;">&#9888; Non-Conformity {{.Action}}</h2>
	<table style="border-collapse: collapse; width: 100%; max-width: 600px;">
		<tr style="background: #f8f9fa;"><td style="padding: 8px; font-weight: bold; border: 1px solid #dee2e6;">Ticket</td><td style="padding: 8px; border: 1px solid #dee2e6;">{{.Ticket}}</td></tr>
		<tr><td style="padding: 8px; font-weight: bold; border: 1px solid #dee2e6;">Name</td><td style="padding: 8px; border: 1px solid #dee2e6;">{{.Name}}</td></tr>
		<tr style="background: #f8f9fa;"><td style="padding: 8px; font-weight: bold; border: 1px solid #dee2e6;">Type</td><td style="padding: 8px; border: 1px solid #dee2e6;">{{.Type}}</td></tr>
		<tr><td style="padding: 8px; font-weight: bold; border: 1px solid #dee2e6;">Severity</td><td style="padding: 8px; border: 1px solid #dee2e6;"><strong>{{.Severity}}</strong></td></tr>
		<tr style="background: #f8f9fa;"><td style="padding: 8px; font-weight: bold; border: 1px solid #dee2e6;">Status</td><td style="padding: 8px; border: 1px solid #dee2e6;">{{.Status}}</td></tr>
		<tr><td style="padding: 8px; font-weight: bold; border: 1px solid #dee2e6;">Location</td><td style="padding: 8px; border: 1px solid #dee2e6;">{{.Location}}</td></tr>
	</table>
	<br/>
	<p>Please review and take appropriate action.</p>
	<p style="color: #888; font-size: 12px;">This notification was generated automatically by ConstructSafe.</p>
</body>
</html>`))

type bodyData struct {
	Action   string
	Ticket   string
	Name     string
	Type     string
	Severity string
	Status   string
	Location string
}

// ComposeBody renders the HTML body. Empty location becomes "Not specified";
// enum values that do not resolve render as "N/A".
func ComposeBody(trigger queue.Trigger, rec *model.NonConformity) (string, error) {
	name := rec.Name
	if name == "" {
		name = "N/A"
	}
	location := rec.Location
	if strings.TrimSpace(location) == "" {
		location = "Not specified"
	}
	data := bodyData{
		Action:   action(trigger),
		Ticket:   rec.TicketNumber,
		Name:     name,
		Type:     rec.Type.Label(),
		Severity: rec.Severity.Label(),
		Status:   rec.Status.Label(),
		Location: location,
	}
	var b strings.Builder
	if err := bodyTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render notification body: %w", err)
	}
	return b.String(), nil
}
