// Package flowclient triggers the external report workflow over HTTP. The
// workflow itself (PDF rendering, attachment upload) lives outside this
// repository; the core only guarantees the record is fully committed with a
// ticket number before the trigger fires.
package flowclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client posts report triggers to the workflow's HTTP endpoint.
type Client struct {
	url  string
	http *http.Client
}

// New constructs a Client. An empty URL yields a nil client; callers treat
// that as "reporting disabled".
func New(url string) *Client {
	if url == "" {
		return nil
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type triggerRequest struct {
	RecordID     string `json:"recordId"`
	TicketNumber string `json:"ticketNumber"`
}

// TriggerReport fires the workflow for one committed record. 200 and 202 both
// count as accepted; the workflow runs asynchronously on its side.
func (c *Client) TriggerReport(ctx context.Context, recordID, ticketNumber string) error {
	body, err := json.Marshal(triggerRequest{RecordID: recordID, TicketNumber: ticketNumber})
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post trigger: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("workflow returned status %d", resp.StatusCode)
	}
	return nil
}
