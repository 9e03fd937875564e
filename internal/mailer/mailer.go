// Package mailer is the outbound mail transport. The two-step
// create-then-send contract mirrors how the surrounding platform's mail API
// works and lets an implementation stage a message before committing to
// delivery.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Message is a rendered notification awaiting delivery.
type Message struct {
	From     string
	To       string
	ToName   string
	Subject  string
	HTMLBody string
}

// Transport delivers rendered messages. Implementations are best-effort;
// callers log failures and move on.
type Transport interface {
	CreateMessage(ctx context.Context, msg Message) (string, error)
	Send(ctx context.Context, messageID string) error
}

// ErrUnknownMessage is returned by Send for an id that was never created.
var ErrUnknownMessage = errors.New("unknown message id")

// SMTP is a Transport backed by a plain SMTP relay (mailpit/postfix in the
// compose stack). Created messages are held in memory until sent.
type SMTP struct {
	addr     string
	username string
	password string

	mu      sync.Mutex
	pending map[string]Message
}

// NewSMTP constructs the transport. Username may be empty for relays that do
// not require auth.
func NewSMTP(addr, username, password string) *SMTP {
	return &SMTP{
		addr:     addr,
		username: username,
		password: password,
		pending:  make(map[string]Message),
	}
}

// CreateMessage stages a message and returns its id.
func (s *SMTP) CreateMessage(_ context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", errors.New("message has no recipient")
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.pending[id] = msg
	s.mu.Unlock()
	return id, nil
}

// Send delivers a staged message and forgets it. net/smtp has no context
// support, so the deadline is only checked up front; the relay is local to
// the deployment and fails fast.
func (s *SMTP) Send(ctx context.Context, messageID string) error {
	s.mu.Lock()
	msg, ok := s.pending[messageID]
	if ok {
		delete(s.pending, messageID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrUnknownMessage
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.username != "" {
		host := s.addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.username, s.password, host)
	}
	if err := smtp.SendMail(s.addr, auth, msg.From, []string{msg.To}, encode(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func encode(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	if msg.ToName != "" {
		fmt.Fprintf(&b, "To: %s <%s>\r\n", msg.ToName, msg.To)
	} else {
		fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTMLBody)
	return []byte(b.String())
}
