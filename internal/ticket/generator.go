// Package ticket assigns the human-readable sequential ticket numbers that
// identify non-conformities outside the system (NC-00001, NC-00002, ...).
package ticket

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/networg/constructsafe/internal/model"
)

const (
	// Prefix is fixed; the numeric suffix is zero-padded to PadWidth digits.
	// Sequences beyond 99999 render with their full digit count.
	Prefix   = "NC"
	PadWidth = 5

	// MaxAttempts bounds the recompute loop when concurrent creations race on
	// the same candidate number.
	MaxAttempts = 5
)

// ErrContention is surfaced when MaxAttempts consecutive inserts all lost the
// race on the ticket uniqueness constraint.
var ErrContention = errors.New("ticket numbering contention exhausted")

// Store is the slice of the record store the generator needs.
type Store interface {
	LastTicketNumber(ctx context.Context, prefix string) (string, error)
}

// Generator computes the next sequential ticket number. It holds no counter
// itself; the current position is always re-read from the store so multiple
// service instances stay consistent, and the unique index on ticket_number is
// what ultimately arbitrates races.
type Generator struct {
	store  Store
	prefix string
}

// NewGenerator constructs a Generator using the standard prefix.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store, prefix: Prefix}
}

// Assign fills in rec.TicketNumber and returns it. A record that already
// carries a number is returned untouched without querying the store, which
// makes retries and pre-seeded imports safe. A failing store query aborts the
// creation: a record is never committed without a ticket.
func (g *Generator) Assign(ctx context.Context, rec *model.NonConformity) (string, error) {
	if rec.TicketNumber != "" {
		return rec.TicketNumber, nil
	}
	last, err := g.store.LastTicketNumber(ctx, g.prefix+"-")
	if err != nil {
		return "", fmt.Errorf("query last ticket: %w", err)
	}
	next := parseSequence(last) + 1
	rec.TicketNumber = Format(g.prefix, next)
	return rec.TicketNumber, nil
}

// Format renders a ticket number, e.g. Format("NC", 42) == "NC-00042".
func Format(prefix string, seq int) string {
	return fmt.Sprintf("%s-%0*d", prefix, PadWidth, seq)
}

// parseSequence extracts the numeric suffix after the final dash. Anything
// unparseable yields 0 so numbering restarts at 1 instead of failing the
// creation; a malformed historical ticket must not brick the system.
func parseSequence(ticketNumber string) int {
	if ticketNumber == "" {
		return 0
	}
	idx := strings.LastIndex(ticketNumber, "-")
	if idx < 0 || idx == len(ticketNumber)-1 {
		return 0
	}
	seq, err := strconv.Atoi(ticketNumber[idx+1:])
	if err != nil || seq < 0 {
		return 0
	}
	return seq
}
