// Package model contains the entity structs and option sets shared across the
// API, the repositories, and the worker.
package model

import (
	"time"
)

// Type classifies a non-conformity. The value drives which form fields are
// visible and required, see internal/formrules.
type Type string

const (
	TypeSafety        Type = "safety"
	TypeQuality       Type = "quality"
	TypeEnvironmental Type = "environmental"
	TypeDocumentation Type = "documentation"
	TypeOther         Type = "other"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeSafety, TypeQuality, TypeEnvironmental, TypeDocumentation, TypeOther:
		return true
	}
	return false
}

// Label returns the display name used in notifications, or "N/A" when the
// value does not resolve to a known option.
func (t Type) Label() string {
	switch t {
	case TypeSafety:
		return "Safety"
	case TypeQuality:
		return "Quality"
	case TypeEnvironmental:
		return "Environmental"
	case TypeDocumentation:
		return "Documentation"
	case TypeOther:
		return "Other"
	}
	return "N/A"
}

// Severity grades how serious a non-conformity is. Safety records are always
// forced to SeverityHigh before they are saved.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func (s Severity) Label() string {
	switch s {
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	case SeverityCritical:
		return "Critical"
	}
	return "N/A"
}

// Status tracks the resolution lifecycle of a record.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

func (s Status) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusInProgress:
		return "In Progress"
	case StatusResolved:
		return "Resolved"
	case StatusClosed:
		return "Closed"
	}
	return "N/A"
}

// ManagerRef points at the manager responsible for a record. The reference is
// denormalized onto the record; the dispatcher only needs a recipient.
type ManagerRef struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Assigned reports whether the reference actually names someone.
func (m *ManagerRef) Assigned() bool {
	return m != nil && (m.ID != "" || m.Email != "")
}

// Equal compares two possibly-nil references.
func (m *ManagerRef) Equal(other *ManagerRef) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.ID == other.ID && m.Name == other.Name && m.Email == other.Email
}

// NonConformity is the central record of the system. TicketNumber is assigned
// exactly once during creation and is immutable afterwards.
type NonConformity struct {
	ID              string      `json:"id"`
	TicketNumber    string      `json:"ticketNumber,omitempty"`
	Name            string      `json:"name"`
	Type            Type        `json:"type"`
	Severity        Severity    `json:"severity"`
	Status          Status      `json:"status"`
	Location        string      `json:"location,omitempty"`
	Description     string      `json:"description,omitempty"`
	DateReported    time.Time   `json:"dateReported"`
	AssignedManager *ManagerRef `json:"assignedManager,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Clone returns a deep copy so callers can diff pre- and post-update state.
func (n *NonConformity) Clone() *NonConformity {
	out := *n
	if n.AssignedManager != nil {
		ref := *n.AssignedManager
		out.AssignedManager = &ref
	}
	return &out
}

// Delta carries a partial update. Nil pointers mean "leave unchanged"; the
// ticket number, id, and timestamps are not updatable and have no field here.
type Delta struct {
	Name            *string     `json:"name,omitempty"`
	Type            *Type       `json:"type,omitempty"`
	Severity        *Severity   `json:"severity,omitempty"`
	Status          *Status     `json:"status,omitempty"`
	Location        *string     `json:"location,omitempty"`
	Description     *string     `json:"description,omitempty"`
	AssignedManager *ManagerRef `json:"assignedManager,omitempty"`
}

// ApplyTo merges the delta into rec.
func (d *Delta) ApplyTo(rec *NonConformity) {
	if d.Name != nil {
		rec.Name = *d.Name
	}
	if d.Type != nil {
		rec.Type = *d.Type
	}
	if d.Severity != nil {
		rec.Severity = *d.Severity
	}
	if d.Status != nil {
		rec.Status = *d.Status
	}
	if d.Location != nil {
		rec.Location = *d.Location
	}
	if d.Description != nil {
		rec.Description = *d.Description
	}
	if d.AssignedManager != nil {
		if d.AssignedManager.Assigned() {
			ref := *d.AssignedManager
			rec.AssignedManager = &ref
		} else {
			// An empty reference clears the assignment.
			rec.AssignedManager = nil
		}
	}
}
