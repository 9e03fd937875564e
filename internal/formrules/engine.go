// Package formrules is the type-driven field rule engine. It decides, for a
// given non-conformity type, which of the governed fields are visible,
// required, or locked, and force-sets the severity for safety records.
//
// The engine is a pure function with no memory between calls: every Apply
// starts from the type-independent baseline, so switching a form from one type
// to another can never leave stale constraints behind.
package formrules

import (
	"github.com/networg/constructsafe/internal/model"
)

// Field enumerates the governed fields. Constraints are keyed by this closed
// set rather than by free-form attribute names.
type Field string

const (
	FieldLocation    Field = "location"
	FieldDescription Field = "description"
	FieldSeverity    Field = "severity"
)

// GovernedFields lists every field the engine controls, in form order.
var GovernedFields = []Field{FieldLocation, FieldDescription, FieldSeverity}

// Constraint describes the state of one governed field. ForcedValue is empty
// unless the engine pins the field to a specific value, in which case Locked
// is also set.
type Constraint struct {
	Visible     bool   `json:"visible"`
	Required    bool   `json:"required"`
	Locked      bool   `json:"locked"`
	ForcedValue string `json:"forcedValue,omitempty"`
}

// ConstraintSet maps every governed field to its current constraint.
type ConstraintSet map[Field]Constraint

// baseline is the type-independent reset state: everything visible, nothing
// required, nothing locked.
func baseline() ConstraintSet {
	set := make(ConstraintSet, len(GovernedFields))
	for _, f := range GovernedFields {
		set[f] = Constraint{Visible: true}
	}
	return set
}

// Rule table:
//
//	type          | location             | description | severity
//	--------------+----------------------+-------------+------------------
//	safety        | required             | required    | forced high, locked
//	quality       | optional             | required    | user choice
//	environmental | required             | required    | user choice
//	documentation | hidden, not required | required    | user choice
//	other         | optional             | optional    | user choice
//
// Apply resets the governed fields to baseline and layers the rules for t on
// top. When severity is forced the record itself is updated before the set is
// returned, so a caller reading (type, severity) right after Apply always sees
// a consistent pair. rec is otherwise untouched; in particular a location value
// hidden under the documentation type is kept, not cleared.
func Apply(t model.Type, rec *model.NonConformity) ConstraintSet {
	set := baseline()
	switch t {
	case model.TypeSafety:
		set.require(FieldLocation)
		set.require(FieldDescription)
		rec.Severity = model.SeverityHigh
		set[FieldSeverity] = Constraint{
			Visible:     true,
			Locked:      true,
			ForcedValue: string(model.SeverityHigh),
		}
	case model.TypeQuality:
		set.require(FieldDescription)
	case model.TypeEnvironmental:
		set.require(FieldLocation)
		set.require(FieldDescription)
	case model.TypeDocumentation:
		set.hide(FieldLocation)
		set.require(FieldDescription)
	case model.TypeOther:
		// everything optional and visible
	}
	return set
}

func (s ConstraintSet) require(f Field) {
	c := s[f]
	c.Required = true
	s[f] = c
}

func (s ConstraintSet) hide(f Field) {
	c := s[f]
	c.Visible = false
	c.Required = false
	s[f] = c
}
