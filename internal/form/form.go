// Package form is the boundary a UI layer calls into: load, type change, and
// before-save. Nothing here touches the store; the functions operate on the
// in-memory record the form is editing.
package form

import (
	"time"

	"github.com/networg/constructsafe/internal/formrules"
	"github.com/networg/constructsafe/internal/model"
	"github.com/networg/constructsafe/internal/validation"
)

// OnLoad runs when a record is opened, including new unsaved records. It
// defaults DateReported for records that do not have one yet and returns the
// constraint set for the current type.
func OnLoad(rec *model.NonConformity) formrules.ConstraintSet {
	if rec.ID == "" && rec.DateReported.IsZero() {
		rec.DateReported = time.Now().UTC()
	}
	return formrules.Apply(rec.Type, rec)
}

// OnTypeChange re-runs the rule engine after the type field changed. Changes
// to any other field do not re-trigger the engine.
func OnTypeChange(rec *model.NonConformity) formrules.ConstraintSet {
	return formrules.Apply(rec.Type, rec)
}

// OnBeforeSave returns nil when the save may proceed, or the rejection that
// blocks it.
func OnBeforeSave(rec *model.NonConformity) *validation.Rejection {
	return validation.Validate(rec)
}
