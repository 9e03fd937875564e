// Package validation holds the pre-commit gate that can veto a save.
package validation

import (
	"strings"

	"github.com/networg/constructsafe/internal/model"
)

// Rejection codes returned to the caller alongside a user-facing message.
const (
	CodeSafetyLocationRequired = "SAFETY_LOCATION_REQUIRED"
)

// Rejection is a structured veto. It implements error so the service layer can
// pass it through its normal return path; the API maps it to a 422.
type Rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	return r.Code + ": " + r.Message
}

// Validate inspects the record as presented and returns nil when the save may
// proceed. The gate is stateless: a record corrected after a rejection passes
// unconditionally on the next call. It performs no I/O and does not re-run the
// field rule engine.
func Validate(rec *model.NonConformity) *Rejection {
	if rec.Type == model.TypeSafety && strings.TrimSpace(rec.Location) == "" {
		return &Rejection{
			Code:    CodeSafetyLocationRequired,
			Message: "Safety non-conformities require a Location to be specified.",
		}
	}
	return nil
}
