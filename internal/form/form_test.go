package form

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networg/constructsafe/internal/formrules"
	"github.com/networg/constructsafe/internal/model"
	"github.com/networg/constructsafe/internal/validation"
)

func TestOnLoadDefaultsDateReported(t *testing.T) {
	rec := &model.NonConformity{Type: model.TypeQuality}
	OnLoad(rec)
	assert.False(t, rec.DateReported.IsZero(), "new records get a reported date")
}

func TestOnLoadKeepsExistingDateReported(t *testing.T) {
	reported := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := &model.NonConformity{ID: "existing", Type: model.TypeQuality, DateReported: reported}
	OnLoad(rec)
	assert.Equal(t, reported, rec.DateReported)
}

func TestOnTypeChangeReappliesRules(t *testing.T) {
	rec := &model.NonConformity{Type: model.TypeSafety, Severity: model.SeverityLow}
	set := OnTypeChange(rec)
	assert.Equal(t, model.SeverityHigh, rec.Severity)
	assert.True(t, set[formrules.FieldLocation].Required)
}

func TestOnBeforeSave(t *testing.T) {
	rec := &model.NonConformity{Type: model.TypeSafety, Location: " "}
	rej := OnBeforeSave(rec)
	require.NotNil(t, rej)
	assert.Equal(t, validation.CodeSafetyLocationRequired, rej.Code)

	rec.Location = "Gate 4"
	assert.Nil(t, OnBeforeSave(rec))
}
