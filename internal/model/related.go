package model

import "time"

// Priority grades a corrective action. Deliberately narrower than Severity.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// CorrectiveAction is a follow-up task attached to a non-conformity.
type CorrectiveAction struct {
	ID              string     `json:"id"`
	NonConformityID string     `json:"nonConformityId"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	DueDate         *time.Time `json:"dueDate,omitempty"`
	Priority        Priority   `json:"priority"`
	Status          Status     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// FileType classifies an evidence attachment.
type FileType string

const (
	FilePhoto    FileType = "photo"
	FileDocument FileType = "document"
	FileVideo    FileType = "video"
	FileOther    FileType = "other"
)

func (f FileType) Valid() bool {
	switch f {
	case FilePhoto, FileDocument, FileVideo, FileOther:
		return true
	}
	return false
}

// Evidence is an attachment stored in object storage and linked to a
// non-conformity. PDF documents additionally get their text extracted by the
// worker so the content is searchable from the record.
type Evidence struct {
	ID              string    `json:"id"`
	NonConformityID string    `json:"nonConformityId"`
	Name            string    `json:"name"`
	FileType        FileType  `json:"fileType"`
	ObjectKey       string    `json:"-"`
	TextKey         string    `json:"-"`
	ExtractedText   string    `json:"extractedText,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
