package models

import "time"

// StoredFile describes a named blob in the staging root.
type StoredFile struct {
	Name    string    `json:"name"`     // Validated identity
	Path    string    `json:"path"`     // Resolved location inside the staging root
	Size    int64     `json:"size"`     // Size in bytes at the time of the stat
	ModTime time.Time `json:"mod_time"` // Last modification time
}

// UploadOutcome reports what an upload did to the staging root.
type UploadOutcome int

const (
	// OutcomeRejected means the name failed validation and nothing was written.
	OutcomeRejected UploadOutcome = iota
	// OutcomeCreated means no file of that name existed before the upload.
	OutcomeCreated
	// OutcomeReplaced means an existing file was fully overwritten.
	OutcomeReplaced
)

// String returns the lowercase name of the outcome.
func (o UploadOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeReplaced:
		return "replaced"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}
