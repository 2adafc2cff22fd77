package domain

import (
	"strings"

	apperrors "github.com/louisbranch/examroom/internal/platform/errors"
)

// Status describes the exam lifecycle label used by domain decisions.
type Status string

const (
	StatusUnspecified Status = ""
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusStarted     Status = "started"
	StatusReview      Status = "review"
	StatusPaused      Status = "paused"
	StatusDenied      Status = "denied"
	StatusCompleted   Status = "completed"
	StatusScored      Status = "scored"
	StatusExpired     Status = "expired"
	StatusInvalidated Status = "invalidated"
)

// Stage is the coarse lifecycle bucket a status belongs to.
type Stage string

const (
	StageUnspecified Stage = ""
	// StageOpen covers statuses waiting on proctor action before item delivery.
	StageOpen Stage = "open"
	// StageInUse covers statuses where the examinee actively holds the exam.
	StageInUse Stage = "inuse"
	// StageInactive covers statuses where delivery stopped but may resume.
	StageInactive Stage = "inactive"
	// StageClosed covers terminal statuses.
	StageClosed Stage = "closed"
)

// statusStages is the fixed status code table. Statuses outside this table are
// programming errors, not user input.
var statusStages = map[Status]Stage{
	StatusPending:     StageOpen,
	StatusApproved:    StageOpen,
	StatusStarted:     StageInUse,
	StatusReview:      StageInUse,
	StatusPaused:      StageInactive,
	StatusDenied:      StageInactive,
	StatusCompleted:   StageClosed,
	StatusScored:      StageClosed,
	StatusExpired:     StageClosed,
	StatusInvalidated: StageClosed,
}

// ParseStatus canonicalizes a status code against the fixed code table.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := statusStages[status]; !ok {
		return StatusUnspecified, apperrors.WithMetadata(
			apperrors.CodeExamStatusUnknown,
			"status code is not in the code table",
			map[string]string{"status": value},
		)
	}
	return status, nil
}

// StageFor resolves the stage of a status from the code table.
func StageFor(status Status) (Stage, error) {
	stage, ok := statusStages[status]
	if !ok {
		return StageUnspecified, apperrors.WithMetadata(
			apperrors.CodeExamStatusUnknown,
			"status code is not in the code table",
			map[string]string{"status": string(status)},
		)
	}
	return stage, nil
}

// IsClosed reports whether the status is terminal.
func (s Status) IsClosed() bool {
	return statusStages[s] == StageClosed
}
