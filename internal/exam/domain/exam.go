// Package domain defines the versioned exam entities and their projections.
//
// Every mutable entity is split into an immutable identity and an append-only
// sequence of event snapshots. The current state of an identity is always the
// event with the highest sequence number; nothing is updated in place, and
// logical deletion is itself an event.
package domain

import "time"

// Exam is the immutable identity of one exam opening.
type Exam struct {
	ID            string
	ClientName    string
	StudentID     string
	AssessmentID  string
	AssessmentKey string
	SubjectCode   string
	SessionID     string
	BrowserKey    string
	CreatedAt     time.Time
}

// ExamState is one full snapshot of an exam's mutable facts.
//
// Event rows are snapshots, not deltas: every write copies forward the fields
// it does not intend to change from the previous latest event.
type ExamState struct {
	ExamID          string
	Seq             uint64
	Status          Status
	Stage           Stage
	StatusChangedAt time.Time
	StatusReason    string

	Attempts        int
	Restarts        int
	AbnormalStarts  int
	SegmentPosition int
	Language        string
	MaxItems        int

	StartedAt   *time.Time
	CompletedAt *time.Time
	ScoredAt    *time.Time
	ExpiredAt   *time.Time
	DeletedAt   *time.Time

	CreatedAt time.Time
}

// Deleted reports whether the snapshot marks the exam logically deleted.
func (s ExamState) Deleted() bool {
	return s.DeletedAt != nil
}

// NextSnapshot copies the snapshot forward for a new event, clearing the
// storage-assigned sequence number.
func (s ExamState) NextSnapshot(now time.Time) ExamState {
	next := s
	next.Seq = 0
	next.CreatedAt = now
	return next
}
