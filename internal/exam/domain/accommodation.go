package domain

import "time"

// Accommodation is the immutable identity of one granted accommodation.
//
// The combine/default flags are static per-type declarations honored by
// callers assembling a final accommodation set; the combination algorithm
// itself lives outside this core.
type Accommodation struct {
	ID         string
	ExamID     string
	SegmentKey string
	Type       string
	Code       string
	Value      string

	AllowCombine         bool
	AllowChange          bool
	DefaultAccommodation bool

	CreatedAt time.Time
}

// AccommodationState is one full snapshot of an accommodation's mutable facts.
type AccommodationState struct {
	AccommodationID string
	Seq             uint64

	DeniedAt   *time.Time
	Selectable bool
	DeletedAt  *time.Time
	CreatedAt  time.Time
}

// Deleted reports whether the snapshot marks the accommodation logically deleted.
func (s AccommodationState) Deleted() bool {
	return s.DeletedAt != nil
}

// Denied reports whether the snapshot carries an active denial.
func (s AccommodationState) Denied() bool {
	return s.DeniedAt != nil
}

// NextSnapshot copies the snapshot forward for a new event.
func (s AccommodationState) NextSnapshot(now time.Time) AccommodationState {
	next := s
	next.Seq = 0
	next.CreatedAt = now
	return next
}
