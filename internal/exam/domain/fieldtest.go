package domain

import "time"

// FieldTestItemGroup is the immutable identity of one field-test group
// assignment for an exam segment.
type FieldTestItemGroup struct {
	ID         string
	ExamID     string
	SegmentKey string
	SegmentID  string
	GroupKey   string
	GroupID    string
	BlockID    string
	ItemCount  int
	SessionID  string
	CreatedAt  time.Time
}

// FieldTestItemGroupState is one full snapshot of a group's mutable facts.
type FieldTestItemGroupState struct {
	GroupRowID string
	Seq        uint64

	PositionAdministered *int
	AdministeredAt       *time.Time
	DeletedAt            *time.Time
	CreatedAt            time.Time
}

// Deleted reports whether the snapshot marks the assignment logically deleted.
func (s FieldTestItemGroupState) Deleted() bool {
	return s.DeletedAt != nil
}

// NextSnapshot copies the snapshot forward for a new event.
func (s FieldTestItemGroupState) NextSnapshot(now time.Time) FieldTestItemGroupState {
	next := s
	next.Seq = 0
	next.CreatedAt = now
	return next
}
