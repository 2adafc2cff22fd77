package domain

import "time"

// Page is the immutable identity of one delivered exam page.
type Page struct {
	ID              string
	ExamID          string
	Position        int
	SegmentKey      string
	SegmentPosition int
	ItemGroupKey    string
	CreatedAt       time.Time
}

// PageState is one full snapshot of a page's mutable facts.
type PageState struct {
	PageID string
	Seq    uint64

	StartedAt *time.Time
	Visits    int
	DeletedAt *time.Time
	CreatedAt time.Time
}

// Deleted reports whether the snapshot marks the page logically deleted.
func (s PageState) Deleted() bool {
	return s.DeletedAt != nil
}

// NextSnapshot copies the snapshot forward for a new event.
func (s PageState) NextSnapshot(now time.Time) PageState {
	next := s
	next.Seq = 0
	next.CreatedAt = now
	return next
}

// Item is an identity-only entity: items never mutate after assembly.
type Item struct {
	ID           string
	PageID       string
	ExamID       string
	Position     int
	ItemKey      string
	BankKey      string
	GroupKey     string
	FilePath     string
	StimulusPath string
	FieldTest    bool
	Required     bool
	CreatedAt    time.Time
}
