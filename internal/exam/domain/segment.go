package domain

import (
	"sort"
	"strings"
	"time"
)

// Restore conditions recorded on a permeable segment. The pause listener only
// revokes permeability for the segment and paused conditions.
const (
	RestoreConditionSegment = "segment"
	RestoreConditionPaused  = "paused"
)

// itemPoolDelimiter joins the serialized item pool set. The delimiter is part
// of the persisted format and must not change.
const itemPoolDelimiter = ","

// Segment is the immutable identity of one exam segment, materialized at
// assembly time.
type Segment struct {
	ExamID     string
	Position   int
	SegmentKey string
	SegmentID  string
	FormKey    string
	FormID     string
	Algorithm  string
	CreatedAt  time.Time
}

// SegmentState is one full snapshot of a segment's mutable facts.
type SegmentState struct {
	ExamID   string
	Position int
	Seq      uint64

	Satisfied        bool
	Permeable        bool
	RestoreCondition string
	ExitedAt         *time.Time

	ItemPool      []string
	PoolCount     int
	OffGradeItems string

	DeletedAt *time.Time
	CreatedAt time.Time
}

// Deleted reports whether the snapshot marks the segment logically deleted.
func (s SegmentState) Deleted() bool {
	return s.DeletedAt != nil
}

// NextSnapshot copies the snapshot forward for a new event.
func (s SegmentState) NextSnapshot(now time.Time) SegmentState {
	next := s
	next.Seq = 0
	next.CreatedAt = now
	next.ItemPool = append([]string(nil), s.ItemPool...)
	return next
}

// EncodeItemPool serializes an item pool set for persistence.
//
// The entire pool travels on every segment event; an empty set encodes to the
// empty string.
func EncodeItemPool(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	items := make([]string, 0, len(pool))
	for _, item := range pool {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	sort.Strings(items)
	return strings.Join(items, itemPoolDelimiter)
}

// DecodeItemPool reverses EncodeItemPool.
//
// The empty string decodes to an empty set, never a set holding one empty
// string.
func DecodeItemPool(encoded string) []string {
	if strings.TrimSpace(encoded) == "" {
		return []string{}
	}
	parts := strings.Split(encoded, itemPoolDelimiter)
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		items = append(items, part)
	}
	return items
}
