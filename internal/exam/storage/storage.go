// Package storage defines the persistence boundary for the versioned exam
// entity store.
//
// Every mutable entity is persisted as an immutable identity row plus an
// append-only event table. Appends are pure inserts with a per-identity
// monotonic sequence number assigned at insert time; the current state of an
// identity is the event with the highest sequence number. State queries
// exclude identities whose latest event carries a soft-delete timestamp, and
// identities with zero events are not materialized.
//
// There is no in-process lock per exam. Two concurrent appends to the same
// identity both succeed and the later sequence number wins at read time.
// Writers that copy a snapshot forward therefore race under concurrent use;
// the normal workflow serializes writes per exam (a single examinee's browser
// is the sole writer for its own exam). Callers that need stronger guarantees
// use AppendExamEventExpecting.
package storage

import (
	"context"
	"time"

	"github.com/louisbranch/examroom/internal/exam/domain"
	apperrors "github.com/louisbranch/examroom/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity"
// states and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrConflict indicates a compare-and-swap append observed a newer event than
// the caller's snapshot.
var ErrConflict = apperrors.New(apperrors.CodeConflict, "event snapshot is stale")

// SegmentView pairs a segment identity with its current state.
type SegmentView struct {
	Segment domain.Segment
	State   domain.SegmentState
}

// PageView pairs a page identity with its current state.
type PageView struct {
	Page  domain.Page
	State domain.PageState
}

// AccommodationView pairs an accommodation identity with its current state.
type AccommodationView struct {
	Accommodation domain.Accommodation
	State         domain.AccommodationState
}

// FieldTestGroupView pairs a field-test group assignment with its current
// administration state.
type FieldTestGroupView struct {
	Group domain.FieldTestItemGroup
	State domain.FieldTestItemGroupState
}

// ExamStore owns the exam identity/event split.
type ExamStore interface {
	// CreateExam inserts the immutable exam identity row.
	CreateExam(ctx context.Context, exam domain.Exam) error
	// GetExam retrieves an exam identity by id.
	GetExam(ctx context.Context, examID string) (domain.Exam, error)
	// AppendExamEvent appends one full snapshot and returns its sequence
	// number. Returns ErrNotFound when the identity row does not exist.
	AppendExamEvent(ctx context.Context, state domain.ExamState) (uint64, error)
	// AppendExamEventExpecting appends only if the latest stored sequence
	// number equals expectedSeq, returning ErrConflict otherwise.
	AppendExamEventExpecting(ctx context.Context, state domain.ExamState, expectedSeq uint64) (uint64, error)
	// LatestExamState projects the current exam state. Returns ErrNotFound
	// when the exam has no events or its latest event is a soft delete.
	LatestExamState(ctx context.Context, examID string) (domain.ExamState, error)
	// LatestExamStates is the batched projection; missing or deleted exams
	// are absent from the result, not errors.
	LatestExamStates(ctx context.Context, examIDs []string) (map[string]domain.ExamState, error)
}

// SegmentStore owns segment identities and their event streams.
type SegmentStore interface {
	CreateSegment(ctx context.Context, segment domain.Segment) error
	GetSegment(ctx context.Context, examID string, position int) (domain.Segment, error)
	AppendSegmentEvent(ctx context.Context, state domain.SegmentState) (uint64, error)
	// LatestSegment projects the current state of one segment by its
	// (examID, position) pair, which resolves to at most one current row.
	LatestSegment(ctx context.Context, examID string, position int) (SegmentView, error)
	// LatestSegments projects all current non-deleted segments for an exam,
	// ordered by position.
	LatestSegments(ctx context.Context, examID string) ([]SegmentView, error)
	// CountUnsatisfiedSegments counts current non-deleted segments whose
	// latest event is unsatisfied.
	CountUnsatisfiedSegments(ctx context.Context, examID string) (int, error)
}

// PageStore owns page identities, page events, and the identity-only items.
type PageStore interface {
	CreatePage(ctx context.Context, page domain.Page) error
	CreateItems(ctx context.Context, items []domain.Item) error
	AppendPageEvent(ctx context.Context, state domain.PageState) (uint64, error)
	// LatestPages projects all current page states for an exam, including
	// pages whose latest event is a soft delete (callers filter).
	LatestPages(ctx context.Context, examID string) ([]PageView, error)
	// ListItems returns all item identities for an exam ordered by position.
	ListItems(ctx context.Context, examID string) ([]domain.Item, error)
}

// AccommodationStore owns accommodation identities and their event streams.
type AccommodationStore interface {
	CreateAccommodation(ctx context.Context, acc domain.Accommodation) error
	AppendAccommodationEvent(ctx context.Context, state domain.AccommodationState) (uint64, error)
	// LatestAccommodations projects all current non-deleted accommodations
	// for an exam. The (examID, segmentKey, type, code) tuple resolves to at
	// most one current row.
	LatestAccommodations(ctx context.Context, examID string) ([]AccommodationView, error)
}

// FieldTestStore owns field-test group assignments and administration events.
type FieldTestStore interface {
	CreateFieldTestGroup(ctx context.Context, group domain.FieldTestItemGroup) error
	AppendFieldTestGroupEvent(ctx context.Context, state domain.FieldTestItemGroupState) (uint64, error)
	// LatestFieldTestGroups projects current group states for an exam.
	// includeDeleted keeps assignments whose administration record is soft
	// deleted; administration history is preserved independent of the
	// assignment's deletion state for compatibility with the legacy system.
	LatestFieldTestGroups(ctx context.Context, examID string, includeDeleted bool) ([]FieldTestGroupView, error)
}

// OutboxEvent is one durable completion-notification row.
type OutboxEvent struct {
	ID            string
	Topic         string
	ExamID        string
	PayloadJSON   string
	Status        string
	AttemptCount  int
	NextAttemptAt time.Time
	LeaseOwner    string
	LeaseExpires  *time.Time
	LastError     string
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Outbox statuses.
const (
	OutboxStatusPending   = "pending"
	OutboxStatusDelivered = "delivered"
)

// OutboxStore persists best-effort completion notifications until delivery.
type OutboxStore interface {
	// EnqueueOutboxEvent stores one pending notification row.
	EnqueueOutboxEvent(ctx context.Context, event OutboxEvent) error
	// LeaseOutboxEvents leases due pending events for one worker.
	LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]OutboxEvent, error)
	// MarkOutboxDelivered finalizes a delivered event.
	MarkOutboxDelivered(ctx context.Context, id string, now time.Time) error
	// MarkOutboxFailed records a delivery failure and schedules a retry.
	MarkOutboxFailed(ctx context.Context, id string, failure string, nextAttemptAt time.Time) error
}

// ExamHistoryRecord is one exam event row as seen by audit tooling.
type ExamHistoryRecord struct {
	State domain.ExamState
}

// ListExamHistoryRequest describes filters for operator event-history views.
type ListExamHistoryRequest struct {
	// ExamID scopes the query to a specific exam (required).
	ExamID string
	// PageSize is the maximum number of events to return (default: 50, max: 200).
	PageSize int
	// CursorSeq is the sequence number to paginate from (0 for first page).
	CursorSeq uint64
	// Descending orders results by seq desc (newest first) when true.
	Descending bool
	// FilterClause is an optional SQL WHERE clause fragment.
	FilterClause string
	// FilterParams are the positional parameters for the filter clause.
	FilterParams []any
}

// ListExamHistoryResult contains paginated event history.
type ListExamHistoryResult struct {
	Records     []ExamHistoryRecord
	HasNextPage bool
	TotalCount  int
}

// HistoryStore exposes the raw event journal for introspection tooling.
type HistoryStore interface {
	ListExamHistory(ctx context.Context, req ListExamHistoryRequest) (ListExamHistoryResult, error)
}

// Store is the composite interface for all persistence concerns used across
// the lifecycle model, the transition listeners, and audit queries.
type Store interface {
	ExamStore
	SegmentStore
	PageStore
	AccommodationStore
	FieldTestStore
	OutboxStore
	HistoryStore
	Close() error
}
