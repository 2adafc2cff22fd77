package history

import (
	"context"
	"strings"

	"github.com/louisbranch/examroom/internal/exam/storage"
	apperrors "github.com/louisbranch/examroom/internal/platform/errors"
)

// Query describes one event-history listing.
type Query struct {
	ExamID string
	// Filter is an optional AIP-160 expression over status, stage, reason
	// and ts.
	Filter     string
	PageSize   int
	CursorSeq  uint64
	Descending bool
}

// Service answers operator queries against the exam event journal.
type Service struct {
	store storage.HistoryStore
}

// NewService builds a history service on the provided store.
func NewService(store storage.HistoryStore) *Service {
	return &Service{store: store}
}

// ListEvents returns one page of an exam's event journal matching the query.
func (s *Service) ListEvents(ctx context.Context, q Query) (storage.ListExamHistoryResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.ListExamHistoryResult{}, err
	}
	if strings.TrimSpace(q.ExamID) == "" {
		return storage.ListExamHistoryResult{}, apperrors.New(apperrors.CodeExamEmptyID, "exam id is required")
	}

	condition, err := parseEventFilter(q.Filter)
	if err != nil {
		return storage.ListExamHistoryResult{}, apperrors.Wrap(
			apperrors.CodeHistoryFilterInvalid,
			"filter expression is invalid",
			err,
		)
	}

	return s.store.ListExamHistory(ctx, storage.ListExamHistoryRequest{
		ExamID:       q.ExamID,
		PageSize:     q.PageSize,
		CursorSeq:    q.CursorSeq,
		Descending:   q.Descending,
		FilterClause: condition.Clause,
		FilterParams: condition.Params,
	})
}
