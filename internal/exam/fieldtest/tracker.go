// Package fieldtest reports which field-test item groups an exam actually
// administered, and at which position.
package fieldtest

import (
	"context"
	"time"

	"github.com/louisbranch/examroom/internal/exam/domain"
	"github.com/louisbranch/examroom/internal/exam/storage"
)

// trackerStore is the slice of persistence the tracker needs.
type trackerStore interface {
	storage.FieldTestStore
	storage.PageStore
}

// Usage reports the administration of one field-test group.
type Usage struct {
	Group domain.FieldTestItemGroup
	// PositionAdministered is the minimum item position at which the group's
	// field-test items were delivered.
	PositionAdministered int
}

// Tracker resolves field-test usage from the exam's delivered pages and items.
type Tracker struct {
	store trackerStore
	now   func() time.Time
}

// NewTracker builds a tracker on the provided store.
func NewTracker(store trackerStore) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// FindUsage resolves the administered position of every field-test group
// assigned to the exam.
//
// Group assignments whose own administration record is soft-deleted still
// count; the downstream reporting system expects usage for them. Items only
// count when their containing page's current state is live. Groups with no
// matching item are absent from the result.
func (t *Tracker) FindUsage(ctx context.Context, examID string) ([]Usage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups, err := t.store.LatestFieldTestGroups(ctx, examID, true)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}

	pages, err := t.store.LatestPages(ctx, examID)
	if err != nil {
		return nil, err
	}
	livePages := make(map[string]struct{}, len(pages))
	for _, page := range pages {
		if page.State.Deleted() {
			continue
		}
		livePages[page.Page.ID] = struct{}{}
	}

	items, err := t.store.ListItems(ctx, examID)
	if err != nil {
		return nil, err
	}
	minPositions := make(map[string]int)
	for _, item := range items {
		if !item.FieldTest {
			continue
		}
		if _, ok := livePages[item.PageID]; !ok {
			continue
		}
		if current, seen := minPositions[item.GroupKey]; !seen || item.Position < current {
			minPositions[item.GroupKey] = item.Position
		}
	}

	var usages []Usage
	for _, group := range groups {
		position, ok := minPositions[group.Group.GroupKey]
		if !ok {
			continue
		}
		usages = append(usages, Usage{
			Group:                group.Group,
			PositionAdministered: position,
		})
	}
	return usages, nil
}

// RecordUsage appends an administration event for every administered group
// that does not already carry one.
func (t *Tracker) RecordUsage(ctx context.Context, examID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	usages, err := t.FindUsage(ctx, examID)
	if err != nil {
		return err
	}
	if len(usages) == 0 {
		return nil
	}

	groups, err := t.store.LatestFieldTestGroups(ctx, examID, true)
	if err != nil {
		return err
	}
	states := make(map[string]domain.FieldTestItemGroupState, len(groups))
	for _, group := range groups {
		states[group.Group.ID] = group.State
	}

	now := t.now()
	for _, usage := range usages {
		position := usage.PositionAdministered
		state, seen := states[usage.Group.ID]
		if !seen || state.PositionAdministered != nil {
			continue
		}
		next := state.NextSnapshot(now)
		next.PositionAdministered = &position
		next.AdministeredAt = &now
		if _, err := t.store.AppendFieldTestGroupEvent(ctx, next); err != nil {
			return err
		}
	}
	return nil
}
