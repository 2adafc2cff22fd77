package transition

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/examroom/internal/exam/domain"
)

type fakeListener struct {
	name  string
	err   error
	calls *[]string
}

func (l *fakeListener) Name() string { return l.name }

func (l *fakeListener) OnStatusChange(context.Context, domain.ExamState, domain.ExamState) error {
	*l.calls = append(*l.calls, l.name)
	return l.err
}

func TestDispatchOrder(t *testing.T) {
	var calls []string
	d := NewDispatcher(
		&fakeListener{name: "first", calls: &calls},
		&fakeListener{name: "second", calls: &calls},
		&fakeListener{name: "third", calls: &calls},
	)

	err := d.Dispatch(context.Background(),
		domain.ExamState{Status: domain.StatusStarted},
		domain.ExamState{Status: domain.StatusPaused},
	)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(calls) != 3 || calls[0] != "first" || calls[1] != "second" || calls[2] != "third" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestDispatchSkipsEqualStatus(t *testing.T) {
	var calls []string
	d := NewDispatcher(&fakeListener{name: "only", calls: &calls})

	err := d.Dispatch(context.Background(),
		domain.ExamState{Status: domain.StatusPaused, StatusReason: "old reason"},
		domain.ExamState{Status: domain.StatusPaused, StatusReason: "new reason"},
	)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("calls = %v, want none", calls)
	}
}

func TestDispatchAbortsOnError(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	d := NewDispatcher(
		&fakeListener{name: "first", calls: &calls},
		&fakeListener{name: "second", calls: &calls, err: boom},
		&fakeListener{name: "third", calls: &calls},
	)

	err := d.Dispatch(context.Background(),
		domain.ExamState{Status: domain.StatusStarted},
		domain.ExamState{Status: domain.StatusDenied},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %v, want first and second only", calls)
	}
}
