package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dshills/simpleflow/flow"
	"github.com/dshills/simpleflow/flow/store"
	"github.com/dshills/simpleflow/internal/checkout"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noop(context.Context) error { return nil }

func TestAddValidation(t *testing.T) {
	s := New(WithLogger(quietLogger()))

	tests := []struct {
		name string
		sch  string
		spec string
		job  Job
	}{
		{"empty name", "", "@hourly", noop},
		{"nil job", "a", "@hourly", nil},
		{"bad spec", "a", "every day", noop},
		{"too many fields", "a", "* * * * * * *", noop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Add(tt.sch, tt.spec, tt.job); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if err := s.Add("a", "*/5 * * * *", noop); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("a", "@daily", noop); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate Add: %v", err)
	}
}

func TestTriggerAndEntries(t *testing.T) {
	errFail := errors.New("fail")
	fail := true
	s := New(WithLogger(quietLogger()), WithLocation(time.UTC))

	if err := s.Add("b", "@daily", func(context.Context) error {
		if fail {
			return errFail
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("a", "@hourly", noop); err != nil {
		t.Fatal(err)
	}

	if err := s.Trigger(context.Background(), "b"); !errors.Is(err, errFail) {
		t.Fatalf("Trigger = %v, want errFail", err)
	}
	fail = false
	if err := s.Trigger(context.Background(), "b"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	entries := s.Entries()
	if len(entries) != 2 || entries[0].Name != "a" || entries[1].Name != "b" {
		t.Fatalf("Entries = %+v", entries)
	}
	if entries[1].Runs != 2 || entries[1].Failures != 1 {
		t.Errorf("b runs=%d failures=%d, want 2 and 1", entries[1].Runs, entries[1].Failures)
	}
	if entries[0].Spec != "@hourly" {
		t.Errorf("a spec = %q", entries[0].Spec)
	}

	if err := s.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove("a"); !errors.Is(err, ErrUnknown) {
		t.Errorf("second Remove = %v", err)
	}
	if err := s.Trigger(context.Background(), "a"); !errors.Is(err, ErrUnknown) {
		t.Errorf("Trigger removed = %v", err)
	}
}

func TestJobTimeout(t *testing.T) {
	s := New(WithLogger(quietLogger()), WithJobTimeout(20*time.Millisecond))
	if err := s.Add("slow", "@hourly", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	err := s.Trigger(context.Background(), "slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Trigger = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout not applied, took %v", time.Since(start))
	}
}

func TestStartRunsJobs(t *testing.T) {
	fired := make(chan struct{}, 4)
	s := New(WithLogger(quietLogger()))
	if err := s.Add("tick", "@every 1s", func(context.Context) error {
		fired <- struct{}{}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	s.Start()
	defer s.Stop()

	if next := s.Entries()[0].Next; next.IsZero() {
		t.Error("Next not computed after Start")
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
}

func TestRunEngine(t *testing.T) {
	st := store.NewMemStore()
	engine, err := checkout.NewEngine(checkout.Config{},
		flow.WithHistoryStore(st),
		flow.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatal(err)
	}

	var last *checkout.Sale
	s := New(WithLogger(quietLogger()))
	if err := s.Add("checkout", "@hourly", RunEngine(engine, func() *checkout.Sale {
		last = &checkout.Sale{}
		return last
	})); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Trigger(context.Background(), "checkout"); err != nil {
			t.Fatalf("Trigger %d: %v", i, err)
		}
	}

	if last == nil || last.OrderID() == "" {
		t.Fatal("sale not processed")
	}
	runs, err := st.ListRuns(context.Background(), checkout.FlowName, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("stored %d runs, want 2", len(runs))
	}
	for _, r := range runs {
		if r.Status != store.RunSucceeded {
			t.Errorf("run %s status = %s", r.ID, r.Status)
		}
	}
}
