package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// runStoreContract exercises the HistoryStore contract against any
// implementation. Flow names and run IDs are unique per call so database
// backed stores can be reused between test runs.
func runStoreContract(t *testing.T, st HistoryStore) {
	t.Helper()
	ctx := context.Background()
	flow := "checkout-" + uuid.NewString()[:8]
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("start append finish load", func(t *testing.T) {
		runID := uuid.NewString()
		if err := st.StartRun(ctx, RunRecord{ID: runID, Flow: flow, StartedAt: started}); err != nil {
			t.Fatalf("StartRun: %v", err)
		}

		entries := []Entry{
			{Seq: 1, NodeID: "init", Name: "Init", Succeeded: true, At: started.Add(time.Millisecond)},
			{Seq: 2, NodeID: "state-tax", Name: "StateTax", Succeeded: true, Message: "Not executed. Did not pass the condition.", At: started.Add(2 * time.Millisecond)},
			{Seq: 3, NodeID: "update-db", Name: "UpdateDatabase", Error: "connection refused", At: started.Add(3 * time.Millisecond)},
		}
		for _, e := range entries {
			if err := st.AppendEntry(ctx, runID, e); err != nil {
				t.Fatalf("AppendEntry(%d): %v", e.Seq, err)
			}
		}

		run, err := st.LoadRun(ctx, runID)
		if err != nil {
			t.Fatalf("LoadRun: %v", err)
		}
		if run.Status != RunRunning {
			t.Errorf("status = %q, want %q", run.Status, RunRunning)
		}
		if run.Finished() {
			t.Error("run should not be finished yet")
		}
		if !run.StartedAt.Equal(started) {
			t.Errorf("started = %v, want %v", run.StartedAt, started)
		}
		if len(run.Entries) != len(entries) {
			t.Fatalf("expected %d entries, got %d", len(entries), len(run.Entries))
		}
		for i, got := range run.Entries {
			want := entries[i]
			if got.Seq != want.Seq || got.NodeID != want.NodeID || got.Name != want.Name ||
				got.Succeeded != want.Succeeded || got.Message != want.Message || got.Error != want.Error {
				t.Errorf("entry %d = %+v, want %+v", i, got, want)
			}
			if !got.At.Equal(want.At) {
				t.Errorf("entry %d at = %v, want %v", i, got.At, want.At)
			}
		}

		finished := started.Add(time.Second)
		if err := st.FinishRun(ctx, runID, RunFailed, "node update-db failed", finished); err != nil {
			t.Fatalf("FinishRun: %v", err)
		}
		run, err = st.LoadRun(ctx, runID)
		if err != nil {
			t.Fatalf("LoadRun: %v", err)
		}
		if run.Status != RunFailed || run.Error != "node update-db failed" {
			t.Errorf("got status %q error %q", run.Status, run.Error)
		}
		if !run.FinishedAt.Equal(finished) {
			t.Errorf("finished = %v, want %v", run.FinishedAt, finished)
		}
	})

	t.Run("duplicate run", func(t *testing.T) {
		runID := uuid.NewString()
		if err := st.StartRun(ctx, RunRecord{ID: runID, Flow: flow, StartedAt: started}); err != nil {
			t.Fatalf("StartRun: %v", err)
		}
		err := st.StartRun(ctx, RunRecord{ID: runID, Flow: flow, StartedAt: started})
		if !errors.Is(err, ErrRunExists) {
			t.Errorf("expected ErrRunExists, got %v", err)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		missing := uuid.NewString()
		if _, err := st.LoadRun(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadRun: expected ErrNotFound, got %v", err)
		}
		if err := st.AppendEntry(ctx, missing, Entry{Seq: 1, NodeID: "a", Name: "A", At: started}); !errors.Is(err, ErrNotFound) {
			t.Errorf("AppendEntry: expected ErrNotFound, got %v", err)
		}
		if err := st.FinishRun(ctx, missing, RunSucceeded, "", started); !errors.Is(err, ErrNotFound) {
			t.Errorf("FinishRun: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("list most recent first", func(t *testing.T) {
		listFlow := flow + "-list"
		var ids []string
		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("%s-%d", uuid.NewString(), i)
			ids = append(ids, id)
			if err := st.StartRun(ctx, RunRecord{ID: id, Flow: listFlow, StartedAt: started.Add(time.Duration(i) * time.Second)}); err != nil {
				t.Fatalf("StartRun: %v", err)
			}
		}

		runs, err := st.ListRuns(ctx, listFlow, 0)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(runs))
		}
		for i, run := range runs {
			if want := ids[len(ids)-1-i]; run.ID != want {
				t.Errorf("run %d = %s, want %s", i, run.ID, want)
			}
			if len(run.Entries) != 0 {
				t.Errorf("ListRuns should not load entries")
			}
		}

		limited, err := st.ListRuns(ctx, listFlow, 2)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(limited) != 2 {
			t.Errorf("expected 2 runs with limit, got %d", len(limited))
		}
	})

	t.Run("concurrent appends", func(t *testing.T) {
		runID := uuid.NewString()
		if err := st.StartRun(ctx, RunRecord{ID: runID, Flow: flow, StartedAt: started}); err != nil {
			t.Fatalf("StartRun: %v", err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 1; i <= 10; i++ {
			wg.Add(1)
			go func(seq int) {
				defer wg.Done()
				errs <- st.AppendEntry(ctx, runID, Entry{Seq: seq, NodeID: fmt.Sprintf("n%d", seq), Name: "N", Succeeded: true, At: started})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("AppendEntry: %v", err)
			}
		}

		run, err := st.LoadRun(ctx, runID)
		if err != nil {
			t.Fatalf("LoadRun: %v", err)
		}
		if len(run.Entries) != 10 {
			t.Fatalf("expected 10 entries, got %d", len(run.Entries))
		}
		for i, e := range run.Entries {
			if e.Seq != i+1 {
				t.Errorf("entries not ordered by seq: position %d has seq %d", i, e.Seq)
			}
		}
	})
}

func runClosedContract(t *testing.T, st HistoryStore) {
	t.Helper()
	ctx := context.Background()

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.StartRun(ctx, RunRecord{ID: "after-close", Flow: "f"}); !errors.Is(err, ErrClosed) {
		t.Errorf("StartRun after Close: expected ErrClosed, got %v", err)
	}
	if _, err := st.ListRuns(ctx, "", 0); !errors.Is(err, ErrClosed) {
		t.Errorf("ListRuns after Close: expected ErrClosed, got %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
