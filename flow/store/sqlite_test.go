package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, newTestSQLiteStore(t))
}

func TestSQLiteStore_Closed(t *testing.T) {
	runClosedContract(t, newTestSQLiteStore(t))
}

func TestSQLiteStore_InMemory(t *testing.T) {
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()

	if err := st.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if st.Path() != ":memory:" {
		t.Errorf("Path = %q", st.Path())
	}
}

func TestSQLiteStore_CloseAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	st, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.StartRun(ctx, RunRecord{ID: "run-1", Flow: "checkout", StartedAt: started}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := st.AppendEntry(ctx, "run-1", Entry{Seq: 1, NodeID: "init", Name: "Init", Succeeded: true, At: started}); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	if err := st.FinishRun(ctx, "run-1", RunSucceeded, "", started.Add(time.Second)); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	run, err := reopened.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if run.Status != RunSucceeded {
		t.Errorf("status = %q, want succeeded", run.Status)
	}
	if len(run.Entries) != 1 || run.Entries[0].NodeID != "init" {
		t.Errorf("unexpected entries: %+v", run.Entries)
	}
}
