package emit

import (
	"sync"
	"testing"
)

func TestBufferedEmitter_StoresEvents(t *testing.T) {
	t.Run("stores events in order", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		emitter.Emit(Event{RunID: "run-001", Seq: 1, NodeID: "init", Msg: MsgNodeStart})
		emitter.Emit(Event{RunID: "run-001", Seq: 2, NodeID: "init", Msg: MsgNodeEnd})
		emitter.Emit(Event{RunID: "run-001", Seq: 3, NodeID: "discount", Msg: MsgNodeStart})

		history := emitter.GetHistory("run-001")
		if len(history) != 3 {
			t.Fatalf("expected 3 events, got %d", len(history))
		}
		for i, e := range history {
			if e.Seq != i+1 {
				t.Errorf("event %d: seq = %d, want %d", i, e.Seq, i+1)
			}
		}
	})

	t.Run("isolates events by runID", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		emitter.Emit(Event{RunID: "run-001", Msg: "event1"})
		emitter.Emit(Event{RunID: "run-002", Msg: "event2"})
		emitter.Emit(Event{RunID: "run-001", Msg: "event3"})

		if got := len(emitter.GetHistory("run-001")); got != 2 {
			t.Errorf("run-001: expected 2 events, got %d", got)
		}
		if got := len(emitter.GetHistory("run-002")); got != 1 {
			t.Errorf("run-002: expected 1 event, got %d", got)
		}

		runs := emitter.Runs()
		if len(runs) != 2 || runs[0] != "run-001" || runs[1] != "run-002" {
			t.Errorf("Runs() = %v, want [run-001 run-002]", runs)
		}
	})

	t.Run("unknown run returns empty slice", func(t *testing.T) {
		emitter := NewBufferedEmitter()
		history := emitter.GetHistory("missing")
		if history == nil {
			t.Fatal("expected non-nil slice")
		}
		if len(history) != 0 {
			t.Errorf("expected 0 events, got %d", len(history))
		}
	})
}

func TestBufferedEmitter_Filter(t *testing.T) {
	emitter := NewBufferedEmitter()
	for i, msg := range []string{MsgRunStart, MsgNodeStart, MsgNodeEnd, MsgNodeSkipped, MsgRunEnd} {
		node := ""
		if msg != MsgRunStart && msg != MsgRunEnd {
			node = "tax"
		}
		emitter.Emit(Event{RunID: "r", Seq: i + 1, NodeID: node, Msg: msg})
	}

	t.Run("by message", func(t *testing.T) {
		got := emitter.GetHistoryWithFilter("r", HistoryFilter{Msg: MsgNodeSkipped})
		if len(got) != 1 || got[0].Seq != 4 {
			t.Errorf("got %+v, want single node_skipped at seq 4", got)
		}
	})

	t.Run("by node", func(t *testing.T) {
		got := emitter.GetHistoryWithFilter("r", HistoryFilter{NodeID: "tax"})
		if len(got) != 3 {
			t.Errorf("expected 3 events for node tax, got %d", len(got))
		}
	})

	t.Run("by sequence range", func(t *testing.T) {
		minSeq, maxSeq := 2, 3
		got := emitter.GetHistoryWithFilter("r", HistoryFilter{MinSeq: &minSeq, MaxSeq: &maxSeq})
		if len(got) != 2 {
			t.Fatalf("expected 2 events, got %d", len(got))
		}
		if got[0].Msg != MsgNodeStart || got[1].Msg != MsgNodeEnd {
			t.Errorf("unexpected events: %+v", got)
		}
	})
}

func TestBufferedEmitter_Clear(t *testing.T) {
	emitter := NewBufferedEmitter()
	emitter.Emit(Event{RunID: "a", Msg: MsgRunStart})
	emitter.Emit(Event{RunID: "b", Msg: MsgRunStart})

	emitter.Clear("a")
	if len(emitter.GetHistory("a")) != 0 {
		t.Error("run a should be cleared")
	}
	if len(emitter.GetHistory("b")) != 1 {
		t.Error("run b should be kept")
	}
	if runs := emitter.Runs(); len(runs) != 1 || runs[0] != "b" {
		t.Errorf("Runs() = %v, want [b]", runs)
	}

	emitter.Clear("")
	if len(emitter.Runs()) != 0 {
		t.Error("expected all runs cleared")
	}
}

func TestBufferedEmitter_Concurrent(t *testing.T) {
	emitter := NewBufferedEmitter()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			emitter.Emit(Event{RunID: "run", Seq: seq, Msg: MsgNodeEnd})
		}(i)
	}
	wg.Wait()

	if got := len(emitter.GetHistory("run")); got != 20 {
		t.Errorf("expected 20 events, got %d", got)
	}
}
