package emit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
)

// LogEmitter implements Emitter by writing structured log records through slog.
//
// Supports two output modes:
//   - Text mode (default): slog text handler, key=value pairs
//   - JSON mode: slog JSON handler, one event per line
//
// Example text output:
//
//	time=... level=INFO msg=node_end run_id=4f1c... flow=checkout seq=2 node_id=discount duration_ms=3
//
// node_error and failed run_end events are logged at ERROR level, everything
// else at INFO.
//
// Usage:
//
//	emitter := emit.NewLogEmitter(os.Stdout, false)
//
//	f, _ := os.Create("events.jsonl")
//	defer f.Close()
//	emitter := emit.NewLogEmitter(f, true)
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter writing to writer.
// A nil writer defaults to os.Stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	var handler slog.Handler
	if jsonMode {
		handler = slog.NewJSONHandler(writer, nil)
	} else {
		handler = slog.NewTextHandler(writer, nil)
	}
	return &LogEmitter{logger: slog.New(handler)}
}

// NewSlogEmitter creates a LogEmitter that logs through an existing logger.
func NewSlogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit writes the event as a single log record.
func (l *LogEmitter) Emit(event Event) {
	attrs := []slog.Attr{
		slog.String("run_id", event.RunID),
		slog.String("flow", event.Flow),
	}
	if event.Seq > 0 {
		attrs = append(attrs, slog.Int("seq", event.Seq))
	}
	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node_id", event.NodeID))
	}

	// Sorted for stable output.
	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Meta[k]))
	}

	l.logger.LogAttrs(context.Background(), levelFor(event), event.Msg, attrs...)
}

func levelFor(event Event) slog.Level {
	if event.Msg == MsgNodeError {
		return slog.LevelError
	}
	if _, failed := event.Meta["error"]; failed && event.Msg == MsgRunEnd {
		return slog.LevelError
	}
	return slog.LevelInfo
}
