package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/simpleflow/flow"
	"github.com/dshills/simpleflow/flow/emit"
	"github.com/dshills/simpleflow/flow/store"
)

// EngineOptions returns the flow options of the engine section.
func (c *Config) EngineOptions() []flow.Option {
	return []flow.Option{
		flow.WithMaxConcurrent(c.Engine.MaxConcurrent),
		flow.WithDefaultNodeTimeout(c.Engine.NodeTimeout.Std()),
		flow.WithRunWallClockBudget(c.Engine.RunBudget.Std()),
		flow.WithPrunedHistory(c.Engine.RecordPruned),
	}
}

// OpenHistoryStore opens the store selected by the history section.
func (c *Config) OpenHistoryStore(ctx context.Context) (store.HistoryStore, error) {
	var (
		st  store.HistoryStore
		err error
	)
	switch c.History.Driver {
	case "", DriverMemory:
		return store.NewMemStore(), nil
	case DriverSQLite:
		st, err = openStore(store.NewSQLiteStore(c.History.DSN))
	case DriverMySQL:
		st, err = openStore(store.NewMySQLStore(c.History.DSN))
	case DriverPostgres:
		st, err = openStore(store.NewPostgresStore(ctx, c.History.DSN))
	default:
		return nil, fmt.Errorf("unknown history driver %q", c.History.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s history: %w", c.History.Driver, err)
	}
	return st, nil
}

func openStore[S store.HistoryStore](st S, err error) (store.HistoryStore, error) {
	if err != nil {
		return nil, err
	}
	return st, nil
}

// NewLogger returns a slog logger writing to w with the logging section's
// level and format.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if c.Logging.Level != "" {
		if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Logging.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// NewMetrics registers flow metrics with reg when metrics are enabled.
// It returns nil otherwise.
func (c *Config) NewMetrics(reg prometheus.Registerer) *flow.PrometheusMetrics {
	if !c.Metrics.Enabled {
		return nil
	}
	return flow.NewPrometheusMetrics(reg)
}

// NewEmitter returns the emitters of the events section. The returned close
// function releases the AMQP connection, if any.
func (c *Config) NewEmitter(logger *slog.Logger) (emit.Emitter, func() error, error) {
	var emitters []emit.Emitter
	closer := func() error { return nil }

	if c.Events.Log {
		emitters = append(emitters, emit.NewSlogEmitter(logger))
	}
	if c.Events.AMQPURL != "" {
		opts := []emit.AMQPOption{emit.WithAMQPLogger(logger)}
		if c.Events.Exchange != "" {
			opts = append(opts, emit.WithExchange(c.Events.Exchange))
		}
		pub, err := emit.DialAMQP(c.Events.AMQPURL, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("events: %w", err)
		}
		emitters = append(emitters, pub)
		closer = pub.Close
	}

	switch len(emitters) {
	case 0:
		return emit.NewNullEmitter(), closer, nil
	case 1:
		return emitters[0], closer, nil
	default:
		return emit.NewMulti(emitters...), closer, nil
	}
}
