package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dshills/simpleflow/flow"
	"github.com/dshills/simpleflow/internal/checkout"
	"github.com/dshills/simpleflow/schedule"
)

func newServeCmd(a *app) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout flow on the configured schedules",
		Long: `Serve triggers the checkout flow on every entry of the schedules
section and, when metrics are enabled, serves Prometheus metrics on
metrics.addr until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if len(cfg.Schedules) == 0 {
				return errors.New("no schedules configured")
			}
			logger, err := a.logger(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			st, err := cfg.OpenHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			emitter, closeEmitter, err := cfg.NewEmitter(logger)
			if err != nil {
				return err
			}
			defer closeEmitter()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			engine, err := checkout.NewEngine(checkout.Config{}, append(cfg.EngineOptions(),
				flow.WithLogger(logger),
				flow.WithHistoryStore(st),
				flow.WithEmitter(emitter),
				flow.WithMetrics(cfg.NewMetrics(reg)),
			)...)
			if err != nil {
				return err
			}

			sched := schedule.New(schedule.WithLogger(logger))
			for _, s := range cfg.Schedules {
				job := schedule.RunEngine(engine, func() *checkout.Sale { return &checkout.Sale{} })
				if err := sched.Add(s.Name, s.Spec, job); err != nil {
					return err
				}
			}

			var srv *http.Server
			if cfg.Metrics.Enabled {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server failed", "error", err)
					}
				}()
				logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
			}

			sched.Start()
			<-ctx.Done()
			sched.Stop()

			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")

	return cmd
}
