package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dshills/simpleflow/config"
	"github.com/dshills/simpleflow/flow/store"
)

// app holds the global flags and the streams of one invocation.
type app struct {
	configPath string
	jsonOutput bool

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "flowctl",
		Short:         "Run process flows and inspect their history",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output in JSON format")

	root.AddCommand(
		newDemoCmd(a),
		newHistoryCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
	)
	return root
}

// config returns the file given with --config, or the defaults.
func (a *app) config() (*config.Config, error) {
	if a.configPath == "" {
		return config.Default(), nil
	}
	return config.Load(a.configPath)
}

// logger writes to stderr so stdout carries only command output.
func (a *app) logger(cfg *config.Config) (*slog.Logger, error) {
	return cfg.NewLogger(a.stderr)
}

func (a *app) output() *output {
	return &output{jsonMode: a.jsonOutput, w: a.stdout}
}

func (a *app) openStore(ctx context.Context) (*config.Config, store.HistoryStore, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, nil, err
	}
	st, err := cfg.OpenHistoryStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}
