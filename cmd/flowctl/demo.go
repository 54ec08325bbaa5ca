package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dshills/simpleflow/flow"
	"github.com/dshills/simpleflow/internal/checkout"
)

func newDemoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run or describe the sample checkout flow",
	}
	cmd.AddCommand(
		newDemoCheckoutCmd(a),
		newDemoDescribeCmd(a),
	)
	return cmd
}

// checkoutResult is the JSON output of demo checkout.
type checkoutResult struct {
	RunID  string            `json:"run_id,omitempty"`
	Flow   string            `json:"flow"`
	Error  string            `json:"error,omitempty"`
	Pruned []string          `json:"pruned,omitempty"`
	Sale   checkout.Summary  `json:"sale"`
	Status map[string]string `json:"status,omitempty"`
}

func newDemoCheckoutCmd(a *app) *cobra.Command {
	var (
		incentive bool
		exempt    bool
		parallel  int
	)

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Run the checkout flow once and print the sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.config()
			if err != nil {
				return err
			}
			logger, err := a.logger(cfg)
			if err != nil {
				return err
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

			opts := append(cfg.EngineOptions(),
				flow.WithLogger(logger),
				flow.WithHistoryStore(st),
				flow.WithEmitter(emitter),
				flow.WithMetrics(cfg.NewMetrics(prometheus.NewRegistry())),
			)
			if cmd.Flags().Changed("parallel") {
				opts = append(opts, flow.WithMaxConcurrent(parallel))
			}

			engine, err := checkout.NewEngine(checkout.Config{}, opts...)
			if err != nil {
				return err
			}

			sale := &checkout.Sale{StateTaxIncentive: incentive, MunicipalTaxExempt: exempt}
			report, runErr := engine.Execute(ctx, sale)

			res := checkoutResult{Flow: checkout.FlowName, Sale: sale.Summary()}
			if report != nil {
				res.RunID = report.RunID
				res.Pruned = report.Pruned
				res.Status = make(map[string]string, len(report.Statuses))
				for id, s := range report.Statuses {
					res.Status[id] = s.String()
				}
			}
			if runErr != nil {
				res.Error = runErr.Error()
			}

			if err := printCheckout(a.output(), res); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&incentive, "incentive", false, "Apply the state tax incentive")
	cmd.Flags().BoolVar(&exempt, "municipal-exempt", false, "Skip the municipal tax")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "Run up to N processes at once (overrides engine.max_concurrent)")

	return cmd
}

func printCheckout(out *output, res checkoutResult) error {
	if out.jsonMode {
		return out.json(res)
	}

	fmt.Fprintf(out.w, "Run %s of %s\n\n", res.RunID, res.Flow)

	var rows [][]string
	add := func(kind string, lines []checkout.Line, sign string) {
		for _, l := range lines {
			rows = append(rows, []string{kind, l.Name, sign + l.Value.String()})
		}
	}
	add("product", res.Sale.Products, "")
	add("discount", res.Sale.Discounts, "-")
	add("tax", res.Sale.Taxes, "")
	rows = append(rows, []string{"total", "", res.Sale.Total.String()})
	if err := out.table([]string{"KIND", "NAME", "VALUE"}, rows); err != nil {
		return err
	}

	fmt.Fprintln(out.w)
	if err := out.table([]string{"#", "NODE", "RESULT", "DETAIL"}, historyRows(res.Sale.History)); err != nil {
		return err
	}

	if len(res.Pruned) > 0 {
		fmt.Fprintf(out.w, "\nPruned: %s\n", strings.Join(res.Pruned, ", "))
	}
	if res.Sale.OrderID != "" {
		fmt.Fprintf(out.w, "\nOrder %s saved.\n", res.Sale.OrderID)
	}
	return nil
}

func historyRows(hist []flow.ProcessHistory) [][]string {
	rows := make([][]string, len(hist))
	for i, h := range hist {
		rows[i] = []string{strconv.Itoa(i + 1), h.Name, result(h.Succeeded, h.Message), detail(h.Message, h.Error)}
	}
	return rows
}

func result(succeeded bool, message string) string {
	switch {
	case !succeeded:
		return "failed"
	case message != "":
		return "skipped"
	default:
		return "ok"
	}
}

func detail(message, errMsg string) string {
	if errMsg != "" {
		return errMsg
	}
	return message
}

func newDemoDescribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Print the nodes of the checkout flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := checkout.Build()
			if err != nil {
				return err
			}
			nodes := g.Nodes()
			if len(nodes) == 0 {
				return errors.New("checkout flow has no nodes")
			}

			rows := make([][]string, len(nodes))
			for i, n := range nodes {
				cond := ""
				if n.Conditional {
					cond = "yes"
				}
				rows[i] = []string{
					n.ID, n.Branch, n.Type.String(), string(n.Process), cond,
					strings.Join(n.Predecessors, ","),
				}
			}
			return a.output().print(
				[]string{"ID", "BRANCH", "TYPE", "PROCESS", "CONDITIONAL", "AFTER"},
				rows, nodes,
			)
		},
	}
}
