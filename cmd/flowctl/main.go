// Command flowctl runs the sample checkout flow and inspects recorded run
// history.
//
// Usage:
//
//	flowctl [--config FILE] [--json] <command> [flags]
//
// Commands:
//
//	demo      Run or describe the checkout flow
//	history   List and show recorded runs
//	serve     Run configured schedules and expose metrics
//	config    Print the effective configuration
package main

import (
	"fmt"
	"os"
)

// version is set with -ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
