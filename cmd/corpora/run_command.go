package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"corpora/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "run <subset>",
		Short: "Process every unprocessed document of a subset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			engine, err := ctx.ensureEngine(signalCtx)
			if err != nil {
				return err
			}
			report, runErr := engine.Runner.RunWorkers(signalCtx, args[0], workers)
			if jsonOut {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
				return runErr
			}
			printReport(cmd, args[0], report)
			return runErr
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Number of concurrent workers (default from config)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the run report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, name string, report pipeline.Report) {
	p := newPrinter(cmd)
	p.section("run " + name)
	p.status("claimed", statusInfo, fmt.Sprint(report.Claimed))
	p.status("processed", statusOK, fmt.Sprint(report.Processed))
	p.status("skipped", statusOK, fmt.Sprint(report.Skipped))
	p.count("failed", report.Failed, statusError)
	if report.Superseded > 0 {
		p.status("superseded", statusWarn, fmt.Sprint(report.Superseded))
	}
	if report.Released > 0 {
		p.status("released", statusWarn, fmt.Sprint(report.Released))
	}
	if report.Elapsed > 0 {
		p.status("elapsed", statusInfo, report.Elapsed.Round(time.Millisecond).String())
	}
}
