package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"corpora/internal/daemon"
	"corpora/internal/logging"
	"corpora/internal/preflight"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled pipeline passes in the foreground",
		Long: "Run scheduled pipeline passes in the foreground until interrupted.\n\n" +
			"Each tick reclaims stale claims and drains the configured subsets (all\n" +
			"subsets when none are configured). Only one daemon may run per data\n" +
			"directory. Use --once for a single pass without scheduling.",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if failed := preflight.Failed(preflight.RunAll(signalCtx, cfg)); len(failed) > 0 {
				for _, result := range failed {
					fmt.Fprintf(cmd.ErrOrStderr(), "preflight %s: %s\n", result.Name, result.Detail)
				}
				return fmt.Errorf("%d preflight checks failed", len(failed))
			}

			engine, err := ctx.ensureEngine(signalCtx)
			if err != nil {
				return err
			}
			d, err := daemon.New(cfg, engine, ctx.logger, ctx.metrics)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			if once {
				report, err := d.RunOnce(signalCtx)
				printReport(cmd, "all subsets", report)
				return err
			}

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			status := d.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "corpora daemon running (schedule %s, next run %s)\n",
				cfg.Daemon.Schedule, formatWhen(status.NextRun))

			<-signalCtx.Done()
			ctx.logger.Info("corpora daemon shutting down", logging.String(logging.FieldEventType, "shutdown"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	return cmd
}
