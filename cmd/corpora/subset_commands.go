package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"corpora/internal/corpus"
	"corpora/internal/subset"
)

func newSubsetCommand(ctx *commandContext) *cobra.Command {
	subsetCmd := &cobra.Command{
		Use:   "subset",
		Short: "Define and inspect subsets",
	}

	subsetCmd.AddCommand(newSubsetDefineCommand(ctx))
	subsetCmd.AddCommand(newSubsetListCommand(ctx))
	subsetCmd.AddCommand(newSubsetStatusCommand(ctx))
	subsetCmd.AddCommand(newSubsetResetCommand(ctx))
	subsetCmd.AddCommand(newSubsetRetryCommand(ctx))
	subsetCmd.AddCommand(newSubsetFailuresCommand(ctx))

	return subsetCmd
}

// parseIDs reads comma-separated key parts, one document per value.
func parseIDs(values []string) ([]corpus.DocumentID, error) {
	ids := make([]corpus.DocumentID, 0, len(values))
	for _, value := range values {
		parts := strings.Split(strings.TrimSpace(value), ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		id := corpus.NewDocumentID(parts...)
		if err := id.Validate(); err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", value, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newSubsetDefineCommand(ctx *commandContext) *cobra.Command {
	var table string
	var mirror bool
	var idValues []string

	cmd := &cobra.Command{
		Use:   "define <name>",
		Short: "Define a subset over a corpus table",
		Long: "Define a subset over a corpus table.\n\n" +
			"Without --id every document of the table is included. --mirror keeps the\n" +
			"subset in sync with later imports into the table. Composite ids are given\n" +
			"as comma-separated parts, for example --id book-1,3.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(table) == "" {
				return errors.New("--table is required")
			}
			def := subset.Definition{Name: args[0], Table: table, Mirror: mirror}
			if len(idValues) > 0 {
				ids, err := parseIDs(idValues)
				if err != nil {
					return err
				}
				def.Keys = ids
			}
			engine, err := ctx.ensureEngine(cmd.Context())
			if err != nil {
				return err
			}
			defined, err := engine.Tracker.Define(cmd.Context(), def)
			if err != nil {
				return err
			}
			counts, err := engine.Tracker.Status(cmd.Context(), defined.Name)
			if err != nil {
				return err
			}
			kind := "subset"
			if defined.Mirror {
				kind = "mirror subset"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Defined %s %s over %s (%d documents)\n", kind, defined.Name, defined.Table, counts.Total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "Corpus table the subset draws from")
	cmd.Flags().BoolVar(&mirror, "mirror", false, "Track every key of the table, including future imports")
	cmd.Flags().StringArrayVar(&idValues, "id", nil, "Document id to include (repeatable)")
	return cmd
}

func newSubsetListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List defined subsets with status counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.ensureEngine(cmd.Context())
			if err != nil {
				return err
			}
			subsets, err := engine.Tracker.List(cmd.Context())
			if err != nil {
				return err
			}

			type subsetView struct {
				Name   string        `json:"name"`
				Table  string        `json:"table"`
				Mirror bool          `json:"mirror"`
				Counts subset.Counts `json:"counts"`
			}
			views := make([]subsetView, 0, len(subsets))
			for _, s := range subsets {
				counts, err := engine.Tracker.Status(cmd.Context(), s.Name)
				if err != nil {
					return err
				}
				views = append(views, subsetView{Name: s.Name, Table: s.Table, Mirror: s.Mirror, Counts: counts})
			}
			if jsonOut {
				return writeJSON(cmd, views)
			}

			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "No subsets defined")
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{
					v.Name,
					v.Table,
					yesNo(v.Mirror),
					strconv.Itoa(v.Counts.Total),
					strconv.Itoa(v.Counts.Unprocessed),
					strconv.Itoa(v.Counts.InProcess),
					strconv.Itoa(v.Counts.Processed),
					strconv.Itoa(v.Counts.Failed),
				})
			}
			fmt.Fprintln(out, renderTable("",
				[]string{"Name", "Table", "Mirror", "Total", "Unprocessed", "In Process", "Processed", "Failed"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newSubsetStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status <name>",
		Short: "Show status counts for a subset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.ensureEngine(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := engine.Tracker.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, counts)
			}
			p := newPrinter(cmd)
			p.section(args[0])
			p.status("total", statusInfo, strconv.Itoa(counts.Total))
			p.status("unprocessed", statusInfo, strconv.Itoa(counts.Unprocessed))
			p.status("in_process", statusInfo, strconv.Itoa(counts.InProcess))
			p.status("processed", statusOK, strconv.Itoa(counts.Processed))
			p.count("failed", counts.Failed, statusError)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newSubsetResetCommand(ctx *commandContext) *cobra.Command {
	var idValues []string

	cmd := &cobra.Command{
		Use:   "reset <name>",
		Short: "Return documents to unprocessed",
		Long:  "Return documents to unprocessed. Without --id the whole subset is reset.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.ensureEngine(cmd.Context())
			if err != nil {
				return err
			}
			var n int
			if len(idValues) > 0 {
				ids, perr := parseIDs(idValues)
				if perr != nil {
					return perr
				}
				n, err = engine.Tracker.ResetIDs(cmd.Context(), args[0], ids)
			} else {
				n, err = engine.Tracker.ResetAll(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d documents in %s\n", n, args[0])
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&idValues, "id", nil, "Document id to reset (repeatable)")
	return cmd
}

func newSubsetRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <name>",
		Short: "Return failed documents to unprocessed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.ensureEngine(cmd.Context())
			if err != nil {
				return err
			}
			n, err := engine.Tracker.ResetFailed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No failed documents to retry")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed documents\n", n)
			return nil
		},
	}
}

func newSubsetFailuresCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "failures <name>",
		Short: "List documents whose last run failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.ensureEngine(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := engine.Tracker.Failures(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No failed documents")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.ID.String(),
					e.LastComponent,
					e.ClaimedBy,
					formatWhen(e.UpdatedAt),
					truncate(e.ErrorMessage, 60),
				})
			}
			fmt.Fprintln(out, renderTable(args[0],
				[]string{"ID", "Stage", "Worker", "Updated", "Error"},
				rows, nil))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of failures to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
