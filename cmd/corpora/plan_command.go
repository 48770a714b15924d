package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "plan <subset> <id>",
		Short: "Show the stage plan a document would follow",
		Long: "Show the stage plan a document would follow on its next run.\n\n" +
			"The content hash is compared with the stored artifact hash; unchanged\n" +
			"content takes the reduced plan. Nothing is executed.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			engine, err := ctx.ensureEngine(cmd.Context())
			if err != nil {
				return err
			}
			routes, err := engine.Runner.Explain(cmd.Context(), args[0], ids[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, routes)
			}

			out := cmd.OutOrStdout()
			if len(routes) == 0 {
				fmt.Fprintln(out, "Document expands to nothing; it would be checkpointed directly")
				return nil
			}
			rows := make([][]string, 0, len(routes))
			for _, r := range routes {
				var decision string
				switch {
				case r.Skip:
					decision = "unchanged"
				case r.Stored:
					decision = "changed"
				default:
					decision = "new"
				}
				rows = append(rows, []string{
					r.DocID.String(),
					titleLabel(decision),
					shortHash(r.Hash),
					shortHash(r.StoredHash),
					strings.Join(r.Plan, " → "),
				})
			}
			fmt.Fprintln(out, renderTable(args[0],
				[]string{"Document", "Content", "Hash", "Stored", "Plan"},
				rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func shortHash(hash string) string {
	if hash == "" {
		return "-"
	}
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
