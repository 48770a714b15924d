package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"corpora/internal/config"
	"corpora/internal/corpus"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <table> <file.jsonl>",
		Short: "Bulk import JSON Lines records into a corpus table",
		Long: "Bulk import JSON Lines records into a corpus table.\n\n" +
			"Each line is {\"id\": [\"part\", ...], \"fields\": {\"name\": \"value\"}}.\n" +
			"Mirror subsets over the table pick up new ids and are reset so the next\n" +
			"run re-checks every document.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			path, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			records, err := corpus.ReadJSONL(file)
			file.Close()
			if err != nil {
				return err
			}

			engine, err := ctx.ensureEngine(cmd.Context())
			if err != nil {
				return err
			}
			inv, err := ctx.invalidator(cmd.Context())
			if err != nil {
				return err
			}
			result, resets, err := inv.Import(cmd.Context(), engine.Corpus, table, records)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d records into %s: %d new, %d updated, %d unchanged\n",
				len(records), table, result.Inserted, result.Updated, result.Unchanged)
			for _, reset := range resets {
				fmt.Fprintf(out, "Reset mirror subset %s (%d documents)\n", reset.Subset, reset.Rows)
			}
			return nil
		},
	}
}
