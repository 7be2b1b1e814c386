package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/kvdoc/isardb"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDumpCmd())
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <dir> <collection>",
		Short: "Human-readable dump of a collection's records",
		Long: `The dump command decodes and prints every record of one collection.

Example:
  isarctl dump ./data users
  isarctl dump ./data users --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args)
		},
	}
	return cmd
}

func runDump(args []string) error {
	dir, collectionName := args[0], args[1]
	printVerbose("Opening instance: %s\n", dir)

	records, err := isardb.Dump(context.Background(), dir, collectionName)
	if err != nil {
		return fmt.Errorf("failed to dump collection %q: %w", collectionName, err)
	}

	if jsonOut {
		return printJSON(records)
	}

	printInfo("\nDump of %q (%d records):\n\n", collectionName, len(records))
	for _, r := range records {
		printInfo("id=%d\n", r.ID)
		names := make([]string, 0, len(r.Fields))
		for name := range r.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			printInfo("  %s = %v\n", name, r.Fields[name])
		}
		printInfo("\n")
	}

	return nil
}
