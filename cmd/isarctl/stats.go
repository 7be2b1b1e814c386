package main

import (
	"context"
	"fmt"

	"github.com/kvdoc/isardb"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatsCmd())
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <dir>",
		Short: "Show aggregate record counts across collections",
		Long: `The stats command summarizes an instance directory's total record
count, broken down by collection, along with each collection's index and
link count.

Example:
  isarctl stats ./data
  isarctl stats ./data --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args)
		},
	}
	return cmd
}

type collectionStats struct {
	Name       string
	Records    int
	IndexCount int
	LinkCount  int
}

type instanceStats struct {
	Dir          string
	TotalRecords int
	Collections  []collectionStats
}

func runStats(args []string) error {
	dir := args[0]
	printVerbose("Opening instance: %s\n", dir)

	info, err := isardb.Inspect(context.Background(), dir)
	if err != nil {
		return fmt.Errorf("failed to inspect instance: %w", err)
	}

	st := instanceStats{Dir: info.Dir}
	for _, c := range info.Collections {
		st.TotalRecords += c.RecordCount
		st.Collections = append(st.Collections, collectionStats{
			Name:       c.Name,
			Records:    c.RecordCount,
			IndexCount: len(c.Indexes),
			LinkCount:  len(c.Links),
		})
	}

	if jsonOut {
		return printJSON(st)
	}

	printInfo("\nInstance Statistics: %s\n", st.Dir)
	printInfo("  Total records: %d\n\n", st.TotalRecords)
	for _, c := range st.Collections {
		printInfo("  %-20s records=%-8d indexes=%-4d links=%d\n", c.Name, c.Records, c.IndexCount, c.LinkCount)
	}

	return nil
}
