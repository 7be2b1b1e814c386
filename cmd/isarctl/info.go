package main

import (
	"context"
	"fmt"

	"github.com/kvdoc/isardb"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <dir>",
		Short: "Report an instance's identity and registered collections",
		Long: `The info command opens an isardb instance directory read-only and
reports its instance id and every registered collection's schema version,
property count, indexes, links, and record count.

Example:
  isarctl info ./data
  isarctl info ./data --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args)
		},
	}
	return cmd
}

func runInfo(args []string) error {
	dir := args[0]
	printVerbose("Opening instance: %s\n", dir)

	info, err := isardb.Inspect(context.Background(), dir)
	if err != nil {
		return fmt.Errorf("failed to inspect instance: %w", err)
	}

	if jsonOut {
		return printJSON(info)
	}

	printInfo("\nInstance Information:\n")
	printInfo("  Dir:         %s\n", info.Dir)
	printInfo("  Instance ID: %s\n", info.InstanceID)
	printInfo("  Collections: %d\n", len(info.Collections))

	for _, c := range info.Collections {
		printInfo("\n[%s]\n", c.Name)
		printInfo("  ID:         %d\n", c.ID)
		printInfo("  Version:    %d\n", c.Version)
		printInfo("  Properties: %d\n", c.PropertyCount)
		printInfo("  Records:    %d\n", c.RecordCount)
		if len(c.Indexes) > 0 {
			printInfo("  Indexes:    %v\n", c.Indexes)
		}
		if len(c.Links) > 0 {
			printInfo("  Links:      %v\n", c.Links)
		}
	}

	return nil
}
