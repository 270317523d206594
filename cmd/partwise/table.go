package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/partwise/partwise/internal/manifest"
	"github.com/partwise/partwise/pkg/types"
)

func newTableCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage partitioned tables in the catalog",
	}
	cmd.AddCommand(
		newTableRegisterCmd(flags),
		newTableShowCmd(flags),
		newTableListCmd(flags),
		newTableDropCmd(flags),
		newTableAddPartitionCmd(flags),
		newTableHistoryCmd(flags),
	)
	return cmd
}

func newTableRegisterCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "register FILE",
		Short: "Register a table from a YAML or JSON definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := readTableDef(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, _, cleanup, err := flags.open(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			spec, err := a.Catalog.RegisterTable(ctx, *def)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (version %d, %d partitions)\n",
				spec.TableID, spec.Version, spec.NumPartitions())
			return nil
		},
	}
}

func readTableDef(path string) (*types.TableDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table file: %w", err)
	}
	var def types.TableDef
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &def)
	default:
		err = yaml.Unmarshal(data, &def)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse table file: %w", err)
	}
	return &def, nil
}

func newTableShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show TABLE",
		Short: "Print a table definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, cleanup, err := flags.open(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			def, err := a.Catalog.GetTableDef(ctx, args[0])
			if err != nil {
				return err
			}
			return yaml.NewEncoder(cmd.OutOrStdout()).Encode(def)
		},
	}
}

func newTableListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, cleanup, err := flags.open(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			defs, err := a.Catalog.ListTables(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tSTRATEGY\tKEY\tPARTITIONS\tVERSION")
			for _, def := range defs {
				fmt.Fprintf(tw, "%s\t%s\t%s %s\t%d\t%d\n",
					def.TableID, def.Strategy, def.KeyExpr, def.KeyKind, partitionCount(def), def.Version)
			}
			return tw.Flush()
		},
	}
}

func partitionCount(def types.TableDef) int {
	if def.Strategy == types.StrategyHash {
		return int(def.HashPartitions)
	}
	return len(def.Ranges)
}

func newTableDropCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "drop TABLE",
		Short: "Remove a table from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, cleanup, err := flags.open(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.Catalog.DropTable(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", args[0])
			return nil
		},
	}
}

func newTableAddPartitionCmd(flags *globalFlags) *cobra.Command {
	var rd types.RangeDef
	cmd := &cobra.Command{
		Use:   "add-partition TABLE",
		Short: "Add a range partition; an empty bound is unbounded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, cleanup, err := flags.open(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			spec, err := a.Catalog.AddRangePartition(ctx, args[0], rd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now at version %d with %d partitions\n",
				spec.TableID, spec.Version, spec.NumPartitions())
			return nil
		},
	}
	cmd.Flags().StringVar(&rd.Name, "name", "", "partition name (generated when empty)")
	cmd.Flags().StringVar(&rd.Min, "min", "", "inclusive lower bound")
	cmd.Flags().StringVar(&rd.Max, "max", "", "exclusive upper bound")
	return cmd
}

func newTableHistoryCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history TABLE",
		Short: "List the stored versions of a table definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, cleanup, err := flags.open(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := manifest.NewSpecHistory(a.Catalog).ListVersions(ctx, args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tCHANGE\tPARTITIONS\tCREATED")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", r.Version, r.Change, partitionCount(r.Def), r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return tw.Flush()
		},
	}
}
