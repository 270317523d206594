package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/partwise/partwise/pkg/types"
)

func newRouteCmd(flags *globalFlags) *cobra.Command {
	var (
		rowJSON string
		columns []string
	)
	cmd := &cobra.Command{
		Use:   "route TABLE",
		Short: "Show the partition a row belongs to",
		Long: `Route a row given either as a JSON object or as column=value pairs.
Partitions are created on demand for tables with auto_create set.

  partwise route events --row '{"id": 42}'
  partwise route events --set id=42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := buildRow(rowJSON, columns)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, _, cleanup, err := flags.open(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := a.Router.Route(ctx, args[0], row)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&rowJSON, "row", "", "row as a JSON object")
	cmd.Flags().StringArrayVar(&columns, "set", nil, "column=value (repeatable)")
	return cmd
}

func buildRow(rowJSON string, columns []string) (types.Row, error) {
	row := types.Row{}
	if rowJSON != "" {
		dec := json.NewDecoder(strings.NewReader(rowJSON))
		dec.UseNumber()
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("invalid --row: %w", err)
		}
		row = row.NormalizeJSONNumbers()
	}
	for _, kv := range columns {
		col, val, ok := strings.Cut(kv, "=")
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid --set %q, want column=value", kv)
		}
		row[col] = parseValue(val)
	}
	if len(row) == 0 {
		return nil, fmt.Errorf("a row is required (--row or --set)")
	}
	return row, nil
}
