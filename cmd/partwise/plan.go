package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/partwise/partwise/internal/query/planner"
)

func newPlanCmd(flags *globalFlags) *cobra.Command {
	var (
		params  []string
		rewrite bool
	)
	cmd := &cobra.Command{
		Use:   "plan SQL",
		Short: "Show the partitions a SELECT has to scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, cleanup, err := flags.open(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			plan, err := a.Planner.Plan(ctx, args[0], parseParams(params))
			if err != nil {
				return err
			}
			if !rewrite {
				return printJSON(cmd.OutOrStdout(), plan)
			}
			for _, q := range planner.Rewrite(plan) {
				fmt.Fprintf(cmd.OutOrStdout(), "-- %s\n%s;\n", targetLabel(q.Target), q.Statement)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "value bound to the next $n placeholder (repeatable)")
	cmd.Flags().BoolVar(&rewrite, "rewrite", false, "print one rewritten statement per partition")
	return cmd
}

func targetLabel(t planner.ScanTarget) string {
	if t.Recheck {
		return t.Name + " (recheck)"
	}
	return t.Name
}

// parseParams turns command line values into int64, float64, nil or string.
func parseParams(raw []string) []interface{} {
	if len(raw) == 0 {
		return nil
	}
	out := make([]interface{}, len(raw))
	for i, s := range raw {
		out[i] = parseValue(s)
	}
	return out
}

func parseValue(s string) interface{} {
	if s == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
