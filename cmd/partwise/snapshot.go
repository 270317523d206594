package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/manifest"
)

func newSnapshotCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export and import table definitions through object storage",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "export TABLE",
			Short: "Write the current definition of a table to storage",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				a, _, cleanup, err := flags.open(ctx, nil)
				if err != nil {
					return err
				}
				defer cleanup()

				path, err := manifest.ExportSnapshot(ctx, a.Catalog, a.Storage, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
		newSnapshotImportCmd(flags),
		&cobra.Command{
			Use:   "reconcile",
			Short: "Compare the catalog with the exported snapshots",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				a, _, cleanup, err := flags.open(ctx, nil)
				if err != nil {
					return err
				}
				defer cleanup()

				report, err := manifest.Reconcile(ctx, a.Catalog, a.Storage)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if report.HasIssues() {
					return errors.Newf(errors.ErrCategoryCatalog, errors.CodeConsistencyViolation,
						"%d orphaned snapshots, %d stale tables",
						len(report.OrphanedSnapshots), len(report.StaleTables))
				}
				return nil
			},
		},
	)
	return cmd
}

func newSnapshotImportCmd(flags *globalFlags) *cobra.Command {
	var latest bool
	cmd := &cobra.Command{
		Use:   "import PATH | import --latest TABLE",
		Short: "Load a table definition from storage into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, cleanup, err := flags.open(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			path := args[0]
			if latest {
				if path, _, err = manifest.LatestSnapshot(ctx, a.Storage, args[0]); err != nil {
					return err
				}
			}
			spec, err := manifest.ImportSnapshot(ctx, a.Catalog, a.Storage, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s from %s (version %d)\n", spec.TableID, path, spec.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "import the newest snapshot of the named table")
	return cmd
}
