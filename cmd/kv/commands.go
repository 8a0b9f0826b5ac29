package kv

import (
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get KEY",
		Short: "Prints the value of a key",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bdbTool.Get(cmd.Context(), args[0])
		},
	}
	setCmd = &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Sets the value of a key, replacing any previous value",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bdbTool.Set(cmd.Context(), args[0], args[1])
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete KEY",
		Short: "Deletes a key",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bdbTool.Delete(cmd.Context(), args[0])
		},
	}
	renameCmd = &cobra.Command{
		Use:   "rename OLDKEY NEWKEY",
		Short: "Moves the value of OLDKEY to NEWKEY",
		Long: `Moves the value of OLDKEY to NEWKEY in a single scope.

Fails with "Already exists: NEWKEY => VALUE" and leaves the database unchanged
when NEWKEY already exists, unless --force is given.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			return bdbTool.Rename(cmd.Context(), args[0], args[1], force)
		},
	}
	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Writes all records to stdout, one per line",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bdbTool.Dump(cmd.Context())
		},
	}
	restoreCmd = &cobra.Command{
		Use:   "restore FILE_PATH",
		Short: "Loads all records of a dump file into the database",
		Long: `Loads all records of a dump file into the database.

Existing keys are overwritten. Lines that do not match the format are skipped
with a warning. Under the txn strategy the whole file is applied atomically.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bdbTool.Restore(cmd.Context(), args[0])
		},
	}
	countCmd = &cobra.Command{
		Use:   "count",
		Short: "Prints the number of records",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bdbTool.Count(cmd.Context())
		},
	}
	compactCmd = &cobra.Command{
		Use:   "compact",
		Short: "Rewrites the database file without overwritten and deleted records",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bdbTool.Compact(cmd.Context())
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints information about the database file and its engine",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bdbTool.Info(cmd.Context())
		},
	}
)
