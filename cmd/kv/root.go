package kv

import (
	"github.com/ValentinKolb/bdbtool/cmd/util"
	"github.com/ValentinKolb/bdbtool/lib/tool"
	"github.com/spf13/cobra"
)

var (
	bdbTool *tool.Tool

	// Commands are the data commands of bdb-tool
	Commands = []*cobra.Command{
		getCmd,
		setCmd,
		deleteCmd,
		renameCmd,
		dumpCmd,
		restoreCmd,
		countCmd,
		compactCmd,
		infoCmd,
		perfTestCmd,
	}
)

func init() {
	renameCmd.Flags().BoolP("force", "f", false, util.WrapString("Overwrite the new key if it already exists"))

	for _, cmd := range Commands {
		if cmd.PreRunE == nil {
			cmd.PreRunE = setupTool
		}
	}
}

// setupTool creates the command layer from the resolved configuration
func setupTool(cmd *cobra.Command, _ []string) error {
	settings, err := util.GetSettings()
	if err != nil {
		return err
	}
	bdbTool, err = util.NewTool(cmd, settings)
	return err
}

// exactArgs is cobra.ExactArgs returning a usage error. It accepts anything
// when --man is set since the manual is printed instead.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if man, _ := cmd.Flags().GetBool("man"); man {
			return nil
		}
		if len(args) != n {
			return tool.Usagef("%s expects %d argument(s), got %d\nUsage: %s", cmd.Name(), n, len(args), cmd.UseLine())
		}
		return nil
	}
}
