package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/bdbtool/cmd/kv"
	"github.com/ValentinKolb/bdbtool/cmd/util"
	"github.com/ValentinKolb/bdbtool/lib/logging"
	"github.com/ValentinKolb/bdbtool/lib/metrics"
	"github.com/ValentinKolb/bdbtool/lib/tool"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	Version = "1.0.0"
)

// Exit codes of bdb-tool
const (
	ExitOK          = 0
	ExitUsage       = 1
	ExitFlagParse   = 2
	ExitConflict    = 3
	ExitStorage     = 4
	ExitInterrupted = 5
)

// errManual stops the execution after the manual was printed
var errManual = errors.New("manual printed")

// flagError marks an option parsing failure
type flagError struct {
	err error
}

func (e *flagError) Error() string { return e.err.Error() }
func (e *flagError) Unwrap() error { return e.err }

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:     "bdb-tool",
		Short:   "file-backed key-value store tool",
		Version: Version,
		Long: fmt.Sprintf(`bdb-tool (v%s)

Command line access to a file-backed hash key-value store. Every invocation
runs exactly one command against the database given with -d.

Concurrent invocations are coordinated by one of these strategies (-s):

  none   no coordination, only safe without concurrent writers
  flock  writers take an exclusive lock on DB.flock, readers do not lock
  cds    readers share and writers exclusively hold a lock in the
         environment (-e)
  txn    like cds, and every command is a transaction that is applied
         completely or not at all
  auto   txn when -e is given, none otherwise (default)

Environment variables prefixed with BDBTOOL_ (e.g. BDBTOOL_DB, BDBTOOL_ENV,
BDBTOOL_LOCK_TIMEOUT) set the options of the same name. An environment may
contain a DB_CONFIG file (TOML) with lock_timeout, compact_slack and shards.

Exit codes: 0 success, 1 usage error, 2 invalid option, 3 rename conflict,
4 storage error or lock timeout, 5 interrupted.`, Version),
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return tool.Usagef("missing command")
			}
			return tool.Usagef("unknown command %q", args[0])
		},
		Args: cobra.ArbitraryArgs,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	RootCmd.SetVersionTemplate("bdb-tool.pl version {{.Version}}\n")
	RootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &flagError{err: err}
	})

	util.SetupGlobalFlags(RootCmd)
	RootCmd.AddCommand(kv.Commands...)
}

// setup binds the flags, initializes logging and handles --man
func setup(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := logging.Init(cmd.ErrOrStderr(), viper.GetString("log-level")); err != nil {
		return tool.Usagef("%v", err)
	}
	if man, _ := cmd.Flags().GetBool("man"); man {
		printManual(cmd.Root(), cmd.OutOrStdout())
		return errManual
	}
	return nil
}

// printManual writes the long help of the root and every command
func printManual(root *cobra.Command, w io.Writer) {
	fmt.Fprintln(w, root.Long)
	fmt.Fprintln(w)
	fmt.Fprint(w, root.UsageString())
	for _, c := range root.Commands() {
		if !c.IsAvailableCommand() {
			continue
		}
		fmt.Fprintf(w, "\n%s\n\n", c.UseLine())
		if c.Long != "" {
			fmt.Fprintln(w, c.Long)
		} else {
			fmt.Fprintln(w, c.Short)
		}
		if flags := c.LocalNonPersistentFlags(); flags.HasFlags() {
			fmt.Fprintf(w, "\nFlags:\n%s", flags.FlagUsages())
		}
	}
}

// ExitCode maps the error of a command to the process exit code
func ExitCode(err error) int {
	var fe *flagError
	if errors.As(err, &fe) {
		return ExitFlagParse
	}
	if errors.Is(err, errManual) {
		return ExitOK
	}
	switch tool.Result(err) {
	case "ok":
		return ExitOK
	case "conflict":
		return ExitConflict
	case "interrupted":
		return ExitInterrupted
	case "storage":
		return ExitStorage
	default:
		return ExitUsage
	}
}

// Run executes the root command with args, writing to out and errOut, and
// returns the exit code.
func Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	defer util.RunExitHooks()

	if args == nil {
		args = []string{}
	}
	RootCmd.SetArgs(args)
	RootCmd.SetOut(out)
	RootCmd.SetErr(errOut)
	resetFlags(RootCmd)

	executed, err := RootCmd.ExecuteContextC(ctx)

	if path := viper.GetString("metrics-file"); path != "" {
		if merr := metrics.WriteFile(path); merr != nil {
			fmt.Fprintf(errOut, "Error: writing metrics: %v\n", merr)
		}
	}

	code := ExitCode(err)
	if code == ExitOK {
		return code
	}

	// a conflict prints the existing pair as the diagnostic
	var conflict *tool.ConflictError
	if errors.As(err, &conflict) {
		fmt.Fprintln(errOut, conflict.Error())
	} else {
		fmt.Fprintf(errOut, "Error: %v\n", err)
	}
	if code == ExitUsage || code == ExitFlagParse {
		if executed == nil {
			executed = RootCmd
		}
		fmt.Fprintf(errOut, "Run '%s --help' for usage.\n", executed.CommandPath())
	}
	return code
}

// resetFlags restores the defaults of all flags so Run can be called repeatedly
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// Execute runs bdb-tool with the process arguments. SIGINT and SIGTERM cancel
// the running command. This is called by main.main().
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
