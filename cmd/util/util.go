package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/bdbtool/lib/coord"
	"github.com/ValentinKolb/bdbtool/lib/dump"
	"github.com/ValentinKolb/bdbtool/lib/env"
	"github.com/ValentinKolb/bdbtool/lib/tool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of environment variables read by viper
	EnvPrefix = "bdbtool"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupGlobalFlags adds the flags shared by all commands
func SetupGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.StringP("db", "d", "", WrapString("Path of the database file (mandatory for all data commands)"))
	flags.StringP("env", "e", "", WrapString("Environment home directory. Enables the cds and txn strategies"))
	flags.StringP("strategy", "s", string(coord.KindAuto), WrapString(fmt.Sprintf("Concurrency strategy (%s). auto selects txn when an environment is given and none otherwise", joinKinds())))
	flags.Bool("temp-db", false, WrapString("Use a temporary database that is removed when the command exits. -d is not needed"))
	flags.String("format", dump.FormatRaw, WrapString(fmt.Sprintf("Format of dump and restore (%s)", strings.Join(dump.Formats, ", "))))
	flags.Duration("lock-timeout", 0, WrapString("How long to wait for a lock before giving up (0 waits forever, overrides lock_timeout of DB_CONFIG)"))
	flags.String("log-level", "warn", WrapString("Log level (debug, info, warn, error)"))
	flags.String("metrics-file", "", WrapString("Write metrics in the Prometheus text format to this file on exit"))
	flags.Bool("man", false, WrapString("Print the full manual and exit"))
}

func joinKinds() string {
	kinds := make([]string, 0, len(coord.Kinds))
	for _, k := range coord.Kinds {
		kinds = append(kinds, string(k))
	}
	return strings.Join(kinds, ", ")
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Settings
// --------------------------------------------------------------------------

// Settings is the resolved configuration of one invocation
type Settings struct {
	DBPath      string
	EnvHome     string
	Strategy    coord.Kind
	Format      string
	TempDB      bool
	LockTimeout time.Duration
	LogLevel    string
	MetricsFile string
}

// GetSettings reads the settings from viper. Invalid values are usage errors.
func GetSettings() (*Settings, error) {
	kind, err := coord.ParseKind(viper.GetString("strategy"))
	if err != nil {
		return nil, tool.Usagef("%v", err)
	}
	s := &Settings{
		DBPath:      viper.GetString("db"),
		EnvHome:     viper.GetString("env"),
		Strategy:    kind,
		Format:      viper.GetString("format"),
		TempDB:      viper.GetBool("temp-db"),
		LockTimeout: viper.GetDuration("lock-timeout"),
		LogLevel:    viper.GetString("log-level"),
		MetricsFile: viper.GetString("metrics-file"),
	}
	if s.LockTimeout < 0 {
		return nil, tool.Usagef("--lock-timeout must not be negative")
	}
	return s, nil
}

// ResolveDBPath returns the database path of s. With TempDB a fresh temporary
// directory is created and removed by the exit hooks.
func ResolveDBPath(s *Settings) (string, error) {
	if s.TempDB {
		dir, err := TempDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "temp.db"), nil
	}
	if s.DBPath == "" {
		return "", tool.Usagef("missing mandatory option -d (database path)")
	}
	return env.ExpandHome(s.DBPath), nil
}

// TempDir creates a temporary directory that is removed by the exit hooks
func TempDir() (string, error) {
	dir, err := os.MkdirTemp("", "bdbtool-")
	if err != nil {
		return "", fmt.Errorf("creating temporary directory: %w", err)
	}
	OnExit(func() { _ = os.RemoveAll(dir) })
	return dir, nil
}

// NewStrategy creates the strategy of the given kind for the database at
// dbPath, opening the environment of s if one is configured.
func NewStrategy(kind coord.Kind, dbPath string, s *Settings) (coord.Strategy, error) {
	opts := coord.Options{
		DBPath:      dbPath,
		LockTimeout: s.LockTimeout,
	}
	if s.EnvHome != "" {
		e, err := env.Open(s.EnvHome)
		if err != nil {
			return nil, err
		}
		// an explicit flag or env var wins over DB_CONFIG
		if viper.IsSet("lock-timeout") {
			e.SetLockTimeout(s.LockTimeout)
		}
		cfg := e.Config()
		opts.Env = e
		opts.Shards = cfg.Shards
		opts.CompactSlack = cfg.CompactSlack
	}

	strategy, err := coord.New(kind, opts)
	if errors.Is(err, coord.ErrEnvRequired) {
		return nil, tool.Usagef("%v", err)
	}
	return strategy, err
}

// NewTool resolves the database, environment, strategy and codec of s and
// creates the command layer writing to cmd's output.
func NewTool(cmd *cobra.Command, s *Settings) (*tool.Tool, error) {
	codec, err := dump.New(s.Format)
	if err != nil {
		return nil, tool.Usagef("%v", err)
	}
	dbPath, err := ResolveDBPath(s)
	if err != nil {
		return nil, err
	}
	strategy, err := NewStrategy(s.Strategy, dbPath, s)
	if err != nil {
		return nil, err
	}
	return tool.New(tool.Config{DBPath: dbPath, Codec: codec}, strategy, cmd.OutOrStdout()), nil
}

// --------------------------------------------------------------------------
// Exit hooks
// --------------------------------------------------------------------------

var (
	exitMu    sync.Mutex
	exitHooks []func()
)

// OnExit registers fn to run when the command finished, in reverse order of registration
func OnExit(fn func()) {
	exitMu.Lock()
	defer exitMu.Unlock()
	exitHooks = append(exitHooks, fn)
}

// RunExitHooks runs and clears all registered exit hooks
func RunExitHooks() {
	exitMu.Lock()
	hooks := exitHooks
	exitHooks = nil
	exitMu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}
