package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ValentinKolb/bdbtool/lib/db/util"
	"github.com/ValentinKolb/bdbtool/lib/lockmgr"
	"github.com/ValentinKolb/bdbtool/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("env")

// ConfigFile is the name of the optional configuration file in an environment home
const ConfigFile = "DB_CONFIG"

// Config holds the settings of an environment, read from <home>/DB_CONFIG
type Config struct {
	// LockTimeout bounds the wait for a lock, 0 waits forever
	LockTimeout time.Duration `toml:"lock_timeout"`
	// CompactSlack is the number of dead records tolerated before a store compacts on close, 0 uses the store default
	CompactSlack int `toml:"compact_slack"`
	// Shards is the shard count of the hash engine, 0 picks the engine default
	Shards int `toml:"shards"`
}

// Defaults returns a Config with the built-in defaults
func Defaults() Config {
	return Config{
		LockTimeout:  0,
		CompactSlack: 1000,
		Shards:       0,
	}
}

// Env is an environment home: a directory holding the lock files of the
// databases used with it and an optional DB_CONFIG.
type Env struct {
	home   string
	config Config
	locks  lockmgr.ILockManager
}

// Open opens the environment at home, creating the directory if needed, and
// reads its DB_CONFIG. A missing DB_CONFIG yields the defaults.
func Open(home string) (*Env, error) {
	home = ExpandHome(home)
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, store.WrapError(store.RetCStorage, fmt.Sprintf("cannot create environment '%s'", home), err)
	}

	cfg, err := LoadConfig(filepath.Join(home, ConfigFile))
	if err != nil {
		return nil, err
	}

	return &Env{
		home:   home,
		config: cfg,
	}, nil
}

// LoadConfig reads a DB_CONFIG file on top of the defaults.
// If the file does not exist, only defaults are returned.
func LoadConfig(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, store.WrapError(store.RetCStorage, "reading environment config", err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, store.WrapError(store.RetCStorage, fmt.Sprintf("parsing environment config '%s'", path), err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown setting %q ignored", path, key.String())
	}
	if cfg.LockTimeout < 0 || cfg.CompactSlack < 0 || cfg.Shards < 0 {
		return cfg, store.NewError(store.RetCStorage, fmt.Sprintf("environment config '%s': negative values are not allowed", path))
	}
	return cfg, nil
}

// Home returns the environment directory
func (e *Env) Home() string {
	return e.home
}

// Config returns the settings read from DB_CONFIG
func (e *Env) Config() Config {
	return e.config
}

// SetLockTimeout overrides the lock timeout of DB_CONFIG.
// It must be called before the first call to Locks.
func (e *Env) SetLockTimeout(d time.Duration) {
	e.config.LockTimeout = d
}

// Locks returns the lock manager of the environment
func (e *Env) Locks() lockmgr.ILockManager {
	if e.locks == nil {
		e.locks = lockmgr.NewLockManager(e.config.LockTimeout)
	}
	return e.locks
}

// LockPath returns the lock file of the database at dbPath. Different spellings
// of the same path map to the same lock file.
func (e *Env) LockPath(dbPath string) string {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		abs = filepath.Clean(dbPath)
	}
	return filepath.Join(e.home, fmt.Sprintf("__db.%016x.lock", uint64(util.HashString(abs, 0))))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
