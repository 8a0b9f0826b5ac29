package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/bdbtool/lib/coord"
	"github.com/ValentinKolb/bdbtool/lib/dump"
	"github.com/ValentinKolb/bdbtool/lib/metrics"
	"github.com/ValentinKolb/bdbtool/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("tool")

// Config is the configuration of the command layer
type Config struct {
	// DBPath is the database path as given by the user, used in messages
	DBPath string
	// Codec is the dump format, nil selects dump.Raw
	Codec dump.ICodec
}

// Tool runs the bdb-tool commands against a database. Every command runs in
// exactly one scope of the strategy and writes its result line to out.
type Tool struct {
	cfg      Config
	strategy coord.Strategy
	out      io.Writer
}

// New creates a Tool
func New(cfg Config, strategy coord.Strategy, out io.Writer) *Tool {
	if cfg.Codec == nil {
		cfg.Codec = dump.Raw{}
	}
	return &Tool{
		cfg:      cfg,
		strategy: strategy,
		out:      out,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// run executes fn inside one scope. The scope is committed when fn succeeds and
// aborted otherwise; the error of fn takes precedence over a release error.
func (t *Tool) run(ctx context.Context, command string, mode coord.Mode, fn func(sc coord.Scope) error) (err error) {
	defer func() {
		metrics.Command(command, Result(err))
	}()

	sc, err := t.strategy.Begin(ctx, mode)
	if err != nil {
		return err
	}

	if err := fn(sc); err != nil {
		if aerr := sc.Abort(); aerr != nil {
			log.Errorf("%s: aborting scope: %v", command, aerr)
		}
		return err
	}
	return sc.Commit()
}

// Result classifies the outcome of a command for metrics and exit codes
func Result(err error) string {
	var (
		usage    *UsageError
		conflict *ConflictError
		serr     *store.Error
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &usage):
		return "usage"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "interrupted"
	case errors.As(err, &serr):
		return "storage"
	default:
		return "error"
	}
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

// Get prints "KEY: VALUE" or "KEY: (not found)"
func (t *Tool) Get(ctx context.Context, key string) error {
	return t.run(ctx, "get", coord.Read, func(sc coord.Scope) error {
		value, found, err := sc.Store().Get(key)
		if err != nil {
			return err
		}
		if !found {
			_, err = fmt.Fprintf(t.out, "%s: (not found)\n", key)
			return err
		}
		_, err = fmt.Fprintf(t.out, "%s: %s\n", key, value)
		return err
	})
}

// Set upserts the pair and prints "Set: KEY => VALUE"
func (t *Tool) Set(ctx context.Context, key, value string) error {
	err := t.run(ctx, "set", coord.Write, func(sc coord.Scope) error {
		return sc.Store().Set(key, []byte(value))
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(t.out, "Set: %s => %s\n", key, value)
	return err
}

// Delete prints "Deleted: KEY" or "KEY: (not found, could not delete)"
func (t *Tool) Delete(ctx context.Context, key string) error {
	var deleted bool
	err := t.run(ctx, "delete", coord.Write, func(sc coord.Scope) (err error) {
		deleted, err = sc.Store().Delete(key)
		return err
	})
	if err != nil {
		return err
	}
	if !deleted {
		_, err = fmt.Fprintf(t.out, "%s: (not found, could not delete)\n", key)
		return err
	}
	_, err = fmt.Fprintf(t.out, "Deleted: %s\n", key)
	return err
}

// Rename moves the value of oldKey to newKey in one scope. If newKey exists a
// ConflictError is returned and nothing changes, unless force is set.
// Prints "Renamed key: OLD => NEW" or "OLD: (not found, could not rename)".
func (t *Tool) Rename(ctx context.Context, oldKey, newKey string, force bool) error {
	var renamed bool
	err := t.run(ctx, "rename", coord.Write, func(sc coord.Scope) error {
		s := sc.Store()

		existing, exists, err := s.Get(newKey)
		if err != nil {
			return err
		}
		if exists && !force {
			return &ConflictError{Key: newKey, Value: existing}
		}

		value, found, err := s.Get(oldKey)
		if err != nil || !found {
			return err
		}
		renamed = true
		if oldKey == newKey {
			return nil
		}

		if err := s.Set(newKey, value); err != nil {
			return err
		}
		_, err = s.Delete(oldKey)
		return err
	})
	if err != nil {
		return err
	}
	if !renamed {
		_, err = fmt.Fprintf(t.out, "%s: (not found, could not rename)\n", oldKey)
		return err
	}
	_, err = fmt.Fprintf(t.out, "Renamed key: %s => %s\n", oldKey, newKey)
	return err
}

// Dump writes every record to out in the configured format
func (t *Tool) Dump(ctx context.Context) error {
	return t.run(ctx, "dump", coord.Read, func(sc coord.Scope) error {
		items, err := sc.Store().Items()
		if err != nil {
			return err
		}
		n, err := t.cfg.Codec.Encode(t.out, items)
		log.Debugf("dumped %d records", n)
		return err
	})
}

// Restore upserts every record of the dump file in one write scope
func (t *Tool) Restore(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return store.WrapError(store.RetCStorage, fmt.Sprintf("cannot open input file '%s'", path), err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(t.out, "Restoring from '%s' to '%s'...\n", path, t.cfg.DBPath); err != nil {
		return err
	}

	var n int
	err = t.run(ctx, "restore", coord.Write, func(sc coord.Scope) error {
		s := sc.Store()
		var derr error
		n, derr = t.cfg.Codec.Decode(f, func(rec dump.Record) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return s.Set(rec.Key, rec.Value)
		}, func(m dump.Malformed) {
			log.Warningf("Line %d in '%s' has invalid format. Skipping", m.Line, path)
		})
		var serr *store.Error
		if derr != nil && !errors.As(derr, &serr) && !errors.Is(derr, context.Canceled) {
			return store.WrapError(store.RetCStorage, fmt.Sprintf("cannot read input file '%s'", path), derr)
		}
		return derr
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(t.out, "Restore complete. %d entries restored.\n", n)
	return err
}

// Count prints "Number of elements: N", counted by a full iteration
func (t *Tool) Count(ctx context.Context) error {
	var n int
	err := t.run(ctx, "count", coord.Read, func(sc coord.Scope) error {
		items, err := sc.Store().Items()
		if err != nil {
			return err
		}
		for range items {
			n++
		}
		return nil
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(t.out, "Number of elements: %d\n", n)
	return err
}

// Compact rewrites the backing file and prints "Compacted: DB"
func (t *Tool) Compact(ctx context.Context) error {
	err := t.run(ctx, "compact", coord.Write, func(sc coord.Scope) error {
		return sc.Compact()
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(t.out, "Compacted: %s\n", t.cfg.DBPath)
	return err
}

// Info prints one "key: value" line per property of the database
func (t *Tool) Info(ctx context.Context) error {
	var info store.Info
	err := t.run(ctx, "info", coord.Read, func(sc coord.Scope) (err error) {
		info, err = sc.Info()
		return err
	})
	if err != nil {
		return err
	}

	meta, err := json.Marshal(info.Engine.Metadata)
	if err != nil {
		return err
	}
	lines := []struct {
		key   string
		value any
	}{
		{"path", info.Path},
		{"strategy", t.strategy.Kind()},
		{"format", t.cfg.Codec.Name()},
		{"file_size", info.FileSize},
		{"records", info.Records},
		{"live", info.Live},
		{"truncated", info.Truncated},
		{"engine", info.Engine.DbType},
		{"engine_size_estimate", info.Engine.SizeBytes},
		{"engine_metadata", string(meta)},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(t.out, "%s: %v\n", l.key, l.value); err != nil {
			return err
		}
	}
	return nil
}
