package tool

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/bdbtool/lib/coord"
	"github.com/ValentinKolb/bdbtool/lib/dump"
	"github.com/ValentinKolb/bdbtool/lib/env"
	"github.com/ValentinKolb/bdbtool/lib/store"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

type harness struct {
	tool *Tool
	out  *bytes.Buffer
	db   string
}

func newHarness(t *testing.T, kind coord.Kind, codec dump.ICodec) *harness {
	t.Helper()
	dir := t.TempDir()
	opts := coord.Options{DBPath: filepath.Join(dir, "test.db")}
	if kind == coord.KindCDS || kind == coord.KindTxn {
		e, err := env.Open(filepath.Join(dir, "env"))
		require.NoError(t, err)
		opts.Env = e
	}
	s, err := coord.New(kind, opts)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &harness{
		tool: New(Config{DBPath: opts.DBPath, Codec: codec}, s, out),
		out:  out,
		db:   opts.DBPath,
	}
}

// output returns and resets everything written so far
func (h *harness) output() string {
	s := h.out.String()
	h.out.Reset()
	return s
}

var kinds = []coord.Kind{coord.KindNone, coord.KindFlock, coord.KindCDS, coord.KindTxn}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestScenario(t *testing.T) {
	ctx := context.Background()
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			h := newHarness(t, kind, nil)

			require.NoError(t, h.tool.Set(ctx, "key1", "value1"))
			require.Equal(t, "Set: key1 => value1\n", h.output())

			require.NoError(t, h.tool.Get(ctx, "key1"))
			require.Equal(t, "key1: value1\n", h.output())

			require.NoError(t, h.tool.Get(ctx, "missing"))
			require.Equal(t, "missing: (not found)\n", h.output())

			require.NoError(t, h.tool.Count(ctx))
			require.Equal(t, "Number of elements: 1\n", h.output())

			require.NoError(t, h.tool.Rename(ctx, "key1", "newkey1", false))
			require.Equal(t, "Renamed key: key1 => newkey1\n", h.output())

			require.NoError(t, h.tool.Get(ctx, "key1"))
			require.Equal(t, "key1: (not found)\n", h.output())

			require.NoError(t, h.tool.Get(ctx, "newkey1"))
			require.Equal(t, "newkey1: value1\n", h.output())
		})
	}
}

func TestOverwriteAndCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, coord.KindTxn, nil)

	require.NoError(t, h.tool.Set(ctx, "k", "v1"))
	require.NoError(t, h.tool.Set(ctx, "k", "v2"))
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, h.tool.Set(ctx, k, "x"))
	}
	h.output()

	require.NoError(t, h.tool.Get(ctx, "k"))
	require.Equal(t, "k: v2\n", h.output())

	require.NoError(t, h.tool.Count(ctx))
	require.Equal(t, "Number of elements: 4\n", h.output())

	require.NoError(t, h.tool.Delete(ctx, "a"))
	require.Equal(t, "Deleted: a\n", h.output())

	require.NoError(t, h.tool.Delete(ctx, "a"))
	require.Equal(t, "a: (not found, could not delete)\n", h.output())

	require.NoError(t, h.tool.Count(ctx))
	require.Equal(t, "Number of elements: 3\n", h.output())
}

func TestRename(t *testing.T) {
	ctx := context.Background()

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			h := newHarness(t, kind, nil)
			require.NoError(t, h.tool.Set(ctx, "old", "1"))
			require.NoError(t, h.tool.Set(ctx, "new", "2"))
			h.output()

			err := h.tool.Rename(ctx, "old", "new", false)
			var conflict *ConflictError
			require.ErrorAs(t, err, &conflict)
			require.Equal(t, "Already exists: new => 2", err.Error())
			require.Equal(t, "conflict", Result(err))
			require.Empty(t, h.output())

			// both keys unchanged
			require.NoError(t, h.tool.Get(ctx, "old"))
			require.NoError(t, h.tool.Get(ctx, "new"))
			require.Equal(t, "old: 1\nnew: 2\n", h.output())

			require.NoError(t, h.tool.Rename(ctx, "missing", "other", false))
			require.Equal(t, "missing: (not found, could not rename)\n", h.output())

			require.NoError(t, h.tool.Rename(ctx, "old", "new", true))
			require.Equal(t, "Renamed key: old => new\n", h.output())
			require.NoError(t, h.tool.Get(ctx, "new"))
			require.Equal(t, "new: 1\n", h.output())
			require.NoError(t, h.tool.Count(ctx))
			require.Equal(t, "Number of elements: 1\n", h.output())
		})
	}
}

func TestRenameToItself(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, coord.KindNone, nil)
	require.NoError(t, h.tool.Set(ctx, "k", "v"))
	h.output()

	require.NoError(t, h.tool.Rename(ctx, "k", "k", true))
	require.Equal(t, "Renamed key: k => k\n", h.output())
	require.NoError(t, h.tool.Get(ctx, "k"))
	require.Equal(t, "k: v\n", h.output())
}

func TestDumpRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, codec := range []dump.ICodec{dump.Raw{}, dump.Quoted{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			src := newHarness(t, coord.KindTxn, codec)
			want := map[string]string{"a": "1", "b": "two words", "c": "x\ty"}
			for k, v := range want {
				require.NoError(t, src.tool.Set(ctx, k, v))
			}
			src.output()

			require.NoError(t, src.tool.Dump(ctx))
			dumped := src.output()

			file := filepath.Join(t.TempDir(), "dump.txt")
			require.NoError(t, os.WriteFile(file, []byte(dumped), 0o644))

			dst := newHarness(t, coord.KindTxn, codec)
			require.NoError(t, dst.tool.Restore(ctx, file))
			require.Equal(t,
				"Restoring from '"+file+"' to '"+dst.db+"'...\nRestore complete. 3 entries restored.\n",
				dst.output())

			require.NoError(t, dst.tool.Dump(ctx))
			require.Equal(t, dumped, dst.output())
		})
	}
}

func TestRawDumpFormat(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, coord.KindNone, nil)
	require.NoError(t, h.tool.Set(ctx, "b", "2"))
	require.NoError(t, h.tool.Set(ctx, "a", "1"))
	h.output()

	require.NoError(t, h.tool.Dump(ctx))
	require.Equal(t, "a\t1\nb\t2\n", h.output())
}

func TestRestoreSkipsMalformedLines(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, coord.KindTxn, nil)

	file := filepath.Join(t.TempDir(), "dump.txt")
	require.NoError(t, os.WriteFile(file, []byte("a\t1\nbroken line\n\nb\t2\n"), 0o644))

	require.NoError(t, h.tool.Restore(ctx, file))
	require.Contains(t, h.output(), "Restore complete. 2 entries restored.\n")

	require.NoError(t, h.tool.Count(ctx))
	require.Equal(t, "Number of elements: 2\n", h.output())
}

func TestRestoreMissingFile(t *testing.T) {
	h := newHarness(t, coord.KindNone, nil)

	err := h.tool.Restore(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	require.True(t, errors.Is(err, store.ErrStorage), "got %v", err)
	require.Empty(t, h.output())

	_, statErr := os.Stat(h.db)
	require.True(t, os.IsNotExist(statErr), "no database must be created")
}

func TestRestoreInterrupted(t *testing.T) {
	h := newHarness(t, coord.KindTxn, nil)
	require.NoError(t, h.tool.Set(context.Background(), "keep", "1"))

	file := filepath.Join(t.TempDir(), "dump.txt")
	require.NoError(t, os.WriteFile(file, []byte("a\t1\nb\t2\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.tool.Restore(ctx, file)
	require.Error(t, err)
	require.Equal(t, "interrupted", Result(err))
	h.output()

	require.NoError(t, h.tool.Count(context.Background()))
	require.Equal(t, "Number of elements: 1\n", h.output())
}

func TestReadCommandsOnMissingDatabase(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, coord.KindNone, nil)

	for name, fn := range map[string]func() error{
		"get":   func() error { return h.tool.Get(ctx, "k") },
		"dump":  func() error { return h.tool.Dump(ctx) },
		"count": func() error { return h.tool.Count(ctx) },
		"info":  func() error { return h.tool.Info(ctx) },
	} {
		err := fn()
		require.Error(t, err, name)
		require.Equal(t, "storage", Result(err), name)
	}
	require.Empty(t, h.output())
}

func TestCompactAndInfo(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, coord.KindCDS, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.tool.Set(ctx, "k", "v"))
	}
	h.output()

	require.NoError(t, h.tool.Compact(ctx))
	require.Equal(t, "Compacted: "+h.db+"\n", h.output())

	require.NoError(t, h.tool.Info(ctx))
	out := h.output()
	require.Contains(t, out, "path: "+h.db+"\n")
	require.Contains(t, out, "strategy: cds\n")
	require.Contains(t, out, "records: 1\n")
	require.Contains(t, out, "live: 1\n")
	require.Contains(t, out, "engine: hashdb\n")
	require.Contains(t, out, `"shard_count"`)
}

func TestResult(t *testing.T) {
	require.Equal(t, "ok", Result(nil))
	require.Equal(t, "usage", Result(Usagef("missing %s", "-d")))
	require.Equal(t, "storage", Result(store.NewError(store.RetCBusy, "busy")))
	require.Equal(t, "interrupted", Result(context.Canceled))
	require.Equal(t, "error", Result(errors.New("other")))
}
