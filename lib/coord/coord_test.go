package coord

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/bdbtool/lib/env"
	"github.com/ValentinKolb/bdbtool/lib/store"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newStrategy(t *testing.T, kind Kind, withEnv bool) (Strategy, string) {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		DBPath:      filepath.Join(dir, "test.db"),
		LockTimeout: 100 * time.Millisecond,
	}
	if withEnv {
		e, err := env.Open(filepath.Join(dir, "env"))
		require.NoError(t, err)
		e.SetLockTimeout(100 * time.Millisecond)
		opts.Env = e
	}
	s, err := New(kind, opts)
	require.NoError(t, err)
	return s, opts.DBPath
}

func begin(t *testing.T, s Strategy, mode Mode) Scope {
	t.Helper()
	sc, err := s.Begin(context.Background(), mode)
	require.NoError(t, err)
	return sc
}

func set(t *testing.T, s Strategy, key, value string) {
	t.Helper()
	sc := begin(t, s, Write)
	require.NoError(t, sc.Store().Set(key, []byte(value)))
	require.NoError(t, sc.Commit())
}

func get(t *testing.T, s Strategy, key string) (string, bool) {
	t.Helper()
	sc := begin(t, s, Read)
	defer sc.Abort()
	v, found, err := sc.Store().Get(key)
	require.NoError(t, err)
	return string(v), found
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		require.Equal(t, k, got)
	}
	got, err := ParseKind(" TXN ")
	require.NoError(t, err)
	require.Equal(t, KindTxn, got)

	_, err = ParseKind("bdb")
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestNewRequiresEnv(t *testing.T) {
	for _, k := range []Kind{KindCDS, KindTxn} {
		_, err := New(k, Options{DBPath: filepath.Join(t.TempDir(), "x.db")})
		require.ErrorIs(t, err, ErrEnvRequired, "kind %s", k)
	}
}

func TestAutoResolves(t *testing.T) {
	s, _ := newStrategy(t, KindAuto, false)
	require.Equal(t, KindNone, s.Kind())

	s, _ = newStrategy(t, KindAuto, true)
	require.Equal(t, KindTxn, s.Kind())
}

func TestStrategies(t *testing.T) {
	cases := []struct {
		kind    Kind
		withEnv bool
	}{
		{KindNone, false},
		{KindFlock, false},
		{KindCDS, true},
		{KindTxn, true},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			s, _ := newStrategy(t, tc.kind, tc.withEnv)
			require.Equal(t, tc.kind, s.Kind())

			t.Run("ReadMissingDatabase", func(t *testing.T) {
				_, err := s.Begin(context.Background(), Read)
				require.True(t, errors.Is(err, store.ErrStorage), "got %v", err)
			})

			t.Run("WriteThenRead", func(t *testing.T) {
				set(t, s, "k", "v")
				v, found := get(t, s, "k")
				require.True(t, found)
				require.Equal(t, "v", v)
			})

			t.Run("ReleaseOnce", func(t *testing.T) {
				sc := begin(t, s, Write)
				require.NoError(t, sc.Commit())
				require.ErrorIs(t, sc.Commit(), ErrScopeReleased)
				require.ErrorIs(t, sc.Abort(), ErrScopeReleased)

				sc = begin(t, s, Read)
				require.NoError(t, sc.Abort())
				require.ErrorIs(t, sc.Abort(), ErrScopeReleased)
			})

			t.Run("SequentialWriters", func(t *testing.T) {
				for i := 0; i < 3; i++ {
					sc := begin(t, s, Write)
					require.NoError(t, sc.Store().Set("n", []byte{byte('0' + i)}))
					require.NoError(t, sc.Commit())
				}
				v, _ := get(t, s, "n")
				require.Equal(t, "2", v)
			})

			t.Run("Info", func(t *testing.T) {
				sc := begin(t, s, Read)
				defer sc.Abort()
				info, err := sc.Info()
				require.NoError(t, err)
				require.True(t, info.ReadOnly)
				require.Positive(t, info.Live)
			})

			t.Run("Compact", func(t *testing.T) {
				sc := begin(t, s, Write)
				require.NoError(t, sc.Compact())
				require.NoError(t, sc.Commit())

				v, found := get(t, s, "k")
				require.True(t, found)
				require.Equal(t, "v", v)

				sc = begin(t, s, Read)
				require.Error(t, sc.Compact())
				require.NoError(t, sc.Abort())
			})
		})
	}
}

func TestAbort(t *testing.T) {
	t.Run("TxnDiscardsWrites", func(t *testing.T) {
		s, _ := newStrategy(t, KindTxn, true)
		set(t, s, "a", "1")

		sc := begin(t, s, Write)
		require.NoError(t, sc.Store().Set("a", []byte("changed")))
		require.NoError(t, sc.Store().Set("b", []byte("2")))
		require.NoError(t, sc.Abort())

		v, _ := get(t, s, "a")
		require.Equal(t, "1", v)
		_, found := get(t, s, "b")
		require.False(t, found)
	})

	t.Run("CDSKeepsWrites", func(t *testing.T) {
		s, _ := newStrategy(t, KindCDS, true)

		sc := begin(t, s, Write)
		require.NoError(t, sc.Store().Set("a", []byte("1")))
		require.NoError(t, sc.Abort())

		v, found := get(t, s, "a")
		require.True(t, found, "writes outside a transaction are durable immediately")
		require.Equal(t, "1", v)
	})

	t.Run("TxnReadScopeNeverWrites", func(t *testing.T) {
		s, _ := newStrategy(t, KindTxn, true)
		set(t, s, "a", "1")

		sc := begin(t, s, Read)
		require.Error(t, sc.Store().Set("a", []byte("x")))
		require.NoError(t, sc.Commit())
	})
}

func TestLockExclusion(t *testing.T) {
	t.Run("CDS", func(t *testing.T) {
		s, _ := newStrategy(t, KindCDS, true)
		set(t, s, "k", "v")

		writer := begin(t, s, Write)
		_, err := s.Begin(context.Background(), Write)
		require.True(t, errors.Is(err, store.ErrBusy), "second writer: %v", err)
		_, err = s.Begin(context.Background(), Read)
		require.True(t, errors.Is(err, store.ErrBusy), "reader during write: %v", err)
		require.NoError(t, writer.Commit())

		r1 := begin(t, s, Read)
		r2 := begin(t, s, Read)
		_, err = s.Begin(context.Background(), Write)
		require.True(t, errors.Is(err, store.ErrBusy), "writer during reads: %v", err)
		require.NoError(t, r1.Abort())
		require.NoError(t, r2.Abort())

		require.NoError(t, begin(t, s, Write).Commit())
	})

	t.Run("Flock", func(t *testing.T) {
		s, _ := newStrategy(t, KindFlock, false)
		set(t, s, "k", "v")

		writer := begin(t, s, Write)
		_, err := s.Begin(context.Background(), Write)
		require.True(t, errors.Is(err, store.ErrBusy), "second writer: %v", err)

		// readers are not locked out
		v, found := get(t, s, "k")
		require.True(t, found)
		require.Equal(t, "v", v)
		require.NoError(t, writer.Commit())
	})

	t.Run("FailedOpenReleasesLock", func(t *testing.T) {
		s, _ := newStrategy(t, KindCDS, true)

		_, err := s.Begin(context.Background(), Read)
		require.Error(t, err)

		sc, err := s.Begin(context.Background(), Write)
		require.NoError(t, err, "lock of the failed read scope must be released")
		require.NoError(t, sc.Commit())
	})
}

func TestBeginHonoursContext(t *testing.T) {
	s, _ := newStrategy(t, KindNone, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Begin(ctx, Write)
	require.ErrorIs(t, err, context.Canceled)
}
