package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesHome(t *testing.T) {
	home := filepath.Join(t.TempDir(), "a", "b")

	e, err := Open(home)
	require.NoError(t, err)
	require.Equal(t, home, e.Home())
	require.Equal(t, Defaults(), e.Config())

	st, err := os.Stat(home)
	require.NoError(t, err)
	require.True(t, st.IsDir())
}

func TestLoadConfig(t *testing.T) {
	home := t.TempDir()
	data := "lock_timeout = \"250ms\"\ncompact_slack = 10\nshards = 4\nunknown = true\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, ConfigFile), []byte(data), 0o644))

	e, err := Open(home)
	require.NoError(t, err)
	require.Equal(t, Config{LockTimeout: 250 * time.Millisecond, CompactSlack: 10, Shards: 4}, e.Config())

	e.SetLockTimeout(time.Second)
	require.Equal(t, time.Second, e.Config().LockTimeout)
	require.NotNil(t, e.Locks())
}

func TestLoadConfigInvalid(t *testing.T) {
	home := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(home, ConfigFile), []byte("shards = \"many\""), 0o644))
	_, err := Open(home)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(home, ConfigFile), []byte("shards = -1"), 0o644))
	_, err = Open(home)
	require.Error(t, err)
}

func TestLockPath(t *testing.T) {
	home := t.TempDir()
	e, err := Open(home)
	require.NoError(t, err)

	dir := t.TempDir()
	a := e.LockPath(filepath.Join(dir, "x.db"))
	b := e.LockPath(filepath.Join(dir, ".", "sub", "..", "x.db"))
	c := e.LockPath(filepath.Join(dir, "y.db"))

	require.Equal(t, a, b, "equivalent paths must share a lock file")
	require.NotEqual(t, a, c)
	require.Equal(t, home, filepath.Dir(a))
	require.Regexp(t, `^__db\.[0-9a-f]{16}\.lock$`, filepath.Base(a))
}
