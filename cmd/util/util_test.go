package util

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := "Concurrency strategy used to coordinate concurrent invocations of the tool against one database"
	wrapped := WrapString(text)

	for _, line := range strings.Split(wrapped, "\n") {
		require.LessOrEqual(t, len(line), Wrap, line)
	}
	require.Equal(t, strings.Fields(text), strings.Fields(wrapped))
	require.Equal(t, "", WrapString("   "))
}

func TestExitHooksRunInReverse(t *testing.T) {
	var order []int
	OnExit(func() { order = append(order, 1) })
	OnExit(func() { order = append(order, 2) })

	RunExitHooks()
	require.Equal(t, []int{2, 1}, order)

	// hooks run once
	RunExitHooks()
	require.Equal(t, []int{2, 1}, order)
}

func TestResolveDBPath(t *testing.T) {
	_, err := ResolveDBPath(&Settings{})
	require.ErrorContains(t, err, "missing mandatory option -d")

	path, err := ResolveDBPath(&Settings{DBPath: "data.db"})
	require.NoError(t, err)
	require.Equal(t, "data.db", path)

	path, err = ResolveDBPath(&Settings{TempDB: true})
	require.NoError(t, err)
	require.DirExists(t, filepath.Dir(path))
	RunExitHooks()
	require.NoDirExists(t, filepath.Dir(path))
}
