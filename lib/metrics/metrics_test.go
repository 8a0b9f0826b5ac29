package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWritePrometheus(t *testing.T) {
	StoreOp("set")
	StoreOp("set")
	Command("get", "ok")
	LockWait("flock", 10*time.Millisecond)

	var buf bytes.Buffer
	WritePrometheus(&buf)
	out := buf.String()

	for _, want := range []string{
		`bdbtool_store_ops_total{op="set"}`,
		`bdbtool_commands_total{command="get",result="ok"} 1`,
		`bdbtool_lock_wait_seconds_count{kind="flock"}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWriteFile(t *testing.T) {
	StoreOp("delete")

	path := filepath.Join(t.TempDir(), "bdbtool.prom")
	if err := WriteFile(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `bdbtool_store_ops_total{op="delete"}`) {
		t.Errorf("metrics file misses the delete counter:\n%s", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the metrics file, found %d entries", len(entries))
	}
}

func TestWriteFileMissingDir(t *testing.T) {
	if err := WriteFile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
