package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// set holds every metric of the process. A dedicated set keeps the Go runtime
// metrics of the default registry out of the exported file.
var set = vm.NewSet()

// --------------------------------------------------------------------------
// Recording
// --------------------------------------------------------------------------

// StoreOp counts one store operation (set, delete, commit, compact, ...)
func StoreOp(op string) {
	set.GetOrCreateCounter(fmt.Sprintf(`bdbtool_store_ops_total{op=%q}`, op)).Inc()
}

// Command counts one finished command together with its result
// (ok, usage, conflict, storage, interrupted, error).
func Command(command, result string) {
	set.GetOrCreateCounter(fmt.Sprintf(`bdbtool_commands_total{command=%q,result=%q}`, command, result)).Inc()
}

// LockWait records how long a caller waited for a lock
func LockWait(kind string, d time.Duration) {
	set.GetOrCreateHistogram(fmt.Sprintf(`bdbtool_lock_wait_seconds{kind=%q}`, kind)).Update(d.Seconds())
}

// RecordsReplayed records the number of log records read when a store was opened
func RecordsReplayed(n int) {
	set.GetOrCreateCounter(`bdbtool_records_replayed_total`).Add(n)
}

// --------------------------------------------------------------------------
// Export
// --------------------------------------------------------------------------

// WritePrometheus writes all metrics in the Prometheus text exposition format
func WritePrometheus(w io.Writer) {
	set.WritePrometheus(w)
}

// WriteFile writes all metrics to path. The file is written next to the target
// and renamed into place so a node_exporter textfile collector never reads a
// partial file.
func WriteFile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	WritePrometheus(tmp)
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename metrics file: %w", err)
	}
	return nil
}
