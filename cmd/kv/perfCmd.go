package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/bdbtool/cmd/util"
	"github.com/ValentinKolb/bdbtool/lib/coord"
	"github.com/ValentinKolb/bdbtool/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("cli")

	perfTestCmd = &cobra.Command{
		Use:   "perf",
		Short: "Measures the cost of one command per strategy",
		Long: `Measures the cost of one command per strategy.

Every operation is a full command cycle: acquire the scope (locks and
transaction), open and replay the database, run the operation and release the
scope again. Each strategy works on its own database file in a temporary
directory unless -d is given.`,
		Args:    exactArgs(0),
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
	perfStrategies       = make([]coord.Kind, 0)
)

// perfBench is one benchmark: setup prepares the database before the timer starts
type perfBench struct {
	name  string
	mode  coord.Mode
	setup bool
	op    func(s store.IStore, key string, value []byte) error
}

var perfBenches = []perfBench{
	{name: "set", mode: coord.Write, op: func(s store.IStore, key string, value []byte) error {
		return s.Set(key, value)
	}},
	{name: "set-large", mode: coord.Write, op: func(s store.IStore, key string, value []byte) error {
		return s.Set(key, value)
	}},
	{name: "get", mode: coord.Read, setup: true, op: func(s store.IStore, key string, _ []byte) error {
		_, _, err := s.Get(key)
		return err
	}},
	{name: "has-not", mode: coord.Read, setup: true, op: func(s store.IStore, key string, _ []byte) error {
		_, err := s.Has(key + "-missing")
		return err
	}},
	{name: "delete", mode: coord.Write, setup: true, op: func(s store.IStore, key string, _ []byte) error {
		_, err := s.Delete(key)
		return err
	}},
	{name: "count", mode: coord.Read, setup: true, op: func(s store.IStore, _ string, _ []byte) error {
		items, err := s.Items()
		if err != nil {
			return err
		}
		for range items {
		}
		return nil
	}},
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "strategies"
	perfTestCmd.Flags().String(key, "", util.WrapString("Strategies to compare (comma separated). Defaults to the strategy selected with -s"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	if perfKeySpread < 1 || perfLargeValueSizeKB < 0 {
		return fmt.Errorf("--keys must be positive and --large-value-size must not be negative")
	}

	perfStrategies = perfStrategies[:0]
	names := viper.GetString("strategies")
	if names == "" {
		names = viper.GetString("strategy")
	}
	for _, name := range strings.Split(names, ",") {
		kind, err := coord.ParseKind(name)
		if err != nil {
			return err
		}
		perfStrategies = append(perfStrategies, kind)
	}
	return nil
}

func runPerf(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	settings, err := util.GetSettings()
	if err != nil {
		return err
	}
	dir := filepath.Dir(settings.DBPath)
	if settings.DBPath == "" {
		if dir, err = util.TempDir(); err != nil {
			return err
		}
	}
	if settings.EnvHome == "" && (slices.Contains(perfStrategies, coord.KindCDS) || slices.Contains(perfStrategies, coord.KindTxn)) {
		settings.EnvHome = filepath.Join(dir, "env")
	}

	fmt.Fprintln(out, "Performance testing tool for bdb-tool")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "Directory: %s\n", dir)
	fmt.Fprintf(out, "Environment: %s\n", settings.EnvHome)
	fmt.Fprintf(out, "Keys: %d\n", perfKeySpread)
	fmt.Fprintf(out, "Large value size: %d KB\n", perfLargeValueSizeKB)
	fmt.Fprintln(out)

	results := make(map[coord.Kind]map[string]testing.BenchmarkResult)
	for _, kind := range perfStrategies {
		dbPath := filepath.Join(dir, fmt.Sprintf("%s-%s.db", perfKeyPrefix, kind))
		strategy, err := util.NewStrategy(kind, dbPath, settings)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "strategy %s (%s)\n", strategy.Kind(), dbPath)
		results[kind] = make(map[string]testing.BenchmarkResult)
		for _, bench := range perfBenches {
			result := runBench(cmd.Context(), strategy, bench)
			results[kind][bench.name] = result
			printResult(cmd, bench.name, result)
		}
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Fprintf(out, "Exporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Fprintln(out, "Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runBench measures bench as full scope cycles of strategy
func runBench(ctx context.Context, strategy coord.Strategy, bench perfBench) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		if shouldSkip(bench.name) {
			return
		}

		value := []byte("test")
		if bench.name == "set-large" {
			value = make([]byte, perfLargeValueSizeKB*1024)
		}
		getKey, iter := getKeys(bench.name)

		cycle := func(mode coord.Mode, fn func(s store.IStore) error) {
			sc, err := strategy.Begin(ctx, mode)
			if err != nil {
				log.Errorf("(%s) - error acquiring scope: %v", bench.name, err)
				return
			}
			if err := fn(sc.Store()); err != nil {
				log.Errorf("(%s) - error running operation: %v", bench.name, err)
				_ = sc.Abort()
				return
			}
			if err := sc.Commit(); err != nil {
				log.Errorf("(%s) - error releasing scope: %v", bench.name, err)
			}
		}

		// a write creates the database file so read benchmarks find it
		cycle(coord.Write, func(s store.IStore) error {
			if !bench.setup {
				return nil
			}
			var err error
			iter(func(k string) {
				if err == nil {
					err = s.Set(k, value)
				}
			})
			return err
		})

		b.Cleanup(func() {
			cycle(coord.Write, func(s store.IStore) error {
				var err error
				iter(func(k string) {
					if err == nil {
						_, err = s.Delete(k)
					}
				})
				return err
			})
		})

		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			if ctx.Err() != nil {
				b.SkipNow()
			}
			key := getKey(i)
			cycle(bench.mode, func(s store.IStore) error {
				return bench.op(s, key, value)
			})
		}
	})
}

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(cmd *cobra.Command, test string, result testing.BenchmarkResult) {
	out := cmd.OutOrStdout()
	if result.NsPerOp() == 0 {
		fmt.Fprintf(out, "  %-18sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Fprintf(out, "  %-18s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[coord.Kind]map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{
		"Test", "Strategy", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, kind := range perfStrategies {
		for _, bench := range perfBenches {
			result, ok := results[kind][bench.name]
			if !ok {
				continue
			}

			var nsPerOp, opsPerSec float64
			skipped := "true"
			if result.NsPerOp() != 0 {
				skipped = "false"
				nsPerOp = math.Max(float64(result.NsPerOp()), 1)
				opsPerSec = 1.0 / (nsPerOp / 1e9)
			}

			row := []string{
				bench.name,
				string(kind),
				fmt.Sprintf("%.0f", nsPerOp),
				time.Duration(nsPerOp).String(),
				fmt.Sprintf("%.0f", opsPerSec),
				skipped,
				strconv.Itoa(perfLargeValueSizeKB),
				strconv.Itoa(perfKeySpread),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write row for test %s: %v", bench.name, err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}
