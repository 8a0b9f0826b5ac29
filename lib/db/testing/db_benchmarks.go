package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/bdbtool/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, factory())
		})

		b.Run("SetExisting", func(b *testing.B) {
			benchmarkSetExisting(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("Delete", func(b *testing.B) {
			benchmarkDelete(b, factory())
		})

		b.Run("Items", func(b *testing.B) {
			benchmarkItems(b, factory())
		})

		b.Run("SaveLoad", func(b *testing.B) {
			benchmarkSaveLoad(b, factory)
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// fill inserts n keys of the form test-key-<i>
func fill(database db.KVDB, n int) {
	for i := 0; i < n; i++ {
		database.Set(fmt.Sprintf("test-key-%d", i), []byte(fmt.Sprintf("test-value-%d", i)))
	}
}

func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Set(fmt.Sprintf("test-key-%d", counter), []byte(fmt.Sprintf("test-value-%d", counter)))
			counter++
		}
	})
}

func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	numKeys := 10_000
	fill(database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Set(fmt.Sprintf("test-key-%d", counter%numKeys), []byte(fmt.Sprintf("test-value-%d", counter)))
			counter++
		}
	})
}

func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet)

	numKeys := 10_000
	fill(database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			database.Get(fmt.Sprintf("test-key-%d", r.Intn(numKeys)))
		}
	})
}

func benchmarkDelete(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureDelete)

	fill(database, b.N)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Delete(fmt.Sprintf("test-key-%d", i))
	}
}

func benchmarkItems(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureIterate)

	fill(database, 10_000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for range database.Items() {
		}
	}
}

func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureSave|db.FeatureLoad)

	fill(database, 100_000)

	var buf bytes.Buffer
	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf.Reset()
			if err := database.Save(&buf); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		target := factory()
		defer target.Close()
		for i := 0; i < b.N; i++ {
			if err := target.Load(bytes.NewReader(buf.Bytes())); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	numKeys := 10_000
	fill(database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", r.Intn(numKeys))
			switch r.Intn(10) {
			case 0, 1, 2:
				database.Set(key, []byte("mixed"))
			case 3:
				database.Delete(key)
			default:
				database.Get(key)
			}
		}
	})
}
