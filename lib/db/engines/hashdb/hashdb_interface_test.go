package hashdb

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/bdbtool/lib/db"
	dbtesting "github.com/ValentinKolb/bdbtool/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "HashDB", func() db.KVDB {
		return NewHashDB(nil)
	})

	dbtesting.RunKVDBTests(t, "HashDB(1 shard)", func() db.KVDB {
		return NewHashDB(&DBOptions{NumShards: 1})
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "HashDB", func() db.KVDB {
		return NewHashDB(nil)
	})
}

func TestGetInfo(t *testing.T) {
	database := NewHashDB(&DBOptions{NumShards: 4})
	defer database.Close()

	for _, k := range []string{"a", "b", "c"} {
		database.Set(k, []byte("value"))
	}

	info := database.GetInfo()
	if info.DbType != db.ImplHashDB {
		t.Errorf("unexpected db type %s", info.DbType)
	}
	if info.Entries != 3 {
		t.Errorf("expected 3 entries, got %d", info.Entries)
	}
	if info.SizeBytes <= 0 {
		t.Errorf("expected a positive size estimate, got %d", info.SizeBytes)
	}
	for _, f := range info.SupportedFeatures {
		if !database.SupportsFeature(f) {
			t.Errorf("feature %s is reported but not supported", f)
		}
	}
}

func TestLoadKeepsShardCount(t *testing.T) {
	source := NewHashDB(&DBOptions{NumShards: 2})
	target := NewHashDB(&DBOptions{NumShards: 8})
	defer source.Close()
	defer target.Close()

	source.Set("k", []byte("v"))

	var buf bytes.Buffer
	if err := source.Save(&buf); err != nil {
		t.Fatal(err)
	}
	if err := target.Load(&buf); err != nil {
		t.Fatal(err)
	}

	if v, ok := target.Get("k"); !ok || string(v) != "v" {
		t.Fatalf("expected k=v after load, got %q/%v", v, ok)
	}
	if n := len(target.(*hashImpl).shards); n != 8 {
		t.Errorf("load must keep the target shard count, got %d", n)
	}
}
