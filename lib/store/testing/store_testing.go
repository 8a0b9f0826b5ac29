package testing

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ValentinKolb/bdbtool/lib/store"
)

// StoreFactory creates a fresh, empty store for one test. The returned function
// releases it and is called when the test ends.
type StoreFactory func(t *testing.T) (s store.IStore, release func())

// RunStoreTests runs the conformance suite every store.IStore implementation must pass.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, open(t, factory))
		})

		t.Run("Overwrite", func(t *testing.T) {
			testOverwrite(t, open(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, open(t, factory))
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, open(t, factory))
		})

		t.Run("ItemsMatchCount", func(t *testing.T) {
			testItemsMatchCount(t, open(t, factory))
		})

		t.Run("ItemsSnapshot", func(t *testing.T) {
			testItemsSnapshot(t, open(t, factory))
		})

		t.Run("BinaryData", func(t *testing.T) {
			testBinaryData(t, open(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func open(t *testing.T, factory StoreFactory) store.IStore {
	s, release := factory(t)
	t.Cleanup(release)
	return s
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.IStore) {
	_, found, err := s.Get("k")
	must(t, err)
	if found {
		t.Fatal("expected key to be absent in an empty store")
	}

	must(t, s.Set("k", []byte("v")))

	val, found, err := s.Get("k")
	must(t, err)
	if !found || string(val) != "v" {
		t.Errorf("expected k=v, got %q (found=%v)", val, found)
	}
}

func testOverwrite(t *testing.T, s store.IStore) {
	must(t, s.Set("k", []byte("v1")))
	must(t, s.Set("k", []byte("v2")))

	val, _, err := s.Get("k")
	must(t, err)
	if string(val) != "v2" {
		t.Errorf("expected the last value v2, got %q", val)
	}

	n, err := s.Count()
	must(t, err)
	if n != 1 {
		t.Errorf("overwrite must not add a record, count=%d", n)
	}
}

func testDelete(t *testing.T, s store.IStore) {
	deleted, err := s.Delete("missing")
	must(t, err)
	if deleted {
		t.Error("deleting a missing key must report false")
	}

	for i := 0; i < 5; i++ {
		must(t, s.Set(fmt.Sprintf("key-%d", i), []byte("value")))
	}
	deleted, err = s.Delete("key-2")
	must(t, err)
	if !deleted {
		t.Error("expected key-2 to be deleted")
	}

	if _, found, _ := s.Get("key-2"); found {
		t.Error("key-2 still readable after delete")
	}
	n, err := s.Count()
	must(t, err)
	if n != 4 {
		t.Errorf("expected 4 records after 5 sets and one delete, got %d", n)
	}

	deleted, err = s.Delete("key-2")
	must(t, err)
	if deleted {
		t.Error("second delete must report false")
	}
}

func testHas(t *testing.T, s store.IStore) {
	ok, err := s.Has("k")
	must(t, err)
	if ok {
		t.Error("Has on empty store must be false")
	}
	must(t, s.Set("k", nil))
	ok, err = s.Has("k")
	must(t, err)
	if !ok {
		t.Error("Has must be true for a key with an empty value")
	}
}

func testItemsMatchCount(t *testing.T, s store.IStore) {
	want := map[string]string{"b": "2", "a": "1", "c": "3"}
	for k, v := range want {
		must(t, s.Set(k, []byte(v)))
	}
	_, err := s.Delete("c")
	must(t, err)
	delete(want, "c")

	items, err := s.Items()
	must(t, err)
	got := make(map[string]string)
	for k, v := range items {
		if _, dup := got[k]; dup {
			t.Errorf("key %q yielded twice", k)
		}
		got[k] = string(v)
	}

	n, err := s.Count()
	must(t, err)
	if n != len(got) {
		t.Errorf("Count()=%d but iteration yielded %d pairs", n, len(got))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("expected %s=%s, got %q", k, v, got[k])
		}
	}
}

func testItemsSnapshot(t *testing.T, s store.IStore) {
	must(t, s.Set("a", []byte("1")))
	must(t, s.Set("b", []byte("2")))

	items, err := s.Items()
	must(t, err)

	must(t, s.Set("c", []byte("3")))
	_, err = s.Delete("a")
	must(t, err)

	var keys []string
	for k := range items {
		keys = append(keys, k)
	}
	if fmt.Sprint(keys) != "[a b]" {
		t.Errorf("iteration must reflect the state when Items was called, got %v", keys)
	}
}

func testBinaryData(t *testing.T, s store.IStore) {
	key := "tab\there\nnewline\x00nul"
	value := []byte{0, 1, 2, '\t', '\n', 0xff}
	must(t, s.Set(key, value))
	must(t, s.Set("", []byte("empty key")))

	val, found, err := s.Get(key)
	must(t, err)
	if !found || !bytes.Equal(val, value) {
		t.Errorf("binary value did not survive: %v", val)
	}
	val, found, err = s.Get("")
	must(t, err)
	if !found || string(val) != "empty key" {
		t.Errorf("empty key did not survive: %q", val)
	}
}
