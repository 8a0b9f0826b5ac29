package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/bdbtool/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("Items", func(t *testing.T) {
			testItems(t, factory())
		})

		t.Run("ItemsSnapshot", func(t *testing.T) {
			testItemsSnapshot(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("LoadRejectsGarbage", func(t *testing.T) {
			testLoadRejectsGarbage(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("CollisionHandling", func(t *testing.T) {
			testCollisionHandling(t, factory())
		})

		t.Run("ConcurrentUsage", func(t *testing.T) {
			testConcurrentUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// collect drains the Items sequence into a map and a key slice (in yield order)
func collect(database db.KVDB) (map[string][]byte, []string) {
	items := make(map[string][]byte)
	var order []string
	for k, v := range database.Items() {
		items[k] = v
		order = append(order, k)
	}
	return items, order
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if _, exists := database.Get(testKey); exists {
		t.Errorf("Expected key %s to be absent before Set", testKey)
	}

	database.Set(testKey, testValue1)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after overwrite", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}
	if database.Len() != 1 {
		t.Errorf("Overwrite must not duplicate the key, got Len()=%d", database.Len())
	}

	// the engine must return copies
	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'
	originalValue, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// and must not keep a reference to the caller's slice
	input := []byte("mutable")
	database.Set("mutable-key", input)
	input[0] = 'X'
	stored, _ := database.Get("mutable-key")
	if !bytes.Equal(stored, []byte("mutable")) {
		t.Errorf("Set should copy the value, got %s", stored)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	database.Set("delete-key", []byte("value"))

	if !database.Delete("delete-key") {
		t.Errorf("Delete of an existing key should report true")
	}
	if _, exists := database.Get("delete-key"); exists {
		t.Errorf("Key should not exist after Delete")
	}
	if database.Delete("delete-key") {
		t.Errorf("Delete of a missing key should report false")
	}
	if database.Delete("never-existed") {
		t.Errorf("Delete of a never set key should report false")
	}

	database.Set("delete-key", []byte("again"))
	if result, exists := database.Get("delete-key"); !exists || string(result) != "again" {
		t.Errorf("Key should be settable again after Delete, got %s/%v", result, exists)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureHas|db.FeatureDelete)

	if database.Has("has-key") {
		t.Errorf("Has should be false before Set")
	}
	database.Set("has-key", nil)
	if !database.Has("has-key") {
		t.Errorf("Has should be true after Set, even for an empty value")
	}
	database.Delete("has-key")
	if database.Has("has-key") {
		t.Errorf("Has should be false after Delete")
	}
}

func testItems(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureIterate|db.FeatureDelete)

	if database.Len() != 0 {
		t.Fatalf("New database should be empty, got %d", database.Len())
	}

	expected := map[string][]byte{}
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("key-%03d", i)
		expected[key] = []byte(fmt.Sprintf("value-%d", i))
		database.Set(key, expected[key])
	}
	database.Delete("key-007")
	delete(expected, "key-007")

	items, order := collect(database)
	if len(items) != len(expected) || database.Len() != len(expected) {
		t.Fatalf("Expected %d items, got %d (Len()=%d)", len(expected), len(items), database.Len())
	}
	for k, v := range expected {
		if !bytes.Equal(items[k], v) {
			t.Errorf("Items mismatch for %s: expected %s, got %s", k, v, items[k])
		}
	}

	// two full iterations over an unmutated database yield the same order
	_, order2 := collect(database)
	for i := range order {
		if order[i] != order2[i] {
			t.Fatalf("Iteration order is not stable at %d: %s vs %s", i, order[i], order2[i])
		}
	}

	// a sequence can only be consumed once
	seq := database.Items()
	first := 0
	for range seq {
		first++
	}
	second := 0
	for range seq {
		second++
	}
	if first != len(expected) || second != 0 {
		t.Errorf("Expected single use sequence, got %d then %d", first, second)
	}

	// early break must be honoured
	n := 0
	for range database.Items() {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("Expected to stop after 3 items, got %d", n)
	}
}

func testItemsSnapshot(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureIterate|db.FeatureDelete)

	database.Set("a", []byte("1"))
	database.Set("b", []byte("2"))

	seq := database.Items()

	// mutations after the snapshot was taken must not be visible
	database.Set("c", []byte("3"))
	database.Delete("a")
	database.Set("b", []byte("changed"))

	got := map[string]string{}
	for k, v := range seq {
		got[k] = string(v)
	}
	if len(got) != 2 || got["a"] != "1" || got["b"] != "2" {
		t.Errorf("Snapshot should only contain a=1 b=2, got %v", got)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	source := factory()
	defer source.Close()

	requireFeature(t, source, db.FeatureSet|db.FeatureSave|db.FeatureLoad|db.FeatureIterate)

	expected := map[string][]byte{
		"":           []byte("empty key"),
		"empty":      {},
		"binary\x00": {0, 1, 2, 255},
		"tab\tkey":   []byte("line\nbreak"),
	}
	for i := 0; i < 500; i++ {
		expected[fmt.Sprintf("bulk-%d", i)] = bytes.Repeat([]byte{byte(i)}, i%97)
	}
	for k, v := range expected {
		source.Set(k, v)
	}

	var buf bytes.Buffer
	if err := source.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	target := factory()
	defer target.Close()
	target.Set("stale", []byte("must disappear"))

	if err := target.Load(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	items, _ := collect(target)
	if len(items) != len(expected) {
		t.Fatalf("Expected %d entries after Load, got %d", len(expected), len(items))
	}
	for k, v := range expected {
		got, ok := target.Get(k)
		if !ok {
			t.Errorf("Key %q missing after Load", k)
			continue
		}
		if !bytes.Equal(got, v) {
			t.Errorf("Value mismatch for %q after Load", k)
		}
	}
	if target.Has("stale") {
		t.Errorf("Load must replace the existing content")
	}
}

func testLoadRejectsGarbage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureLoad)

	database.Set("keep", []byte("me"))

	inputs := map[string][]byte{
		"Empty":    {},
		"BadMagic": []byte("NOTADB\x00\x00\x01"),
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			if err := database.Load(bytes.NewReader(input)); err == nil {
				t.Errorf("Load should fail for %s input", name)
			}
			if v, ok := database.Get("keep"); !ok || string(v) != "me" {
				t.Errorf("Failed Load must keep the previous content")
			}
		})
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	emptyKey := ""
	emptyKeyValue := []byte("value for empty key")

	database.Set(emptyKey, emptyKeyValue)

	result, exists := database.Get(emptyKey)
	if !exists {
		t.Errorf("Empty key not found after Set")
	} else if !bytes.Equal(result, emptyKeyValue) {
		t.Errorf("Value mismatch for empty key")
	}

	nilValueKey := "nil-value-key"
	database.Set(nilValueKey, nil)

	result, exists = database.Get(nilValueKey)
	if !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	binaryKey := "bin\x00\xff\t\n"
	binaryValue := []byte{0, '\t', '\n', 0xff}
	database.Set(binaryKey, binaryValue)
	if result, exists = database.Get(binaryKey); !exists || !bytes.Equal(result, binaryValue) {
		t.Errorf("Binary key/value did not survive Set/Get")
	}

	if !t.Failed() {
		largeKey := string(make([]byte, 1000))
		largeKeyValue := []byte("value for large key")

		database.Set(largeKey, largeKeyValue)

		result, exists = database.Get(largeKey)
		if !exists {
			t.Errorf("Large key not found after Set")
		} else if !bytes.Equal(result, largeKeyValue) {
			t.Errorf("Value mismatch for large key")
		}

		largeValueKey := "large-value-key"
		largeValue := make([]byte, 8*1024*1024)
		for i := range largeValue {
			largeValue[i] = byte(i % 256)
		}

		database.Set(largeValueKey, largeValue)

		result, exists = database.Get(largeValueKey)
		if !exists {
			t.Errorf("Key for large value not found after Set")
		} else if !bytes.Equal(result, largeValue) {
			t.Errorf("Large value mismatch (got %d bytes, expected %d)", len(result), len(largeValue))
		}
	}
}

func testCollisionHandling(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	prefix := "collision-test-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("%s%d", prefix, i), []byte(fmt.Sprintf("value-%d", i)))
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		expectedValue := []byte(fmt.Sprintf("value-%d", i))

		actualValue, exists := database.Get(key)
		if !exists {
			t.Errorf("Key %s not found", key)
			continue
		}
		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value for key %s does not match: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	for i := 0; i < numKeys; i += 2 {
		database.Delete(fmt.Sprintf("%s%d", prefix, i))
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, exists := database.Get(key)

		if i%2 == 0 && exists {
			t.Errorf("Key %s should be deleted", key)
		}
		if i%2 == 1 && !exists {
			t.Errorf("Key %s should still exist", key)
		}
	}
}

func testConcurrentUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete|db.FeatureIterate)

	numWorkers := 8
	opsPerWorker := 1000

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerId, i)
				database.Set(key, []byte(key))
				if i%3 == 0 {
					database.Delete(key)
				}
				database.Get(fmt.Sprintf("hot-key-%d", i%10))
			}
		}(w)
	}

	wg.Wait()

	expected := 0
	for i := 0; i < opsPerWorker; i++ {
		if i%3 != 0 {
			expected++
		}
	}
	expected *= numWorkers

	if database.Len() != expected {
		t.Errorf("Expected %d entries after concurrent usage, got %d", expected, database.Len())
	}

	for k, v := range database.Items() {
		if k != string(v) {
			t.Errorf("Key %s holds foreign value %s", k, v)
		}
	}
}
