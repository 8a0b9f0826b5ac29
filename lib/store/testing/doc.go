// Package testing provides a conformance suite for store.IStore implementations.
//
// An implementation calls RunStoreTests from its own test file with a factory
// that hands out a fresh, empty store per subtest:
//
//	func TestStore(t *testing.T) {
//		storetesting.RunStoreTests(t, "FileStore", func(t *testing.T) (store.IStore, func()) {
//			s, _ := fstore.Open(filepath.Join(t.TempDir(), "db"), fstore.Options{Create: true})
//			return s, func() { s.Close() }
//		})
//	}
package testing
