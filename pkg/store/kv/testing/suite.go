package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittosite/pkg/store/kv"
)

// StoreTestSuite is a conformance suite for kv.Store implementations.
// It tests the interface contract, not implementation details, so every
// backend (memory, filesystem, badger, bbolt, S3, session) runs the same
// assertions.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &kvtesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) kv.Store {
//	            return mystore.New(t.TempDir())
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test. The suite closes
	// the store when the test ends.
	NewStore func(t *testing.T) kv.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("Isolation", suite.RunIsolationTests)
	t.Run("Concurrency", suite.RunConcurrencyTests)
}

func (suite *StoreTestSuite) newStore(t *testing.T) kv.Store {
	t.Helper()
	store := suite.NewStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testContext() context.Context {
	return context.Background()
}
