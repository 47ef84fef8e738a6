package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/dittosite/pkg/store/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests executes the get/set/remove contract tests.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("Get_NotFound", suite.testGetNotFound)
	t.Run("SetThenGet", suite.testSetThenGet)
	t.Run("Set_Overwrites", suite.testSetOverwrites)
	t.Run("Set_EmptyValue", suite.testSetEmptyValue)
	t.Run("Set_LargeValue", suite.testSetLargeValue)
	t.Run("Remove_NotFound", suite.testRemoveNotFound)
	t.Run("Remove_Success", suite.testRemoveSuccess)
	t.Run("GetOrDefault", suite.testGetOrDefault)
	t.Run("CacheKeyShapes", suite.testCacheKeyShapes)
}

// RunIsolationTests checks that stores do not alias caller buffers.
func (suite *StoreTestSuite) RunIsolationTests(t *testing.T) {
	t.Run("SetCopiesValue", suite.testSetCopiesValue)
	t.Run("GetCopiesValue", suite.testGetCopiesValue)
}

// RunConcurrencyTests runs parallel writers and readers against one store.
func (suite *StoreTestSuite) RunConcurrencyTests(t *testing.T) {
	t.Run("ParallelSetGet", suite.testParallelSetGet)
}

// ============================================================================
// Get / Set
// ============================================================================

func (suite *StoreTestSuite) testGetNotFound(t *testing.T) {
	store := suite.newStore(t)

	_, err := store.Get(testContext(), "missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func (suite *StoreTestSuite) testSetThenGet(t *testing.T) {
	store := suite.newStore(t)

	require.NoError(t, store.Set(testContext(), "greeting", []byte("hello")))

	value, err := store.Get(testContext(), "greeting")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), value)
}

func (suite *StoreTestSuite) testSetOverwrites(t *testing.T) {
	store := suite.newStore(t)

	require.NoError(t, store.Set(testContext(), "k", []byte("first")))
	require.NoError(t, store.Set(testContext(), "k", []byte("second")))

	value, err := store.Get(testContext(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), value)
}

func (suite *StoreTestSuite) testSetEmptyValue(t *testing.T) {
	store := suite.newStore(t)

	require.NoError(t, store.Set(testContext(), "empty", []byte{}))

	value, err := store.Get(testContext(), "empty")
	require.NoError(t, err)
	assert.Len(t, value, 0)
}

func (suite *StoreTestSuite) testSetLargeValue(t *testing.T) {
	store := suite.newStore(t)

	large := bytes.Repeat([]byte("0123456789abcdef"), 16*1024)
	require.NoError(t, store.Set(testContext(), "large", large))

	value, err := store.Get(testContext(), "large")
	require.NoError(t, err)
	assert.Equal(t, large, value)
}

// ============================================================================
// Remove
// ============================================================================

func (suite *StoreTestSuite) testRemoveNotFound(t *testing.T) {
	store := suite.newStore(t)

	err := store.Remove(testContext(), "missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func (suite *StoreTestSuite) testRemoveSuccess(t *testing.T) {
	store := suite.newStore(t)

	require.NoError(t, store.Set(testContext(), "gone", []byte("soon")))
	require.NoError(t, store.Remove(testContext(), "gone"))

	_, err := store.Get(testContext(), "gone")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func (suite *StoreTestSuite) testGetOrDefault(t *testing.T) {
	store := suite.newStore(t)

	value, err := kv.GetOrDefault(testContext(), store, "missing", []byte("fallback"))
	require.NoError(t, err)
	assert.Equal(t, []byte("fallback"), value)

	require.NoError(t, store.Set(testContext(), "present", []byte("stored")))
	value, err = kv.GetOrDefault(testContext(), store, "present", []byte("fallback"))
	require.NoError(t, err)
	assert.Equal(t, []byte("stored"), value)
}

// testCacheKeyShapes stores keys shaped like the cache layer's composite keys.
func (suite *StoreTestSuite) testCacheKeyShapes(t *testing.T) {
	store := suite.newStore(t)

	keys := []string{
		"content@acct@af1349b9f5f9a1a6a0404dea36dcc949@1",
		"direct_link@acct@af1349b9f5f9a1a6a0404dea36dcc949@1",
		"thumbnail-m@acct@af1349b9f5f9a1a6a0404dea36dcc949@1",
		"dir_metadata@acct@af1349b9f5f9a1a6a0404dea36dcc949@root",
		"ACCESS_TOKEN@dbid:AAH4f99T0taONIb-OurWxbNQ6ywGRopQngc",
	}

	for i, key := range keys {
		require.NoError(t, store.Set(testContext(), key, []byte(fmt.Sprintf("v%d", i))))
	}
	for i, key := range keys {
		value, err := store.Get(testContext(), key)
		require.NoError(t, err, key)
		assert.Equal(t, []byte(fmt.Sprintf("v%d", i)), value, key)
	}
}

// ============================================================================
// Isolation
// ============================================================================

func (suite *StoreTestSuite) testSetCopiesValue(t *testing.T) {
	store := suite.newStore(t)

	buf := []byte("original")
	require.NoError(t, store.Set(testContext(), "k", buf))
	copy(buf, "mutated!")

	value, err := store.Get(testContext(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), value)
}

func (suite *StoreTestSuite) testGetCopiesValue(t *testing.T) {
	store := suite.newStore(t)

	require.NoError(t, store.Set(testContext(), "k", []byte("original")))

	first, err := store.Get(testContext(), "k")
	require.NoError(t, err)
	copy(first, "mutated!")

	second, err := store.Get(testContext(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), second)
}

// ============================================================================
// Concurrency
// ============================================================================

func (suite *StoreTestSuite) testParallelSetGet(t *testing.T) {
	store := suite.newStore(t)

	const workers = 8
	const perWorker = 20

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				if err := store.Set(testContext(), key, []byte(key)); err != nil {
					errs <- err
					return
				}
				value, err := store.Get(testContext(), key)
				if err != nil {
					errs <- err
					return
				}
				if string(value) != key {
					errs <- fmt.Errorf("key %s: got %q", key, value)
					return
				}
			}
		}(w)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
