package memory

import (
	"testing"

	"github.com/marmos91/dittosite/pkg/store/kv"
	kvtesting "github.com/marmos91/dittosite/pkg/store/kv/testing"
)

func TestMemoryStore(t *testing.T) {
	suite := &kvtesting.StoreTestSuite{
		NewStore: func(t *testing.T) kv.Store {
			return NewMemoryStore()
		},
	}
	suite.Run(t)
}
