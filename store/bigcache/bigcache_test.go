package bigcache

import (
	"context"
	"testing"

	"github.com/unkn0wn-root/chunkcache/store/storetest"
)

func TestContract(t *testing.T) {
	s, err := New(Config{Shards: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	storetest.Run(t, s)
}
