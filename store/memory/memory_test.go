package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/chunkcache/store"
	"github.com/unkn0wn-root/chunkcache/store/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, New(Config{}))
}

func TestMaxValueBytes(t *testing.T) {
	ctx := context.Background()
	s := New(Config{MaxValueBytes: 4})
	if err := s.Set(ctx, "k", "1234"); err != nil {
		t.Fatalf("Set at limit: %v", err)
	}
	if err := s.Set(ctx, "k", "12345"); !errors.Is(err, store.ErrValueTooLarge) {
		t.Fatalf("Set over limit: got %v want ErrValueTooLarge", err)
	}
	if v, _, _ := s.Get(ctx, "k"); v != "1234" {
		t.Fatalf("rejected write must not replace value, got %q", v)
	}
}
