// Package storetest is a behavioral contract suite for store.Store adapters.
package storetest

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/unkn0wn-root/chunkcache/store"
)

// Run exercises s against the store.Store contract. s must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		v, ok, err := s.Get(ctx, "absent")
		if err != nil || ok || v != "" {
			t.Fatalf("Get miss: v=%q ok=%v err=%v", v, ok, err)
		}
	})

	t.Run("set_get_overwrite", func(t *testing.T) {
		if err := s.Set(ctx, "@t:a_metadata", `{"numberOfChunks":1}`); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if v, ok, err := s.Get(ctx, "@t:a_metadata"); err != nil || !ok || v != `{"numberOfChunks":1}` {
			t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
		}
		if err := s.Set(ctx, "@t:a_metadata", "second"); err != nil {
			t.Fatalf("Set overwrite: %v", err)
		}
		if v, _, _ := s.Get(ctx, "@t:a_metadata"); v != "second" {
			t.Fatalf("overwrite not visible: %q", v)
		}
	})

	t.Run("empty_value", func(t *testing.T) {
		if err := s.Set(ctx, "@t:empty_chunk_0", ""); err != nil {
			t.Fatalf("Set empty: %v", err)
		}
		v, ok, err := s.Get(ctx, "@t:empty_chunk_0")
		if err != nil || !ok || v != "" {
			t.Fatalf("Get empty: v=%q ok=%v err=%v", v, ok, err)
		}
	})

	t.Run("large_value", func(t *testing.T) {
		big := strings.Repeat("QUJD", 64<<10)
		if err := s.Set(ctx, "@t:big_chunk_0", big); err != nil {
			t.Fatalf("Set big: %v", err)
		}
		if v, ok, _ := s.Get(ctx, "@t:big_chunk_0"); !ok || v != big {
			t.Fatalf("big value not transparent (ok=%v len=%d)", ok, len(v))
		}
	})

	t.Run("keys", func(t *testing.T) {
		got, err := s.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		sort.Strings(got)
		want := []string{"@t:a_metadata", "@t:big_chunk_0", "@t:empty_chunk_0"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("Keys: got %v want %v", got, want)
		}
	})

	t.Run("remove", func(t *testing.T) {
		if err := s.Remove(ctx, "@t:a_metadata"); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		if _, ok, _ := s.Get(ctx, "@t:a_metadata"); ok {
			t.Fatalf("key survived Remove")
		}
		if err := s.Remove(ctx, "@t:a_metadata"); err != nil {
			t.Fatalf("Remove absent should be a no-op: %v", err)
		}
	})

	t.Run("remove_many", func(t *testing.T) {
		if err := s.RemoveMany(ctx, []string{"@t:big_chunk_0", "@t:empty_chunk_0", "@t:never"}); err != nil {
			t.Fatalf("RemoveMany: %v", err)
		}
		if err := s.RemoveMany(ctx, nil); err != nil {
			t.Fatalf("RemoveMany(nil): %v", err)
		}
		got, err := s.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected empty store, got %v", got)
		}
	})
}
