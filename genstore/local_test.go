package genstore

import (
	"context"
	"testing"
	"time"
)

func TestLocalSnapshotManyZeroForMissing(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	for i := 0; i < 2; i++ {
		if _, err := s.Bump(ctx, "b"); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.SnapshotMany(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if got["a"] != 0 || got["b"] != 2 || got["c"] != 0 {
		t.Fatalf("got=%v want a=0,b=2,c=0", got)
	}
}

func TestLocalBumpIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	var last uint64
	for i := 0; i < 5; i++ {
		g, err := s.Bump(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if g != last+1 {
			t.Fatalf("bump %d: got %d want %d", i, g, last+1)
		}
		last = g
	}
	if g, _ := s.Snapshot(ctx, "k"); g != last {
		t.Fatalf("Snapshot = %d want %d", g, last)
	}
}

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Bump(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	s.Cleanup(10 * time.Millisecond)

	if g, _ := s.Snapshot(ctx, "old"); g != 0 {
		t.Fatalf("expected pruned -> 0, got %d", g)
	}
}

func TestLocalCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(time.Millisecond, time.Hour)
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
}
