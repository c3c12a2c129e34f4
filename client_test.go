package chunkcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/chunkcache/codec"
	"github.com/unkn0wn-root/chunkcache/store/memory"
)

func counter(b []byte, n *atomic.Int32) PopulateFunc {
	return func(context.Context) ([]byte, error) {
		n.Add(1)
		return b, nil
	}
}

func TestGetOrPopulateColdThenWarm(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	cl := NewClient(e.cache, ClientOptions{})

	var calls atomic.Int32
	data, cached := cl.GetOrPopulate(ctx, "https://x/a.png", counter([]byte("img"), &calls), 0)
	if string(data) != "img" || cached || calls.Load() != 1 {
		t.Fatalf("cold: data=%q cached=%v calls=%d", data, cached, calls.Load())
	}

	data, cached = cl.GetOrPopulate(ctx, "https://x/a.png", counter([]byte("other"), &calls), 0)
	if string(data) != "img" || !cached || calls.Load() != 1 {
		t.Fatalf("warm: data=%q cached=%v calls=%d", data, cached, calls.Load())
	}

	// Client default TTL is DisplayTTL.
	e.clock.Advance(DisplayTTL + time.Second)
	if _, cached = cl.GetOrPopulate(ctx, "https://x/a.png", counter([]byte("img"), &calls), 0); cached {
		t.Fatalf("entry should expire after DisplayTTL")
	}
}

func TestGetOrPopulateFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	cl := NewClient(e.cache, ClientOptions{Hooks: e.hooks})

	data, cached := cl.GetOrPopulate(ctx, "k", func(context.Context) ([]byte, error) {
		return nil, errors.New("503")
	}, 0)
	if data != nil || cached {
		t.Fatalf("failed populate: data=%q cached=%v", data, cached)
	}
	if e.store.Len() != 0 {
		t.Fatalf("failed populate wrote records")
	}
	if !e.hooks.has("populate_failed", "k", "") {
		t.Fatalf("PopulateFailed not fired")
	}
}

func TestGetOrPopulateStoreFailureStillReturnsData(t *testing.T) {
	ctx := context.Background()
	fs := &faultStore{Store: memory.New(memory.Config{})}
	fs.failSet = func(string) error { return errors.New("quota") }
	c, err := newCache(Options{Store: fs})
	if err != nil {
		t.Fatalf("newCache: %v", err)
	}
	defer c.Close(ctx)
	cl := NewClient(c, ClientOptions{})

	var calls atomic.Int32
	data, cached := cl.GetOrPopulate(ctx, "k", counter([]byte("v"), &calls), 0)
	if string(data) != "v" || cached {
		t.Fatalf("data=%q cached=%v", data, cached)
	}
}

func TestGetOrPopulateCoalescesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	cl := NewClient(e.cache, ClientOptions{})

	release := make(chan struct{})
	var calls atomic.Int32
	populate := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("shared"), nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([][]byte, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = cl.GetOrPopulate(ctx, "k", populate, time.Hour)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("populate ran %d times, want 1", calls.Load())
	}
	for i, r := range results {
		if string(r) != "shared" {
			t.Fatalf("caller %d got %q", i, r)
		}
	}
	if got, ok := e.cache.Retrieve(ctx, "k"); !ok || string(got) != "shared" {
		t.Fatalf("result not cached")
	}
}

// TestGetOrPopulateWithoutCoalescing: both concurrent callers succeed, each
// with its own populate.
func TestGetOrPopulateWithoutCoalescing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	cl := NewClient(e.cache, ClientOptions{DisableCoalescing: true})

	var calls atomic.Int32
	var wg sync.WaitGroup
	var ok1, ok2 bool
	wg.Add(2)
	go func() {
		defer wg.Done()
		d, _ := cl.GetOrPopulate(ctx, "k", counter([]byte("v"), &calls), 0)
		ok1 = string(d) == "v"
	}()
	go func() {
		defer wg.Done()
		d, _ := cl.GetOrPopulate(ctx, "k", counter([]byte("v"), &calls), 0)
		ok2 = string(d) == "v"
	}()
	wg.Wait()
	if !ok1 || !ok2 {
		t.Fatalf("concurrent callers: %v %v", ok1, ok2)
	}
	if got, ok := e.cache.Retrieve(ctx, "k"); !ok || string(got) != "v" {
		t.Fatalf("value not cached")
	}
}

// TestGetOrPopulateFencedByDelete: a Delete during populate keeps its result out of the cache.
func TestGetOrPopulateFencedByDelete(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	cl := NewClient(e.cache, ClientOptions{})

	data, _ := cl.GetOrPopulate(ctx, "k", func(ctx context.Context) ([]byte, error) {
		e.cache.Delete(ctx, "k")
		return []byte("stale"), nil
	}, 0)
	if string(data) != "stale" {
		t.Fatalf("caller should still get the populated data, got %q", data)
	}
	if _, ok := e.cache.Retrieve(ctx, "k"); ok {
		t.Fatalf("fenced result was cached")
	}
}

func TestGetOrPopulateCallerCancel(t *testing.T) {
	e := newEnv(t, nil)
	cl := NewClient(e.cache, ClientOptions{})

	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []byte)
	go func() {
		d, _ := cl.GetOrPopulate(ctx, "k", func(context.Context) ([]byte, error) {
			<-release
			return []byte("late"), nil
		}, 0)
		done <- d
	}()
	cancel()
	if d := <-done; d != nil {
		t.Fatalf("cancelled caller got %q", d)
	}

	// The flight still completes and caches its result.
	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if got, ok := e.cache.Retrieve(context.Background(), "k"); ok {
			if string(got) != "late" {
				t.Fatalf("cached %q", got)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("flight result never cached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGetOrPopulateDisabledCache(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(o *Options) { o.Disabled = true })
	cl := NewClient(e.cache, ClientOptions{})

	var calls atomic.Int32
	for range 2 {
		d, cached := cl.GetOrPopulate(ctx, "k", counter([]byte("v"), &calls), 0)
		if string(d) != "v" || cached {
			t.Fatalf("disabled: data=%q cached=%v", d, cached)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("populate calls = %d, want 2", calls.Load())
	}
}

type profile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestTypedGetOrPopulate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	tc := NewTyped(NewClient(e.cache, ClientOptions{}), codec.JSON[profile]{})

	var calls int
	load := func(context.Context) (profile, error) {
		calls++
		return profile{Name: "Ada", Age: 36}, nil
	}
	v, cached, err := tc.GetOrPopulate(ctx, "p:1", load, time.Hour)
	if err != nil || cached || v.Name != "Ada" {
		t.Fatalf("cold: v=%+v cached=%v err=%v", v, cached, err)
	}
	v, cached, err = tc.GetOrPopulate(ctx, "p:1", load, time.Hour)
	if err != nil || !cached || v.Age != 36 || calls != 1 {
		t.Fatalf("warm: v=%+v cached=%v err=%v calls=%d", v, cached, err, calls)
	}

	// Undecodable cached bytes are dropped and repopulated.
	e.cache.Store(ctx, "p:1", []byte("not json"), time.Hour)
	v, cached, err = tc.GetOrPopulate(ctx, "p:1", load, time.Hour)
	if err != nil || cached || v.Name != "Ada" || calls != 2 {
		t.Fatalf("after corrupt: v=%+v cached=%v err=%v calls=%d", v, cached, err, calls)
	}

	_, _, err = tc.GetOrPopulate(ctx, "p:2", func(context.Context) (profile, error) {
		return profile{}, errors.New("down")
	}, 0)
	if !errors.Is(err, ErrUpstreamFetch) {
		t.Fatalf("err = %v, want ErrUpstreamFetch", err)
	}
}
