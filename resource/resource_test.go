package resource

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/chunkcache"
	"github.com/unkn0wn-root/chunkcache/fetch"
	"github.com/unkn0wn-root/chunkcache/store/memory"
)

type stubFetcher struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (f *stubFetcher) Fetch(_ context.Context, uri string) (fetch.Result, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return fetch.Result{}, errors.New("connection refused")
	}
	return fetch.Result{Body: []byte("png:" + uri), ContentType: "image/png"}, nil
}

func newClient(t *testing.T) *chunkcache.Client {
	t.Helper()
	c, err := chunkcache.New(chunkcache.Options{Store: memory.New(memory.Config{})})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return chunkcache.NewClient(c, chunkcache.ClientOptions{})
}

func TestLoadResolvesDataURI(t *testing.T) {
	ctx := context.Background()
	f := &stubFetcher{}
	r, err := New(newClient(t), f, "https://cdn/a.png", Options{})
	require.NoError(t, err)
	require.Equal(t, Idle, r.State())
	require.Equal(t, "https://cdn/a.png", r.Source())

	src := r.Load(ctx)
	require.Equal(t, Loading, r.State())
	require.True(t, strings.HasPrefix(src, "data:image/png;base64,"), src)
	require.False(t, r.Cached())

	// A second Load is a no-op.
	r.Load(ctx)
	require.EqualValues(t, 1, f.calls.Load())
	require.Equal(t, 1, r.Attempts())

	r.ReportLoaded()
	require.Equal(t, Loaded, r.State())

	// Another handle for the same locator hits the cache.
	r2, err := New(r.client, f, "https://cdn/a.png", Options{})
	require.NoError(t, err)
	require.Equal(t, src, r2.Load(ctx))
	require.True(t, r2.Cached())
	require.EqualValues(t, 1, f.calls.Load())
}

func TestDataURIStoredVerbatimWithTextEncoding(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	c, err := chunkcache.New(chunkcache.Options{Store: st, Encoding: chunkcache.TextEncoding})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	r, err := New(chunkcache.NewClient(c, chunkcache.ClientOptions{}), &stubFetcher{}, "https://cdn/v.png", Options{})
	require.NoError(t, err)
	src := r.Load(ctx)

	raw, ok, err := st.Get(ctx, "@chunkcache:https://cdn/v.png_chunk_0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, src, raw)
}

func TestFetchFailureFallsBackToURI(t *testing.T) {
	ctx := context.Background()
	f := &stubFetcher{}
	f.fail.Store(true)
	r, err := New(newClient(t), f, "https://cdn/b.png", Options{})
	require.NoError(t, err)

	require.Equal(t, "https://cdn/b.png", r.Load(ctx))
	require.False(t, r.Cached())
}

func TestRetryOnlyOnVisibleEdge(t *testing.T) {
	ctx := context.Background()
	f := &stubFetcher{}
	var mu sync.Mutex
	var transitions []string
	r, err := New(newClient(t), f, "https://cdn/c.png", Options{
		OnChange: func(_ string, from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+">"+to.String())
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	r.SetVisible(ctx, true)
	r.Load(ctx)
	r.ReportFailure(ctx, errors.New("decode error"))
	require.Equal(t, Failed, r.State())
	require.EqualError(t, r.Err(), "decode error")

	// Still visible: no edge, no retry.
	r.SetVisible(ctx, true)
	require.Equal(t, Failed, r.State())
	require.Equal(t, 1, r.Attempts())

	// Hidden: no retry.
	r.SetVisible(ctx, false)
	require.Equal(t, Failed, r.State())

	// Hidden -> visible edge retries.
	r.SetVisible(ctx, true)
	require.Equal(t, Loading, r.State())
	require.Equal(t, 2, r.Attempts())

	r.ReportLoaded()
	require.Nil(t, r.Err())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"idle>loading", "loading>failed", "failed>loading", "loading>loaded"}, transitions)
}

func TestRenderFailureEvictsCachedSource(t *testing.T) {
	ctx := context.Background()
	f := &stubFetcher{}
	cl := newClient(t)

	warm, err := New(cl, f, "https://cdn/d.png", Options{})
	require.NoError(t, err)
	warm.Load(ctx)

	r, err := New(cl, f, "https://cdn/d.png", Options{})
	require.NoError(t, err)
	r.Load(ctx)
	require.True(t, r.Cached())

	r.ReportFailure(ctx, errors.New("bad image"))
	_, ok := cl.Cache().Retrieve(ctx, "https://cdn/d.png")
	require.False(t, ok, "cached source should be dropped after render failure")

	r.Reload(ctx)
	require.False(t, r.Cached())
	require.EqualValues(t, 2, f.calls.Load())
}

func TestDisableCache(t *testing.T) {
	ctx := context.Background()
	f := &stubFetcher{}
	r, err := New(nil, f, "https://cdn/e.png", Options{DisableCache: true})
	require.NoError(t, err)

	require.Equal(t, "https://cdn/e.png", r.Load(ctx))
	require.Zero(t, f.calls.Load())
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, nil, "", Options{DisableCache: true})
	require.ErrorIs(t, err, ErrURIRequired)

	_, err = New(nil, nil, "https://x", Options{})
	require.Error(t, err)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	f := &stubFetcher{}
	reg := NewRegistry(newClient(t), f, Options{}, 2)

	a1, err := reg.Get("https://cdn/a.png")
	require.NoError(t, err)
	a2, err := reg.Get("https://cdn/a.png")
	require.NoError(t, err)
	require.Same(t, a1, a2)

	var wg sync.WaitGroup
	for _, u := range []string{"https://cdn/a.png", "https://cdn/b.png", "https://cdn/c.png"} {
		r, err := reg.Get(u)
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.SetVisible(ctx, true)
			r.Load(ctx)
		}()
	}
	wg.Wait()
	require.Equal(t, 3, reg.Len())
	require.Equal(t, map[State]int{Loading: 3}, reg.Counts())

	b, _ := reg.Get("https://cdn/b.png")
	b.ReportFailure(ctx, errors.New("x"))
	require.Equal(t, 1, reg.Retry(ctx))
	require.Equal(t, Loading, b.State())

	reg.Forget("https://cdn/c.png")
	require.Equal(t, 2, reg.Len())

	_, err = reg.Get("")
	require.ErrorIs(t, err, ErrURIRequired)
}
