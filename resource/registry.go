package resource

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"

	"github.com/unkn0wn-root/chunkcache"
)

// Registry hands out one Resource per locator and bounds concurrent resolves.
type Registry struct {
	client    *chunkcache.Client
	fetch     Fetcher
	opts      Options
	sem       *semaphore.Weighted
	resources *xsync.MapOf[string, *Resource]
}

// NewRegistry creates a Registry. maxConcurrent < 1 leaves resolves unbounded.
func NewRegistry(client *chunkcache.Client, f Fetcher, opts Options, maxConcurrent int) *Registry {
	reg := &Registry{
		client:    client,
		fetch:     f,
		opts:      opts,
		resources: xsync.NewMapOf[string, *Resource](),
	}
	if maxConcurrent > 0 {
		reg.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return reg
}

// Get returns the Resource for uri, creating it Idle on first use.
func (reg *Registry) Get(uri string) (*Resource, error) {
	if r, ok := reg.resources.Load(uri); ok {
		return r, nil
	}
	r, err := New(reg.client, reg.fetch, uri, reg.opts)
	if err != nil {
		return nil, err
	}
	if reg.sem != nil {
		r.limit = reg.run
	}
	actual, _ := reg.resources.LoadOrStore(uri, r)
	return actual, nil
}

func (reg *Registry) run(ctx context.Context, fn func() error) error {
	if err := reg.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer reg.sem.Release(1)
	return fn()
}

// Forget drops the handle for uri. The cached bytes stay.
func (reg *Registry) Forget(uri string) { reg.resources.Delete(uri) }

func (reg *Registry) Len() int { return reg.resources.Size() }

// Counts tallies resources by state.
func (reg *Registry) Counts() map[State]int {
	out := make(map[State]int, 4)
	reg.resources.Range(func(_ string, r *Resource) bool {
		out[r.State()]++
		return true
	})
	return out
}

// Retry reloads every Failed resource that is currently visible.
func (reg *Registry) Retry(ctx context.Context) int {
	var n int
	reg.resources.Range(func(_ string, r *Resource) bool {
		if r.Visible() && r.State() == Failed {
			r.Reload(ctx)
			n++
		}
		return true
	})
	return n
}
