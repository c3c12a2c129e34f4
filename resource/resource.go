// Package resource resolves remote display resources through a chunkcache
// Client and tracks their load state.
//
// Each Resource runs a small state machine:
//
//	Idle --Load--> Loading --ReportLoaded--> Loaded
//	                  |
//	                  +--ReportFailure--> Failed --(hidden->visible | Reload)--> Loading
//
// A failed resource is retried only when it becomes visible again (or on an
// explicit Reload), so off-screen failures never cause retry storms.
//
// The cached payload is the data URI text itself. Build the client's cache
// with chunkcache.TextEncoding so it is persisted verbatim; the default
// base64 encoding grows it by a third.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/chunkcache"
	"github.com/unkn0wn-root/chunkcache/fetch"
)

type State int

const (
	Idle State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var ErrURIRequired = errors.New("resource: uri is required")

// Fetcher produces the body of a locator. fetch.HTTP satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (fetch.Result, error)
}

type Options struct {
	TTL          time.Duration // 0 => chunkcache.DisplayTTL
	DisableCache bool          // Source is always the original locator
	// OnChange observes every state transition. It runs outside the
	// resource lock and must not block.
	OnChange func(uri string, from, to State)
	Logger   chunkcache.Logger
}

type Resource struct {
	uri    string
	client *chunkcache.Client
	fetch  Fetcher
	ttl    time.Duration
	opts   Options
	log    chunkcache.Logger
	limit  func(ctx context.Context, fn func() error) error

	mu       sync.Mutex
	state    State
	visible  bool
	source   string
	cached   bool
	lastErr  error
	attempts int
	seq      uint64 // bumps per resolve; stale resolves are discarded
}

// New returns an Idle resource for uri. client may be nil when opts.DisableCache is set.
func New(client *chunkcache.Client, f Fetcher, uri string, opts Options) (*Resource, error) {
	if uri == "" {
		return nil, ErrURIRequired
	}
	if client == nil && !opts.DisableCache {
		return nil, fmt.Errorf("resource %q: client is required unless DisableCache is set", uri)
	}
	if f == nil {
		f = fetch.HTTP{}
	}
	r := &Resource{
		uri:    uri,
		client: client,
		fetch:  f,
		ttl:    opts.TTL,
		opts:   opts,
		log:    opts.Logger,
	}
	if r.ttl <= 0 {
		r.ttl = chunkcache.DisplayTTL
	}
	if r.log == nil {
		r.log = chunkcache.NopLogger{}
	}
	return r, nil
}

func (r *Resource) URI() string { return r.uri }

func (r *Resource) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Source is what the consumer should render: the cached data URI when the
// cache produced one, otherwise the original locator.
func (r *Resource) Source() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.source == "" {
		return r.uri
	}
	return r.source
}

// Cached reports whether Source came out of the cache on the last resolve.
func (r *Resource) Cached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cached
}

// Err is the failure passed to the last ReportFailure, if any.
func (r *Resource) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Attempts counts resolves started, including retries.
func (r *Resource) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Load starts the first resolve. It is a no-op unless the resource is Idle.
// The resource stays Loading until the consumer reports the render outcome.
func (r *Resource) Load(ctx context.Context) string {
	return r.begin(ctx, func(s State) bool { return s == Idle })
}

// Reload retries a failed resource regardless of visibility.
func (r *Resource) Reload(ctx context.Context) string {
	return r.begin(ctx, func(s State) bool { return s == Failed })
}

// SetVisible records the visibility signal. A hidden->visible edge on a
// Failed resource re-enters Loading.
func (r *Resource) SetVisible(ctx context.Context, visible bool) {
	r.mu.Lock()
	edge := visible && !r.visible
	r.visible = visible
	retry := edge && r.state == Failed
	r.mu.Unlock()
	if retry {
		r.begin(ctx, func(s State) bool { return s == Failed })
	}
}

func (r *Resource) Visible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

// ReportLoaded marks the rendered source as good.
func (r *Resource) ReportLoaded() {
	r.transition(func() (State, bool) {
		if r.state != Loading {
			return 0, false
		}
		r.lastErr = nil
		return Loaded, true
	})
}

// ReportFailure marks the render as failed. A cached source that failed to
// render is dropped from the cache so the next attempt fetches it again.
func (r *Resource) ReportFailure(ctx context.Context, err error) {
	var evict bool
	r.transition(func() (State, bool) {
		if r.state != Loading && r.state != Loaded {
			return 0, false
		}
		r.lastErr = err
		evict = r.cached
		r.cached = false
		r.source = ""
		return Failed, true
	})
	if evict && r.client != nil {
		r.client.Cache().Delete(ctx, r.uri)
		r.log.Info("resource: dropped cached source after render failure", chunkcache.Fields{"uri": r.uri, "err": err})
	}
}

func (r *Resource) begin(ctx context.Context, allowed func(State) bool) string {
	var seq uint64
	started := r.transition(func() (State, bool) {
		if !allowed(r.state) {
			return 0, false
		}
		r.seq++
		r.attempts++
		seq = r.seq
		return Loading, true
	})
	if !started {
		return r.Source()
	}

	src, cached := r.resolve(ctx)

	r.mu.Lock()
	if r.seq == seq && r.state == Loading {
		r.source, r.cached = src, cached
	}
	r.mu.Unlock()
	return r.Source()
}

func (r *Resource) resolve(ctx context.Context) (string, bool) {
	if r.opts.DisableCache {
		return "", false
	}
	var (
		data   []byte
		cached bool
	)
	run := func() error {
		data, cached = r.client.GetOrPopulate(ctx, r.uri, r.populate, r.ttl)
		return nil
	}
	if r.limit != nil {
		if err := r.limit(ctx, run); err != nil {
			r.log.Debug("resource: resolve not started", chunkcache.Fields{"uri": r.uri, "err": err})
			return "", false
		}
	} else {
		_ = run()
	}
	if data == nil {
		return "", false
	}
	return string(data), cached
}

func (r *Resource) populate(ctx context.Context) ([]byte, error) {
	res, err := r.fetch.Fetch(ctx, r.uri)
	if err != nil {
		return nil, err
	}
	return []byte(res.DataURI()), nil
}

// transition applies fn under the lock and fires OnChange when the state moved.
func (r *Resource) transition(fn func() (State, bool)) bool {
	r.mu.Lock()
	from := r.state
	to, ok := fn()
	if ok {
		r.state = to
	}
	r.mu.Unlock()
	if ok && from != to && r.opts.OnChange != nil {
		r.opts.OnChange(r.uri, from, to)
	}
	return ok
}
