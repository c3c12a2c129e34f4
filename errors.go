package chunkcache

import (
	"errors"
	"fmt"
)

// Sentinels for the failure classes the cache absorbs. They reach callers only
// through Logger fields and Hooks, never as return values of cache operations.
var (
	ErrCorruptEntry  = errors.New("chunkcache: corrupt entry")
	ErrExpired       = errors.New("chunkcache: entry expired")
	ErrUpstreamFetch = errors.New("chunkcache: upstream fetch failed")
)

// IOError is a failed byte-store call.
type IOError struct {
	Op  string
	Key string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("chunkcache: store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CorruptError describes an entry whose metadata exists but cannot be served.
// Index is the offending chunk, or -1 when the metadata itself is bad.
type CorruptError struct {
	Key    string
	Index  int
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	switch {
	case e.Index >= 0 && e.Err != nil:
		return fmt.Sprintf("chunkcache: corrupt entry %q: chunk %d: %s: %v", e.Key, e.Index, e.Reason, e.Err)
	case e.Index >= 0:
		return fmt.Sprintf("chunkcache: corrupt entry %q: chunk %d: %s", e.Key, e.Index, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("chunkcache: corrupt entry %q: %s: %v", e.Key, e.Reason, e.Err)
	default:
		return fmt.Sprintf("chunkcache: corrupt entry %q: %s", e.Key, e.Reason)
	}
}

func (e *CorruptError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCorruptEntry}
	}
	return []error{ErrCorruptEntry, e.Err}
}

// FetchError wraps a failed populate callback.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("chunkcache: populate %q: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrUpstreamFetch, e.Err}
}
