package chunkcache

import "time"

const (
	DefaultPrefix = "@chunkcache:"
	// DefaultTTL suits generic payloads.
	DefaultTTL = 30 * 24 * time.Hour
	// DisplayTTL suits display resources such as images.
	DisplayTTL = 7 * 24 * time.Hour
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
