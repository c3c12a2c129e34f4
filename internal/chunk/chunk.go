// Package chunk splits encoded payloads into bounded records and joins them back.
package chunk

import (
	"errors"
	"strings"
)

// DefaultMaxBytes is 1.5 MiB, below the per-write limit of common mobile and
// embedded key-value stores.
const DefaultMaxBytes = 3 << 19

var ErrInvalidSize = errors.New("chunk: max chunk size must be positive")

// Count returns how many chunks Split produces for n bytes. Never less than 1.
func Count(n, maxBytes int) int {
	if n <= 0 {
		return 1
	}
	return (n + maxBytes - 1) / maxBytes
}

// Split cuts payload into ordered chunks of at most maxBytes bytes.
// An empty payload yields exactly one empty chunk.
// Chunks are substrings of payload; no copy is made.
func Split(payload string, maxBytes int) ([]string, error) {
	if maxBytes <= 0 {
		return nil, ErrInvalidSize
	}
	out := make([]string, 0, Count(len(payload), maxBytes))
	for off := 0; off < len(payload); off += maxBytes {
		end := off + maxBytes
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, payload[off:end])
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out, nil
}

// Join concatenates chunks in index order.
func Join(chunks []string) string {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	var b strings.Builder
	b.Grow(n)
	for _, c := range chunks {
		b.WriteString(c)
	}
	return b.String()
}
