// Package keys owns the persisted key layout:
//
//	<prefix><cacheKey>_metadata       - entry metadata (JSON)
//	<prefix><cacheKey>_chunk_<index>  - one chunk payload
package keys

import (
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const (
	metadataSuffix = "_metadata"
	chunkInfix     = "_chunk_"
)

type Layout struct {
	Prefix string
}

func (l Layout) Metadata(key string) string {
	return l.Prefix + key + metadataSuffix
}

func (l Layout) Chunk(key string, index int) string {
	return l.Prefix + key + chunkInfix + strconv.Itoa(index)
}

// Owned reports whether storageKey lives under the reserved prefix.
func (l Layout) Owned(storageKey string) bool {
	return strings.HasPrefix(storageKey, l.Prefix)
}

// ParseMetadata returns the cache key of a metadata storage key.
func (l Layout) ParseMetadata(storageKey string) (string, bool) {
	if !l.Owned(storageKey) || !strings.HasSuffix(storageKey, metadataSuffix) {
		return "", false
	}
	return storageKey[len(l.Prefix) : len(storageKey)-len(metadataSuffix)], true
}

// ParseChunk returns the cache key and index of a chunk storage key.
// Metadata keys never parse as chunks.
func (l Layout) ParseChunk(storageKey string) (string, int, bool) {
	if !l.Owned(storageKey) {
		return "", 0, false
	}
	rest := storageKey[len(l.Prefix):]
	i := strings.LastIndex(rest, chunkInfix)
	if i < 0 {
		return "", 0, false
	}
	digits := rest[i+len(chunkInfix):]
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return "", 0, false
	}
	idx, err := strconv.Atoi(digits)
	if err != nil {
		return "", 0, false
	}
	return rest[:i], idx, true
}

// OwnedKeys filters all down to keys under the reserved prefix.
func (l Layout) OwnedKeys(all []string) []string {
	return lo.Filter(all, func(k string, _ int) bool { return l.Owned(k) })
}

// CacheKeys extracts the cache keys of every metadata record in all.
func (l Layout) CacheKeys(all []string) []string {
	return lo.FilterMap(all, func(k string, _ int) (string, bool) { return l.ParseMetadata(k) })
}
