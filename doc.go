// Package chunkcache persists arbitrarily large blobs in a key-value store
// whose individual writes are size-limited and which has no native TTL.
//
// A payload is text-encoded (base64 by default), split into bounded chunks,
// and written as one record per chunk followed by a metadata record that
// holds the chunk count and the expiration time:
//
//	<prefix><key>_chunk_<i>  - chunk i of the encoded payload
//	<prefix><key>_metadata   - {"numberOfChunks":N,"expirationTime":<epoch ms>}
//
// Metadata is written last, so under normal operation it never points at
// missing chunks. Expiry is enforced lazily on read; PurgeExpired scans the
// whole namespace and is meant for startup, not the hot path.
//
// The cache is an optimization layer only. No read, write or delete returns
// an error: IO failures, corrupt entries and expired entries all degrade to
// a miss (or a logged no-op) and are reported through Logger and Hooks.
//
// Client adds get-or-populate on top of Cache:
//
//	cl := chunkcache.NewClient(cache, chunkcache.ClientOptions{})
//	data, cached := cl.GetOrPopulate(ctx, uri, fetch.HTTP{}.Populate(uri), 0)
//	if data == nil {
//	    // fall back to the uncached uri
//	}
package chunkcache
