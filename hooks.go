package chunkcache

// Self-heal reasons passed to Hooks.SelfHeal.
const (
	ReasonExpired        = "expired"
	ReasonCorrupt        = "corrupt"
	ReasonMetadataDecode = "metadata_decode"
)

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run inline with cache IO.
type Hooks interface {
	// An entry was removed by the cache on its own (reason is one of the Reason* constants).
	SelfHeal(storageKey, reason string)

	// Writing chunk index failed; the store call was abandoned.
	ChunkWriteFailed(storageKey string, index int, err error)

	// A byte-store call failed (op is "get", "set", "remove", "remove_many" or "keys").
	StoreIOError(op, storageKey string, err error)

	// The populate callback of Client failed.
	PopulateFailed(key string, err error)

	// A populated value was not stored because the key was deleted or purged meanwhile.
	FenceRejected(key string)

	// A purge finished (kind is "all", "expired" or "orphans").
	Purged(kind string, removed int)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)             {}
func (NopHooks) ChunkWriteFailed(string, int, error) {}
func (NopHooks) StoreIOError(string, string, error)  {}
func (NopHooks) PopulateFailed(string, error)        {}
func (NopHooks) FenceRejected(string)                {}
func (NopHooks) Purged(string, int)                  {}
