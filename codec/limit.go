package codec

import "fmt"

// Limit wraps Inner and refuses to decode payloads larger than MaxDecode bytes.
// MaxDecode <= 0 disables the check. Encode is forwarded unchanged.
//
// Useful when the backing store is shared and may hold oversized foreign data.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("codec: payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
