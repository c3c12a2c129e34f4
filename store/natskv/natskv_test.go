package natskv

import (
	"context"
	"regexp"
	"testing"
)

// JetStream KV keys allow only [-/_=.a-zA-Z0-9].
var validKey = regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

func TestKeyEncoding(t *testing.T) {
	for _, k := range []string{
		"@chunkcache:https://cdn.example/a.png_metadata",
		"@chunkcache:k_chunk_12",
		"épreuve ?q=1&x=2",
	} {
		e := enc.EncodeToString([]byte(k))
		if !validKey.MatchString(e) {
			t.Fatalf("encoded key %q has invalid characters", e)
		}
		raw, err := enc.DecodeString(e)
		if err != nil || string(raw) != k {
			t.Fatalf("decode %q: got %q err %v", e, raw, err)
		}
	}
}

func TestOpenRequiresBucket(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
}
