package chunk

import (
	"strings"
	"testing"
)

func payloadOf(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[i%len(alphabet)])
	}
	return b.String()
}

func TestSplitJoinRoundTrip(t *testing.T) {
	const size = 16
	cases := []struct {
		name   string
		n      int
		chunks int
	}{
		{"empty", 0, 1},
		{"one", 1, 1},
		{"below", size - 1, 1},
		{"exact", size, 1},
		{"above", size + 1, 2},
		{"ten", 10 * size, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := payloadOf(tc.n)
			parts, err := Split(in, size)
			if err != nil {
				t.Fatalf("Split: %v", err)
			}
			if len(parts) != tc.chunks {
				t.Fatalf("chunks: got %d want %d", len(parts), tc.chunks)
			}
			if got := Count(tc.n, size); got != tc.chunks {
				t.Fatalf("Count: got %d want %d", got, tc.chunks)
			}
			for i, p := range parts {
				if len(p) > size {
					t.Fatalf("chunk %d exceeds max: %d", i, len(p))
				}
			}
			if out := Join(parts); out != in {
				t.Fatalf("round trip mismatch for n=%d", tc.n)
			}
		})
	}
}

func TestSplitEmptyYieldsSingleEmptyChunk(t *testing.T) {
	parts, err := Split("", DefaultMaxBytes)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 || parts[0] != "" {
		t.Fatalf("got %q want one empty chunk", parts)
	}
}

func TestSplitPreservesOrder(t *testing.T) {
	parts, err := Split("aabbc", 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"aa", "bb", "c"}
	if len(parts) != len(want) {
		t.Fatalf("got %q want %q", parts, want)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Fatalf("index %d: got %q want %q", i, parts[i], want[i])
		}
	}
}

func TestSplitRejectsNonPositiveSize(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := Split("x", n); err != ErrInvalidSize {
			t.Fatalf("size %d: got err=%v want ErrInvalidSize", n, err)
		}
	}
}

func TestDefaultMaxBytes(t *testing.T) {
	if DefaultMaxBytes != 1572864 {
		t.Fatalf("DefaultMaxBytes = %d, want 1.5 MiB", DefaultMaxBytes)
	}
}
