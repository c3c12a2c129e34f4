package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func TestIsNotFound(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&types.NoSuchKey{}, true},
		{&types.NotFound{}, true},
		{fmt.Errorf("get: %w", &types.NoSuchKey{}), true},
		{&smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{&smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{errors.New("timeout"), false},
	}
	for _, c := range cases {
		if got := isNotFound(c.err); got != c.want {
			t.Fatalf("isNotFound(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
}
