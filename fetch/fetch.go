// Package fetch retrieves remote resources for chunkcache populate callbacks.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/unkn0wn-root/chunkcache"
	"github.com/unkn0wn-root/chunkcache/codec"
)

// ErrTooLarge is returned when a body exceeds HTTP.MaxBytes.
var ErrTooLarge = errors.New("fetch: body exceeds limit")

// StatusError is a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Result is one fetched body.
type Result struct {
	Body        []byte
	ContentType string // media type without parameters; "" when the server sent none
}

// DataURI renders r as a base64 data URI.
func (r Result) DataURI() string {
	b, _ := codec.DataURI{}.Encode(codec.Blob{MediaType: r.ContentType, Data: r.Body})
	return string(b)
}

// HTTP fetches with a GET request. The zero value uses http.DefaultClient and no size bound.
type HTTP struct {
	Client    *http.Client
	MaxBytes  int64 // 0 => unlimited
	UserAgent string
}

func (h HTTP) Fetch(ctx context.Context, uri string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return Result{}, err
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}
	cl := h.Client
	if cl == nil {
		cl = http.DefaultClient
	}

	resp, err := cl.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return Result{}, &StatusError{URL: uri, Code: resp.StatusCode}
	}
	if h.MaxBytes > 0 && resp.ContentLength > h.MaxBytes {
		return Result{}, fmt.Errorf("%w: content-length %d > %d", ErrTooLarge, resp.ContentLength, h.MaxBytes)
	}

	var body io.Reader = resp.Body
	if h.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, h.MaxBytes+1)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return Result{}, fmt.Errorf("fetch: read %s: %w", uri, err)
	}
	if h.MaxBytes > 0 && int64(len(b)) > h.MaxBytes {
		return Result{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, h.MaxBytes)
	}
	return Result{Body: b, ContentType: mediaType(resp.Header.Get("Content-Type"))}, nil
}

// Populate returns a PopulateFunc yielding the raw body of uri.
func (h HTTP) Populate(uri string) chunkcache.PopulateFunc {
	return func(ctx context.Context) ([]byte, error) {
		r, err := h.Fetch(ctx, uri)
		if err != nil {
			return nil, err
		}
		return r.Body, nil
	}
}

// PopulateDataURI returns a PopulateFunc yielding uri rendered as a data URI.
func (h HTTP) PopulateDataURI(uri string) chunkcache.PopulateFunc {
	return func(ctx context.Context) ([]byte, error) {
		r, err := h.Fetch(ctx, uri)
		if err != nil {
			return nil, err
		}
		return []byte(r.DataURI()), nil
	}
}

func mediaType(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.TrimSpace(strings.SplitN(v, ";", 2)[0])
	}
	return mt
}
