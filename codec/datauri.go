package codec

import (
	"encoding/base64"
	"errors"
	"strings"
)

const defaultMediaType = "application/octet-stream"

// Blob is a fetched body together with its media type.
type Blob struct {
	MediaType string
	Data      []byte
}

// DataURI stores a Blob as an RFC 2397 data URI with a base64 body, the form
// a renderer can consume directly. An empty MediaType encodes as
// application/octet-stream.
type DataURI struct{}

var _ Codec[Blob] = DataURI{}

var errNotDataURI = errors.New("codec: not a base64 data URI")

func (DataURI) Encode(b Blob) ([]byte, error) {
	mt := b.MediaType
	if mt == "" {
		mt = defaultMediaType
	}
	out := make([]byte, 0, len("data:;base64,")+len(mt)+base64.StdEncoding.EncodedLen(len(b.Data)))
	out = append(out, "data:"...)
	out = append(out, mt...)
	out = append(out, ";base64,"...)
	return base64.StdEncoding.AppendEncode(out, b.Data), nil
}

func (DataURI) Decode(p []byte) (Blob, error) {
	s, ok := strings.CutPrefix(string(p), "data:")
	if !ok {
		return Blob{}, errNotDataURI
	}
	head, body, ok := strings.Cut(s, ",")
	if !ok {
		return Blob{}, errNotDataURI
	}
	mt, ok := strings.CutSuffix(head, ";base64")
	if !ok {
		return Blob{}, errNotDataURI
	}
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Blob{}, err
	}
	if mt == "" {
		mt = defaultMediaType
	}
	return Blob{MediaType: mt, Data: data}, nil
}
