package rmc

import (
	"bytes"
	"encoding/gob"
)

// encodeFrame/decodeFrame serialize the small request/reply structs in
// commands.go into the opaque []byte a wire.Envelope's Payload/Reply
// carries. This is a second, independent level of encoding from the value
// codec in value.go: the value codec (msgpack) serializes the
// *application* Values nested inside Args/Kwargs/Result, while this one
// serializes the fixed-shape command envelope itself — the framing layer
// treated as already provided by package wire (see DESIGN.md).
func encodeFrame(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFrame(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
