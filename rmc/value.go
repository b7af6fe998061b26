// Package rmc implements an object-oriented remote method-call transport:
// a server exposes a whitelisted set of methods on a single object, a
// client invokes them transparently and gets back a result — including
// results that only become available asynchronously on the server side —
// with automatic reconnection and optional replay of in-flight requests
// after reconnect.
package rmc

import "github.com/vmihailenco/msgpack/v5"

// Value is anything that can cross the wire as a MethodCall argument,
// keyword value, or result. The supported shapes are a fixed, bounded set:
// nil, bool, integers, floats, strings, byte strings, sequences of Value,
// and string-keyed mappings of Value.
type Value = any

// IsSerializable reports whether v is encodable by the value codec. It
// must stay consistent with Encode: if IsSerializable returns true,
// Encode must succeed (the converse need not hold).
func IsSerializable(v Value) bool {
	switch t := v.(type) {
	case nil, bool, string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	case []Value:
		for _, elem := range t {
			if !IsSerializable(elem) {
				return false
			}
		}
		return true
	case map[string]Value:
		for _, elem := range t {
			if !IsSerializable(elem) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Encode serializes v to the opaque bytes carried by MethodCall and
// DeferredResponse arguments and results.
func Encode(v Value) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode is the inverse of Encode.
func Decode(data []byte) (Value, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v Value
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// encodeSequence and encodeMapping encode a MethodCall's positional and
// keyword arguments as a single opaque blob (args: codec-bytes; kwargs:
// codec-bytes).
func encodeSequence(args []Value) ([]byte, error) {
	return msgpack.Marshal(args)
}

func decodeSequence(data []byte) ([]Value, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var args []Value
	if err := msgpack.Unmarshal(data, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func encodeMapping(kwargs map[string]Value) ([]byte, error) {
	return msgpack.Marshal(kwargs)
}

func decodeMapping(data []byte) (map[string]Value, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var kwargs map[string]Value
	if err := msgpack.Unmarshal(data, &kwargs); err != nil {
		return nil, err
	}
	return kwargs, nil
}
