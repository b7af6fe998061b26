package wire_test

import (
	"net"
	"reflect"
	"testing"

	"github.com/maxiberta/landscape-client/internal/wire"
)

func TestStreamCodecRoundTrip(t *testing.T) {
	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	writer := wire.NewStreamCodec(connA)
	reader := wire.NewStreamCodec(connB)

	want := &wire.Envelope{
		ID:      7,
		Command: "MethodCall",
		Payload: []byte("payload-bytes"),
	}

	done := make(chan error, 1)
	go func() { done <- writer.WriteEnvelope(want) }()

	var got wire.Envelope
	if err := reader.ReadEnvelope(&got); err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}

	if got.ID != want.ID || got.Command != want.Command || !reflect.DeepEqual(got.Payload, want.Payload) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestStreamCodecRoundTripWithError(t *testing.T) {
	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	writer := wire.NewStreamCodec(connA)
	reader := wire.NewStreamCodec(connB)

	want := &wire.Envelope{ID: 3, Error: &wire.Error{Code: "METHOD_CALL_ERROR", Msg: "Forbidden method 'x'"}}

	done := make(chan error, 1)
	go func() { done <- writer.WriteEnvelope(want) }()

	var got wire.Envelope
	if err := reader.ReadEnvelope(&got); err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}

	if got.Error == nil || got.Error.Code != want.Error.Code || got.Error.Msg != want.Error.Msg {
		t.Fatalf("got %#v, want %#v", got.Error, want.Error)
	}
}
