package wire_test

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/maxiberta/landscape-client/internal/wire"
)

func pipeEndpoints(registryA, registryB *wire.Registry) (*wire.Endpoint, *wire.Endpoint, func()) {
	connA, connB := net.Pipe()
	a := wire.NewEndpoint(wire.NewStreamCodec(connA), registryA)
	b := wire.NewEndpoint(wire.NewStreamCodec(connB), registryB)

	ctx, cancel := context.WithCancel(context.Background())
	go a.Serve(ctx)
	go b.Serve(ctx)

	return a, b, cancel
}

func TestCallRoundTrip(t *testing.T) {
	registry := wire.NewRegistry()
	registry.Register("echo", func(_ context.Context, payload []byte) ([]byte, *wire.Error) {
		return payload, nil
	})

	client, _, cancel := pipeEndpoints(nil, registry)
	defer cancel()

	reply, err := client.Call(context.Background(), "echo", []byte("hello"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !bytes.Equal(reply, []byte("hello")) {
		t.Fatalf("got reply %q, want %q", reply, "hello")
	}
}

func TestCallErrorReply(t *testing.T) {
	registry := wire.NewRegistry()
	registry.Register("boom", func(_ context.Context, _ []byte) ([]byte, *wire.Error) {
		return nil, &wire.Error{Code: "METHOD_CALL_ERROR", Msg: "boom"}
	})

	client, _, cancel := pipeEndpoints(nil, registry)
	defer cancel()

	_, err := client.Call(context.Background(), "boom", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	wireErr, ok := err.(*wire.Error)
	if !ok {
		t.Fatalf("got error of type %T, want *wire.Error", err)
	}
	if wireErr.Code != "METHOD_CALL_ERROR" || wireErr.Msg != "boom" {
		t.Fatalf("unexpected error: %#v", wireErr)
	}
}

func TestNotifyIsFireAndForget(t *testing.T) {
	received := make(chan []byte, 1)
	registry := wire.NewRegistry()
	registry.Register("ping", func(_ context.Context, payload []byte) ([]byte, *wire.Error) {
		received <- payload
		return []byte("should never be sent"), nil
	})

	_, server, cancel := pipeEndpoints(registry, nil)
	defer cancel()

	if err := server.Notify("ping", []byte("hi")); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != "hi" {
			t.Fatalf("got payload %q, want %q", payload, "hi")
		}
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

func TestCallUnknownCommand(t *testing.T) {
	client, _, cancel := pipeEndpoints(nil, wire.NewRegistry())
	defer cancel()

	_, err := client.Call(context.Background(), "nonexistent", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestCallContextCancel(t *testing.T) {
	registry := wire.NewRegistry()
	block := make(chan struct{})
	registry.Register("slow", func(_ context.Context, _ []byte) ([]byte, *wire.Error) {
		<-block
		return nil, nil
	})
	defer close(block)

	client, _, cancel := pipeEndpoints(nil, registry)
	defer cancel()

	ctx, cancelCall := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelCall()

	_, err := client.Call(ctx, "slow", nil)
	if err != context.DeadlineExceeded {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestServeUnblocksPendingCallsOnClose(t *testing.T) {
	// The server's handler never answers, so the call is still pending
	// when the client's Serve loop ends.
	registry := wire.NewRegistry()
	block := make(chan struct{})
	registry.Register("anything", func(_ context.Context, _ []byte) ([]byte, *wire.Error) {
		<-block
		return nil, nil
	})
	defer close(block)

	connA, connB := net.Pipe()
	client := wire.NewEndpoint(wire.NewStreamCodec(connA), nil)
	server := wire.NewEndpoint(wire.NewStreamCodec(connB), registry)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Serve(ctx) }()
	go server.Serve(ctx)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "anything", nil)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected an error once the endpoint closed")
		}
	case <-time.After(time.Second):
		t.Fatal("pending call never unblocked")
	}
	<-done
}
