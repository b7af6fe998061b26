package rmc_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/maxiberta/landscape-client/rmc"
)

func TestRemoteObjectCreatorConnect(t *testing.T) {
	sockPath := testServer(t, echoObject{}, []string{"Echo"})

	creator := rmc.NewRemoteObjectCreator(sockPath)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	remote, err := creator.Connect(ctx, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if remote == nil {
		t.Fatal("expected a non-nil RemoteObject")
	}
	creator.Disconnect()
}

func TestRemoteObjectCreatorConnectGivesUp(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "nobody-listens.sock")

	creator := rmc.NewRemoteObjectCreator(sockPath)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	maxRetries := 1
	_, err := creator.Connect(ctx, &maxRetries)
	if err == nil {
		t.Fatal("expected Connect to fail after exhausting maxRetries")
	}
}

func TestRemoteObjectCreatorConnectContextCancel(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "nobody-listens.sock")

	creator := rmc.NewRemoteObjectCreator(sockPath)
	defer creator.Disconnect()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := creator.Connect(ctx, nil)
	if err != context.DeadlineExceeded {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}
