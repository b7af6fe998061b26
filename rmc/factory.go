package rmc

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/maxiberta/landscape-client/internal/wire"
)

// Notifier is called by a ReconnectingFactory on every successful connect
// and on giving up after exhausting maxRetries. Exactly one of proto/err
// is set.
type Notifier func(proto *ClientProtocol, err error)

type notifierEntry struct {
	id int
	fn Notifier
}

// ReconnectingFactory maintains a connection to a Unix domain socket,
// reconnecting with exponential backoff after every failure and notifying
// subscribers of each new connection or final give-up.
type ReconnectingFactory struct {
	socketPath string
	log        zerolog.Logger

	mu         sync.Mutex
	notifiers  []notifierEntry
	nextID     int
	maxRetries *int
	retries    int
}

// NewReconnectingFactory returns a factory that dials socketPath.
func NewReconnectingFactory(socketPath string, opts ...Option) *ReconnectingFactory {
	cfg := newConfig(opts...)
	return &ReconnectingFactory{socketPath: socketPath, log: cfg.logger}
}

// SetMaxRetries bounds the number of consecutive connection failures
// tolerated before the factory gives up and notifies with a failure. nil
// (the default) means retry forever.
func (f *ReconnectingFactory) SetMaxRetries(maxRetries *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxRetries = maxRetries
}

// AddNotifier registers notifier to be called, in registration order, on
// every future connect or give-up event. The returned function removes
// the registration; a one-shot notifier is built by having the notifier
// call this itself.
func (f *ReconnectingFactory) AddNotifier(notifier Notifier) (remove func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.notifiers = append(f.notifiers, notifierEntry{id: id, fn: notifier})
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, e := range f.notifiers {
			if e.id == id {
				f.notifiers = append(f.notifiers[:i], f.notifiers[i+1:]...)
				return
			}
		}
	}
}

func (f *ReconnectingFactory) fireNotifiers(proto *ClientProtocol, err error) {
	f.mu.Lock()
	snapshot := make([]Notifier, len(f.notifiers))
	for i, e := range f.notifiers {
		snapshot[i] = e.fn
	}
	f.mu.Unlock()

	// Fired from a dedicated goroutine, never synchronously from the dial
	// loop, and in registration order, so a notifier never has to guard
	// against reentrancy from inside the dial loop that triggered it.
	go func() {
		for _, n := range snapshot {
			n(proto, err)
		}
	}()
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = goldenRatio
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // retries are bounded by maxRetries, not elapsed time
	b.Reset()
	return b
}

// Run dials the socket in a loop until ctx is cancelled, reconnecting with
// backoff after every failure and serving each successful connection until
// it drops. It returns once ctx is cancelled or the factory gives up after
// exhausting maxRetries.
func (f *ReconnectingFactory) Run(ctx context.Context) {
	b := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := net.Dial("unix", f.socketPath)
		if err != nil {
			f.mu.Lock()
			f.retries++
			retries := f.retries
			maxRetries := f.maxRetries
			f.mu.Unlock()

			if maxRetries != nil && retries > *maxRetries {
				f.log.Warn().Err(err).Int("retries", retries).Msg("rmc: giving up reconnecting")
				f.fireNotifiers(nil, err)
				return
			}

			delay := b.NextBackOff()
			f.log.Debug().Err(err).Dur("delay", delay).Msg("rmc: connection failed, retrying")
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			}
		}

		b.Reset()
		f.mu.Lock()
		f.retries = 0
		f.mu.Unlock()

		proto, ep := newConnectedProtocol(conn, f.log)
		f.fireNotifiers(proto, nil)

		served := make(chan struct{})
		go func() {
			ep.Serve(ctx)
			close(served)
		}()

		select {
		case <-served:
			// connection dropped; loop around and reconnect
		case <-ctx.Done():
			return
		}
	}
}

// newConnectedProtocol wires a freshly dialed connection to a new
// ClientProtocol and returns it alongside the wire.Endpoint serving it.
func newConnectedProtocol(conn net.Conn, log zerolog.Logger) (*ClientProtocol, *wire.Endpoint) {
	proto := NewClientProtocol(wire.NewStreamCodec(conn), WithLogger(log))
	return proto, proto.Endpoint()
}
