package wire

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Call and Notify once the Endpoint's connection
// has been closed, and by pending calls that were outstanding when it
// closed.
var ErrClosed = errors.New("wire: endpoint closed")

type pendingCall struct {
	resultCh chan pendingResult
}

type pendingResult struct {
	payload []byte
	err     *Error
}

// Endpoint binds a Codec to a live connection and dispatches both
// directions of traffic: outgoing Call/Notify requests, and incoming
// requests served by registry. Pending calls are tracked by sequence id
// under one mutex; Serve runs a dedicated read loop and unblocks every
// outstanding call through an error channel when the connection ends.
type Endpoint struct {
	codec    Codec
	registry *Registry

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]*pendingCall
	closed  bool
}

// NewEndpoint creates an Endpoint that serves incoming requests using
// registry. registry may be nil, in which case the Endpoint serves no
// commands: an incoming request that expects a reply is answered with a
// NO_SUCH_COMMAND wire-level error, and a fire-and-forget request is
// dropped. This suits an Endpoint that is only used to make calls.
func NewEndpoint(codec Codec, registry *Registry) *Endpoint {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Endpoint{
		codec:    codec,
		registry: registry,
		pending:  make(map[uint64]*pendingCall),
	}
}

// Call sends a request for command and blocks for the matching reply,
// honoring ctx's cancellation.
func (e *Endpoint) Call(ctx context.Context, command string, payload []byte) ([]byte, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	e.seq++
	id := e.seq
	call := &pendingCall{resultCh: make(chan pendingResult, 1)}
	e.pending[id] = call
	e.mu.Unlock()

	env := &Envelope{ID: id, Command: command, Payload: payload}
	if err := e.codec.WriteEnvelope(env); err != nil {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
		return nil, err
	}

	select {
	case res := <-call.resultCh:
		if res.err != nil {
			if res.err.Code == "CLOSED" {
				return nil, ErrClosed
			}
			return nil, res.err
		}
		return res.payload, nil
	case <-ctx.Done():
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Close closes the underlying connection, which unblocks Serve's read
// loop and causes it to drain any outstanding Call with ErrClosed. Safe to
// call even if Serve already returned.
func (e *Endpoint) Close() error {
	return e.codec.Close()
}

// Notify sends a fire-and-forget command (ID == 0); the peer must not
// reply. This is how DeferredResponse is sent.
func (e *Endpoint) Notify(command string, payload []byte) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()

	env := &Envelope{ID: 0, Command: command, Payload: payload}
	return e.codec.WriteEnvelope(env)
}

// Serve reads and dispatches envelopes until the connection fails or ctx
// is cancelled, then closes the codec and returns the error that ended the
// loop. Every outstanding Call is unblocked with ErrClosed.
func (e *Endpoint) Serve(ctx context.Context) error {
	readErr := make(chan error, 1)
	go func() {
		readErr <- e.readLoop(ctx)
	}()

	var err error
	select {
	case err = <-readErr:
	case <-ctx.Done():
		err = ctx.Err()
	}

	e.mu.Lock()
	e.closed = true
	pending := e.pending
	e.pending = make(map[uint64]*pendingCall)
	e.mu.Unlock()

	for _, call := range pending {
		call.resultCh <- pendingResult{err: &Error{Code: "CLOSED", Msg: ErrClosed.Error()}}
	}

	e.codec.Close()
	if err == nil {
		err = ErrClosed
	}
	return err
}

func (e *Endpoint) readLoop(ctx context.Context) error {
	for {
		var env Envelope
		if err := e.codec.ReadEnvelope(&env); err != nil {
			return err
		}

		if env.Command != "" {
			e.serveRequest(ctx, &env)
			continue
		}
		e.serveReply(&env)
	}
}

// serveRequest dispatches an incoming request. If env.ID == 0 the request
// is fire-and-forget: the handler still runs, but no reply is sent even if
// it returns one.
func (e *Endpoint) serveRequest(ctx context.Context, env *Envelope) {
	handler, ok := e.registry.lookup(env.Command)
	if !ok {
		if env.ID == 0 {
			return
		}
		e.codec.WriteEnvelope(&Envelope{
			ID:    env.ID,
			Error: &Error{Code: "NO_SUCH_COMMAND", Msg: fmt.Sprintf("no handler for command %q", env.Command)},
		})
		return
	}

	go func() {
		payload, wireErr := handler(ctx, env.Payload)
		if env.ID == 0 {
			return
		}
		reply := &Envelope{ID: env.ID}
		if wireErr != nil {
			reply.Error = wireErr
		} else {
			reply.Reply = payload
		}
		e.codec.WriteEnvelope(reply)
	}()
}

func (e *Endpoint) serveReply(env *Envelope) {
	e.mu.Lock()
	call, ok := e.pending[env.ID]
	if ok {
		delete(e.pending, env.ID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	call.resultCh <- pendingResult{payload: env.Reply, err: env.Error}
}
