package rmc

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxiberta/landscape-client/internal/wire"
)

// ClientProtocol sends MethodCall requests over a wire.Endpoint and
// resolves the eventual value, transparently waiting for the matching
// DeferredResponse when the server's reply carries a correlation id
// instead of an immediate result.
type ClientProtocol struct {
	ep      *wire.Endpoint
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingResponse
}

type pendingResponse struct {
	resultCh chan deferredOutcome
	timer    *time.Timer
}

type deferredOutcome struct {
	value Value
	err   error
}

// NewClientProtocol builds a ClientProtocol bound to a fresh wire.Endpoint
// over codec, registering the DeferredResponse handler that Endpoint will
// be served with. The returned ClientProtocol owns the only reference
// needed to both send MethodCalls and receive DeferredResponses on this
// connection; call Endpoint().Serve to start its read loop.
func NewClientProtocol(codec wire.Codec, opts ...Option) *ClientProtocol {
	cfg := newConfig(opts...)
	c := &ClientProtocol{
		timeout: cfg.deferredResponseTimeout,
		log:     cfg.logger,
		pending: make(map[string]*pendingResponse),
	}

	reg := wire.NewRegistry()
	reg.Register(cmdDeferredResponse, func(_ context.Context, payload []byte) ([]byte, *wire.Error) {
		c.receiveDeferredResponse(payload)
		return nil, nil
	})
	c.ep = wire.NewEndpoint(codec, reg)
	return c
}

// Endpoint returns the wire.Endpoint this ClientProtocol sends MethodCalls
// through and receives DeferredResponses on. Callers must run its Serve
// loop for the ClientProtocol to make any progress.
func (c *ClientProtocol) Endpoint() *wire.Endpoint {
	return c.ep
}

func (c *ClientProtocol) receiveDeferredResponse(payload []byte) {
	var req deferredResponseRequest
	if err := decodeFrame(payload, &req); err != nil {
		c.log.Warn().Err(err).Msg("rmc: malformed DeferredResponse")
		return
	}
	if req.HasFailure {
		c.firePendingResponse(req.UUID, nil, newMethodCallError(req.Failure))
		return
	}
	value, err := Decode(req.Result)
	if err != nil {
		c.firePendingResponse(req.UUID, nil, newMethodCallError("malformed deferred result"))
		return
	}
	c.firePendingResponse(req.UUID, value, nil)
}

// firePendingResponse resolves the pending call for uuid, or silently
// drops the response if uuid is unknown — a late response that arrived
// after its timeout already fired.
func (c *ClientProtocol) firePendingResponse(uuid string, value Value, err error) {
	c.mu.Lock()
	entry, ok := c.pending[uuid]
	if ok {
		delete(c.pending, uuid)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	entry.timer.Stop()
	entry.resultCh <- deferredOutcome{value: value, err: err}
}

// SendMethodCall issues a MethodCall for method and waits for its result,
// transparently waiting out a deferred response if the server defers.
func (c *ClientProtocol) SendMethodCall(ctx context.Context, method string, args []Value, kwargs map[string]Value) (Value, error) {
	encodedArgs, err := encodeSequence(args)
	if err != nil {
		return nil, err
	}
	encodedKwargs, err := encodeMapping(kwargs)
	if err != nil {
		return nil, err
	}
	payload, err := encodeFrame(methodCallRequest{Method: method, Args: encodedArgs, Kwargs: encodedKwargs})
	if err != nil {
		return nil, err
	}

	replyPayload, callErr := c.ep.Call(ctx, cmdMethodCall, payload)
	if callErr != nil {
		return nil, errorFromWire(callErr)
	}
	// A nil reply is reserved for fire-and-forget commands; MethodCall
	// always answers, but this path is kept as a defensive no-op anyway.
	if replyPayload == nil {
		return nil, nil
	}

	var reply methodCallReply
	if err := decodeFrame(replyPayload, &reply); err != nil {
		return nil, err
	}

	if reply.Deferred != "" {
		return c.awaitDeferredResponse(ctx, reply.Deferred)
	}
	return Decode(reply.Result)
}

func (c *ClientProtocol) awaitDeferredResponse(ctx context.Context, uuid string) (Value, error) {
	entry := &pendingResponse{resultCh: make(chan deferredOutcome, 1)}
	entry.timer = time.AfterFunc(c.timeout, func() {
		c.firePendingResponse(uuid, nil, newMethodCallError("timeout"))
	})

	c.mu.Lock()
	c.pending[uuid] = entry
	c.mu.Unlock()

	select {
	case outcome := <-entry.resultCh:
		return outcome.value, outcome.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, uuid)
		c.mu.Unlock()
		entry.timer.Stop()
		return nil, ctx.Err()
	}
}
