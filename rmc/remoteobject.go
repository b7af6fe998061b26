package rmc

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// callHandle tracks one in-flight RemoteObject.Call. It is both the key
// identifying the call (by pointer identity, as a map[*callHandle]struct{}
// entry in RemoteObject.pending) and the record of what to resend on
// retry (method, args, kwargs) plus the overall-timeout timer, if any.
type callHandle struct {
	method   string
	args     []Value
	kwargs   map[string]Value
	resultCh chan deferredOutcome
	timer    *time.Timer // overall-timeout timer; nil until the first retryable failure
}

// RemoteObject is a client-side proxy: every call sent through it returns
// the eventual result of the same method invoked on the server's exposed
// object, optionally retried across reconnects.
type RemoteObject struct {
	factory          *ReconnectingFactory
	retryOnReconnect bool
	timeout          time.Duration
	log              zerolog.Logger

	mu       sync.Mutex
	protocol *ClientProtocol
	pending  map[*callHandle]struct{}
	closed   bool
}

// NewRemoteObject wraps protocol, the first connected ClientProtocol, and
// registers for reconnect notifications on factory so it can update its
// protocol reference (and, if enabled, retry in-flight requests) whenever
// the factory builds a new connection.
func NewRemoteObject(protocol *ClientProtocol, factory *ReconnectingFactory, opts ...Option) *RemoteObject {
	cfg := newConfig(opts...)
	r := &RemoteObject{
		factory:          factory,
		retryOnReconnect: cfg.retryOnReconnect,
		timeout:          cfg.timeout,
		log:              cfg.logger,
		protocol:         protocol,
		pending:          make(map[*callHandle]struct{}),
	}
	factory.AddNotifier(r.handleReconnect)
	return r
}

// Call invokes method on the remote object with args and kwargs, blocking
// until the server's result (immediate or deferred) is available, ctx is
// cancelled, or the request ultimately fails.
func (r *RemoteObject) Call(ctx context.Context, method string, args []Value, kwargs map[string]Value) (Value, error) {
	h := &callHandle{
		method:   method,
		args:     args,
		kwargs:   kwargs,
		resultCh: make(chan deferredOutcome, 1),
	}
	r.send(h)

	select {
	case outcome := <-h.resultCh:
		return outcome.value, outcome.err
	case <-ctx.Done():
		r.mu.Lock()
		delete(r.pending, h)
		if h.timer != nil {
			h.timer.Stop()
		}
		r.mu.Unlock()
		return nil, ctx.Err()
	}
}

// send issues h against the current protocol in the background, wiring
// its outcome to handleResponse on success or handleFailure on failure.
func (r *RemoteObject) send(h *callHandle) {
	r.mu.Lock()
	proto := r.protocol
	r.mu.Unlock()

	go func() {
		value, err := proto.SendMethodCall(context.Background(), h.method, h.args, h.kwargs)
		if err != nil {
			r.handleFailure(err, h)
			return
		}
		r.handleResponse(value, h)
	}()
}

func (r *RemoteObject) handleResponse(value Value, h *callHandle) {
	r.mu.Lock()
	delete(r.pending, h)
	if h.timer != nil {
		h.timer.Stop()
	}
	r.mu.Unlock()

	select {
	case h.resultCh <- deferredOutcome{value: value}:
	default:
	}
}

// handleFailure classifies a failed MethodCall: a protocol-level error
// (the server answered, just with an error) or retries disabled propagates
// immediately; otherwise, if retry-on-reconnect is enabled, the request is
// parked in pending awaiting the next reconnect, with an overall timeout
// scheduled on its first failure only.
func (r *RemoteObject) handleFailure(err error, h *callHandle) {
	if isMethodCallError(err) || !r.retryOnReconnect {
		r.mu.Lock()
		delete(r.pending, h)
		if h.timer != nil {
			h.timer.Stop()
		}
		r.mu.Unlock()

		select {
		case h.resultCh <- deferredOutcome{err: err}:
		default:
		}
		return
	}

	r.mu.Lock()
	if r.timeout > 0 && h.timer == nil {
		h.timer = time.AfterFunc(r.timeout, func() {
			r.handleFailure(newMethodCallError("timeout"), h)
		})
	}
	r.pending[h] = struct{}{}
	r.mu.Unlock()
}

// handleReconnect updates the current protocol reference and, if
// retry-on-reconnect is enabled, replays every pending request.
func (r *RemoteObject) handleReconnect(proto *ClientProtocol, err error) {
	if proto == nil {
		// The factory gave up; there is no new protocol to retry against.
		// Outstanding requests remain pending until their overall timeout
		// (if any) fires, or they are retried against a later reconnect.
		r.mu.Lock()
		npending := len(r.pending)
		r.mu.Unlock()
		r.log.Warn().Err(err).Int("pending", npending).
			Msg("rmc: reconnecting factory gave up, pending calls will not be retried")
		return
	}

	r.mu.Lock()
	r.protocol = proto
	retry := r.retryOnReconnect
	npending := len(r.pending)
	r.mu.Unlock()

	if retry {
		if npending > 0 {
			r.log.Debug().Int("pending", npending).Msg("rmc: reconnected, retrying pending calls")
		}
		r.retry()
	}
}

// retry snapshots and clears the pending table before resending, because a
// synchronous re-failure (still disconnected) would otherwise re-enter
// handleFailure and mutate the table mid-iteration.
func (r *RemoteObject) retry() {
	r.mu.Lock()
	snapshot := make([]*callHandle, 0, len(r.pending))
	for h := range r.pending {
		snapshot = append(snapshot, h)
	}
	r.pending = make(map[*callHandle]struct{})
	r.mu.Unlock()

	for _, h := range snapshot {
		r.send(h)
	}
}

// Close stops this RemoteObject's current connection. It does not stop
// the owning ReconnectingFactory; use RemoteObjectCreator.Disconnect for
// an orderly full shutdown.
func (r *RemoteObject) Close() error {
	r.mu.Lock()
	proto := r.protocol
	r.closed = true
	r.mu.Unlock()
	if proto == nil {
		return nil
	}
	r.log.Debug().Msg("rmc: closing remote object connection")
	return proto.Endpoint().Close()
}
