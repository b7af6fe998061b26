package wire

import (
	"context"
	"fmt"
)

// Handler processes one incoming request envelope and returns the payload
// to reply with, or a wire-level Error. Handlers run on their own
// goroutine (see Endpoint.Serve) so they may block.
type Handler func(ctx context.Context, payload []byte) (reply []byte, err *Error)

// Registry maps command names to the Handler that serves them. A single
// Registry is bound to exactly one Endpoint.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to fn. Registering the same name twice replaces the
// previous handler; callers only ever register "MethodCall" and
// "DeferredResponse" once each, so this is a programmer error rather than
// something that needs guarding against at runtime.
func (r *Registry) Register(name string, fn Handler) {
	if fn == nil {
		panic(fmt.Sprintf("wire: nil handler for command %q", name))
	}
	r.handlers[name] = fn
}

func (r *Registry) lookup(name string) (Handler, bool) {
	fn, ok := r.handlers[name]
	return fn, ok
}
