package rmc

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maxiberta/landscape-client/internal/wire"
)

// MethodFunc is the signature an exposed object's method must have to be
// dispatched by name. It may return a plain Value, an error, or a *Future
// whose eventual result becomes the content of a DeferredResponse.
type MethodFunc func(ctx context.Context, args []Value, kwargs map[string]Value) (any, error)

// Server binds a single exposed object and its method whitelist to one
// connection's wire.Endpoint. The whitelist is an authorization boundary,
// not an optimization, so it is checked before anything else touches the
// object.
type Server struct {
	object    any
	whitelist map[string]struct{}
	log       zerolog.Logger
}

// NewServer returns a Server exposing the named methods of object. Method
// lookup happens by name at call time via reflection
// (reflect.Value.MethodByName), scoped to the fixed whitelist rather than
// a scan of every exported method on object.
func NewServer(object any, methods []string, opts ...Option) *Server {
	cfg := newConfig(opts...)
	whitelist := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		whitelist[m] = struct{}{}
	}
	return &Server{object: object, whitelist: whitelist, log: cfg.logger}
}

// bind registers this Server's MethodCall handler onto reg, closing over
// ep so the eventual DeferredResponse can be sent back on the same
// connection it arrived on.
func (s *Server) bind(reg *wire.Registry, ep *wire.Endpoint) {
	reg.Register(cmdMethodCall, func(ctx context.Context, payload []byte) ([]byte, *wire.Error) {
		return s.handleMethodCall(ctx, ep, payload)
	})
}

func (s *Server) handleMethodCall(ctx context.Context, ep *wire.Endpoint, payload []byte) ([]byte, *wire.Error) {
	var req methodCallRequest
	if err := decodeFrame(payload, &req); err != nil {
		return nil, newMethodCallError(fmt.Sprintf("malformed MethodCall: %v", err)).toWireError()
	}

	if _, ok := s.whitelist[req.Method]; !ok {
		return nil, newMethodCallError(fmt.Sprintf("Forbidden method '%s'", req.Method)).toWireError()
	}

	args, err := decodeSequence(req.Args)
	if err != nil {
		return nil, newMethodCallError(fmt.Sprintf("malformed args: %v", err)).toWireError()
	}
	kwargs, err := decodeMapping(req.Kwargs)
	if err != nil {
		return nil, newMethodCallError(fmt.Sprintf("malformed kwargs: %v", err)).toWireError()
	}

	result, invokeErr := s.invoke(ctx, req.Method, args, kwargs)
	if invokeErr != nil {
		return nil, newMethodCallError(invokeErr.Error()).toWireError()
	}

	if future, ok := result.(*Future); ok {
		if value, ferr, resolved := future.Peek(); resolved {
			return s.immediateReply(value, ferr)
		}
		id := uuid.NewString()
		go s.awaitDeferred(ep, future, id)
		reply, err := encodeFrame(methodCallReply{Deferred: id})
		if err != nil {
			return nil, newMethodCallError(err.Error()).toWireError()
		}
		return reply, nil
	}

	return s.immediateReply(result, nil)
}

// invoke looks up req.Method on the exposed object by name and calls it,
// recovering any panic into a MethodCallError. This drops the original
// stack trace and distinguishes failures only by message text.
func (s *Server) invoke(ctx context.Context, method string, args []Value, kwargs map[string]Value) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	methodValue := reflect.ValueOf(s.object).MethodByName(method)
	if !methodValue.IsValid() {
		return nil, fmt.Errorf("'%T' object has no method '%s'", s.object, method)
	}
	// Called via reflect.Value.Call rather than asserted to MethodFunc:
	// a method value's dynamic type is always the bare, unnamed func type
	// matching its declared signature, never the named MethodFunc type, so
	// a type assertion to MethodFunc can never succeed here. A mismatched
	// signature panics inside Call and is turned into an error by the
	// recover above, same as any other invocation failure.
	results := methodValue.Call([]reflect.Value{
		reflect.ValueOf(ctx),
		reflect.ValueOf(args),
		reflect.ValueOf(kwargs),
	})
	result = results[0].Interface()
	if errVal := results[1].Interface(); errVal != nil {
		err = errVal.(error)
	}
	return result, err
}

// immediateReply validates and encodes a synchronously-available result.
func (s *Server) immediateReply(value Value, err error) ([]byte, *wire.Error) {
	if err != nil {
		return nil, newMethodCallError(err.Error()).toWireError()
	}
	if !IsSerializable(value) {
		return nil, newMethodCallError("Non-serializable result").toWireError()
	}
	encoded, encErr := Encode(value)
	if encErr != nil {
		return nil, newMethodCallError("Non-serializable result").toWireError()
	}
	reply, err := encodeFrame(methodCallReply{Result: encoded})
	if err != nil {
		return nil, newMethodCallError(err.Error()).toWireError()
	}
	return reply, nil
}

// awaitDeferred waits for future to resolve, then sends the matching
// DeferredResponse over ep, however the future is eventually settled
// (success or failure). The original MethodCall must not be held open
// while this runs.
func (s *Server) awaitDeferred(ep *wire.Endpoint, future *Future, id string) {
	value, err := future.Result()

	req := deferredResponseRequest{UUID: id}
	if err != nil {
		req.Failure = err.Error()
		req.HasFailure = true
	} else if !IsSerializable(value) {
		req.Failure = "Non-serializable result"
		req.HasFailure = true
	} else {
		encoded, encErr := Encode(value)
		if encErr != nil {
			req.Failure = "Non-serializable result"
			req.HasFailure = true
		} else {
			req.Result = encoded
			req.HasResult = true
		}
	}

	payload, encErr := encodeFrame(req)
	if encErr != nil {
		s.log.Error().Err(encErr).Str("uuid", id).Msg("rmc: failed to encode DeferredResponse")
		return
	}
	if err := ep.Notify(cmdDeferredResponse, payload); err != nil {
		s.log.Warn().Err(err).Str("uuid", id).Msg("rmc: failed to send DeferredResponse")
	}
}
