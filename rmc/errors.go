package rmc

import "github.com/maxiberta/landscape-client/internal/wire"

// methodCallErrorCode is the single named wire error code this protocol
// defines: METHOD_CALL_ERROR.
const methodCallErrorCode = "METHOD_CALL_ERROR"

// MethodCallError is the single application-visible error kind. It carries
// only a human-readable message: server-side exceptions, forbidden
// methods, non-serializable results, and both flavors of timeout all
// surface as a MethodCallError, distinguished only by message text.
type MethodCallError struct {
	Msg string
}

func (e *MethodCallError) Error() string { return e.Msg }

// newMethodCallError wraps a message into a MethodCallError.
func newMethodCallError(msg string) *MethodCallError {
	return &MethodCallError{Msg: msg}
}

func (e *MethodCallError) toWireError() *wire.Error {
	return &wire.Error{Code: methodCallErrorCode, Msg: e.Msg}
}

// errorFromWire turns a failure observed on an Endpoint.Call into either a
// *MethodCallError (the server answered, just with an error — never
// retried) or the original transport-level error (eligible for
// reconnect-retry when enabled).
func errorFromWire(err error) error {
	if err == nil {
		return nil
	}
	if wireErr, ok := err.(*wire.Error); ok && wireErr.Code == methodCallErrorCode {
		return newMethodCallError(wireErr.Msg)
	}
	return err
}

// isMethodCallError reports whether err is a MethodCallError, i.e. a
// protocol-level failure that must never be retried.
func isMethodCallError(err error) bool {
	_, ok := err.(*MethodCallError)
	return ok
}
