// Package wire implements a small framed command protocol: named commands
// with request/response correlation, and a way to send commands that
// require no answer. It plays the role of the underlying AMP box protocol
// in the original landscape-client, and is deliberately kept separate from
// the RMC semantics built on top of it in package rmc.
package wire

import "fmt"

// Envelope is one message on the wire. A request carries a non-empty
// Command and a non-zero ID if the sender expects a reply; ID == 0 marks a
// fire-and-forget command (the peer must not send a reply). A reply
// carries an empty Command, the ID of the request it answers, and either
// Reply or Error.
type Envelope struct {
	ID      uint64
	Command string
	Payload []byte
	Reply   []byte
	Error   *Error
}

// Error is a named, wire-carried failure. Code identifies the kind of
// error (e.g. "METHOD_CALL_ERROR"); Msg is a human-readable description.
type Error struct {
	Code string
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil wire error>"
	}
	if e.Code == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}
