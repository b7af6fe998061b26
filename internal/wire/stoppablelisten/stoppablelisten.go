// Package stoppablelisten wraps a net.Listener so Accept can be stopped in
// an orderly way from another goroutine — Go has no built-in way to
// interrupt a blocked Accept call short of closing the listener out from
// under a caller that might still be using it.
package stoppablelisten

import (
	"errors"
	"net"
	"time"
)

// deadlineListener is the subset of net.Listener Accept's polling loop
// needs. Both *net.TCPListener and *net.UnixListener satisfy it, which is
// what lets the same polling logic serve a Unix domain socket server as
// well as a TCP listener.
type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// StoppableListener wraps a deadlineListener, polling Accept so that Stop
// can be observed promptly without relying on the listener being closed.
type StoppableListener struct {
	deadlineListener
	stop chan struct{}
}

// New wraps l. l must support SetDeadline (*net.TCPListener and
// *net.UnixListener both do).
func New(l net.Listener) (*StoppableListener, error) {
	dl, ok := l.(deadlineListener)
	if !ok {
		return nil, errors.New("stoppablelisten: listener does not support SetDeadline")
	}
	return &StoppableListener{
		deadlineListener: dl,
		stop:             make(chan struct{}),
	}, nil
}

// Accept blocks until a new connection arrives, Stop is called, or the
// underlying listener errors.
func (sl *StoppableListener) Accept() (net.Conn, error) {
	for {
		sl.SetDeadline(time.Now().Add(time.Second))

		conn, err := sl.deadlineListener.Accept()

		select {
		case <-sl.stop:
			return nil, errors.New("stoppablelisten: stopped")
		default:
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
		}

		return conn, err
	}
}

// Stop causes any blocked or future Accept call to return an error.
func (sl *StoppableListener) Stop() {
	close(sl.stop)
}
