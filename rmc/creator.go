package rmc

import (
	"context"

	"github.com/rs/zerolog"
)

// RemoteObjectCreator binds a socket path and a ReconnectingFactory, handing
// out a RemoteObject for the first successful connection.
type RemoteObjectCreator struct {
	factory *ReconnectingFactory
	opts    []Option
	log     zerolog.Logger

	runCtx context.Context
	cancel context.CancelFunc
}

// NewRemoteObjectCreator returns a creator that will dial socketPath.
func NewRemoteObjectCreator(socketPath string, opts ...Option) *RemoteObjectCreator {
	cfg := newConfig(opts...)
	return &RemoteObjectCreator{
		factory: NewReconnectingFactory(socketPath, opts...),
		opts:    opts,
		log:     cfg.logger,
	}
}

// Connect starts the underlying factory's reconnect loop (if not already
// running) and blocks until the first connection succeeds, producing a
// RemoteObject, or until more than maxRetries consecutive failures exhaust
// the factory's patience, or ctx is cancelled. A nil maxRetries retries
// forever.
//
// ctx only bounds this call: once Connect returns a RemoteObject, the
// factory's reconnect loop keeps running on its own internal lifetime
// (started once, on the creator's first Connect) regardless of what
// happens to ctx afterwards. Only Disconnect stops it.
func (c *RemoteObjectCreator) Connect(ctx context.Context, maxRetries *int) (*RemoteObject, error) {
	c.factory.SetMaxRetries(maxRetries)

	type outcome struct {
		proto *ClientProtocol
		err   error
	}
	done := make(chan outcome, 1)

	var remove func()
	remove = c.factory.AddNotifier(func(proto *ClientProtocol, err error) {
		remove()
		done <- outcome{proto: proto, err: err}
	})

	if c.runCtx == nil {
		c.runCtx, c.cancel = context.WithCancel(context.Background())
		go c.factory.Run(c.runCtx)
	}

	select {
	case o := <-done:
		if o.err != nil {
			c.log.Warn().Err(o.err).Msg("rmc: giving up connecting to remote object")
			return nil, o.err
		}
		c.log.Debug().Msg("rmc: connected to remote object")
		return NewRemoteObject(o.proto, c.factory, c.opts...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect stops the underlying factory's reconnect loop, dropping any
// current connection.
func (c *RemoteObjectCreator) Disconnect() {
	if c.cancel != nil {
		c.log.Debug().Msg("rmc: disconnecting remote object")
		c.cancel()
	}
}
