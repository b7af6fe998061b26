package rmc

import (
	"context"
	"net"

	"github.com/rs/zerolog"

	"github.com/maxiberta/landscape-client/internal/wire"
	"github.com/maxiberta/landscape-client/internal/wire/stoppablelisten"
)

// ServerFactory holds the single exposed object and mints a Server-bound
// wire.Endpoint for each accepted connection, handing every connection a
// reference to the same shared object.
type ServerFactory struct {
	object    any
	whitelist []string
	log       zerolog.Logger
}

// NewServerFactory returns a ServerFactory exposing the named methods of
// object. The object is shared across all concurrent connections; making it
// safe for concurrent use is the caller's responsibility, so ServerFactory
// does nothing to serialize access to it.
func NewServerFactory(object any, methods []string, opts ...Option) *ServerFactory {
	cfg := newConfig(opts...)
	return &ServerFactory{object: object, whitelist: methods, log: cfg.logger}
}

// Serve accepts connections on l until ctx is cancelled or l is closed,
// running one Server-bound wire.Endpoint per connection. l is wrapped in a
// stoppablelisten.StoppableListener so ctx cancellation interrupts a
// blocked Accept promptly.
func (f *ServerFactory) Serve(ctx context.Context, l net.Listener) error {
	stoppable, err := stoppablelisten.New(l)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		stoppable.Stop()
	}()

	for {
		conn, err := stoppable.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go f.serveConn(ctx, conn)
	}
}

func (f *ServerFactory) serveConn(ctx context.Context, conn net.Conn) {
	server := NewServer(f.object, f.whitelist, WithLogger(f.log))
	codec := wire.NewStreamCodec(conn)

	reg := wire.NewRegistry()
	ep := wire.NewEndpoint(codec, reg)
	server.bind(reg, ep)

	if err := ep.Serve(ctx); err != nil && err != wire.ErrClosed {
		f.log.Debug().Err(err).Msg("rmc: connection ended")
	}
}
