package rmc

import (
	"time"

	"github.com/rs/zerolog"
)

// defaultDeferredResponseTimeout is the client protocol's default
// per-deferred-call timeout.
const defaultDeferredResponseTimeout = 60 * time.Second

// goldenRatio is the backoff growth factor the reconnecting factory is
// pinned to.
const goldenRatio = 1.6180339887498948

type config struct {
	logger                  zerolog.Logger
	deferredResponseTimeout time.Duration
	retryOnReconnect        bool
	timeout                 time.Duration
}

func newConfig(opts ...Option) config {
	cfg := config{
		logger:                  newNopLogger(),
		deferredResponseTimeout: defaultDeferredResponseTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures a Server, ClientProtocol, ReconnectingFactory, or
// RemoteObject. There is no configuration file or CLI layer here; these
// are plain constructor options in the style the corpus's daemon packages
// use, not an external config format.
type Option func(*config)

// WithLogger sets the zerolog.Logger a component uses for its lifecycle
// and error logging. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithDeferredResponseTimeout overrides the client protocol's per-call
// deferred-response timeout (default 60s).
func WithDeferredResponseTimeout(d time.Duration) Option {
	return func(c *config) { c.deferredResponseTimeout = d }
}

// WithRetryOnReconnect enables RemoteObject's retry-on-reconnect policy
// (default false): a request that fails because the connection dropped is
// re-sent once a new connection is available, instead of failing
// immediately.
func WithRetryOnReconnect() Option {
	return func(c *config) { c.retryOnReconnect = true }
}

// WithTimeout sets RemoteObject's overall per-request timeout, bounding
// how long a request may spend being retried across reconnects before it
// fails with MethodCallError("timeout"). Zero (the default) means no
// overall timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}
