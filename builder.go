package tftp

import (
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Builder collects server configuration and produces a ready-to-run
// Server.
type Builder struct {
	listenAddr string
	conn       net.PacketConn
	network    string

	handler Handler

	timeout               time.Duration
	blockSizeLimit        *uint16
	windowSizeLimit       *uint16
	retryCap              uint32
	ignoreClientTimeout   bool
	ignoreClientBlockSize bool
	openTimeout           time.Duration

	logger   *logrus.Logger
	registry prometheus.Registerer

	recvBufferBytes int
}

// NewBuilder starts a Builder with the conventional defaults: listen
// on 0.0.0.0:69, 3s timeout, 100 retries, no block-size ceiling,
// client options honored.
func NewBuilder(handler Handler) *Builder {
	return &Builder{
		listenAddr:  "0.0.0.0:69",
		network:     "udp",
		handler:     handler,
		timeout:     time.Duration(DefaultTimeout) * time.Second,
		retryCap:    DefaultRetryCap,
		openTimeout: 10 * time.Second,
		logger:      defaultLogger,
	}
}

// WithListenAddress overrides the default listen address.
func (b *Builder) WithListenAddress(addr string) *Builder {
	b.listenAddr = addr
	return b
}

// WithHandler overrides the Handler passed to NewBuilder, for callers
// that want to pick a handler after other configuration (e.g. once a
// config file has been loaded).
func (b *Builder) WithHandler(h Handler) *Builder {
	b.handler = h
	return b
}

// WithConn uses a caller-supplied, already-bound packet connection
// instead of binding listenAddr, for embedding into a process that
// manages its own sockets.
func (b *Builder) WithConn(conn net.PacketConn) *Builder {
	b.conn = conn
	return b
}

// WithTimeout overrides the default per-block retry timeout.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

// WithBlockSizeLimit caps any client-requested blksize.
func (b *Builder) WithBlockSizeLimit(n uint16) *Builder {
	b.blockSizeLimit = &n
	return b
}

// WithWindowSizeLimit caps any client-requested windowsize.
func (b *Builder) WithWindowSizeLimit(n uint16) *Builder {
	b.windowSizeLimit = &n
	return b
}

// WithMaxSendRetries overrides the default per-block retry cap.
func (b *Builder) WithMaxSendRetries(n uint32) *Builder {
	b.retryCap = n
	return b
}

// WithIgnoreClientTimeout, when set, drops any client timeout option.
func (b *Builder) WithIgnoreClientTimeout(ignore bool) *Builder {
	b.ignoreClientTimeout = ignore
	return b
}

// WithIgnoreClientBlockSize, when set, drops any client blksize option.
func (b *Builder) WithIgnoreClientBlockSize(ignore bool) *Builder {
	b.ignoreClientBlockSize = ignore
	return b
}

// WithOpenTimeout bounds how long a Handler.Open* call may run before
// the dispatcher gives up on it.
func (b *Builder) WithOpenTimeout(d time.Duration) *Builder {
	b.openTimeout = d
	return b
}

// WithLogger overrides the default logrus logger.
func (b *Builder) WithLogger(l *logrus.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetrics registers the server's prometheus counters/gauges on reg.
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.registry = reg
	return b
}

// WithReceiveBufferBytes requests a larger OS receive buffer on the
// listening socket (best-effort; see socket_unix.go).
func (b *Builder) WithReceiveBufferBytes(n int) *Builder {
	b.recvBufferBytes = n
	return b
}

// defaultTimeoutSeconds clamps d to the uint8-seconds range the wire
// timeout option uses, flooring at 1s.
func defaultTimeoutSeconds(d time.Duration) uint8 {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if secs > 255 {
		secs = 255
	}
	return uint8(secs)
}

// Build constructs the Server without starting it.
func (b *Builder) Build() (*Server, error) {
	if b.handler == nil {
		return nil, fmt.Errorf("tftp: Builder requires a Handler")
	}

	conn := b.conn
	if conn == nil {
		c, err := net.ListenPacket(b.network, b.listenAddr)
		if err != nil {
			return nil, err
		}
		conn = c
	}
	if b.recvBufferBytes > 0 {
		tuneReceiveBuffer(conn, b.recvBufferBytes, b.logger)
	}

	logger := b.logger
	if logger == nil {
		logger = defaultLogger
	}

	srv := &Server{
		conn:        conn,
		handler:     b.handler,
		openTimeout: b.openTimeout,
		active:      make(map[string]struct{}),
		cfg: engineConfig{
			network: b.network,
			negotiate: negotiationConfig{
				blockSizeLimit:        b.blockSizeLimit,
				windowSizeLimit:       b.windowSizeLimit,
				ignoreClientTimeout:   b.ignoreClientTimeout,
				ignoreClientBlockSize: b.ignoreClientBlockSize,
				defaultTimeoutSeconds: defaultTimeoutSeconds(b.timeout),
			},
			retryCap: b.retryCap,
			logger:   logger,
			metrics:  newMetrics(b.registry),
		},
	}
	return srv, nil
}
