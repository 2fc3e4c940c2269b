package tftp

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Server owns the listening UDP socket and the set of peers with an
// in-flight session. Construct one with a Builder.
type Server struct {
	conn    net.PacketConn
	handler Handler

	cfg         engineConfig
	openTimeout time.Duration

	handlerMu sync.Mutex

	activeMu sync.Mutex
	active   map[string]struct{}
}

// Close stops Serve by closing the listening socket. In-flight
// sessions are not interrupted; each runs to completion of its own
// retry budget.
func (s *Server) Close() error {
	return s.conn.Close()
}

// Serve runs the dispatcher loop until ctx is canceled or the
// listening socket errors. It always returns a non-nil error
// (ctx.Err() on a clean shutdown).
func (s *Server) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, 65535)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		pkt, derr := Decode(buf[:n])
		if derr != nil {
			continue
		}
		if pkt.Op != opRRQ && pkt.Op != opWRQ {
			// A stray DATA/ACK/ERROR at the listening port belongs to
			// no session; session traffic goes to the ephemeral port.
			continue
		}
		if !s.tryAcquirePeer(addr) {
			if s.cfg.metrics != nil {
				s.cfg.metrics.rejectedTotal.Inc()
			}
			continue
		}
		go s.spawnSession(ctx, addr, pkt)
	}
}

func (s *Server) tryAcquirePeer(addr net.Addr) bool {
	key := addr.String()
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	if _, ok := s.active[key]; ok {
		return false
	}
	s.active[key] = struct{}{}
	return true
}

func (s *Server) releasePeer(addr net.Addr) {
	s.activeMu.Lock()
	delete(s.active, addr.String())
	s.activeMu.Unlock()
}

func (s *Server) spawnSession(ctx context.Context, peer net.Addr, req Packet) {
	defer s.releasePeer(peer)

	switch req.Op {
	case opRRQ:
		s.spawnRRQ(ctx, peer, req)
	case opWRQ:
		s.spawnWRQ(ctx, peer, req)
	}
}

func (s *Server) spawnRRQ(ctx context.Context, peer net.Addr, req Packet) {
	type result struct {
		r    io.ReadCloser
		size int64
		ok   bool
	}
	s.handlerMu.Lock()
	res, err := withTimeout(ctx, s.openTimeout, func(cctx context.Context) (result, error) {
		r, size, ok, oerr := s.handler.OpenRead(cctx, peer, req.Filename)
		return result{r, size, ok}, oerr
	})
	s.handlerMu.Unlock()
	if err != nil {
		s.sendPreSessionError(peer, err)
		return
	}

	sess, logEntry := openSession(s.cfg, "rrq", peer, req.Filename)
	if sess == nil {
		sendBestEffortError(s.conn, peer, NewProtocolError(CodeUndefined, "failed to bind session socket"))
		res.r.Close()
		return
	}
	if s.cfg.metrics != nil {
		s.cfg.metrics.activeSessions.Inc()
		defer s.cfg.metrics.activeSessions.Dec()
	}

	logEntry.Debug("RRQ begin")
	serr := serveRRQ(sess, req.Options, res.r, res.size, res.ok, s.cfg.negotiate)
	s.finishSession(sess, logEntry, "rrq", serr)
}

func (s *Server) spawnWRQ(ctx context.Context, peer net.Addr, req Packet) {
	s.handlerMu.Lock()
	w, err := withTimeout(ctx, s.openTimeout, func(cctx context.Context) (io.WriteCloser, error) {
		announced := int64(0)
		if req.Options.TransferSize != nil {
			announced = int64(*req.Options.TransferSize)
		}
		return s.handler.OpenWrite(cctx, peer, req.Filename, announced)
	})
	s.handlerMu.Unlock()
	if err != nil {
		s.sendPreSessionError(peer, err)
		return
	}

	sess, logEntry := openSession(s.cfg, "wrq", peer, req.Filename)
	if sess == nil {
		sendBestEffortError(s.conn, peer, NewProtocolError(CodeUndefined, "failed to bind session socket"))
		w.Close()
		return
	}
	if s.cfg.metrics != nil {
		s.cfg.metrics.activeSessions.Inc()
		defer s.cfg.metrics.activeSessions.Dec()
	}

	logEntry.Debug("WRQ begin")
	serr := serveWRQ(sess, req.Options, w, s.cfg.negotiate)
	s.finishSession(sess, logEntry, "wrq", serr)
}

func (s *Server) finishSession(sess *session, logEntry *logrus.Entry, op string, err error) {
	result := "ok"
	switch {
	case err == nil:
		result = "ok"
	case err == errMaxSendRetriesReached:
		result = "retries_exhausted"
	case err == errOptionNegotiationAborted:
		result = "client_aborted"
	default:
		result = "error"
		perr := asProtocolError(err)
		sendBestEffortError(sess.conn, sess.peer, perr)
	}
	if s.cfg.metrics != nil {
		s.cfg.metrics.sessionsTotal.WithLabelValues(op, result).Inc()
	}

	// The engine error and the socket-teardown error are logged
	// together rather than one masking the other.
	err = multierr.Append(err, sess.close())
	if err != nil {
		logEntry.WithError(err).WithField("result", result).Debug(op + " end")
	} else {
		logEntry.WithField("result", result).Debug(op + " end")
	}
}

// sendPreSessionError maps a handler-open failure to a ProtocolError
// and sends it once from a fresh ephemeral socket; the session is
// never spawned.
func (s *Server) sendPreSessionError(peer net.Addr, err error) {
	perr := asProtocolError(err)
	conn, derr := net.ListenPacket(s.cfg.network, ":0")
	if derr != nil {
		return
	}
	defer conn.Close()
	sendBestEffortError(conn, peer, perr)
}
