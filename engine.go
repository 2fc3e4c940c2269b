package tftp

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// session holds the state owned exclusively by one RRQ/WRQ transfer.
// It binds its own ephemeral UDP socket, so the kernel-assigned port
// becomes the transfer ID the peer addresses (RFC 1350 section 4), and
// is never shared across goroutines once created.
type session struct {
	conn      net.PacketConn
	peer      net.Addr
	blockSize uint16
	timeout   time.Duration
	retryCap  uint32
	cid       string
	log       *logrus.Entry
	metrics   *metrics
	recvBuf   []byte
}

func newSession(network string, peer net.Addr, opts Options, retryCap uint32, cid string, log *logrus.Entry, m *metrics) (*session, error) {
	conn, err := net.ListenPacket(network, ":0")
	if err != nil {
		return nil, err
	}
	return &session{
		conn:      conn,
		peer:      peer,
		blockSize: effectiveBlockSize(opts),
		timeout:   time.Duration(effectiveTimeoutSeconds(opts, negotiationConfig{})) * time.Second,
		retryCap:  retryCap,
		cid:       cid,
		log:       log,
		metrics:   m,
		recvBuf:   make([]byte, 65535),
	}, nil
}

// engineConfig is the subset of Server configuration the engines and
// the dispatcher share, independent of the Server type itself so the
// engines stay unit-testable without a full Server.
type engineConfig struct {
	network   string
	negotiate negotiationConfig
	retryCap  uint32
	logger    *logrus.Logger
	metrics   *metrics
}

// openSession mints a correlation ID, binds the session's ephemeral
// socket with placeholder (default) options, and returns it along
// with a logger scoped to the session. The engine functions then
// recompute blockSize/timeout once options are negotiated.
func openSession(cfg engineConfig, op string, peer net.Addr, filename string) (*session, *logrus.Entry) {
	cid := newCorrelationID()
	entry := sessionLog(cfg.logger, op, cid, peer.String(), filename)
	s, err := newSession(cfg.network, peer, Options{}, cfg.retryCap, cid, entry, cfg.metrics)
	if err != nil {
		entry.WithError(err).Error("failed to bind session socket")
		return nil, entry
	}
	return s, entry
}

func (s *session) close() error {
	return s.conn.Close()
}

// matchResult is returned by an exchange's acceptance function.
type matchResult int

const (
	matchDiscard matchResult = iota
	matchAccept
	matchAbort
)

// exchange sends raw (the pre-encoded bytes of one logical protocol
// step) and waits for a reply that match accepts, retransmitting raw
// unchanged on each timeout up to s.retryCap attempts total beyond the
// first send, so every retransmission of a step carries the same
// bytes. Datagrams from any address other than s.peer are silently
// discarded without counting as a retry. A reply for which match
// returns matchAbort (the peer's own ERROR) ends the exchange with
// errOptionNegotiationAborted and no further packets.
func (s *session) exchange(raw []byte, match func(Packet) matchResult) (Packet, error) {
	for attempt := uint32(0); ; attempt++ {
		if _, err := s.conn.WriteTo(raw, s.peer); err != nil {
			return Packet{}, err
		}
		deadline := time.Now().Add(s.timeout)
		for {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			s.conn.SetReadDeadline(deadline)
			n, from, err := s.conn.ReadFrom(s.recvBuf)
			if err != nil {
				if isNetTimeout(err) {
					break
				}
				return Packet{}, err
			}
			if !addrEqual(from, s.peer) {
				continue
			}
			pkt, derr := Decode(s.recvBuf[:n])
			if derr != nil {
				continue
			}
			switch match(pkt) {
			case matchAccept:
				return pkt, nil
			case matchAbort:
				return Packet{}, errOptionNegotiationAborted
			default:
				continue
			}
		}
		if attempt >= s.retryCap {
			return Packet{}, errMaxSendRetriesReached
		}
		if s.metrics != nil {
			s.metrics.retransmitsTotal.Inc()
		}
	}
}

// acceptAck returns a matcher that accepts only ACK(block); any
// ERROR reply aborts the exchange.
func acceptAck(block uint16) func(Packet) matchResult {
	return func(p Packet) matchResult {
		switch p.Op {
		case opACK:
			if p.Block == block {
				return matchAccept
			}
			return matchDiscard
		case opERROR:
			return matchAbort
		default:
			return matchDiscard
		}
	}
}

// acceptData returns a matcher that accepts only DATA(block); any
// ERROR reply aborts the exchange.
func acceptData(block uint16) func(Packet) matchResult {
	return func(p Packet) matchResult {
		switch p.Op {
		case opDATA:
			if p.Block == block {
				return matchAccept
			}
			return matchDiscard
		case opERROR:
			return matchAbort
		default:
			return matchDiscard
		}
	}
}

func addrEqual(a, b net.Addr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.String() == b.String()
}

func isNetTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// sendBestEffortError sends a one-shot ERROR packet and ignores any
// failure of the send itself. ERROR datagrams are never retransmitted
// and must not stall a session on their way out.
func sendBestEffortError(conn net.PacketConn, peer net.Addr, perr *ProtocolError) {
	raw, err := Encode(ErrorPacket(perr.Code, perr.Error()), nil)
	if err != nil {
		return
	}
	_, _ = conn.WriteTo(raw, peer)
}
