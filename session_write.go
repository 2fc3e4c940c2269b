package tftp

import (
	"io"
	"time"
)

// serveWRQ runs the write-request engine to completion over an
// already-bound session: ACK(0) or OACK first, then receive DATA
// blocks in order, ACKing each, until a short block ends the
// transfer. w is closed before returning.
func serveWRQ(s *session, reqOpts Options, w io.WriteCloser, negCfg negotiationConfig) error {
	defer w.Close()

	opts := negotiateOptions(reqOpts, negCfg, 0, false, true)
	s.blockSize = effectiveBlockSize(opts)
	s.timeout = time.Duration(effectiveTimeoutSeconds(opts, negCfg)) * time.Second

	var initial []byte
	var err error
	if !opts.Empty() {
		initial, err = Encode(OackPacket(opts), nil)
	} else {
		initial, err = Encode(AckPacket(0), nil)
	}
	if err != nil {
		return err
	}

	var block uint16 = 1
	resp, err := s.exchange(initial, acceptData(block))
	if err != nil {
		return err
	}

	lastAck := initial
	for {
		n := len(resp.Data)
		short := uint16(n) < s.blockSize

		if _, werr := w.Write(resp.Data); werr != nil {
			return werr
		}
		if s.metrics != nil {
			s.metrics.bytesTotal.WithLabelValues("wrq").Add(float64(n))
		}

		ackRaw, err := Encode(AckPacket(block), nil)
		if err != nil {
			return err
		}
		lastAck = ackRaw

		if short {
			// Send the final ACK and give the peer one timeout window
			// to resend DATA(block) in case that ACK was lost, then
			// conclude the transfer either way.
			if _, err := s.conn.WriteTo(lastAck, s.peer); err != nil {
				return err
			}
			awaitFinalRetransmit(s, lastAck, block)
			return nil
		}

		block++
		resp, err = s.exchange(ackRaw, acceptData(block))
		if err != nil {
			return err
		}
	}
}

// awaitFinalRetransmit gives the peer one bounded window to resend
// the terminal DATA block (its ACK may have been lost) and resends
// the final ACK if it does; either way the session then ends
// successfully.
func awaitFinalRetransmit(s *session, ackRaw []byte, block uint16) {
	s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	n, from, err := s.conn.ReadFrom(s.recvBuf)
	if err != nil || !addrEqual(from, s.peer) {
		return
	}
	pkt, derr := Decode(s.recvBuf[:n])
	if derr != nil || pkt.Op != opDATA || pkt.Block != block {
		return
	}
	_, _ = s.conn.WriteTo(ackRaw, s.peer)
}
