package tftp

import (
	"io"
	"time"
)

// serveRRQ runs the read-request engine to completion over an
// already-bound session: stream DATA blocks, wait for each ACK, stop
// after the first short block. r is closed before returning. The
// returned error is errMaxSendRetriesReached,
// errOptionNegotiationAborted, or a plain I/O error; none of these is
// reported to the peer here — the caller decides whether an ERROR
// datagram is owed.
func serveRRQ(s *session, reqOpts Options, r io.ReadCloser, knownSize int64, knownSizeOK bool, negCfg negotiationConfig) error {
	defer r.Close()

	opts := negotiateOptions(reqOpts, negCfg, knownSize, knownSizeOK, false)
	s.blockSize = effectiveBlockSize(opts)
	s.timeout = time.Duration(effectiveTimeoutSeconds(opts, negCfg)) * time.Second

	isProbe := reqOpts.TransferSize != nil && *reqOpts.TransferSize == 0

	if !opts.Empty() && isProbe {
		if err := sendOack(s, opts); err != nil {
			return err
		}
	}

	buf := make([]byte, s.blockSize)
	var block uint16 = 1
	first := true
	for {
		n, rerr := io.ReadFull(r, buf)
		if rerr != nil && rerr != io.ErrUnexpectedEOF && rerr != io.EOF {
			return rerr
		}
		short := n < len(buf)

		if first && !opts.Empty() && !isProbe {
			// Non-probe OACK: read the first block before announcing
			// OACK, so a late reader failure surfaces as ERROR instead
			// of an OACK the client has already acted on. A size probe
			// gets its OACK before any read, above, because the client
			// may abort right after learning the size.
			if err := sendOack(s, opts); err != nil {
				return err
			}
		}
		first = false

		head := EncodeDataHead(block, nil)
		raw := append(head, buf[:n]...)

		_, err := s.exchange(raw, acceptAck(block))
		if err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.bytesTotal.WithLabelValues("rrq").Add(float64(n))
		}

		if short {
			return nil
		}
		block++
	}
}

// sendOack sends the OACK datagram for opts and waits for the
// client's ACK(0) (RFC 2347: OACK is acknowledged with block id 0).
func sendOack(s *session, opts Options) error {
	raw, err := Encode(OackPacket(opts), nil)
	if err != nil {
		return err
	}
	_, err = s.exchange(raw, acceptAck(0))
	return err
}
