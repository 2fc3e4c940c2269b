package tftp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopbackSession(t *testing.T) (*session, net.PacketConn) {
	t.Helper()
	peerConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { peerConn.Close() })

	s, _ := openSession(engineConfig{network: "udp", retryCap: 2}, "rrq", peerConn.LocalAddr(), "f")
	require.NotNil(t, s)
	s.timeout = 80 * time.Millisecond
	t.Cleanup(func() { s.close() })
	return s, peerConn
}

func TestSessionExchangeAccepts(t *testing.T) {
	s, peerConn := newLoopbackSession(t)

	go func() {
		buf := make([]byte, 65535)
		n, from, err := peerConn.ReadFrom(buf)
		if err != nil {
			return
		}
		ackRaw, _ := Encode(AckPacket(1), nil)
		_, _ = peerConn.WriteTo(ackRaw, from)
		_ = n
	}()

	raw, err := Encode(DataPacket(1, []byte("x")), nil)
	require.NoError(t, err)
	pkt, err := s.exchange(raw, acceptAck(1))
	require.NoError(t, err)
	assert.Equal(t, opACK, pkt.Op)
	assert.EqualValues(t, 1, pkt.Block)
}

func TestSessionExchangeDiscardsWrongAddress(t *testing.T) {
	s, peerConn := newLoopbackSession(t)

	other, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer other.Close()

	go func() {
		buf := make([]byte, 65535)
		_, from, err := peerConn.ReadFrom(buf)
		if err != nil {
			return
		}
		// Reply from a different socket: must be ignored, not accepted.
		ackRaw, _ := Encode(AckPacket(1), nil)
		_, _ = other.WriteTo(ackRaw, from)

		time.Sleep(20 * time.Millisecond)
		realAck, _ := Encode(AckPacket(1), nil)
		_, _ = peerConn.WriteTo(realAck, from)
	}()

	raw, _ := Encode(DataPacket(1, []byte("x")), nil)
	pkt, err := s.exchange(raw, acceptAck(1))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pkt.Block)
}

func TestSessionExchangeAbortsOnError(t *testing.T) {
	s, peerConn := newLoopbackSession(t)

	go func() {
		buf := make([]byte, 65535)
		_, from, err := peerConn.ReadFrom(buf)
		if err != nil {
			return
		}
		errRaw, _ := Encode(ErrorPacket(CodeDiskFull, ""), nil)
		_, _ = peerConn.WriteTo(errRaw, from)
	}()

	raw, _ := Encode(DataPacket(1, []byte("x")), nil)
	_, err := s.exchange(raw, acceptAck(1))
	assert.ErrorIs(t, err, errOptionNegotiationAborted)
}

func TestSessionExchangeExhaustsRetries(t *testing.T) {
	s, _ := newLoopbackSession(t)
	raw, _ := Encode(DataPacket(1, []byte("x")), nil)
	_, err := s.exchange(raw, acceptAck(1))
	assert.ErrorIs(t, err, errMaxSendRetriesReached)
}
