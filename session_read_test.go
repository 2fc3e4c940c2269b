package tftp

import (
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ackLoopConn is an in-memory net.PacketConn whose imaginary peer
// immediately ACKs every DATA and OACK datagram, for driving the read
// engine through very long transfers without real sockets.
type ackLoopConn struct {
	peer    net.Addr
	reply   []byte
	blocks  int
	lastLen int
}

func (c *ackLoopConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	pkt, err := Decode(p)
	if err != nil {
		return 0, err
	}
	var ack Packet
	switch pkt.Op {
	case opDATA:
		c.blocks++
		if want := uint16(c.blocks); pkt.Block != want {
			return 0, fmt.Errorf("DATA %d carries block id %d, want %d", c.blocks, pkt.Block, want)
		}
		c.lastLen = len(pkt.Data)
		ack = AckPacket(pkt.Block)
	case opOACK:
		ack = AckPacket(0)
	default:
		return 0, fmt.Errorf("unexpected opcode %d", pkt.Op)
	}
	c.reply, err = Encode(ack, nil)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *ackLoopConn) ReadFrom(p []byte) (int, net.Addr, error) {
	if c.reply == nil {
		return 0, nil, fmt.Errorf("read with no pending reply")
	}
	n := copy(p, c.reply)
	c.reply = nil
	return n, c.peer, nil
}

func (c *ackLoopConn) Close() error                     { return nil }
func (c *ackLoopConn) LocalAddr() net.Addr              { return c.peer }
func (c *ackLoopConn) SetDeadline(time.Time) error      { return nil }
func (c *ackLoopConn) SetReadDeadline(time.Time) error  { return nil }
func (c *ackLoopConn) SetWriteDeadline(time.Time) error { return nil }

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestServeRRQBlockNumberRollover(t *testing.T) {
	peer, err := net.ResolveUDPAddr("udp", "127.0.0.1:12345")
	require.NoError(t, err)
	conn := &ackLoopConn{peer: peer}
	s := &session{
		conn:      conn,
		peer:      peer,
		blockSize: DefaultBlockSize,
		timeout:   time.Second,
		retryCap:  1,
		recvBuf:   make([]byte, 65535),
	}

	// Enough blocks that the 16-bit block id wraps past 65535 to 0, 1, ...
	const blocks = 65600
	total := int64(blocks-1)*int64(DefaultBlockSize) + 100
	r := io.NopCloser(io.LimitReader(zeroReader{}, total))

	require.NoError(t, serveRRQ(s, Options{}, r, 0, false, negotiationConfig{}))
	assert.Equal(t, blocks, conn.blocks)
	assert.Equal(t, 100, conn.lastLen, "terminal block must be the short remainder")
}
