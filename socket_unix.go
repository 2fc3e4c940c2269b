//go:build linux || darwin || freebsd || netbsd || openbsd

package tftp

import (
	"net"

	"github.com/higebu/netfd"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// tuneReceiveBuffer best-effort raises the listening socket's kernel
// receive buffer: recover the raw file descriptor with higebu/netfd,
// then call setsockopt directly. Failure is logged, never fatal; an
// undersized buffer costs throughput under loss, not correctness.
func tuneReceiveBuffer(conn net.PacketConn, bytes int, log *logrus.Logger) {
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		return
	}
	fd := netfd.GetFdFromConn(udpConn)
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, bytes); err != nil {
		if log != nil {
			log.WithError(err).Debug("tftp: SO_RCVBUF tuning failed")
		}
	}
}
