//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package tftp

import (
	"net"

	"github.com/sirupsen/logrus"
)

// tuneReceiveBuffer is a no-op on platforms without the netfd/x-sys
// socket-option path.
func tuneReceiveBuffer(conn net.PacketConn, bytes int, log *logrus.Logger) {
	if log != nil {
		log.Debug("tftp: receive buffer tuning not supported on this platform")
	}
}
