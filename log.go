package tftp

import (
	"os"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// defaultLogger is used by any Server built without an explicit
// WithLogger option.
var defaultLogger = func() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stdout
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}()

// newCorrelationID mints a short opaque ID for a session's log lines.
// It is not used as a metric label and is never sent on the wire.
func newCorrelationID() string {
	return xid.New().String()
}

// sessionLog returns a logger pre-populated with the fields every
// session log line carries.
func sessionLog(base *logrus.Logger, op, cid, peer, filename string) *logrus.Entry {
	if base == nil {
		base = defaultLogger
	}
	return base.WithFields(logrus.Fields{
		"op":   op,
		"cid":  cid,
		"peer": peer,
		"file": filename,
	})
}
