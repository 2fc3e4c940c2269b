package tftp

import "github.com/prometheus/client_golang/prometheus"

// metrics is the instrumentation surface. A Server always has a
// non-nil metrics set; when no prometheus.Registerer is supplied to
// the Builder the counters simply accumulate unread, so
// instrumentation is never load-bearing for correctness.
type metrics struct {
	sessionsTotal    *prometheus.CounterVec
	retransmitsTotal prometheus.Counter
	rejectedTotal    prometheus.Counter
	bytesTotal       *prometheus.CounterVec
	activeSessions   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tftpd",
			Name:      "sessions_total",
			Help:      "Completed transfer sessions by operation and result.",
		}, []string{"op", "result"}),
		retransmitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tftpd",
			Name:      "retransmits_total",
			Help:      "DATA/ACK retransmissions across all sessions.",
		}),
		rejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tftpd",
			Name:      "rejected_total",
			Help:      "RRQ/WRQ datagrams dropped because the peer already had a session.",
		}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tftpd",
			Name:      "bytes_total",
			Help:      "Payload bytes transferred by operation.",
		}, []string{"op"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tftpd",
			Name:      "active_sessions",
			Help:      "Sessions currently in flight.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sessionsTotal, m.retransmitsTotal, m.rejectedTotal, m.bytesTotal, m.activeSessions)
	}
	return m
}
