// Created by WINK Streaming (https://www.wink.co)

// Package metrics exposes Prometheus collectors for the RTSP/RTP server
// and client, adapted from a restreaming server's metrics registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	defaultRegistry = prometheus.NewRegistry()
	// DefaultRegisterer is the registry every collector in this package
	// registers itself with.
	DefaultRegisterer prometheus.Registerer = defaultRegistry
	// DefaultGatherer points at the same registry as DefaultRegisterer.
	DefaultGatherer prometheus.Gatherer = defaultRegistry
)

// promErrorLogger adapts Prometheus's internal error logging to zap.
type promErrorLogger struct {
	log *zap.Logger
}

func (l *promErrorLogger) Println(v ...interface{}) {
	l.log.Sugar().Warn(v...)
}

// Handler returns an HTTP handler serving DefaultGatherer in Prometheus
// exposition format, suitable for mounting at /metrics.
func Handler(log *zap.Logger) http.Handler {
	return promhttp.HandlerFor(DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:      &promErrorLogger{log: log},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// ServerMetrics implements rtsp.Metrics, tracking server-side session and
// RTP-send counters.
type ServerMetrics struct {
	sessionsOpened prometheus.Counter
	sessionsClosed prometheus.Counter
	sessionsActive prometheus.Gauge
	rtpPacketsSent prometheus.Counter
	rtpBytesSent   prometheus.Counter
}

// NewServerMetrics creates and registers the server-side collectors.
func NewServerMetrics() *ServerMetrics {
	m := &ServerMetrics{
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mjpegrtsp",
			Subsystem: "server",
			Name:      "sessions_opened_total",
			Help:      "Total RTSP sessions that reached READY state.",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mjpegrtsp",
			Subsystem: "server",
			Name:      "sessions_closed_total",
			Help:      "Total RTSP sessions torn down or disconnected.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mjpegrtsp",
			Subsystem: "server",
			Name:      "sessions_active",
			Help:      "RTSP sessions currently open.",
		}),
		rtpPacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mjpegrtsp",
			Subsystem: "server",
			Name:      "rtp_packets_sent_total",
			Help:      "Total RTP datagrams sent across all sessions.",
		}),
		rtpBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mjpegrtsp",
			Subsystem: "server",
			Name:      "rtp_bytes_sent_total",
			Help:      "Total RTP datagram bytes sent across all sessions.",
		}),
	}
	DefaultRegisterer.MustRegister(
		m.sessionsOpened,
		m.sessionsClosed,
		m.sessionsActive,
		m.rtpPacketsSent,
		m.rtpBytesSent,
	)
	return m
}

// SessionOpened implements rtsp.Metrics.
func (m *ServerMetrics) SessionOpened() {
	m.sessionsOpened.Inc()
	m.sessionsActive.Inc()
}

// SessionClosed implements rtsp.Metrics.
func (m *ServerMetrics) SessionClosed() {
	m.sessionsClosed.Inc()
	m.sessionsActive.Dec()
}

// RTPPacketSent implements rtsp.Metrics.
func (m *ServerMetrics) RTPPacketSent(bytes int) {
	m.rtpPacketsSent.Inc()
	m.rtpBytesSent.Add(float64(bytes))
}

// ClientMetrics implements rtsp.ClientMetrics, tracking receiver-side
// throughput and loss counters.
type ClientMetrics struct {
	rtpPacketsReceived prometheus.Counter
	rtpBytesReceived   prometheus.Counter
	framesDropped      prometheus.Counter
}

// NewClientMetrics creates and registers the client-side collectors.
func NewClientMetrics() *ClientMetrics {
	m := &ClientMetrics{
		rtpPacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mjpegrtsp",
			Subsystem: "client",
			Name:      "rtp_packets_received_total",
			Help:      "Total RTP datagrams received.",
		}),
		rtpBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mjpegrtsp",
			Subsystem: "client",
			Name:      "rtp_bytes_received_total",
			Help:      "Total RTP datagram bytes received.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mjpegrtsp",
			Subsystem: "client",
			Name:      "frames_dropped_total",
			Help:      "Total frames discarded due to a sequence gap mid-frame.",
		}),
	}
	DefaultRegisterer.MustRegister(
		m.rtpPacketsReceived,
		m.rtpBytesReceived,
		m.framesDropped,
	)
	return m
}

// RTPPacketReceived implements rtsp.ClientMetrics.
func (m *ClientMetrics) RTPPacketReceived(bytes int) {
	m.rtpPacketsReceived.Inc()
	m.rtpBytesReceived.Add(float64(bytes))
}

// FrameDropped implements rtsp.ClientMetrics.
func (m *ClientMetrics) FrameDropped() {
	m.framesDropped.Inc()
}

// RTPSequence implements rtsp.ClientMetrics. Per-connection sequence
// tracking belongs to the caller (see internal/bench's SeqTracker use);
// Prometheus only cares about the aggregate counters above.
func (m *ClientMetrics) RTPSequence(uint16) {}
