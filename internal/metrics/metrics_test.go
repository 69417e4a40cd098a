package metrics

import (
	"testing"

	"go.uber.org/zap/zaptest"
)

// NewServerMetrics/NewClientMetrics register collectors against the package
// level DefaultRegisterer; each must only be constructed once per test binary
// to avoid a duplicate-registration panic.
var (
	serverMetrics = NewServerMetrics()
	clientMetrics = NewClientMetrics()
)

func TestServerMetricsTracksActiveSessions(t *testing.T) {
	serverMetrics.SessionOpened()
	serverMetrics.SessionOpened()
	serverMetrics.SessionClosed()
	serverMetrics.RTPPacketSent(1400)

	families, err := DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestClientMetricsRecordsCounters(t *testing.T) {
	clientMetrics.RTPPacketReceived(1400)
	clientMetrics.FrameDropped()
	clientMetrics.RTPSequence(42) // no-op, must not panic
}

func TestHandlerReturnsNonNil(t *testing.T) {
	log := zaptest.NewLogger(t)
	if h := Handler(log); h == nil {
		t.Error("Handler returned nil")
	}
}
