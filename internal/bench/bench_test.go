package bench

import (
	"testing"

	"github.com/onitake/mjpeg-rtsp/internal/rtp"
)

func TestDiscardSinkNeverErrors(t *testing.T) {
	var s discardSink
	if err := s.Present([]byte{1, 2, 3}); err != nil {
		t.Errorf("Present returned %v, want nil", err)
	}
}

func TestAggregatorMetricsFeedsAggregator(t *testing.T) {
	agg := rtp.NewAggregator()
	m := &aggregatorMetrics{agg: agg, tracker: rtp.NewSeqTracker()}

	m.RTPPacketReceived(1400)
	m.RTPSequence(1)
	m.RTPPacketReceived(1400)
	m.RTPSequence(4) // two packets lost

	snap := agg.Snapshot()
	if snap.Packets != 2 {
		t.Errorf("packets = %d, want 2", snap.Packets)
	}
	if snap.Bytes != 2800 {
		t.Errorf("bytes = %d, want 2800", snap.Bytes)
	}
	if snap.Lost != 2 {
		t.Errorf("lost = %d, want 2", snap.Lost)
	}
}

func TestCalculatePercentile(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50}
	if p := calculatePercentile(values, 50); p != 30 {
		t.Errorf("p50 = %v, want 30", p)
	}
	if p := calculatePercentile(nil, 50); p != 0 {
		t.Errorf("p50 of empty slice = %v, want 0", p)
	}
}

func TestGeneratePatternBounds(t *testing.T) {
	base := 100
	if v := GeneratePattern(PatternPeak, base, 0.2); v != 120 {
		t.Errorf("peak = %d, want 120", v)
	}
	if v := GeneratePattern(PatternValley, base, 0.2); v != 80 {
		t.Errorf("valley = %d, want 80", v)
	}
	if v := GeneratePattern(PatternSteady, base, 0.2); v != base {
		t.Errorf("steady = %d, want %d", v, base)
	}
}
