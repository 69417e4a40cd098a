// Created by WINK Streaming (https://www.wink.co)
package bench

import "github.com/onitake/mjpeg-rtsp/internal/rtp"

// discardSink is the media.Sink used by benchmark sessions: it never
// touches disk, since the load generator cares about RTP delivery, not
// rendered frames.
type discardSink struct{}

func (discardSink) Present(jpeg []byte) error { return nil }

// aggregatorMetrics adapts one ClientSession's observability hooks into a
// shared rtp.Aggregator, tracking this connection's own sequence-number
// loss independently of the session's internal Reassembler via a
// dedicated rtp.SeqTracker.
type aggregatorMetrics struct {
	agg     *rtp.Aggregator
	tracker *rtp.SeqTracker
}

func (m *aggregatorMetrics) RTPPacketReceived(bytes int) {
	m.agg.AddPackets(1)
	m.agg.AddBytes(uint64(bytes))
}

func (m *aggregatorMetrics) FrameDropped() {}

func (m *aggregatorMetrics) RTPSequence(seq uint16) {
	lost := m.tracker.Push(seq)
	m.agg.AddLoss(lost)
}
