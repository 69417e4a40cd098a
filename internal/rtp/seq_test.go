package rtp

import "testing"

func TestSeqTrackerDetectsLinearLoss(t *testing.T) {
	tr := NewSeqTracker()
	tr.Push(1)
	lost := tr.Push(4) // 2 and 3 skipped

	if lost != 2 {
		t.Errorf("lost = %d, want 2", lost)
	}
	stats := tr.GetStats()
	if stats.Lost != 2 {
		t.Errorf("stats.Lost = %d, want 2", stats.Lost)
	}
	if stats.Packets != 2 {
		t.Errorf("stats.Packets = %d, want 2", stats.Packets)
	}
}

func TestSeqTrackerHandlesWraparound(t *testing.T) {
	tr := NewSeqTracker()
	tr.Push(65534)
	tr.Push(65535)
	lost := tr.Push(0) // wraps from 65535 to 0, contiguous

	if lost != 0 {
		t.Errorf("lost across wraparound = %d, want 0", lost)
	}
	stats := tr.GetStats()
	if stats.Cycles != 1 {
		t.Errorf("cycles = %d, want 1", stats.Cycles)
	}
}

func TestAggregatorSnapshotAccumulates(t *testing.T) {
	agg := NewAggregator()
	agg.AddPackets(10)
	agg.AddLoss(2)
	agg.AddBytes(1400)

	snap := agg.Snapshot()
	if snap.Packets != 10 || snap.Lost != 2 || snap.Bytes != 1400 {
		t.Errorf("snapshot = %+v, want {10 2 1400}", snap)
	}
	if rate := snap.LossRate(); rate <= 0 {
		t.Errorf("loss rate = %v, want > 0", rate)
	}
}

func TestAggregatorSnapshotZeroDurationRatesDoNotDivideByZero(t *testing.T) {
	agg := NewAggregator()
	snap := agg.Snapshot()
	if snap.PacketRate(0) != 0 {
		t.Error("packet rate with zero duration should be 0")
	}
	if snap.Bitrate(0) != 0 {
		t.Error("bitrate with zero duration should be 0")
	}
}
