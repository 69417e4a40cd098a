package rtp

import "testing"

func encodeAt(seq uint16, marker bool, payload []byte) Packet {
	return Encode(2, false, false, 0, seq, marker, PayloadTypeMJPEG, 0, 1, payload)
}

func TestReassemblerSingleFragmentFrame(t *testing.T) {
	r := NewReassembler()
	pkt := encodeAt(1, true, []byte("hello"))

	result := r.Ingest(pkt, len(pkt.Packet()))
	if !result.Complete {
		t.Fatal("expected a complete frame")
	}
	if string(result.Frame) != "hello" {
		t.Errorf("frame = %q, want %q", result.Frame, "hello")
	}
}

func TestReassemblerMultiFragmentFrame(t *testing.T) {
	r := NewReassembler()
	r.Ingest(encodeAt(1, false, []byte("ab")), 14)
	result := r.Ingest(encodeAt(2, true, []byte("cd")), 14)

	if !result.Complete {
		t.Fatal("expected a complete frame after the marker fragment")
	}
	if string(result.Frame) != "abcd" {
		t.Errorf("frame = %q, want %q", result.Frame, "abcd")
	}
}

func TestReassemblerGapMidFrameDiscardsUntilNextMarker(t *testing.T) {
	r := NewReassembler()
	r.Ingest(encodeAt(1, false, []byte("a")), 13)
	// seq 2 is lost; seq 3 arrives mid-frame, which must discard the
	// partial frame rather than silently stitching unrelated bytes together.
	mid := r.Ingest(encodeAt(3, false, []byte("b")), 13)
	if mid.Complete {
		t.Fatal("mid-frame fragment after a gap must not complete a frame")
	}

	// The marker fragment that follows clears discarding but still
	// shouldn't surface a (corrupt) frame.
	end := r.Ingest(encodeAt(4, true, []byte("c")), 13)
	if end.Complete {
		t.Fatal("frame spanning a detected gap must be dropped, not delivered")
	}

	// A fresh frame starting after the gap closes must reassemble cleanly.
	next := r.Ingest(encodeAt(5, true, []byte("fresh")), 17)
	if !next.Complete || string(next.Frame) != "fresh" {
		t.Errorf("frame after gap recovery = %+v, want complete %q", next, "fresh")
	}
}

func TestReassemblerEOSSentinelNotDelivered(t *testing.T) {
	r := NewReassembler()
	result := r.Ingest(encodeAt(1, true, EOSPayload), 15)
	if !result.EOS {
		t.Error("expected EOS = true for the EOS sentinel payload")
	}
	if result.Frame != nil {
		t.Error("EOS result must not carry a Frame for delivery")
	}
}

func TestReassemblerOversizeFrameIsDiscarded(t *testing.T) {
	r := NewReassembler()
	big := make([]byte, maxFrameBytes+1)
	result := r.Ingest(encodeAt(1, true, big), len(big)+HeaderSize)
	if result.Complete {
		t.Error("oversize frame must not complete")
	}
}

func TestReassemblerStatsTrackLossAndThroughput(t *testing.T) {
	r := NewReassembler()
	r.Ingest(encodeAt(1, true, []byte("a")), 13)
	r.Ingest(encodeAt(5, true, []byte("b")), 13) // 3 packets skipped

	snap := r.Stats()
	if snap.LostPackets != 3 {
		t.Errorf("lost packets = %d, want 3", snap.LostPackets)
	}
	if snap.TotalPackets != 2 {
		t.Errorf("total packets = %d, want 2", snap.TotalPackets)
	}
	if rate := snap.LossRate(); rate <= 0 {
		t.Errorf("loss rate = %v, want > 0", rate)
	}
}

func TestReassemblerResetClearsState(t *testing.T) {
	r := NewReassembler()
	r.Ingest(encodeAt(1, false, []byte("partial")), 20)
	r.Reset()

	snap := r.Stats()
	if snap.TotalPackets != 0 || snap.LostPackets != 0 {
		t.Errorf("stats after reset = %+v, want zeroed", snap)
	}

	result := r.Ingest(encodeAt(1, true, []byte("fresh")), 18)
	if !result.Complete || string(result.Frame) != "fresh" {
		t.Errorf("frame after reset = %+v, want complete %q", result, "fresh")
	}
}
