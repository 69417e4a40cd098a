package rtp

import "testing"

func TestFragmentUnderThresholdProducesSingleMarkerPacket(t *testing.T) {
	frame := make([]byte, 100)
	var seq Sequencer
	packets := Fragment(frame, seq.Next, 1)

	if len(packets) != 1 {
		t.Fatalf("len(packets) = %d, want 1", len(packets))
	}
	pkt := Decode(packets[0])
	if !pkt.Marker() {
		t.Error("single fragment must carry the marker bit")
	}
	if len(pkt.Payload()) != len(frame) {
		t.Errorf("payload length = %d, want %d", len(pkt.Payload()), len(frame))
	}
}

func TestFragmentOverThresholdSplitsAcrossPackets(t *testing.T) {
	frame := make([]byte, MaxPayload*3+17)
	var seq Sequencer
	packets := Fragment(frame, seq.Next, 1)

	wantChunks := 4
	if len(packets) != wantChunks {
		t.Fatalf("len(packets) = %d, want %d", len(packets), wantChunks)
	}

	var reassembled []byte
	for i, raw := range packets {
		pkt := Decode(raw)
		isLast := i == len(packets)-1
		if pkt.Marker() != isLast {
			t.Errorf("packet %d marker = %v, want %v", i, pkt.Marker(), isLast)
		}
		reassembled = append(reassembled, pkt.Payload()...)
	}
	if len(reassembled) != len(frame) {
		t.Errorf("reassembled length = %d, want %d", len(reassembled), len(frame))
	}
}

func TestFragmentEmptyFrameYieldsOneMarkerPacket(t *testing.T) {
	var seq Sequencer
	packets := Fragment(nil, seq.Next, 1)
	if len(packets) != 1 {
		t.Fatalf("len(packets) = %d, want 1", len(packets))
	}
	if !Decode(packets[0]).Marker() {
		t.Error("empty frame's single packet must carry the marker bit")
	}
}

func TestSequencerNeverResets(t *testing.T) {
	var seq Sequencer
	first := seq.Next()
	for i := 0; i < 10; i++ {
		seq.Next()
	}
	// Simulate a PAUSE/PLAY cycle: nothing resets the Sequencer itself,
	// callers just stop calling Next for a while.
	after := seq.Next()
	if after <= first {
		t.Errorf("sequence number regressed across simulated pause: first=%d after=%d", first, after)
	}
}

func TestEncodeEOSIsRecognizedByIsEOS(t *testing.T) {
	var seq Sequencer
	raw := EncodeEOS(seq.Next, 1)
	pkt := Decode(raw)
	if !pkt.Marker() {
		t.Error("EOS packet must carry the marker bit")
	}
	if !IsEOS(pkt.Payload()) {
		t.Error("IsEOS(EOS payload) = false, want true")
	}
	if IsEOS([]byte("not eos")) {
		t.Error("IsEOS(non-EOS payload) = true, want false")
	}
}
