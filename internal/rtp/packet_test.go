package rtp

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	pkt := Encode(2, false, false, 0, 4242, true, PayloadTypeMJPEG, 123456, 99, payload)

	decoded := Decode(pkt.Packet())

	if decoded.Version() != 2 {
		t.Errorf("version = %d, want 2", decoded.Version())
	}
	if decoded.Padding() {
		t.Error("padding = true, want false")
	}
	if !decoded.Marker() {
		t.Error("marker = false, want true")
	}
	if decoded.PayloadType() != PayloadTypeMJPEG {
		t.Errorf("payload type = %d, want %d", decoded.PayloadType(), PayloadTypeMJPEG)
	}
	if decoded.SeqNum() != 4242 {
		t.Errorf("seq num = %d, want 4242", decoded.SeqNum())
	}
	if decoded.Timestamp() != 123456 {
		t.Errorf("timestamp = %d, want 123456", decoded.Timestamp())
	}
	if decoded.SSRC() != 99 {
		t.Errorf("ssrc = %d, want 99", decoded.SSRC())
	}
	if string(decoded.Payload()) != string(payload) {
		t.Errorf("payload = %v, want %v", decoded.Payload(), payload)
	}
}

func TestDecodeShortBufferDoesNotPanic(t *testing.T) {
	decoded := Decode([]byte{1, 2, 3})
	if decoded.Payload() != nil {
		t.Errorf("payload = %v, want nil for a header-only buffer", decoded.Payload())
	}
}

func TestPacketHeaderSize(t *testing.T) {
	pkt := Encode(2, false, false, 0, 1, false, PayloadTypeMJPEG, 0, 0, nil)
	if len(pkt.Packet()) != HeaderSize {
		t.Errorf("empty-payload packet length = %d, want %d", len(pkt.Packet()), HeaderSize)
	}
}
