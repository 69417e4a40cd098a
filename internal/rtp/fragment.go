package rtp

import "time"

// Sequencer hands out strictly increasing 16-bit RTP sequence numbers for a
// single session. It never resets across PAUSE/PLAY cycles, per spec.
type Sequencer struct {
	seq uint32
}

// Next increments and returns the next sequence number, wrapping modulo
// 2^16 on the wire while the unexported 32-bit counter keeps climbing.
func (s *Sequencer) Next() uint16 {
	s.seq++
	return uint16(s.seq)
}

// Fragment splits frame into one or more wire-ready RTP packets of at most
// MaxPayload bytes each, using seqNext to obtain each packet's sequence
// number. Exactly the last fragment carries the marker bit, satisfying the
// "one marker-set packet per source frame" invariant. A frame of length 0
// still yields a single (empty-payload) marker packet, mirroring the
// reference's "else" branch for frames under the threshold.
func Fragment(frame []byte, seqNext func() uint16, ssrc uint32) [][]byte {
	if len(frame) <= MaxPayload {
		seq := seqNext()
		pkt := Encode(2, false, false, 0, seq, true, PayloadTypeMJPEG, nowTimestamp(), ssrc, frame)
		return [][]byte{pkt.Packet()}
	}

	var chunks [][]byte
	for off := 0; off < len(frame); off += MaxPayload {
		end := off + MaxPayload
		if end > len(frame) {
			end = len(frame)
		}
		chunks = append(chunks, frame[off:end])
	}

	packets := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		seq := seqNext()
		marker := i == len(chunks)-1
		pkt := Encode(2, false, false, 0, seq, marker, PayloadTypeMJPEG, nowTimestamp(), ssrc, chunk)
		packets[i] = pkt.Packet()
	}
	return packets
}

// EOSPayload is the literal sentinel payload signalling end of stream.
var EOSPayload = []byte("EOS")

// EncodeEOS builds the single-packet EOS datagram: marker set, literal
// "EOS" payload, next sequence number from seqNext.
func EncodeEOS(seqNext func() uint16, ssrc uint32) []byte {
	seq := seqNext()
	pkt := Encode(2, false, false, 0, seq, true, PayloadTypeMJPEG, nowTimestamp(), ssrc, EOSPayload)
	return pkt.Packet()
}

// nowTimestamp returns the current wall-clock time in whole seconds, per
// spec §4.1. This is adequate for logging/diagnostics but is not RFC-3550
// compliant (a compliant clock would tick at a fixed media clock rate);
// the non-compliance is intentional and documented, matching the reference.
func nowTimestamp() uint32 {
	return uint32(time.Now().Unix())
}

// IsEOS reports whether a reassembled frame is the EOS sentinel.
func IsEOS(payload []byte) bool {
	return len(payload) == len(EOSPayload) && string(payload) == string(EOSPayload)
}
