// Package rtp implements the fixed 12-byte RTP header used to carry MJPEG
// frames over UDP: encode/decode, fragmentation on the sender side, and
// loss-aware reassembly on the receiver side.
package rtp

import "encoding/binary"

// HeaderSize is the fixed RTP header length in bytes (no CSRC, no extension).
const HeaderSize = 12

// MaxPayload is the largest payload carried by a single datagram before a
// frame must be split across multiple packets.
const MaxPayload = 1400

// PayloadTypeMJPEG is the RTP payload type used for MJPEG video (value 26).
const PayloadTypeMJPEG uint8 = 26

// Packet is a decoded RTP packet: header fields plus the raw payload.
// Accessors never validate input; malformed bytes simply decode to whatever
// the bits say, matching the reference implementation's tolerance.
type Packet struct {
	raw []byte // HeaderSize bytes of header followed by payload
}

// Encode builds a Packet from the given header fields and payload.
// version, padding, extension, cc, marker and pt are packed per RFC 3550
// byte layout; timestamp is the caller-supplied value (the sender uses the
// current wall-clock second, per spec).
func Encode(version uint8, padding, extension bool, cc uint8, seqnum uint16, marker bool, pt uint8, timestamp uint32, ssrc uint32, payload []byte) Packet {
	buf := make([]byte, HeaderSize+len(payload))

	var b0 uint8 = (version&0x03)<<6 | (cc & 0x0f)
	if padding {
		b0 |= 0x20
	}
	if extension {
		b0 |= 0x10
	}
	buf[0] = b0

	var b1 uint8 = pt & 0x7f
	if marker {
		b1 |= 0x80
	}
	buf[1] = b1

	binary.BigEndian.PutUint16(buf[2:4], seqnum)
	binary.BigEndian.PutUint32(buf[4:8], timestamp)
	binary.BigEndian.PutUint32(buf[8:12], ssrc)
	copy(buf[HeaderSize:], payload)

	return Packet{raw: buf}
}

// Decode splits a wire buffer into a Packet. It does not copy: callers that
// retain data across a subsequent buffer reuse must copy it themselves.
// Buffers shorter than HeaderSize are copied into a header zero-padded to
// HeaderSize bytes, with an empty payload; callers
// must check len(data) >= HeaderSize before trusting the result, exactly as
// the spec requires validation to happen out of band.
func Decode(data []byte) Packet {
	if len(data) < HeaderSize {
		padded := make([]byte, HeaderSize)
		copy(padded, data)
		return Packet{raw: padded}
	}
	return Packet{raw: data}
}

// Version returns the 2-bit RTP version field.
func (p Packet) Version() uint8 { return p.raw[0] >> 6 }

// Padding returns the padding flag.
func (p Packet) Padding() bool { return p.raw[0]&0x20 != 0 }

// Extension returns the extension flag.
func (p Packet) Extension() bool { return p.raw[0]&0x10 != 0 }

// CSRCCount returns the 4-bit CSRC count field.
func (p Packet) CSRCCount() uint8 { return p.raw[0] & 0x0f }

// Marker returns the high bit of byte 1.
func (p Packet) Marker() bool { return p.raw[1]&0x80 != 0 }

// PayloadType returns the low 7 bits of byte 1.
func (p Packet) PayloadType() uint8 { return p.raw[1] & 0x7f }

// SeqNum returns the big-endian 16-bit sequence number.
func (p Packet) SeqNum() uint16 { return binary.BigEndian.Uint16(p.raw[2:4]) }

// Timestamp returns the big-endian 32-bit timestamp.
func (p Packet) Timestamp() uint32 { return binary.BigEndian.Uint32(p.raw[4:8]) }

// SSRC returns the big-endian 32-bit synchronization source identifier.
func (p Packet) SSRC() uint32 { return binary.BigEndian.Uint32(p.raw[8:12]) }

// Payload returns the bytes following the fixed header.
func (p Packet) Payload() []byte {
	if len(p.raw) <= HeaderSize {
		return nil
	}
	return p.raw[HeaderSize:]
}

// Packet returns the full wire representation (header + payload).
func (p Packet) Packet() []byte { return p.raw }
