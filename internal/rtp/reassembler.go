package rtp

import (
	"sync/atomic"
	"time"
)

// maxFrameBytes bounds an in-flight reassembled frame; exceeding it is
// treated as loss per spec §4.5 step 5.
const maxFrameBytes = 5_000_000

// Reassembler rebuilds frames from a strictly-monotonic, possibly-lossy
// sequence of RTP packets. It assumes in-order arrival: any regression or
// gap is treated as loss, with no reordering buffer, matching spec §5's
// "Ordering" clause. It is not safe for concurrent use by multiple
// goroutines; the RTP receive loop owns it exclusively.
type Reassembler struct {
	expectedSeq uint32
	lastSeq     int64 // -1 = none seen yet
	current     []byte
	discarding  bool

	stats Stats
}

// NewReassembler returns a Reassembler with fresh (zeroed) loss statistics.
func NewReassembler() *Reassembler {
	return &Reassembler{lastSeq: -1, stats: newStats()}
}

// Result describes the outcome of ingesting one datagram.
type Result struct {
	// Frame holds the completed frame bytes when Complete is true.
	Frame []byte
	// Complete is true when the marker bit closed out a frame.
	Complete bool
	// EOS is true when the completed frame is the end-of-stream sentinel;
	// EOS frames are never surfaced to the playback buffer.
	EOS bool
}

// Ingest processes one received datagram (header + payload) of length
// datagramLen, updating loss statistics and the in-flight frame buffer.
// It implements spec §4.5 steps 1-6 in order.
func (r *Reassembler) Ingest(pkt Packet, datagramLen int) Result {
	seq := pkt.SeqNum()
	marker := pkt.Marker()
	payload := pkt.Payload()

	r.stats.recordPacket(datagramLen, seq, r.expectedSeq)
	r.expectedSeq = uint32(seq) + 1

	seq32 := int64(seq)
	if r.lastSeq != -1 && seq32 != r.lastSeq+1 {
		// Gap mid-stream: whatever we were assembling is corrupt.
		r.current = nil
		r.discarding = true
	}
	r.lastSeq = seq32

	if r.discarding {
		if marker {
			r.discarding = false
		}
		return Result{}
	}

	if len(r.current)+len(payload) > maxFrameBytes {
		r.current = nil
		r.discarding = true
		return Result{}
	}

	r.current = append(r.current, payload...)

	if !marker {
		return Result{}
	}

	frame := r.current
	r.current = nil

	if IsEOS(frame) {
		return Result{EOS: true, Complete: true}
	}
	return Result{Frame: frame, Complete: true}
}

// Stats returns a snapshot of the current loss/throughput statistics.
func (r *Reassembler) Stats() Snapshot { return r.stats.snapshot() }

// Reset clears loss statistics and in-flight reassembly state, used when a
// fresh PLAY restarts loss accounting per spec §3.
func (r *Reassembler) Reset() {
	r.expectedSeq = 0
	r.lastSeq = -1
	r.current = nil
	r.discarding = false
	r.stats = newStats()
}

// Stats accumulates the transient, per-PLAY loss/throughput counters
// described in spec §3. It is safe for concurrent reads via Snapshot while
// a single writer goroutine calls recordPacket.
type Stats struct {
	startTime  time.Time
	totalBytes atomic.Uint64
	totalPkts  atomic.Uint64
	lostPkts   atomic.Uint64
}

func newStats() Stats {
	return Stats{startTime: time.Now()}
}

func (s *Stats) recordPacket(datagramLen int, seq uint16, expectedSeq uint32) {
	s.totalBytes.Add(uint64(datagramLen))
	s.totalPkts.Add(1)
	if expectedSeq > 0 && uint32(seq) > expectedSeq {
		s.lostPkts.Add(uint64(uint32(seq) - expectedSeq))
	}
}

// Snapshot is a point-in-time view of Stats, with derived rates.
type Snapshot struct {
	TotalBytes   uint64
	TotalPackets uint64
	LostPackets  uint64
	Elapsed      time.Duration
}

func (s *Stats) snapshot() Snapshot {
	return Snapshot{
		TotalBytes:   s.totalBytes.Load(),
		TotalPackets: s.totalPkts.Load(),
		LostPackets:  s.lostPkts.Load(),
		Elapsed:      time.Since(s.startTime),
	}
}

// ThroughputKbps computes data rate in kbps, per spec §4.5 step 2.
func (s Snapshot) ThroughputKbps() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.TotalBytes) * 8 / secs / 1000
}

// LossRate computes the fraction of packets lost relative to total expected
// (lost + received), per spec §4.5 step 2.
func (s Snapshot) LossRate() float64 {
	total := s.LostPackets + s.TotalPackets
	if total == 0 {
		return 0
	}
	return float64(s.LostPackets) / float64(total)
}
