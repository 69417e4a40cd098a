// Created by WINK Streaming (https://www.wink.co)
package rtp

import (
	"sync"
	"sync/atomic"
)

// SeqTracker tracks RTP sequence numbers across a single simulated
// connection and detects loss via wraparound-aware delta math. Used by the
// bench load generator to count loss from raw sequence numbers, separately
// from the Reassembler each benchmarked ClientSession runs.
type SeqTracker struct {
	mu          sync.Mutex
	initialized bool
	lastSeq     uint16
	totalLost   uint64
	totalPkts   uint64

	cycles uint32
	maxSeq uint32
}

// NewSeqTracker creates a new sequence tracker.
func NewSeqTracker() *SeqTracker {
	return &SeqTracker{}
}

// Push processes a new RTP sequence number and returns packets lost.
func (s *SeqTracker) Push(seq uint16) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		s.initSequence(seq)
		return 0
	}
	return s.updateSequence(seq)
}

func (s *SeqTracker) initSequence(seq uint16) {
	s.maxSeq = uint32(seq)
	s.lastSeq = seq
	s.cycles = 0
	s.initialized = true
	s.totalPkts = 1
}

func (s *SeqTracker) updateSequence(seq uint16) uint64 {
	udelta := seq - s.lastSeq
	var lost uint64

	if udelta < 0x8000 {
		if udelta > 0 {
			if udelta > 1 {
				lost = uint64(udelta - 1)
				s.totalLost += lost
			}
			if seq < s.lastSeq {
				s.cycles++
			}
			s.maxSeq = s.cycles<<16 | uint32(seq)
		}
	} else if uint16(s.lastSeq-seq) >= 0x8000 {
		s.cycles++
		s.maxSeq = s.cycles<<16 | uint32(seq)
		actualDelta := (0x10000 - uint32(s.lastSeq)) + uint32(seq)
		if actualDelta > 1 {
			lost = uint64(actualDelta - 1)
			s.totalLost += lost
		}
	}

	s.lastSeq = seq
	s.totalPkts++
	return lost
}

// GetStats returns current per-tracker statistics.
func (s *SeqTracker) GetStats() SeqStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SeqStats{
		Packets: s.totalPkts,
		Lost:    s.totalLost,
		LastSeq: s.lastSeq,
		Cycles:  s.cycles,
	}
}

// SeqStats holds one SeqTracker's statistics.
type SeqStats struct {
	Packets uint64
	Lost    uint64
	LastSeq uint16
	Cycles  uint32
}

// Aggregator collects RTP statistics across many simulated bench
// connections into one set of atomically-updated counters.
type Aggregator struct {
	packets atomic.Uint64
	lost    atomic.Uint64
	bytes   atomic.Uint64
}

// NewAggregator creates a new statistics aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// AddPackets adds to the packet count.
func (a *Aggregator) AddPackets(n uint64) {
	if n > 0 {
		a.packets.Add(n)
	}
}

// AddLoss adds to the loss count.
func (a *Aggregator) AddLoss(n uint64) {
	if n > 0 {
		a.lost.Add(n)
	}
}

// AddBytes adds to the byte count.
func (a *Aggregator) AddBytes(n uint64) {
	if n > 0 {
		a.bytes.Add(n)
	}
}

// Snapshot returns current aggregate statistics.
func (a *Aggregator) Snapshot() AggregateSnapshot {
	return AggregateSnapshot{
		Packets: a.packets.Load(),
		Lost:    a.lost.Load(),
		Bytes:   a.bytes.Load(),
	}
}

// AggregateSnapshot is a point-in-time view across all tracked connections.
type AggregateSnapshot struct {
	Packets uint64
	Lost    uint64
	Bytes   uint64
}

// LossRate calculates the packet loss rate as a percentage.
func (s AggregateSnapshot) LossRate() float64 {
	total := s.Packets + s.Lost
	if total == 0 {
		return 0
	}
	return float64(s.Lost) * 100.0 / float64(total)
}

// PacketRate calculates packets per second given a duration.
func (s AggregateSnapshot) PacketRate(seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(s.Packets) / seconds
}

// Bitrate calculates bitrate in Mbps given a duration.
func (s AggregateSnapshot) Bitrate(seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(s.Bytes) * 8 / seconds / 1_000_000
}
