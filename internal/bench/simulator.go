// Created by WINK Streaming (https://www.wink.co)
package bench

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/onitake/mjpeg-rtsp/internal/rtp"
	"github.com/onitake/mjpeg-rtsp/internal/rtsp"
)

// RealWorldSimulator drives a fluctuating number of concurrent sessions
// against one server, ramping the target connection count up and down on a
// simulated daily traffic curve instead of the fixed Readers/Rate of Runner.
type RealWorldSimulator struct {
	config     Config
	log        *zap.Logger
	aggregator *rtp.Aggregator

	activeConnects atomic.Int64
	totalConnects  atomic.Int64
	totalFailures  atomic.Int64
	targetConnects atomic.Int64

	connections map[string]*simulatedConnection
	connMu      sync.RWMutex
	wg          sync.WaitGroup
}

// simulatedConnection tracks one managed session's lifecycle.
type simulatedConnection struct {
	ID        string
	StartTime time.Time
	Session   *rtsp.ClientSession
	Cancel    context.CancelFunc
}

// NewRealWorldSimulator creates a new real-world traffic simulator.
func NewRealWorldSimulator(config Config, log *zap.Logger, agg *rtp.Aggregator) *RealWorldSimulator {
	return &RealWorldSimulator{
		config:      config,
		log:         log,
		aggregator:  agg,
		connections: make(map[string]*simulatedConnection),
	}
}

// Run executes the real-world simulation until ctx is cancelled.
func (s *RealWorldSimulator) Run(ctx context.Context) error {
	fmt.Printf("[%s] starting real-world simulation\n", time.Now().Format("15:04:05"))
	fmt.Printf("[%s] target: %d avg sessions (+/-%.0f%% variance)\n",
		time.Now().Format("15:04:05"), s.config.AvgConnections, s.config.Variance*100)

	s.wg.Add(1)
	go s.generateLoadPattern(ctx)

	s.wg.Add(1)
	go s.manageConnections(ctx)

	<-ctx.Done()

	fmt.Printf("[%s] shutting down simulation...\n", time.Now().Format("15:04:05"))
	s.wg.Wait()

	return nil
}

// generateLoadPattern periodically recomputes the target session count.
func (s *RealWorldSimulator) generateLoadPattern(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	s.targetConnects.Store(int64(s.config.AvgConnections))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.adjustTargetLoad()
		}
	}
}

// adjustTargetLoad simulates a daily traffic curve with added jitter.
func (s *RealWorldSimulator) adjustTargetLoad() {
	avg := float64(s.config.AvgConnections)
	variance := s.config.Variance

	hour := time.Now().Hour()
	dayFactor := 1.0

	switch {
	case hour >= 9 && hour <= 11:
		dayFactor = 1.2 // morning peak
	case hour >= 12 && hour <= 13:
		dayFactor = 0.9 // lunch dip
	case hour >= 14 && hour <= 17:
		dayFactor = 1.1 // afternoon steady
	case hour >= 18 && hour <= 22:
		dayFactor = 1.3 // evening peak
	case hour >= 23 || hour <= 5:
		dayFactor = 0.6 // night low
	default:
		dayFactor = 0.8
	}

	randomFactor := 1.0 + (rand.Float64()-0.5)*variance
	newTarget := int64(avg * dayFactor * randomFactor)

	minTarget := int64(avg * (1 - variance))
	maxTarget := int64(avg * (1 + variance))
	if newTarget < minTarget {
		newTarget = minTarget
	}
	if newTarget > maxTarget {
		newTarget = maxTarget
	}

	s.targetConnects.Store(newTarget)

	fmt.Printf("[%s] load adjustment: target=%d active=%d\n",
		time.Now().Format("15:04:05"), newTarget, s.activeConnects.Load())
}

// manageConnections reconciles active sessions against the target every
// second: spawning more, or tearing down excess ones (see removeConnections).
func (s *RealWorldSimulator) manageConnections(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAllConnections()
			return
		case <-ticker.C:
			s.adjustConnections(ctx)
		}
	}
}

// adjustConnections adds or removes sessions to approach the target.
func (s *RealWorldSimulator) adjustConnections(ctx context.Context) {
	current := s.activeConnects.Load()
	target := s.targetConnects.Load()
	diff := target - current

	if diff > 0 {
		toAdd := diff
		if toAdd > 50 {
			toAdd = 50
		}
		for i := int64(0); i < toAdd; i++ {
			s.wg.Add(1)
			go s.addConnection(ctx)
		}
	} else if diff < 0 {
		toRemove := -diff
		if toRemove > 20 {
			toRemove = 20
		}
		s.removeConnections(toRemove)
	}
}

// addConnection dials, SETUPs and PLAYs one new session, holding it open
// for a randomized realistic session duration.
func (s *RealWorldSimulator) addConnection(ctx context.Context) {
	defer s.wg.Done()

	connID := fmt.Sprintf("conn-%d-%d", time.Now().UnixNano(), rand.Int())

	session, err := rtsp.Dial(s.config.Host, s.config.RTSPPort, 0, s.config.Filename, discardSink{}, s.log,
		&aggregatorMetrics{agg: s.aggregator, tracker: rtp.NewSeqTracker()})
	if err != nil {
		s.totalFailures.Add(1)
		return
	}
	if err := session.Setup(); err != nil {
		s.totalFailures.Add(1)
		session.Close()
		return
	}
	if err := session.Play(); err != nil {
		s.totalFailures.Add(1)
		session.Close()
		return
	}

	s.totalConnects.Add(1)
	s.activeConnects.Add(1)

	minDuration := 30 * time.Second
	maxDuration := s.config.Duration
	if maxDuration <= minDuration {
		maxDuration = 5 * time.Minute
	}
	durationRange := maxDuration - minDuration
	if durationRange <= 0 {
		durationRange = 4*time.Minute + 30*time.Second
	}
	duration := minDuration + time.Duration(rand.Int63n(int64(durationRange)))

	connCtx, cancel := context.WithTimeout(ctx, duration)

	conn := &simulatedConnection{
		ID:        connID,
		StartTime: time.Now(),
		Session:   session,
		Cancel:    cancel,
	}

	s.connMu.Lock()
	s.connections[connID] = conn
	s.connMu.Unlock()

	<-connCtx.Done()
	cancel()

	_ = session.Teardown()
	session.Close()

	s.connMu.Lock()
	delete(s.connections, connID)
	s.connMu.Unlock()

	s.activeConnects.Add(-1)
}

// removeConnections tears down count randomly-chosen active sessions.
func (s *RealWorldSimulator) removeConnections(count int64) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	removed := int64(0)
	for id, conn := range s.connections {
		if removed >= count {
			break
		}
		conn.Cancel()
		delete(s.connections, id)
		removed++
	}
}

// closeAllConnections tears down every active session.
func (s *RealWorldSimulator) closeAllConnections() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	for _, conn := range s.connections {
		conn.Cancel()
	}
	s.connections = make(map[string]*simulatedConnection)
}

// GetStats returns current statistics.
func (s *RealWorldSimulator) GetStats() Stats {
	snapshot := s.aggregator.Snapshot()

	return Stats{
		ActiveConnects: s.activeConnects.Load(),
		TotalConnects:  s.totalConnects.Load(),
		TotalFailures:  s.totalFailures.Load(),
		TargetConnects: s.targetConnects.Load(),
		RTPPackets:     snapshot.Packets,
		RTPLoss:        snapshot.Lost,
		RTPBytes:       snapshot.Bytes,
	}
}

// LoadPattern names a synthetic traffic shape for GeneratePattern.
// adjustTargetLoad does not use it.
type LoadPattern int

const (
	PatternSteady LoadPattern = iota
	PatternPeak
	PatternValley
	PatternSpike
	PatternGradual
)

// GeneratePattern computes a target connection count for pattern given a
// base load and amplitude, independent of wall-clock time (except Gradual).
func GeneratePattern(pattern LoadPattern, base int, amplitude float64) int {
	switch pattern {
	case PatternPeak:
		return base + int(float64(base)*amplitude)
	case PatternValley:
		return base - int(float64(base)*amplitude)
	case PatternSpike:
		if rand.Float64() < 0.1 {
			return base * 2
		}
		return base
	case PatternGradual:
		t := float64(time.Now().Unix())
		return base + int(float64(base)*amplitude*math.Sin(t/300))
	default:
		return base
	}
}
