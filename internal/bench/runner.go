// Created by WINK Streaming (https://www.wink.co)
package bench

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/onitake/mjpeg-rtsp/internal/rtp"
	"github.com/onitake/mjpeg-rtsp/internal/rtsp"
)

// Config holds benchmark configuration for a load run against one server.
type Config struct {
	Host     string
	RTSPPort int
	Filename string

	Readers       int
	Duration      time.Duration
	Rate          float64 // connection spawns per second
	StatsInterval time.Duration

	RealWorld         bool    // enable real-world simulation mode
	AvgConnections    int     // average concurrent sessions for real-world mode
	Variance          float64 // load variance (0.0-1.0)
	IncludeBadClients bool    // include misbehaving clients
	BadClientRatio    float64 // ratio of bad clients (0.0-1.0)
}

// Runner orchestrates a fixed-readers benchmark: it spawns Readers
// ClientSessions at Rate/sec against one server and plays each for
// Duration, aggregating RTP statistics across all of them.
type Runner struct {
	config     Config
	log        *zap.Logger
	aggregator *rtp.Aggregator

	activeConnects atomic.Int64
	totalConnects  atomic.Int64
	totalFailures  atomic.Int64
	connectLatency atomic.Int64 // cumulative milliseconds
	connectCount   atomic.Int64
	badClients     atomic.Int64
	badClientTypes sync.Map

	latencies   []float64
	latenciesMu sync.Mutex
	minLatency  atomic.Int64
	maxLatency  atomic.Int64

	limiter   *rate.Limiter
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// NewRunner creates a benchmark runner targeting config.Host/RTSPPort.
func NewRunner(config Config, log *zap.Logger, agg *rtp.Aggregator) *Runner {
	burst := 10
	if config.Rate > 100 {
		burst = int(config.Rate / 10)
	}
	if burst > 100 {
		burst = 100
	}

	maxConcurrent := 10000
	if config.Readers > 10000 {
		maxConcurrent = config.Readers / 10
		if maxConcurrent > 50000 {
			maxConcurrent = 50000
		}
	}

	r := &Runner{
		config:     config,
		log:        log,
		aggregator: agg,
		limiter:    rate.NewLimiter(rate.Limit(config.Rate), burst),
		semaphore:  make(chan struct{}, maxConcurrent),
		latencies:  make([]float64, 0, 1000),
	}
	r.minLatency.Store(99999999)
	r.maxLatency.Store(0)
	return r
}

// Run executes the benchmark until ctx is cancelled, spawning at most
// Readers connections, and then waits for running sessions to close. It
// does not return early when every session has finished playing.
func (r *Runner) Run(ctx context.Context) error {
	if r.config.RealWorld {
		simulator := NewRealWorldSimulator(r.config, r.log, r.aggregator)
		return simulator.Run(ctx)
	}

	fmt.Printf("[%s] starting benchmark: %d readers at %.1f/sec against %s:%d\n",
		time.Now().Format("15:04:05"), r.config.Readers, r.config.Rate, r.config.Host, r.config.RTSPPort)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.wg.Add(1)
	go r.spawnConnections(runCtx)

	<-runCtx.Done()

	fmt.Printf("[%s] waiting for sessions to close...\n", time.Now().Format("15:04:05"))
	r.wg.Wait()

	return nil
}

// spawnConnections creates sessions at the configured rate, backing off
// automatically when the observed failure rate gets high.
func (r *Runner) spawnConnections(ctx context.Context) {
	defer r.wg.Done()

	connectionsCreated := 0
	lastCheck := time.Now()
	lastFailures := int64(0)

	for connectionsCreated < r.config.Readers {
		if ctx.Err() != nil {
			return
		}

		if connectionsCreated > 0 && connectionsCreated%10 == 0 {
			now := time.Now()
			if now.Sub(lastCheck) > 2*time.Second {
				currentFailures := r.totalFailures.Load()
				failureDelta := currentFailures - lastFailures
				totalDelta := int64(10)

				if failureDelta > totalDelta/5 {
					newRate := r.limiter.Limit() / 2
					if newRate < 1 {
						newRate = 1
					}
					r.limiter.SetLimit(newRate)
					fmt.Printf("[%s] high failure rate detected (%d/%d), reducing rate to %.1f/s\n",
						time.Now().Format("15:04:05"), failureDelta, totalDelta, float64(newRate))
				} else if failureDelta == 0 && r.limiter.Limit() < rate.Limit(r.config.Rate) {
					newRate := r.limiter.Limit() * 1.2
					if newRate > rate.Limit(r.config.Rate) {
						newRate = rate.Limit(r.config.Rate)
					}
					r.limiter.SetLimit(newRate)
					fmt.Printf("[%s] success rate good, increasing rate to %.1f/s\n",
						time.Now().Format("15:04:05"), float64(newRate))
				}

				lastCheck = now
				lastFailures = currentFailures
			}
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return
		}

		select {
		case r.semaphore <- struct{}{}:
		case <-ctx.Done():
			return
		}

		r.wg.Add(1)
		if r.config.IncludeBadClients && rand.Float64() < r.config.BadClientRatio {
			go r.runBadClient(ctx)
		} else {
			go r.runConnection(ctx)
		}

		connectionsCreated++

		if connectionsCreated <= 1000 && connectionsCreated%100 == 0 {
			fmt.Printf("[%s] spawned %d sessions\n", time.Now().Format("15:04:05"), connectionsCreated)
		} else if connectionsCreated%1000 == 0 {
			fmt.Printf("[%s] spawned %d sessions\n", time.Now().Format("15:04:05"), connectionsCreated)
		}
	}

	fmt.Printf("[%s] finished spawning %d sessions\n", time.Now().Format("15:04:05"), connectionsCreated)
}

// runConnection drives one well-behaved ClientSession through
// SETUP/PLAY for config.Duration, then TEARDOWN.
func (r *Runner) runConnection(ctx context.Context) {
	defer r.wg.Done()
	defer func() { <-r.semaphore }()

	const maxRetries = 3
	var session *rtsp.ClientSession
	var err error
	var connectDuration time.Duration

	for retry := 0; retry < maxRetries; retry++ {
		if ctx.Err() != nil {
			return
		}

		startTime := time.Now()
		session, err = rtsp.Dial(r.config.Host, r.config.RTSPPort, 0, r.config.Filename, discardSink{}, r.log, r.metricsFor())
		if err == nil {
			err = session.Setup()
		}
		if err != nil {
			if retry == maxRetries-1 {
				r.totalFailures.Add(1)
				return
			}
			time.Sleep(time.Duration(100*(1<<retry)) * time.Millisecond)
			continue
		}

		connectDuration = time.Since(startTime)
		break
	}

	latencyMs := connectDuration.Milliseconds()
	r.connectLatency.Add(latencyMs)
	r.connectCount.Add(1)

	for {
		oldMin := r.minLatency.Load()
		if latencyMs >= oldMin || r.minLatency.CompareAndSwap(oldMin, latencyMs) {
			break
		}
	}
	for {
		oldMax := r.maxLatency.Load()
		if latencyMs <= oldMax || r.maxLatency.CompareAndSwap(oldMax, latencyMs) {
			break
		}
	}

	r.latenciesMu.Lock()
	if len(r.latencies) < 10000 {
		r.latencies = append(r.latencies, float64(latencyMs))
	}
	r.latenciesMu.Unlock()

	r.totalConnects.Add(1)
	r.activeConnects.Add(1)
	defer r.activeConnects.Add(-1)

	if err := session.Play(); err != nil {
		r.totalFailures.Add(1)
		session.Close()
		return
	}

	timer := time.NewTimer(r.config.Duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	if err := session.Teardown(); err != nil {
		r.totalFailures.Add(1)
	}
	session.Close()
}

// runBadClient drives one misbehaving connection against the server.
func (r *Runner) runBadClient(ctx context.Context) {
	defer r.wg.Done()
	defer func() { <-r.semaphore }()

	addr := fmt.Sprintf("%s:%d", r.config.Host, r.config.RTSPPort)
	badClient := rtsp.NewBadClient(addr, r.config.Filename)

	r.badClients.Add(1)
	r.activeConnects.Add(1)
	defer r.activeConnects.Add(-1)

	typeName := badClient.GetTypeName()
	if count, ok := r.badClientTypes.Load(typeName); ok {
		r.badClientTypes.Store(typeName, count.(int64)+1)
	} else {
		r.badClientTypes.Store(typeName, int64(1))
	}

	runCtx, cancel := context.WithTimeout(ctx, r.config.Duration)
	defer cancel()

	_ = badClient.Run(runCtx)
}

// metricsFor returns a ClientMetrics adapter that feeds this runner's shared
// Aggregator, via a per-connection SeqTracker for independent loss accounting.
func (r *Runner) metricsFor() rtsp.ClientMetrics {
	return &aggregatorMetrics{agg: r.aggregator, tracker: rtp.NewSeqTracker()}
}

// Stats represents current benchmark statistics.
type Stats struct {
	ActiveConnects int64
	TotalConnects  int64
	TotalFailures  int64
	TargetConnects int64 // for real-world mode
	AvgConnectTime float64
	MinConnectTime float64
	MaxConnectTime float64
	P95ConnectTime float64
	RTPPackets     uint64
	RTPLoss        uint64
	RTPBytes       uint64
	BadClients     int64
	BadClientTypes map[string]int64
}

// GetStats returns current statistics.
func (r *Runner) GetStats() Stats {
	snapshot := r.aggregator.Snapshot()

	var avgConnect float64
	count := r.connectCount.Load()
	if count > 0 {
		avgConnect = float64(r.connectLatency.Load()) / float64(count)
	}

	var p95 float64
	r.latenciesMu.Lock()
	if len(r.latencies) > 0 {
		p95 = calculatePercentile(r.latencies, 95)
	}
	r.latenciesMu.Unlock()

	minLat := float64(r.minLatency.Load())
	if minLat == 99999999 {
		minLat = 0
	}

	badClientTypes := make(map[string]int64)
	r.badClientTypes.Range(func(key, value interface{}) bool {
		badClientTypes[key.(string)] = value.(int64)
		return true
	})

	return Stats{
		ActiveConnects: r.activeConnects.Load(),
		TotalConnects:  r.totalConnects.Load(),
		TotalFailures:  r.totalFailures.Load(),
		AvgConnectTime: avgConnect,
		MinConnectTime: minLat,
		MaxConnectTime: float64(r.maxLatency.Load()),
		P95ConnectTime: p95,
		RTPPackets:     snapshot.Packets,
		RTPLoss:        snapshot.Lost,
		RTPBytes:       snapshot.Bytes,
		BadClients:     r.badClients.Load(),
		BadClientTypes: badClientTypes,
	}
}

// PrintStats prints formatted statistics to stdout.
func (r *Runner) PrintStats() {
	stats := r.GetStats()
	lossRate := float64(0)
	if stats.RTPPackets > 0 {
		lossRate = float64(stats.RTPLoss) * 100.0 / float64(stats.RTPPackets+stats.RTPLoss)
	}

	fmt.Printf("active: %d | total: %d | failed: %d | avg connect: %.1fms | packets: %d | loss: %.2f%%\n",
		stats.ActiveConnects,
		stats.TotalConnects,
		stats.TotalFailures,
		stats.AvgConnectTime,
		stats.RTPPackets,
		lossRate,
	)
}

// calculatePercentile calculates the nth percentile of a slice of values.
func calculatePercentile(values []float64, percentile float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	index := (percentile / 100) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
