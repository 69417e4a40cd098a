// Created by WINK Streaming (https://www.wink.co)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/onitake/mjpeg-rtsp/internal/bench"
	"github.com/onitake/mjpeg-rtsp/internal/logging"
	"github.com/onitake/mjpeg-rtsp/internal/rtp"
)

func main() {
	var (
		logLevel          = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		readers           = flag.Int("readers", 10, "Number of concurrent client sessions to run")
		duration          = flag.Duration("duration", 30*time.Second, "Duration each session stays connected")
		rate              = flag.Float64("rate", 10, "Session spawn rate, connections/sec")
		realWorld         = flag.Bool("real-world", false, "Simulate a fluctuating real-world traffic pattern instead of a fixed ramp")
		avgConnections    = flag.Int("avg-connections", 50, "Average concurrent sessions in real-world mode")
		variance          = flag.Float64("variance", 0.3, "Load variance (0.0-1.0) in real-world mode")
		includeBadClients = flag.Bool("bad-clients", false, "Mix in misbehaving clients")
		badClientRatio    = flag.Float64("bad-client-ratio", 0.1, "Fraction of spawned sessions that misbehave")
		statsInterval     = flag.Duration("stats-interval", 5*time.Second, "How often to print aggregate statistics")
	)
	flag.Parse()

	if flag.NArg() != 3 {
		fmt.Fprintln(os.Stderr, "usage: mjpegrtsp-bench [flags] <server-host> <server-rtsp-port> <filename>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	host := flag.Arg(0)
	rtspPort, err := strconv.Atoi(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid server-rtsp-port: %v\n", err)
		os.Exit(2)
	}
	filename := flag.Arg(2)

	logger, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	config := bench.Config{
		Host:              host,
		RTSPPort:          rtspPort,
		Filename:          filename,
		Readers:           *readers,
		Duration:          *duration,
		Rate:              *rate,
		StatsInterval:     *statsInterval,
		RealWorld:         *realWorld,
		AvgConnections:    *avgConnections,
		Variance:          *variance,
		IncludeBadClients: *includeBadClients,
		BadClientRatio:    *badClientRatio,
	}

	aggregator := rtp.NewAggregator()
	runner := bench.NewRunner(config, logger, aggregator)

	ctx, cancel := context.WithTimeout(context.Background(), *duration+10*time.Second)
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	statsTicker := time.NewTicker(*statsInterval)
	defer statsTicker.Stop()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				runner.PrintStats()
			}
		}
	}()

	if err := runner.Run(ctx); err != nil {
		logger.Error("benchmark run failed", zap.Error(err))
	}
	cancel()
	<-done

	runner.PrintStats()
}
