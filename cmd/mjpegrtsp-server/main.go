// Created by WINK Streaming (https://www.wink.co)
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/onitake/mjpeg-rtsp/internal/logging"
	"github.com/onitake/mjpeg-rtsp/internal/metrics"
	"github.com/onitake/mjpeg-rtsp/internal/rtsp"
)

func main() {
	var (
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		metricsAddr = flag.String("metrics-addr", "", "Address to serve Prometheus metrics on (disabled if empty)")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mjpegrtsp-server [flags] <rtsp-port>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid rtsp-port: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	serverMetrics := metrics.NewServerMetrics()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	server, err := rtsp.Listen(fmt.Sprintf(":%d", port), logger, serverMetrics)
	if err != nil {
		logger.Fatal("failed to start rtsp listener", zap.Error(err))
	}
	logger.Info("rtsp server listening", zap.Stringer("addr", server.Addr()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx) }()

	select {
	case sig := <-signalCh:
		logger.Info("received shutdown signal", zap.Stringer("signal", sig))
		cancel()
	case err := <-serveErr:
		if err != nil {
			logger.Error("rtsp server stopped", zap.Error(err))
		}
	}

	server.Close()
	logger.Info("shutdown complete")
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(logger))
	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}
