// Created by WINK Streaming (https://www.wink.co)
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/onitake/mjpeg-rtsp/internal/logging"
	"github.com/onitake/mjpeg-rtsp/internal/media"
	"github.com/onitake/mjpeg-rtsp/internal/metrics"
	"github.com/onitake/mjpeg-rtsp/internal/rtsp"
)

func main() {
	var (
		logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		cacheDir = flag.String("cache-dir", "frames", "Directory the received frames are written to")
	)
	flag.Parse()

	if flag.NArg() != 4 {
		fmt.Fprintln(os.Stderr, "usage: mjpegrtsp-client [flags] <server-host> <server-rtsp-port> <local-rtp-port> <filename>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	host := flag.Arg(0)
	rtspPort, err := strconv.Atoi(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid server-rtsp-port: %v\n", err)
		os.Exit(2)
	}
	localRTPPort, err := strconv.Atoi(flag.Arg(2))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid local-rtp-port: %v\n", err)
		os.Exit(2)
	}
	filename := flag.Arg(3)

	logger, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	clientMetrics := metrics.NewClientMetrics()

	sink, err := media.NewCacheDirSink(*cacheDir, 0)
	if err != nil {
		logger.Fatal("failed to create cache sink", zap.Error(err))
	}

	session, err := rtsp.Dial(host, rtspPort, localRTPPort, filename, sink, logger, clientMetrics)
	if err != nil {
		logger.Fatal("failed to dial rtsp server", zap.Error(err))
	}
	defer session.Close()

	if err := session.Setup(); err != nil {
		logger.Fatal("setup failed", zap.Error(err))
	}
	sink.SetSessionID(session.SessionID())
	if err := session.Play(); err != nil {
		logger.Fatal("play failed", zap.Error(err))
	}
	logger.Info("playing", zap.String("filename", filename), zap.String("cache_dir", *cacheDir))

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh

	logger.Info("shutting down")
	if err := session.Teardown(); err != nil {
		logger.Warn("teardown failed", zap.Error(err))
	}
}
