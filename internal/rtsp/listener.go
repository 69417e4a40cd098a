// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AcceptRateLimit bounds how fast the server accepts new RTSP connections,
// guarding against connection floods. Not specified by spec.md (which is
// silent on accept-loop hardening); this is ambient resilience carried from
// the teacher's accept-loop rate limiting.
const AcceptRateLimit = 200 // connections/sec

// AcceptBurst is the limiter's burst allowance.
const AcceptBurst = 20

// Server accepts RTSP connections and spawns one ServerWorker per
// connection. Workers are isolated from each other: no shared mutable
// state crosses connections.
type Server struct {
	listener net.Listener
	log      *zap.Logger
	metric   Metrics
	limiter  *rate.Limiter
}

// Listen binds addr (e.g. ":8554") and returns a Server ready to Serve.
func Listen(addr string, log *zap.Logger, metrics Metrics) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen rtsp: %w", err)
	}
	return &Server{
		listener: ln,
		log:      log,
		metric:   metrics,
		limiter:  rate.NewLimiter(rate.Limit(AcceptRateLimit), AcceptBurst),
	}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve runs the accept loop until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		worker := NewServerWorker(conn, s.log, s.metric)
		go worker.Serve()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}
