// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"bufio"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/onitake/mjpeg-rtsp/internal/media"
	"github.com/onitake/mjpeg-rtsp/internal/rtp"
)

// MaxRequestSize is the read unit the worker assumes an RTSP request fits
// within, per spec §4.3.
const MaxRequestSize = 256

// senderStopTimeout is how long the RTP sender loop waits on its stop
// signal before checking VideoStream again, per spec §4.4 step 1.
const senderStopTimeout = 25 * time.Millisecond

// Metrics is the subset of observability hooks a ServerWorker reports to.
// Declared locally so this package never imports internal/metrics directly;
// any type satisfying it (including a no-op) can be plugged in.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	RTPPacketSent(bytes int)
}

// noopMetrics discards every call; used when a caller passes a nil Metrics.
type noopMetrics struct{}

func (noopMetrics) SessionOpened()        {}
func (noopMetrics) SessionClosed()        {}
func (noopMetrics) RTPPacketSent(int)     {}

// ServerWorker handles one accepted RTSP connection end to end: request
// parsing, state transitions, and (between PLAY and PAUSE/TEARDOWN) the RTP
// sender loop. A worker is never shared across connections.
type ServerWorker struct {
	conn   net.Conn
	log    *zap.Logger
	metric Metrics
	id     uuid.UUID

	state      State
	sessionID  uint32
	stream     *media.VideoStream
	seq        rtp.Sequencer
	rtpConn    *net.UDPConn
	clientAddr *net.UDPAddr
	stop       chan struct{}
	senderDone chan struct{}

	mu sync.Mutex
}

// NewServerWorker wraps an accepted connection. metrics may be nil.
func NewServerWorker(conn net.Conn, log *zap.Logger, metrics Metrics) *ServerWorker {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &ServerWorker{
		conn:   conn,
		log:    log.With(zap.String("peer", conn.RemoteAddr().String())),
		metric: metrics,
		id:     uuid.New(),
		state:  StateInit,
	}
}

// Serve reads and dispatches requests until the connection closes. It never
// returns an error for protocol violations: those are logged and the loop
// continues, per spec §7 ("malformed requests are logged and ignored").
func (w *ServerWorker) Serve() {
	defer w.cleanup()

	reader := bufio.NewReaderSize(w.conn, MaxRequestSize)
	for {
		raw, err := readRequestLines(reader)
		if err != nil {
			return
		}

		req, err := ParseRequest(raw)
		if err != nil {
			w.log.Warn("malformed rtsp request, ignoring", zap.Error(err))
			continue
		}

		w.handle(req)
	}
}

// readRequestLines performs one read of at most MaxRequestSize bytes and
// returns it as the raw request; it does not look for line boundaries.
// Per spec §4.3 there is no trailing blank-line terminator in this grammar
// (unlike real RTSP/HTTP); a request is exactly the lines read in one recv.
// The reference reads in MaxRequestSize units, so this does the same.
func readRequestLines(r *bufio.Reader) (string, error) {
	buf := make([]byte, MaxRequestSize)
	n, err := r.Read(buf)
	if n == 0 {
		if err != nil {
			return "", err
		}
		return "", fmt.Errorf("empty read")
	}
	return string(buf[:n]), nil
}

func (w *ServerWorker) handle(req Request) {
	switch req.Method {
	case MethodSetup:
		w.handleSetup(req)
	case MethodPlay:
		w.handlePlay(req)
	case MethodPause:
		w.handlePause(req)
	case MethodTeardown:
		w.handleTeardown(req)
	default:
		w.log.Warn("unknown rtsp method, ignoring", zap.String("method", string(req.Method)))
	}
}

func (w *ServerWorker) handleSetup(req Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateInit {
		return
	}

	stream, err := media.Open(req.Filename)
	if err != nil {
		w.log.Warn("setup: file open failed", zap.String("filename", req.Filename), zap.Error(err))
		w.writeReply(fmt.Sprintf("RTSP/1.0 %d Not Found\nCSeq: %d", StatusNotFound, req.CSeq))
		return
	}

	w.stream = stream
	w.sessionID = uint32(sessionIDMin + rand.Intn(sessionIDMax-sessionIDMin+1))
	host, _, _ := net.SplitHostPort(w.conn.RemoteAddr().String())
	w.clientAddr = &net.UDPAddr{IP: net.ParseIP(host), Port: req.ClientPort}
	w.state = StateReady
	w.metric.SessionOpened()

	w.log.Info("session established",
		zap.Uint32("session_id", w.sessionID),
		zap.String("filename", req.Filename),
		zap.Int("client_port", req.ClientPort),
	)

	w.writeReply(BuildReply(req.CSeq, w.sessionID))
}

func (w *ServerWorker) handlePlay(req Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateReady || !req.HasSession || req.SessionID != w.sessionID {
		return
	}

	rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		w.log.Error("play: failed to open rtp socket", zap.Error(err))
		return
	}
	w.rtpConn = rtpConn
	w.stop = make(chan struct{})
	w.senderDone = make(chan struct{})
	w.state = StatePlaying

	go w.runSender(w.stop, w.senderDone, rtpConn, w.clientAddr, w.stream)

	w.log.Info("play", zap.Uint32("session_id", w.sessionID))
	w.writeReply(BuildReply(req.CSeq, w.sessionID))
}

func (w *ServerWorker) handlePause(req Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StatePlaying || !req.HasSession || req.SessionID != w.sessionID {
		return
	}

	w.stopSender()
	w.state = StateReady

	w.log.Info("pause", zap.Uint32("session_id", w.sessionID))
	w.writeReply(BuildReply(req.CSeq, w.sessionID))
}

func (w *ServerWorker) handleTeardown(req Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateInit || !req.HasSession || req.SessionID != w.sessionID {
		return
	}

	w.stopSender()
	if w.rtpConn != nil {
		w.rtpConn.Close()
		w.rtpConn = nil
	}
	w.state = StateInit
	w.metric.SessionClosed()

	w.log.Info("teardown", zap.Uint32("session_id", w.sessionID))
	w.writeReply(BuildReply(req.CSeq, w.sessionID))
}

// stopSender signals the sender goroutine (if any) and waits for it to
// exit. Callers must hold w.mu.
func (w *ServerWorker) stopSender() {
	if w.stop == nil {
		return
	}
	close(w.stop)
	<-w.senderDone
	w.stop = nil
	w.senderDone = nil
}

func (w *ServerWorker) writeReply(reply string) {
	if _, err := w.conn.Write([]byte(reply)); err != nil {
		w.log.Warn("failed to write rtsp reply", zap.Error(err))
	}
}

// runSender implements spec §4.4: poll the stop channel every 25ms, pull
// the next frame, fragment it, and send each fragment to the client's RTP
// port. It exits either on stop or when VideoStream is exhausted (after
// sending the EOS datagram).
func (w *ServerWorker) runSender(stop <-chan struct{}, done chan<- struct{}, conn *net.UDPConn, addr *net.UDPAddr, stream *media.VideoStream) {
	defer close(done)

	ssrc := uint32(w.id.ID())
	for {
		select {
		case <-stop:
			return
		case <-time.After(senderStopTimeout):
		}

		frame, err := stream.NextFrame()
		if err != nil {
			pkt := rtp.EncodeEOS(w.seq.Next, ssrc)
			w.sendDatagram(conn, addr, pkt)
			return
		}

		for _, pkt := range rtp.Fragment(frame, w.seq.Next, ssrc) {
			w.sendDatagram(conn, addr, pkt)
		}
	}
}

func (w *ServerWorker) sendDatagram(conn *net.UDPConn, addr *net.UDPAddr, pkt []byte) {
	if _, err := conn.WriteToUDP(pkt, addr); err != nil {
		w.log.Warn("rtp send failed", zap.Error(err))
		return
	}
	w.metric.RTPPacketSent(len(pkt))
}

func (w *ServerWorker) cleanup() {
	w.mu.Lock()
	if w.state != StateInit {
		w.stopSender()
		if w.rtpConn != nil {
			w.rtpConn.Close()
		}
		w.metric.SessionClosed()
	}
	stream := w.stream
	w.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	w.conn.Close()
}
