// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/onitake/mjpeg-rtsp/internal/media"
	"github.com/onitake/mjpeg-rtsp/internal/playback"
	"github.com/onitake/mjpeg-rtsp/internal/rtp"
)

// rtpRecvBufSize is the datagram read size, per spec §4.5 ("up to 20 KiB").
const rtpRecvBufSize = 20 * 1024

// rtpSocketBufferBytes is the requested OS receive-buffer size.
const rtpSocketBufferBytes = 5 * 1024 * 1024

// rtpRecvTimeout unblocks the receiver periodically so it can observe a
// closed stop channel, per spec §4.5 ("500 ms recv timeout").
const rtpRecvTimeout = 500 * time.Millisecond

// statsLogInterval reports throughput/loss every Nth packet, per spec §4.5.
const statsLogInterval = 100

// ClientMetrics is the subset of observability hooks a ClientSession
// reports to. Declared locally so this package never imports
// internal/metrics directly.
type ClientMetrics interface {
	RTPPacketReceived(bytes int)
	FrameDropped()
	RTPSequence(seq uint16)
}

type noopClientMetrics struct{}

func (noopClientMetrics) RTPPacketReceived(int) {}
func (noopClientMetrics) FrameDropped()         {}
func (noopClientMetrics) RTPSequence(uint16)    {}

// ClientSession is the RTSP requester + RTP receiver pairing described in
// spec §4.5: it mirrors the server's state machine, issuing SETUP/PLAY/
// PAUSE/TEARDOWN, and separately runs a receiver loop that reassembles
// frames and feeds a playback.Buffer.
type ClientSession struct {
	conn     net.Conn
	reader   *bufio.Reader
	log      *zap.Logger
	metric   ClientMetrics
	filename string

	state     State
	cseq      int
	sessionID uint32
	hasSess   bool

	rtpConn *net.UDPConn
	reasm   *rtp.Reassembler
	buffer  *playback.Buffer
	sink    media.Sink
	consume *playback.Consumer

	stopRecv chan struct{}
	stopPlay chan struct{}
	recvDone chan struct{}
}

// Dial connects to the RTSP server at host:rtspPort and binds a local UDP
// socket on localRTPPort for the media the session will request.
func Dial(host string, rtspPort int, localRTPPort int, filename string, sink media.Sink, log *zap.Logger, metrics ClientMetrics) (*ClientSession, error) {
	if metrics == nil {
		metrics = noopClientMetrics{}
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", host, rtspPort))
	if err != nil {
		return nil, fmt.Errorf("dial rtsp: %w", err)
	}

	rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: localRTPPort})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind rtp socket: %w", err)
	}
	if err := rtpConn.SetReadBuffer(rtpSocketBufferBytes); err != nil {
		log.Warn("failed to raise rtp socket receive buffer", zap.Error(err))
	}

	return &ClientSession{
		conn:     conn,
		reader:   bufio.NewReaderSize(conn, MaxRequestSize*4),
		log:      log.With(zap.String("server", conn.RemoteAddr().String())),
		metric:   metrics,
		filename: filename,
		state:    StateInit,
		rtpConn:  rtpConn,
		reasm:    rtp.NewReassembler(),
		buffer:   playback.New(),
		sink:     sink,
	}, nil
}

// LocalRTPPort returns the bound local RTP port.
func (c *ClientSession) LocalRTPPort() int {
	return c.rtpConn.LocalAddr().(*net.UDPAddr).Port
}

// SessionID returns the session id assigned by the server during Setup.
// It is zero until Setup succeeds.
func (c *ClientSession) SessionID() uint32 {
	return c.sessionID
}

// Setup issues SETUP and blocks for the reply. On success the session
// transitions INIT -> READY and sessionID is populated.
func (c *ClientSession) Setup() error {
	if c.state != StateInit {
		return fmt.Errorf("setup: session not in INIT state")
	}
	c.cseq++
	req := BuildRequest(MethodSetup, c.filename, c.cseq, c.LocalRTPPort(), 0, false)
	reply, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	if reply.Status != StatusOK || reply.CSeq != c.cseq {
		return fmt.Errorf("setup failed: status %d", reply.Status)
	}
	if reply.HasSession && !c.hasSess {
		c.sessionID = reply.SessionID
		c.hasSess = true
	}
	c.state = StateReady
	c.log.Info("setup ok", zap.Uint32("session_id", c.sessionID))
	return nil
}

// Play issues PLAY, then starts the RTP receiver and playback consumer
// goroutines. It blocks only for the RTSP reply.
func (c *ClientSession) Play() error {
	if c.state != StateReady {
		return fmt.Errorf("play: session not in READY state")
	}
	if err := c.request(MethodPlay); err != nil {
		return err
	}
	c.state = StatePlaying

	c.stopRecv = make(chan struct{})
	c.stopPlay = make(chan struct{})
	c.recvDone = make(chan struct{})

	go c.receiveLoop(c.stopRecv, c.recvDone)
	c.consume = playback.NewConsumer(c.buffer, c.sink, func(err error) {
		if err != nil {
			c.log.Warn("renderer present failed", zap.Error(err))
		}
	})
	go c.consume.Run(c.stopPlay)

	c.log.Info("play", zap.Uint32("session_id", c.sessionID))
	return nil
}

// Pause issues PAUSE. The receiver and consumer goroutines keep running;
// the server simply stops sending, per spec §4.3.
func (c *ClientSession) Pause() error {
	if c.state != StatePlaying {
		return fmt.Errorf("pause: session not in PLAYING state")
	}
	if err := c.request(MethodPause); err != nil {
		return err
	}
	c.state = StateReady
	c.log.Info("pause", zap.Uint32("session_id", c.sessionID))
	return nil
}

// Teardown issues TEARDOWN and stops the receiver and consumer goroutines.
func (c *ClientSession) Teardown() error {
	if c.state == StateInit {
		return nil
	}
	if err := c.request(MethodTeardown); err != nil {
		return err
	}
	c.stopGoroutines()
	c.state = StateInit
	c.log.Info("teardown", zap.Uint32("session_id", c.sessionID))
	return nil
}

func (c *ClientSession) request(method Method) error {
	c.cseq++
	req := BuildRequest(method, c.filename, c.cseq, 0, c.sessionID, true)
	reply, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	if reply.Status != StatusOK || reply.CSeq != c.cseq {
		return fmt.Errorf("%s failed: status %d", method, reply.Status)
	}
	if reply.HasSession && reply.SessionID != c.sessionID {
		c.log.Warn("reply carried unexpected session id, ignoring", zap.Uint32("got", reply.SessionID))
	}
	return nil
}

func (c *ClientSession) roundTrip(req string) (Reply, error) {
	if _, err := c.conn.Write([]byte(req)); err != nil {
		return Reply{}, fmt.Errorf("write rtsp request: %w", err)
	}
	buf := make([]byte, MaxRequestSize*4)
	n, err := c.reader.Read(buf)
	if err != nil {
		return Reply{}, fmt.Errorf("read rtsp reply: %w", err)
	}
	reply, err := ParseReply(string(buf[:n]))
	if err != nil {
		return Reply{}, fmt.Errorf("parse rtsp reply: %w", err)
	}
	return reply, nil
}

func (c *ClientSession) stopGoroutines() {
	if c.stopRecv != nil {
		close(c.stopRecv)
		<-c.recvDone
		c.stopRecv = nil
	}
	if c.stopPlay != nil {
		close(c.stopPlay)
		c.stopPlay = nil
	}
}

// receiveLoop implements spec §4.5's RTP receiver: decode, record loss
// stats, reassemble, and hand completed frames to the playback buffer.
func (c *ClientSession) receiveLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, rtpRecvBufSize)
	var packetCount int

	for {
		select {
		case <-stop:
			return
		default:
		}

		c.rtpConn.SetReadDeadline(time.Now().Add(rtpRecvTimeout))
		n, err := c.rtpConn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		pkt := rtp.Decode(datagram)

		lostBefore := c.reasm.Stats().LostPackets
		result := c.reasm.Ingest(pkt, n)
		c.metric.RTPPacketReceived(n)
		c.metric.RTPSequence(pkt.SeqNum())
		if c.reasm.Stats().LostPackets > lostBefore {
			c.metric.FrameDropped()
		}

		packetCount++
		if packetCount%statsLogInterval == 0 {
			snap := c.reasm.Stats()
			c.log.Info("rtp stats",
				zap.Float64("throughput_kbps", snap.ThroughputKbps()),
				zap.Float64("loss_rate", snap.LossRate()),
			)
		}

		if !result.Complete || result.EOS {
			continue
		}
		c.buffer.Enqueue(result.Frame)
	}
}

// Close tears down the session (if still active) and releases sockets.
func (c *ClientSession) Close() error {
	if c.state != StateInit {
		_ = c.Teardown()
	}
	c.rtpConn.Close()
	return c.conn.Close()
}
