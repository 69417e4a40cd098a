// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"
)

// BadClientType selects one misbehavior pattern for stress-testing the
// server's accept loop and ServerWorker against non-conforming peers.
type BadClientType int

const (
	SlowConnector       BadClientType = iota // trickles the request one byte at a time
	SlowSender                               // sends valid requests with long inter-byte delays
	GarbageSender                            // sends data that isn't RTSP at all
	IncompleteHandshake                      // starts SETUP but never finishes the request
	InvalidProtocol                          // sends syntactically broken requests, incl. CRLF
	ResourceHog                              // holds the connection open without completing SETUP
	RandomDisconnect                         // issues SETUP then disconnects at a random time
	MalformedRequests                        // cycles through a battery of malformed requests
)

// BadClient drives one of the above behaviors against an RTSP server
// address, adapted from a generic RTSP load-test client to this system's
// `\n`-only, SETUP/PLAY/PAUSE/TEARDOWN grammar.
type BadClient struct {
	addr       string
	filename   string
	clientType BadClientType
	conn       net.Conn
}

// NewBadClient returns a BadClient targeting addr (host:port) with a
// randomly chosen misbehavior.
func NewBadClient(addr, filename string) *BadClient {
	return &BadClient{
		addr:       addr,
		filename:   filename,
		clientType: BadClientType(rand.Intn(8)),
	}
}

// Run executes the selected behavior until ctx is cancelled.
func (bc *BadClient) Run(ctx context.Context) error {
	switch bc.clientType {
	case SlowConnector:
		return bc.runSlowConnector(ctx)
	case SlowSender:
		return bc.runSlowSender(ctx)
	case GarbageSender:
		return bc.runGarbageSender(ctx)
	case IncompleteHandshake:
		return bc.runIncompleteHandshake(ctx)
	case InvalidProtocol:
		return bc.runInvalidProtocol(ctx)
	case ResourceHog:
		return bc.runResourceHog(ctx)
	case RandomDisconnect:
		return bc.runRandomDisconnect(ctx)
	case MalformedRequests:
		return bc.runMalformedRequests(ctx)
	default:
		return bc.runGarbageSender(ctx)
	}
}

func (bc *BadClient) connect() error {
	conn, err := net.DialTimeout("tcp", bc.addr, 5*time.Second)
	if err != nil {
		return err
	}
	bc.conn = conn
	return nil
}

func (bc *BadClient) setupLine(cseq int) string {
	return fmt.Sprintf("SETUP %s RTSP/1.0\nCSeq: %d\nTransport: RTP/AVP;unicast;client_port=6000\n", bc.filename, cseq)
}

// runSlowConnector writes a valid SETUP request one byte at a time with
// long delays, testing the accept loop's tolerance of slow peers.
func (bc *BadClient) runSlowConnector(ctx context.Context) error {
	conn, err := net.DialTimeout("tcp", bc.addr, 30*time.Second)
	if err != nil {
		return err
	}
	bc.conn = conn
	defer conn.Close()

	message := bc.setupLine(1)
	for i, ch := range []byte(message) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(100+rand.Intn(900)) * time.Millisecond):
			if _, err := conn.Write([]byte{ch}); err != nil {
				return err
			}
			if i%10 == 0 {
				time.Sleep(time.Duration(1+rand.Intn(3)) * time.Second)
			}
		}
	}

	<-ctx.Done()
	return nil
}

// runSlowSender sends repeated SETUP requests with per-byte delays.
func (bc *BadClient) runSlowSender(ctx context.Context) error {
	if err := bc.connect(); err != nil {
		return err
	}
	defer bc.conn.Close()

	cseq := 1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message := bc.setupLine(cseq)
			for _, ch := range []byte(message) {
				time.Sleep(time.Duration(50+rand.Intn(450)) * time.Millisecond)
				if _, err := bc.conn.Write([]byte{ch}); err != nil {
					return err
				}
			}
			cseq++
			time.Sleep(time.Duration(5+rand.Intn(10)) * time.Second)
		}
	}
}

// runGarbageSender writes non-RTSP data the worker's line parser must
// reject without crashing.
func (bc *BadClient) runGarbageSender(ctx context.Context) error {
	if err := bc.connect(); err != nil {
		return err
	}
	defer bc.conn.Close()

	garbage := []string{
		"GET / HTTP/1.1\n\n",
		"HELLO RTSP SERVER\n",
		"\x00\x01\x02\x03\x04\x05\x06\x07",
		"<?xml version=\"1.0\"?><root></root>",
		"Lorem ipsum dolor sit amet, consectetur adipiscing elit...",
		string(make([]byte, 1000)),
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			data := garbage[rand.Intn(len(garbage))]
			if rand.Float32() < 0.3 {
				randomBytes := make([]byte, 100+rand.Intn(900))
				_, _ = rand.Read(randomBytes)
				data = string(randomBytes)
			}
			if _, err := bc.conn.Write([]byte(data)); err != nil {
				return err
			}
			time.Sleep(time.Duration(100+rand.Intn(2000)) * time.Millisecond)
		}
	}
}

// runIncompleteHandshake sends a truncated SETUP and holds the connection
// open without ever providing the CSeq line.
func (bc *BadClient) runIncompleteHandshake(ctx context.Context) error {
	if err := bc.connect(); err != nil {
		return err
	}
	defer bc.conn.Close()

	partial := fmt.Sprintf("SETUP %s RTSP/1.0\n", bc.filename)
	if _, err := bc.conn.Write([]byte(partial)); err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}

// runInvalidProtocol sends requests that violate the grammar in shape:
// missing fields, wrong method casing, and — notably — `\r\n` line endings,
// which this protocol's `\n`-only parser does not normalize (a `\r\n` SETUP
// still parses, with a trailing `\r` left on each line's last field).
func (bc *BadClient) runInvalidProtocol(ctx context.Context) error {
	if err := bc.connect(); err != nil {
		return err
	}
	defer bc.conn.Close()

	invalid := []string{
		"SETUP\nCSeq: 1\n",
		"RTSP/1.0 SETUP " + bc.filename + "\nCSeq: 1\n",
		"SETUP " + bc.filename + " RTSP/1.0\nCSeq\n",
		"SETUP " + bc.filename + " RTSP/1.0\r\nCSeq: 1\r\n",
		"PLAY RTSP/1.0\nCSeq: 1\n",
		"setup " + bc.filename + " RTSP/1.0\nCSeq: 1\n",
		"HACK " + bc.filename + " RTSP/1.0\nCSeq: 1\n",
	}

	cseq := 1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			cmd := invalid[rand.Intn(len(invalid))]
			cmd = strings.Replace(cmd, "CSeq: 1", fmt.Sprintf("CSeq: %d", cseq), 1)
			if _, err := bc.conn.Write([]byte(cmd)); err != nil {
				return err
			}
			cseq++
			time.Sleep(time.Duration(500+rand.Intn(1500)) * time.Millisecond)
		}
	}
}

// runResourceHog opens a connection and holds it without ever completing
// SETUP, sending just enough to avoid being obviously idle.
func (bc *BadClient) runResourceHog(ctx context.Context) error {
	if err := bc.connect(); err != nil {
		return err
	}
	defer bc.conn.Close()

	if _, err := bc.conn.Write([]byte("SETUP")); err != nil {
		return err
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = bc.conn.Write([]byte(" "))
		}
	}
}

// runRandomDisconnect completes a normal SETUP then closes the connection
// abruptly at a random time, without TEARDOWN.
func (bc *BadClient) runRandomDisconnect(ctx context.Context) error {
	if err := bc.connect(); err != nil {
		return err
	}
	defer bc.conn.Close()

	duration := time.Duration(1+rand.Intn(30)) * time.Second

	if _, err := bc.conn.Write([]byte(bc.setupLine(1))); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(duration):
		bc.conn.Close()
		return fmt.Errorf("intentional random disconnect")
	}
}

// runMalformedRequests cycles through a battery of malformed SETUP-shaped
// requests: oversized headers, non-ASCII, null bytes, and case variants.
func (bc *BadClient) runMalformedRequests(ctx context.Context) error {
	if err := bc.connect(); err != nil {
		return err
	}
	defer bc.conn.Close()

	cseq := 1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			var request string
			switch rand.Intn(5) {
			case 0:
				request = fmt.Sprintf("SETUP %s RTSP/1.0\nCSeq: %d\nX-Huge: %s\n", bc.filename, cseq, strings.Repeat("A", 10000))
			case 1:
				request = fmt.Sprintf("SETUP %s RTSP/1.0\nCSeq: %d\nX-Unicode: 你好世界\n", bc.filename, cseq)
			case 2:
				request = fmt.Sprintf("SETUP %s RTSP/1.0\nCSeq: %d\nX-Null: \x00\x00\x00\n", bc.filename, cseq)
			case 3:
				request = fmt.Sprintf("SETUP rtsp://example.com/%s RTSP/1.0\nCSeq: %d\n", strings.Repeat("path/", 1000), cseq)
			case 4:
				methods := []string{"SeTuP", "setup", "SETUP", "sEtUp"}
				request = fmt.Sprintf("%s %s RTSP/1.0\nCSeq: %d\n", methods[rand.Intn(len(methods))], bc.filename, cseq)
			}

			if _, err := bc.conn.Write([]byte(request)); err != nil {
				return err
			}

			buf := make([]byte, 4096)
			_ = bc.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
			_, _ = bc.conn.Read(buf)

			cseq++
			time.Sleep(time.Duration(200+rand.Intn(800)) * time.Millisecond)
		}
	}
}

// GetTypeName returns a human-readable name for the bad client's behavior.
func (bc *BadClient) GetTypeName() string {
	names := []string{
		"SlowConnector",
		"SlowSender",
		"GarbageSender",
		"IncompleteHandshake",
		"InvalidProtocol",
		"ResourceHog",
		"RandomDisconnect",
		"MalformedRequests",
	}
	if int(bc.clientType) < len(names) {
		return names[bc.clientType]
	}
	return "Unknown"
}
