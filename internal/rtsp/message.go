// Created by WINK Streaming (https://www.wink.co)
// Package rtsp implements the shared RTSP session state machine (server and
// client mirror it), the `\n`-delimited request/reply grammar, the
// ServerWorker/Server listener, and the ClientSession requester + RTP
// receiver.
package rtsp

import (
	"fmt"
	"strconv"
	"strings"
)

// Method is an RTSP request method. Matching is case-sensitive, per spec.
type Method string

const (
	MethodSetup    Method = "SETUP"
	MethodPlay     Method = "PLAY"
	MethodPause    Method = "PAUSE"
	MethodTeardown Method = "TEARDOWN"
)

// StatusOK, StatusNotFound and StatusServerErr are the three status codes this
// protocol uses.
const (
	StatusOK        = 200
	StatusNotFound  = 404
	StatusServerErr = 500
)

// Request is a parsed RTSP request line plus the headers the spec grammar
// defines. Field parsing is strict and positional: lines are split on `\n`
// only (a `\r` from `\r\n` endings is not stripped, though numeric fields
// are trimmed before conversion), fields on a line are split on single
// spaces, and CSeq must be the second line — mirroring the reference
// implementation bit-for-bit (spec §9, Open Question).
type Request struct {
	Method      Method
	Filename    string
	CSeq        int
	ClientPort  int // set when a Transport header with client_port= was present
	HasSession  bool
	SessionID   uint32
}

// ErrMalformed is returned when a request/reply cannot be parsed at all
// (too few lines, missing fields). The ServerWorker logs a malformed
// request, skips it and keeps the connection open; ClientSession returns a
// malformed reply to its caller as an error.
var ErrMalformed = fmt.Errorf("malformed rtsp message")

// ParseRequest parses a raw RTSP request per the grammar in spec §4.3:
//
//	<METHOD> <filename> RTSP/1.0
//	CSeq: <n>
//	[Transport: RTP/AVP;unicast;client_port=<port>]
//	[Session: <id>]
func ParseRequest(raw string) (Request, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) < 2 {
		return Request{}, ErrMalformed
	}

	line1 := strings.Split(lines[0], " ")
	if len(line1) < 2 {
		return Request{}, ErrMalformed
	}
	req := Request{Method: Method(line1[0]), Filename: line1[1]}

	cseqFields := strings.Split(lines[1], " ")
	if len(cseqFields) < 2 {
		return Request{}, ErrMalformed
	}
	cseq, err := strconv.Atoi(strings.TrimSpace(cseqFields[1]))
	if err != nil {
		return Request{}, ErrMalformed
	}
	req.CSeq = cseq

	for _, line := range lines[2:] {
		if port, ok := parseClientPort(line); ok {
			req.ClientPort = port
		}
		if sess, ok := parseSessionHeader(line); ok {
			req.HasSession = true
			req.SessionID = sess
		}
	}

	return req, nil
}

func parseClientPort(line string) (int, bool) {
	idx := strings.Index(line, "client_port=")
	if idx == -1 {
		return 0, false
	}
	rest := line[idx+len("client_port="):]
	rest = strings.SplitN(rest, ";", 2)[0]
	port, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, false
	}
	return port, true
}

func parseSessionHeader(line string) (uint32, bool) {
	if !strings.HasPrefix(line, "Session:") {
		return 0, false
	}
	fields := strings.Split(line, " ")
	if len(fields) < 2 {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

// BuildRequest renders an RTSP request for the client side. clientPort is
// included only for SETUP; session is included for PLAY/PAUSE/TEARDOWN.
func BuildRequest(method Method, filename string, cseq int, clientPort int, session uint32, includeSession bool) string {
	var b strings.Builder
	b.WriteString(string(method))
	b.WriteString(" ")
	b.WriteString(filename)
	b.WriteString(" RTSP/1.0\n")
	b.WriteString("CSeq: ")
	b.WriteString(strconv.Itoa(cseq))
	if method == MethodSetup {
		b.WriteString("\nTransport: RTP/AVP;unicast;client_port=")
		b.WriteString(strconv.Itoa(clientPort))
	}
	if includeSession {
		b.WriteString("\nSession: ")
		b.WriteString(strconv.FormatUint(uint64(session), 10))
	}
	return b.String()
}

// Reply is a parsed RTSP reply (spec §4.3).
type Reply struct {
	Status    int
	CSeq      int
	HasSession bool
	SessionID uint32
}

// BuildReply renders a 200 OK reply carrying CSeq and Session, per spec.
// It renders only the 200 form; the 404 reply to a SETUP for a missing
// file is written directly by ServerWorker.handleSetup.
func BuildReply(cseq int, session uint32) string {
	return fmt.Sprintf("RTSP/1.0 200 OK\nCSeq: %d\nSession: %d", cseq, session)
}

// ParseReply parses a raw RTSP reply per spec §4.3's line-based grammar.
func ParseReply(raw string) (Reply, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) < 2 {
		return Reply{}, ErrMalformed
	}

	statusFields := strings.Split(lines[0], " ")
	if len(statusFields) < 2 {
		return Reply{}, ErrMalformed
	}
	status, err := strconv.Atoi(strings.TrimSpace(statusFields[1]))
	if err != nil {
		return Reply{}, ErrMalformed
	}

	cseqFields := strings.Split(lines[1], " ")
	if len(cseqFields) < 2 {
		return Reply{}, ErrMalformed
	}
	cseq, err := strconv.Atoi(strings.TrimSpace(cseqFields[1]))
	if err != nil {
		return Reply{}, ErrMalformed
	}

	reply := Reply{Status: status, CSeq: cseq}
	if len(lines) >= 3 {
		if sess, ok := parseSessionHeader(lines[2]); ok {
			reply.HasSession = true
			reply.SessionID = sess
		}
	}
	return reply, nil
}
