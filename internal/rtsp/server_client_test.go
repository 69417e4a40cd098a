package rtsp

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type collectingSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *collectingSink) Present(jpeg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(jpeg))
	copy(cp, jpeg)
	s.frames = append(s.frames, cp)
	return nil
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// writeFixture writes a length-prefixed MJPEG fixture of n small frames and
// returns its path.
func writeFixture(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.mjpg")
	var data []byte
	for i := 0; i < n; i++ {
		frame := []byte{0xff, 0xd8, byte(i), 0xff, 0xd9}
		data = append(data, []byte(fmt.Sprintf("%05d", len(frame)))...)
		data = append(data, frame...)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func startTestServer(t *testing.T) *Server {
	t.Helper()
	log := zaptest.NewLogger(t)
	server, err := Listen("127.0.0.1:0", log, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	go server.Serve(ctx)
	return server
}

func TestEndToEndSetupPlayPauseTeardown(t *testing.T) {
	server := startTestServer(t)
	addr := server.Addr().(*net.TCPAddr)

	filename := writeFixture(t, 20)
	sink := &collectingSink{}
	log := zaptest.NewLogger(t)

	session, err := Dial("127.0.0.1", addr.Port, 0, filename, sink, log, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer session.Close()

	if err := session.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if session.SessionID() == 0 {
		t.Error("expected a non-zero session id after Setup")
	}

	if err := session.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if sink.count() == 0 {
		t.Fatal("no frames were presented within the deadline")
	}

	if err := session.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// The playback consumer keeps draining whatever was already buffered
	// before the server stopped sending; it must never exceed the frames
	// the fixture actually contains (the EOS sentinel is never delivered).
	time.Sleep(200 * time.Millisecond)
	if sink.count() > 20 {
		t.Errorf("presented %d frames, more than the fixture's 20", sink.count())
	}

	if err := session.Teardown(); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
}

func TestEndToEndSetupMissingFileReturns404AndNoSession(t *testing.T) {
	server := startTestServer(t)
	addr := server.Addr().(*net.TCPAddr)

	log := zaptest.NewLogger(t)
	session, err := Dial("127.0.0.1", addr.Port, 0, "missing.mjpg", &collectingSink{}, log, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer session.Close()

	err = session.Setup()
	if err == nil {
		t.Fatal("expected Setup to fail for a missing file")
	}
	if session.SessionID() != 0 {
		t.Errorf("session id = %d, want 0 after a failed Setup", session.SessionID())
	}
}
