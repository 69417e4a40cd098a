package media

import (
	"fmt"
	"os"
	"path/filepath"
)

// Sink is the renderer boundary: a single capability to present a decoded
// JPEG blob. GUI rendering itself is out of scope for this module; Sink is
// the interface a real renderer plugs into. Implementations must not
// block the playback pacer for long, and errors must not propagate —
// callers log and continue.
type Sink interface {
	Present(jpeg []byte) error
}

// CacheDirSink is the default Sink: it writes the latest frame to
// <dir>/frame-<sessionID>.jpg, echoing the reference implementation's
// writeFrame/CACHE_FILE_NAME cache behavior.
type CacheDirSink struct {
	dir       string
	sessionID uint32
}

// NewCacheDirSink returns a Sink that overwrites a single cache file per
// session inside dir. dir is created if it does not already exist.
func NewCacheDirSink(dir string, sessionID uint32) (*CacheDirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &CacheDirSink{dir: dir, sessionID: sessionID}, nil
}

// Present writes jpeg to the session's cache file, overwriting any
// previous frame.
func (s *CacheDirSink) Present(jpeg []byte) error {
	path := filepath.Join(s.dir, fmt.Sprintf("frame-%d.jpg", s.sessionID))
	return os.WriteFile(path, jpeg, 0o644)
}

// Path returns the path Present writes to.
func (s *CacheDirSink) Path() string {
	return filepath.Join(s.dir, fmt.Sprintf("frame-%d.jpg", s.sessionID))
}

// SetSessionID retargets the cache file once the real session id is known
// (it is not assigned until the RTSP SETUP reply arrives, after the Sink
// must already exist).
func (s *CacheDirSink) SetSessionID(sessionID uint32) {
	s.sessionID = sessionID
}
