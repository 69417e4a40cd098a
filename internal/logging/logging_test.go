package logging

import "testing"

func TestNewBuildsLoggerForEachLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		logger, err := New(level)
		if err != nil {
			t.Fatalf("New(%q): %v", level, err)
		}
		if logger == nil {
			t.Fatalf("New(%q) returned a nil logger", level)
		}
		logger.Sync()
	}
}

func TestNewUnrecognizedLevelFallsBackToInfo(t *testing.T) {
	logger, err := New("nonsense")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !logger.Core().Enabled(0) { // zapcore.InfoLevel
		t.Error("expected info level to be enabled by default")
	}
	if logger.Core().Enabled(-1) { // zapcore.DebugLevel
		t.Error("expected debug level to be disabled by default")
	}
}
