package rtsp

import "testing"

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateInit:    "INIT",
		StateReady:   "READY",
		StatePlaying: "PLAYING",
		State(99):    "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
