package catalogsync

import (
	"strings"
	"testing"
	"time"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		want Outcome
	}{
		{200, OutcomeOK},
		{304, OutcomeNotModified},
		{404, OutcomeStop},
		{410, OutcomeStop},
		{401, OutcomeStop},
		{403, OutcomeStop},
		{429, OutcomeBackoff},
		{500, OutcomeBackoff},
		{503, OutcomeBackoff},
		{302, OutcomeUnknown},
		{418, OutcomeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.code); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		errors int
		want   time.Duration
	}{
		{0, 30 * time.Minute},
		{1, time.Hour},
		{2, 2 * time.Hour},
		{4, 8 * time.Hour},
		{5, 12 * time.Hour},
		{50, 12 * time.Hour},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.errors); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}

func TestSourceState_BackoffAndRecover(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := &SourceState{}

	if !st.Due(now) {
		t.Fatal("new source should be due")
	}

	st.backoff(now, "HTTP 503")
	if st.Due(now.Add(29 * time.Minute)) {
		t.Error("should not be due during the first backoff window")
	}
	if !st.Due(now.Add(30 * time.Minute)) {
		t.Error("should be due once the first backoff has elapsed")
	}

	st.backoff(now, "HTTP 503")
	if got := st.NextAttemptAt.Sub(now); got != time.Hour {
		t.Errorf("second backoff = %v, want 1h", got)
	}

	st.succeed()
	if st.ConsecutiveErrors != 0 || st.LastError != "" || !st.Due(now) {
		t.Errorf("state after success = %+v", st)
	}
}

func TestSourceState_ParseFailureThreshold(t *testing.T) {
	st := &SourceState{}
	for i := 0; i < parseFailureThreshold-1; i++ {
		st.parseFailed("unexpected EOF")
	}
	if st.Stopped {
		t.Fatalf("should not stop before %d failures", parseFailureThreshold)
	}

	st.parseFailed("unexpected EOF")
	if !st.Stopped {
		t.Fatal("should stop at the threshold")
	}
	if !strings.Contains(st.LastError, "停止") {
		t.Errorf("LastError = %q", st.LastError)
	}
	if st.Due(time.Now()) {
		t.Error("stopped source should never be due")
	}
}
