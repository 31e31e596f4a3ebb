package schedule

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestScheduler_Add_InvalidSpec(t *testing.T) {
	s := New(newTestLogger(&bytes.Buffer{}))

	err := s.Add("sync", "every six hours", JobFunc(func(ctx context.Context) error { return nil }))
	if err == nil {
		t.Fatal("expected error for invalid spec")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestScheduler_Add_Descriptors(t *testing.T) {
	s := New(newTestLogger(&bytes.Buffer{}))

	for _, spec := range []string{"@every 6h", "@daily", "*/5 * * * *"} {
		if err := s.Add("job", spec, JobFunc(func(ctx context.Context) error { return nil })); err != nil {
			t.Errorf("Add(%q) error = %v", spec, err)
		}
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestScheduler_Start_RunsJobsUntilCancelled(t *testing.T) {
	var buf bytes.Buffer
	s := New(newTestLogger(&buf))

	ran := make(chan struct{}, 10)
	failed := make(chan struct{}, 10)
	s.Add("ok", "@every 1s", JobFunc(func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}))
	s.Add("ng", "@every 1s", JobFunc(func(ctx context.Context) error {
		failed <- struct{}{}
		return errors.New("boom")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	for _, ch := range []chan struct{}{ran, failed} {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatal("job did not run")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	if !strings.Contains(buf.String(), `"job":"ng"`) {
		t.Errorf("expected failure log for job ng, got: %s", buf.String())
	}
}

func TestScheduler_JobContextCancelledOnStop(t *testing.T) {
	s := New(newTestLogger(&bytes.Buffer{}))

	started := make(chan struct{})
	cancelled := make(chan struct{})
	s.Add("long", "@every 1s", JobFunc(func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
			return nil
		}
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}
	cancel()

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("job context was not cancelled")
	}
}
