package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
	err          error
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, r.err }

type mockExecutor struct {
	calls  int
	query  string
	args   []interface{}
	result sql.Result
	err    error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.calls++
	m.query = query
	m.args = args
	return m.result, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

// logEntry はJSONログからmsgが一致する行を探す。
func logEntry(t *testing.T, buf *bytes.Buffer, msg string) map[string]interface{} {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["msg"] == msg {
			return entry
		}
	}
	t.Fatalf("log %q not found in %s", msg, buf.String())
	return nil
}

func TestSessionCleanupJob_DeletesExpiredSessions(t *testing.T) {
	var buf bytes.Buffer
	db := &mockExecutor{result: &fakeResult{rowsAffected: 7}}
	job := NewSessionCleanupJob(db, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(db.query, "DELETE FROM sessions") || !strings.Contains(db.query, "expires_at") {
		t.Errorf("unexpected query: %s", db.query)
	}
	if len(db.args) != 1 || db.args[0] != int64(3600) {
		t.Errorf("args = %v, want [3600]", db.args)
	}

	entry := logEntry(t, &buf, "session cleanup completed")
	if entry["deleted_count"] != float64(7) {
		t.Errorf("deleted_count = %v", entry["deleted_count"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("duration_ms should be logged")
	}
}

func TestSessionCleanupJob_CustomGrace(t *testing.T) {
	var buf bytes.Buffer
	db := &mockExecutor{result: &fakeResult{}}
	job := NewSessionCleanupJob(db, newTestLogger(&buf))
	job.Grace = 0

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if db.args[0] != int64(0) {
		t.Errorf("grace arg = %v, want 0", db.args[0])
	}

	job.Grace = 90 * time.Minute
	_ = job.Run(context.Background())
	if db.args[0] != int64(5400) {
		t.Errorf("grace arg = %v, want 5400", db.args[0])
	}
}

func TestSessionCleanupJob_ZeroRowsIsNotAnError(t *testing.T) {
	var buf bytes.Buffer
	db := &mockExecutor{result: &fakeResult{}}
	job := NewSessionCleanupJob(db, newTestLogger(&buf))

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}
	if db.calls != 2 {
		t.Errorf("calls = %d, want 2", db.calls)
	}
}

func TestSessionCleanupJob_DBError(t *testing.T) {
	var buf bytes.Buffer
	db := &mockExecutor{err: sql.ErrConnDone}
	job := NewSessionCleanupJob(db, newTestLogger(&buf))

	err := job.Run(context.Background())
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("err = %v, want wrapped sql.ErrConnDone", err)
	}
	entry := logEntry(t, &buf, "session cleanup failed")
	if entry["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", entry["level"])
	}
}

func TestSessionCleanupJob_RowsAffectedError(t *testing.T) {
	var buf bytes.Buffer
	db := &mockExecutor{result: &fakeResult{err: errors.New("driver does not support")}}
	job := NewSessionCleanupJob(db, newTestLogger(&buf))

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
