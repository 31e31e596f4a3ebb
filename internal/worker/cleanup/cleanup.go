// Package cleanup は失効したサインインセッションを定期削除するジョブを提供する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付ける。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionCleanupJob は失効済みセッションを削除する。
// 失効直後のセッションはGrace期間だけ残し、ログ調査に使えるようにする。
type SessionCleanupJob struct {
	db     Executor
	logger *slog.Logger
	Grace  time.Duration
}

// NewSessionCleanupJob は猶予1時間のジョブを生成する。
func NewSessionCleanupJob(db Executor, logger *slog.Logger) *SessionCleanupJob {
	return &SessionCleanupJob{
		db:     db,
		logger: logger,
		Grace:  time.Hour,
	}
}

// Run は expires_at が現在時刻からGrace以上前のセッションを削除する。
// 削除対象がなくてもエラーにはならない。
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	graceSeconds := int64(j.Grace / time.Second)

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < now() - make_interval(secs => $1)`,
		graceSeconds,
	)
	if err != nil {
		j.logger.Error("session cleanup failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	j.logger.Info("session cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Int64("grace_seconds", graceSeconds),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}
