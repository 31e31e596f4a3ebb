// Package schedule はcron式でバックグラウンドジョブを定期実行する。
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job は定期実行される処理。
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc は関数をJobとして扱うアダプタ。
type JobFunc func(ctx context.Context) error

// Run はf(ctx)を呼ぶ。
func (f JobFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Scheduler はrobfig/cronのラッパー。
// 同じジョブの実行が重なった場合は後続をスキップし、panicはログに記録して継続する。
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New はSchedulerを生成する。ジョブはStartまで実行されない。
func New(logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add はジョブを登録する。specは標準の5フィールド形式または "@every 6h" などの記述子。
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job.Run(s.ctx); err != nil {
			s.logger.Error("ジョブの実行に失敗しました",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.Info("ジョブが完了しました",
			slog.String("job", name),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	s.logger.Info("ジョブを登録しました", slog.String("job", name), slog.String("schedule", spec))
	return nil
}

// Len は登録済みのジョブ数を返す。
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start はスケジューラを起動し、ctxがキャンセルされるまでブロックする。
// 停止時は実行中のジョブにキャンセルを伝え、完了を待つ。
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("スケジューラを開始しました", slog.Int("jobs", s.Len()))

	<-ctx.Done()

	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("スケジューラを停止しました")
}

// cronLogger はcron.Loggerをslogに接続する。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{slog.String("error", err.Error())}, keysAndValues...)...)
}
