// Package catalogsync は外部の奨学金カタログを定期的に取り込むワーカーを提供する。
// 同期元はJSON配列、RSS/Atomフィード、フィードリンクを持つHTMLページのいずれか。
package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/showcase/internal/model"
	"github.com/hitoshi/showcase/internal/security"
)

// RowParser はJSONカタログを奨学金に変換する。scholarship.Importer が実装する。
type RowParser interface {
	Parse(data []byte, source string) ([]*model.Scholarship, error)
}

// Upserter は(source, external_id)単位で奨学金を登録・更新する。
type Upserter interface {
	Upsert(ctx context.Context, s *model.Scholarship) (bool, error)
}

// Recorder は同期結果のメトリクスを記録する。metrics.Collector が実装する。
type Recorder interface {
	RecordSyncSuccess(source string, items int)
	RecordSyncFailure(source string, reason string)
	RecordSyncLatency(duration time.Duration)
}

// Config は同期ワーカーの設定。
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
}

// Result は1つの同期元の処理結果。
type Result struct {
	Source   string
	Inserted int
	Updated  int
	Skipped  int
}

// Syncer は同期元ごとの取得・変換・保存を行う。
// 同期元の状態（条件付きGET、バックオフ、停止）はプロセス内で保持する。
type Syncer struct {
	guard     security.SourceGuard
	parser    RowParser
	store     Upserter
	sanitizer security.ListingSanitizer
	recorder  Recorder
	logger    *slog.Logger
	config    Config
	now       func() time.Time

	mu     sync.Mutex
	states map[string]*SourceState
}

// NewSyncer はSyncerを生成する。MaxConcurrentが0以下の場合は4を使う。
func NewSyncer(
	guard security.SourceGuard,
	parser RowParser,
	store Upserter,
	sanitizer security.ListingSanitizer,
	recorder Recorder,
	logger *slog.Logger,
	config Config,
) *Syncer {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Syncer{
		guard:     guard,
		parser:    parser,
		store:     store,
		sanitizer: sanitizer,
		recorder:  recorder,
		logger:    logger,
		config:    config,
		now:       time.Now,
		states:    map[string]*SourceState{},
	}
}

// State は同期元の現在の状態の複製を返す。
func (s *Syncer) State(source string) SourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[source]; ok {
		return *st
	}
	return SourceState{}
}

func (s *Syncer) state(source string) *SourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[source]
	if !ok {
		st = &SourceState{}
		s.states[source] = st
	}
	return st
}

// RunOnce は全同期元を並列で1回ずつ処理する。
// 停止中・バックオフ中の同期元は飛ばす。個々の失敗はログとメトリクスに残し、他の同期元は継続する。
func (s *Syncer) RunOnce(ctx context.Context, sources []string) []Result {
	start := time.Now()
	now := s.now()

	sem := make(chan struct{}, s.config.MaxConcurrent)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []Result
	)

	for _, src := range sources {
		st := s.state(src)
		s.mu.Lock()
		due, stopped := st.Due(now), st.Stopped
		s.mu.Unlock()
		if !due {
			s.logger.Info("同期元をスキップしました",
				slog.String("source", src),
				slog.Bool("stopped", stopped),
			)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(src string) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := s.SyncSource(ctx, src)
			if err != nil {
				s.logger.Error("同期に失敗しました",
					slog.String("source", src),
					slog.String("error", err.Error()),
				)
				return
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	if s.recorder != nil {
		s.recorder.RecordSyncLatency(time.Since(start))
	}
	s.logger.Info("同期サイクルが完了しました",
		slog.Int("source_count", len(sources)),
		slog.Int("succeeded", len(results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return results
}

// SyncSource は1つの同期元を取得して保存する。
func (s *Syncer) SyncSource(ctx context.Context, source string) (Result, error) {
	res := Result{Source: source}
	st := s.state(source)

	if err := s.guard.ValidateURL(source); err != nil {
		s.update(st, func(st *SourceState) { st.stop("SSRF検証失敗: " + err.Error()) })
		s.recordFailure(source, "blocked")
		return res, fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	s.mu.Lock()
	etag, lastModified := st.ETag, st.LastModified
	s.mu.Unlock()

	body, contentType, status, headers, err := s.get(ctx, source, etag, lastModified)
	if err != nil {
		s.update(st, func(st *SourceState) { st.backoff(s.now(), err.Error()) })
		s.recordFailure(source, "request")
		return res, err
	}

	switch ClassifyHTTPStatus(status) {
	case OutcomeNotModified:
		s.update(st, func(st *SourceState) { st.succeed() })
		s.logger.Info("同期元は未変更です（304）", slog.String("source", source))
		return res, nil
	case OutcomeStop:
		reason := fmt.Sprintf("HTTPステータス %d により同期を停止しました", status)
		s.update(st, func(st *SourceState) { st.stop(reason) })
		s.recordFailure(source, "stopped")
		return res, errors.New(reason)
	case OutcomeBackoff, OutcomeUnknown:
		reason := fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", status)
		s.update(st, func(st *SourceState) { st.backoff(s.now(), reason) })
		s.recordFailure(source, "backoff")
		return res, errors.New(reason)
	}

	items, err := s.decode(ctx, source, contentType, body)
	if err != nil {
		s.update(st, func(st *SourceState) { st.parseFailed(err.Error()) })
		s.recordFailure(source, "parse")
		return res, err
	}

	for _, item := range items {
		if item.ExternalID == "" {
			res.Skipped++
			continue
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		inserted, err := s.store.Upsert(ctx, item)
		if err != nil {
			s.update(st, func(st *SourceState) { st.backoff(s.now(), err.Error()) })
			s.recordFailure(source, "store")
			return res, model.NewIOFailure("scholarship.sync", err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	s.update(st, func(st *SourceState) {
		st.succeed()
		if v := headers.Get("ETag"); v != "" {
			st.ETag = v
		}
		if v := headers.Get("Last-Modified"); v != "" {
			st.LastModified = v
		}
	})
	if s.recorder != nil {
		s.recorder.RecordSyncSuccess(source, res.Inserted+res.Updated)
	}
	s.logger.Info("同期が完了しました",
		slog.String("source", source),
		slog.Int("items_inserted", res.Inserted),
		slog.Int("items_updated", res.Updated),
		slog.Int("items_skipped", res.Skipped),
	)
	return res, nil
}

// decode は形式に応じてボディを奨学金に変換する。
// HTMLの場合はフィードリンクを1段だけ辿る。
func (s *Syncer) decode(ctx context.Context, source, contentType string, body []byte) ([]*model.Scholarship, error) {
	switch DetectFormat(contentType, body) {
	case FormatJSON:
		return s.parser.Parse(body, source)
	case FormatFeed:
		return s.parseFeed(body, source)
	case FormatHTML:
		link, ok := SelectFeed(FeedLinksFromHTML(body, source), source)
		if !ok {
			return nil, fmt.Errorf("フィードリンクが見つかりません: %s", source)
		}
		if err := s.guard.ValidateURL(link.URL); err != nil {
			return nil, fmt.Errorf("フィードリンクのSSRF検証に失敗: %w", err)
		}
		feedBody, _, status, _, err := s.get(ctx, link.URL, "", "")
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("フィードの取得に失敗: HTTPステータス %d", status)
		}
		return s.parseFeed(feedBody, source)
	default:
		return nil, fmt.Errorf("未対応の形式です: %q", contentType)
	}
}

func (s *Syncer) parseFeed(body []byte, source string) ([]*model.Scholarship, error) {
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗: %w", err)
	}
	return feedItemsToScholarships(feed.Items, source, s.sanitizer, s.now().UTC()), nil
}

// get は条件付きGETを送り、上限付きでボディを読み込む。
func (s *Syncer) get(ctx context.Context, rawURL, etag, lastModified string) ([]byte, string, int, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", 0, nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "Showcase/1.0 Catalog Sync")
	req.Header.Set("Accept", "application/json, application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.5")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := s.guard.NewSafeClient(s.config.Timeout).Do(req)
	if err != nil {
		return nil, "", 0, nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.Header.Get("Content-Type"), resp.StatusCode, resp.Header, nil
	}
	body, err := io.ReadAll(s.guard.LimitBody(resp.Body))
	if err != nil {
		return nil, "", 0, nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), resp.StatusCode, resp.Header, nil
}

func (s *Syncer) update(st *SourceState, fn func(*SourceState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(st)
}

func (s *Syncer) recordFailure(source, reason string) {
	if s.recorder != nil {
		s.recorder.RecordSyncFailure(source, reason)
	}
}
