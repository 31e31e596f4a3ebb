package catalogsync

import (
	"fmt"
	"time"
)

// Outcome はHTTPステータスコードに基づく取得結果の分類。
type Outcome int

const (
	// OutcomeOK は取得成功（200）。
	OutcomeOK Outcome = iota
	// OutcomeNotModified はコンテンツ未変更（304）。
	OutcomeNotModified
	// OutcomeStop は同期元を停止するステータス（404/410/401/403）。
	OutcomeStop
	// OutcomeBackoff はバックオフするステータス（429/5xx）。
	OutcomeBackoff
	// OutcomeUnknown は未知のステータスコード。
	OutcomeUnknown
)

const (
	initialBackoff        = 30 * time.Minute
	maxBackoff            = 12 * time.Hour
	parseFailureThreshold = 10
)

// ClassifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
func ClassifyHTTPStatus(statusCode int) Outcome {
	switch {
	case statusCode == 200:
		return OutcomeOK
	case statusCode == 304:
		return OutcomeNotModified
	case statusCode == 404 || statusCode == 410:
		return OutcomeStop
	case statusCode == 401 || statusCode == 403:
		return OutcomeStop
	case statusCode == 429:
		return OutcomeBackoff
	case statusCode >= 500:
		return OutcomeBackoff
	default:
		return OutcomeUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// SourceState は同期元ごとの取得状態。プロセス内で保持する。
type SourceState struct {
	ETag              string
	LastModified      string
	ConsecutiveErrors int
	NextAttemptAt     time.Time
	Stopped           bool
	LastError         string
}

// Due は now 時点で取得を試みるべきかを返す。
func (s *SourceState) Due(now time.Time) bool {
	return !s.Stopped && !now.Before(s.NextAttemptAt)
}

func (s *SourceState) stop(reason string) {
	s.Stopped = true
	s.LastError = reason
}

func (s *SourceState) backoff(now time.Time, reason string) {
	s.ConsecutiveErrors++
	s.LastError = reason
	s.NextAttemptAt = now.Add(CalculateBackoff(s.ConsecutiveErrors - 1))
}

func (s *SourceState) succeed() {
	s.ConsecutiveErrors = 0
	s.LastError = ""
	s.NextAttemptAt = time.Time{}
}

// parseFailed はパース失敗を数え、閾値に達したら停止する。
func (s *SourceState) parseFailed(reason string) {
	s.ConsecutiveErrors++
	s.LastError = fmt.Sprintf("パース失敗 (%d回連続): %s", s.ConsecutiveErrors, reason)
	if s.ConsecutiveErrors >= parseFailureThreshold {
		s.stop(fmt.Sprintf("パース失敗が%d回連続したため同期を停止しました: %s", s.ConsecutiveErrors, reason))
	}
}
