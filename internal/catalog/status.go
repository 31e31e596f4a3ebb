package catalog

import (
	"strings"
	"time"
)

// Status は締切と現在時刻から導出される公開状態。
type Status string

const (
	// StatusAll はステータスで絞り込まないことを表す。
	StatusAll Status = "all"
	// StatusOpen は募集中（締切が現在時刻以降）。
	StatusOpen Status = "open"
	// StatusClosed は締切済み。締切を解釈できない場合もこちらに含める。
	StatusClosed Status = "closed"
)

// ParseStatus はクエリパラメータ値をStatusに変換する。
// 未知の値はStatusAllとして扱う。
func ParseStatus(v string) Status {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "open":
		return StatusOpen
	case "closed":
		return StatusClosed
	default:
		return StatusAll
	}
}

// deadlineLayouts は締切として受け付ける書式。日付のみの値はUTCの0時とみなす。
var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// ParseDeadline は締切文字列を時刻に変換する。
// どの書式にも一致しない場合はfalseを返す。
func ParseDeadline(deadline string) (time.Time, bool) {
	v := strings.TrimSpace(deadline)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// StatusOf は締切と現在時刻からステータスを導出する。
// 締切が現在時刻と等しい場合は募集中とする。解釈できない締切は締切済み。
func StatusOf(deadline string, now time.Time) Status {
	t, ok := ParseDeadline(deadline)
	if !ok {
		return StatusClosed
	}
	if t.Before(now) {
		return StatusClosed
	}
	return StatusOpen
}

// RecordStatus は掲載1件のステータスを導出する。
// 在庫フラグを持つ掲載は在庫ありを募集中とみなす。
func RecordStatus(r Record, now time.Time) Status {
	if s, ok := r.(Stocked); ok {
		if s.Available() {
			return StatusOpen
		}
		return StatusClosed
	}
	return StatusOf(r.DeadlineValue(), now)
}
