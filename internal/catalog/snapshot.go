package catalog

import "time"

// Snapshot は1回の取得で得た掲載の順序付き集合。
// 変更はWith/Withoutで新しいSnapshotを作って行い、元のSnapshotは変わらない。
type Snapshot[T Record] struct {
	records   []T
	fetchedAt time.Time
}

// NewSnapshot はrecordsを複製してSnapshotを生成する。
func NewSnapshot[T Record](records []T, fetchedAt time.Time) Snapshot[T] {
	cp := make([]T, len(records))
	copy(cp, records)
	return Snapshot[T]{records: cp, fetchedAt: fetchedAt}
}

// Len は件数を返す。
func (s Snapshot[T]) Len() int {
	return len(s.records)
}

// All は全件を元の順序で返す。戻り値を変更してもSnapshotには影響しない。
func (s Snapshot[T]) All() []T {
	cp := make([]T, len(s.records))
	copy(cp, s.records)
	return cp
}

// FetchedAt は取得時刻を返す。
func (s Snapshot[T]) FetchedAt() time.Time {
	return s.fetchedAt
}

// Find はIDに一致する掲載を返す。
func (s Snapshot[T]) Find(id string) (T, bool) {
	for _, rec := range s.records {
		if rec.RecordID() == id {
			return rec, true
		}
	}
	var zero T
	return zero, false
}

// With はrecを反映したSnapshotを返す。同じIDがあれば同じ位置で置き換え、なければ末尾に追加する。
func (s Snapshot[T]) With(rec T) Snapshot[T] {
	out := make([]T, 0, len(s.records)+1)
	replaced := false
	for _, r := range s.records {
		if !replaced && r.RecordID() == rec.RecordID() {
			out = append(out, rec)
			replaced = true
			continue
		}
		out = append(out, r)
	}
	if !replaced {
		out = append(out, rec)
	}
	return Snapshot[T]{records: out, fetchedAt: s.fetchedAt}
}

// Without はIDに一致する掲載を除いたSnapshotを返す。
func (s Snapshot[T]) Without(id string) Snapshot[T] {
	out := make([]T, 0, len(s.records))
	for _, r := range s.records {
		if r.RecordID() != id {
			out = append(out, r)
		}
	}
	return Snapshot[T]{records: out, fetchedAt: s.fetchedAt}
}
