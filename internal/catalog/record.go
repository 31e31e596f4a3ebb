// Package catalog は掲載コレクションのスナップショットを保持し、
// 全文検索・分類・ステータスによる絞り込みとページ分割を行う。
// 絞り込み結果は読み出しのたびに導出し、I/Oは行わない。
package catalog

// Record は絞り込み対象となる1件の掲載を表す。
type Record interface {
	// RecordID はコレクション内で一意かつ不変のIDを返す。
	RecordID() string
	// Classification はカテゴリ（商品）や国（奨学金）などの分類値を返す。
	Classification() string
	// DeadlineValue は締切を表す暦日文字列を返す。締切を持たない場合は空。
	DeadlineValue() string
	// Facet は名前付きの追加分類値を返す。該当しない場合は空。
	Facet(name string) string
	// SearchValues は全文検索の対象とするフィールド値を列挙する。
	SearchValues() []string
}

// Stocked は在庫フラグで公開状態が決まる掲載が実装する。
// 実装している場合、ステータスは締切ではなく在庫から導出される。
type Stocked interface {
	Available() bool
}
