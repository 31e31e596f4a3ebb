// Package model はドメインモデルを定義する。
package model

import (
	"strconv"
	"time"
)

// Product はストアフロントに掲載する手編み商品を表す。
type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64
	ImageURL    string // data URI または外部URL
	Category    string
	InStock     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RecordID は掲載IDを返す。
func (p *Product) RecordID() string { return p.ID }

// Classification は分類（カテゴリ）を返す。
func (p *Product) Classification() string { return p.Category }

// DeadlineValue は締切を返す。商品には締切がないため常に空。
func (p *Product) DeadlineValue() string { return "" }

// Available は在庫の有無を返す。
func (p *Product) Available() bool { return p.InStock }

// Facet は追加の完全一致フィルタ値を返す。商品は持たない。
func (p *Product) Facet(string) string { return "" }

// SearchValues は全文検索の対象となるフィールド値を列挙する。
// 画像はdata URIを含むため対象外。
func (p *Product) SearchValues() []string {
	return []string{
		p.ID,
		p.Name,
		p.Description,
		strconv.FormatFloat(p.Price, 'f', -1, 64),
		p.Category,
		strconv.FormatBool(p.InStock),
	}
}

// Scholarship は奨学金の募集情報を表す。
type Scholarship struct {
	ID             string
	ExternalID     string // 取り込み元の scholarship_id / student_id
	Source         string // 取り込み元（手動登録は空）
	Name           string
	Description    string
	Country        string
	Level          string
	FundingType    string
	ImageURL       string
	Requirements   []string
	Deadline       string // 暦日を表す文字列。ステータスは保存せず都度導出する
	Degree         string
	GraduationYear string
	Language       string
	Program        string
	Semester       string
	Type           string
	University     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FacetDegree は学位フィルタのファセット名。
const FacetDegree = "degree"

// RecordID は掲載IDを返す。
func (s *Scholarship) RecordID() string { return s.ID }

// Classification は分類（国）を返す。
func (s *Scholarship) Classification() string { return s.Country }

// DeadlineValue は締切文字列を返す。
func (s *Scholarship) DeadlineValue() string { return s.Deadline }

// Facet は追加の完全一致フィルタ値を返す。
func (s *Scholarship) Facet(name string) string {
	if name == FacetDegree {
		return s.Degree
	}
	return ""
}

// SearchValues は全文検索の対象となるフィールド値を列挙する。
func (s *Scholarship) SearchValues() []string {
	values := []string{
		s.ID,
		s.ExternalID,
		s.Name,
		s.Description,
		s.Country,
		s.Level,
		s.FundingType,
		s.Deadline,
		s.Degree,
		s.GraduationYear,
		s.Language,
		s.Program,
		s.Semester,
		s.Type,
		s.University,
	}
	return append(values, s.Requirements...)
}
