// Package model はドメインモデルを定義する。
package model

import "time"

// ListingKind は応募・問い合わせ先の掲載種別を表す。
type ListingKind string

const (
	// ListingKindProduct は商品への問い合わせ。
	ListingKindProduct ListingKind = "product"
	// ListingKindScholarship は奨学金への応募。
	ListingKindScholarship ListingKind = "scholarship"
)

// ApplicationStatus は応募の審査状態を表す。
type ApplicationStatus string

const (
	// ApplicationStatusPending は審査待ち。
	ApplicationStatusPending ApplicationStatus = "pending"
	// ApplicationStatusApproved は承認済み。
	ApplicationStatusApproved ApplicationStatus = "approved"
	// ApplicationStatusRejected は却下済み。
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// Valid はステータスが定義済みの値かを返す。
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusApproved, ApplicationStatusRejected:
		return true
	}
	return false
}

// StudyLevels は最終学歴として受け付ける値。
var StudyLevels = []string{"O-Level", "A-Level", "Bachelor", "Master", "PhD"}

// Application は奨学金への応募、または商品への問い合わせを表す。
// 掲載IDは外部キー制約を持たず、掲載削除後も参照はそのまま残る。
type Application struct {
	ID                  string
	ListingKind         ListingKind
	ListingID           string
	UserID              string
	ApplicantName       string
	Email               string
	Phone               string
	Address             string
	HighestLevelOfStudy string
	ALevelCombination   string
	ALevelPoints        string
	Budget              string
	Message             string
	PhotoURL            string // data URI
	Status              ApplicationStatus
	SubmittedAt         time.Time
}

// FacetStatus は応募ステータスのファセット名。
const FacetStatus = "status"

// RecordID は応募IDを返す。
func (a *Application) RecordID() string { return a.ID }

// Classification は掲載種別を返す。
func (a *Application) Classification() string { return string(a.ListingKind) }

// DeadlineValue は締切を返す。応募には締切がない。
func (a *Application) DeadlineValue() string { return "" }

// Facet は追加の完全一致フィルタ値を返す。
func (a *Application) Facet(name string) string {
	if name == FacetStatus {
		return string(a.Status)
	}
	return ""
}

// SearchValues は管理画面の全文検索対象を列挙する。
func (a *Application) SearchValues() []string {
	return []string{
		a.ID,
		a.ListingID,
		a.ApplicantName,
		a.Email,
		a.Phone,
		a.Address,
		a.HighestLevelOfStudy,
		a.ALevelCombination,
		a.ALevelPoints,
		a.Budget,
		a.Message,
		string(a.Status),
	}
}
