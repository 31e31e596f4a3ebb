package auth

import (
	"strings"

	"github.com/hitoshi/showcase/internal/model"
)

// NextAction は認証状態の変化を受けて画面側が取るべき遷移を表す。
// 遷移そのものは呼び出し側（HTTPハンドラー）が行う。
type NextAction string

const (
	// NextActionAdminDashboard は管理ダッシュボードへ遷移する。
	NextActionAdminDashboard NextAction = "admin_dashboard"
	// NextActionHome はトップページへ遷移する。
	NextActionHome NextAction = "home"
	// NextActionStay は現在のページに留まる。
	NextActionStay NextAction = "stay"
)

// SessionState はリクエストごとの認証状態。
// 必要なハンドラーに明示的に渡す。
type SessionState struct {
	User          *model.User
	Authenticated bool
	IsAdmin       bool
}

// Anonymous は未ログイン状態を返す。
func Anonymous() SessionState {
	return SessionState{}
}

// AdminPolicy は単一の管理者メールアドレスで管理者を判定する。
type AdminPolicy struct {
	email string
}

// NewAdminPolicy はAdminPolicyを生成する。比較は大文字小文字を区別しない。
func NewAdminPolicy(adminEmail string) AdminPolicy {
	return AdminPolicy{email: strings.ToLower(strings.TrimSpace(adminEmail))}
}

// IsAdmin はユーザーが管理者かを返す。管理者メールアドレスが未設定なら常にfalse。
func (p AdminPolicy) IsAdmin(u *model.User) bool {
	if u == nil || p.email == "" {
		return false
	}
	return strings.ToLower(strings.TrimSpace(u.Email)) == p.email
}

// StateFor はユーザーから SessionState を組み立てる。nil は未ログイン。
func (p AdminPolicy) StateFor(u *model.User) SessionState {
	if u == nil {
		return Anonymous()
	}
	return SessionState{User: u, Authenticated: true, IsAdmin: p.IsAdmin(u)}
}

// NextActionFor は認証状態に応じた遷移を返す。
//   - 管理者: 管理ダッシュボード
//   - 未ログイン: トップページ
//   - 一般ユーザー: 現在のページ
func NextActionFor(state SessionState) NextAction {
	switch {
	case state.Authenticated && state.IsAdmin:
		return NextActionAdminDashboard
	case !state.Authenticated:
		return NextActionHome
	default:
		return NextActionStay
	}
}
