package model

import "time"

// User はGoogleサインインで登録された利用者を表す。
// 管理者かどうかは保存せず、設定された管理者メールアドレスとの照合で決まる。
// Email は小文字に正規化して保存する。
type User struct {
	ID             string
	Email          string
	Name           string
	LastSignedInAt time.Time // 未サインインならゼロ値
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Identity はIdP上のアカウントと利用者の紐付け。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はサインイン中のセッション。
// IDはCookieに保存される不透明なトークンで、ストアにはハッシュ値のみ残る。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はnow時点でセッションが失効しているかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
