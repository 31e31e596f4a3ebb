// Package repository はデータ永続化のインターフェースを定義する。
// 掲載と応募はPostgreSQLまたはMongoDBに、ユーザーとセッションはPostgreSQLに保存する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/showcase/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// RecordSignIn はサインイン日時と、IdPから取得した最新のメールアドレス・表示名を反映する。
	RecordSignIn(ctx context.Context, id, email, name string, at time.Time) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// ProductRepository は商品の永続化インターフェース。
type ProductRepository interface {
	// Create は商品を登録する。IDと作成日時は呼び出し側で設定済みであること。
	Create(ctx context.Context, p *model.Product) error
	// Update は商品の内容を置き換える。対象がない場合はfalseを返す。
	Update(ctx context.Context, p *model.Product) (bool, error)
	// Delete は商品を削除する。対象がない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
	// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Product, error)
	// ListAll は全商品を登録順に返す。
	ListAll(ctx context.Context) ([]*model.Product, error)
}

// ScholarshipPage はカーソル方式で取得した奨学金の1ページ。
type ScholarshipPage struct {
	Items      []*model.Scholarship
	NextCursor string
	HasMore    bool
}

// ScholarshipRepository は奨学金の永続化インターフェース。
type ScholarshipRepository interface {
	Create(ctx context.Context, s *model.Scholarship) error
	// CreateBatch は複数件をまとめて登録する。途中で失敗した場合は1件も登録しない。
	CreateBatch(ctx context.Context, items []*model.Scholarship) error
	// Update は内容を置き換える。対象がない場合はfalseを返す。
	Update(ctx context.Context, s *model.Scholarship) (bool, error)
	// Upsert は取り込み元とexternal_idが一致する奨学金を更新し、なければ登録する。
	// 新規登録した場合はtrueを返す。
	Upsert(ctx context.Context, s *model.Scholarship) (bool, error)
	// Delete は削除する。対象がない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
	// DeleteAll は全件を削除し、削除件数を返す。
	DeleteAll(ctx context.Context) (int64, error)
	// FindByID は指定IDの奨学金を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Scholarship, error)
	// ListAll は全件を登録順に返す。
	ListAll(ctx context.Context) ([]*model.Scholarship, error)
	// ListPage はプログラム名順にcursorの次からlimit件を返す。cursorが空なら先頭から。
	ListPage(ctx context.Context, cursor string, limit int) (*ScholarshipPage, error)
	// Count は総件数を返す。
	Count(ctx context.Context) (int64, error)
}

// ApplicationRepository は応募の永続化インターフェース。
// 応募は削除しない。
type ApplicationRepository interface {
	Create(ctx context.Context, a *model.Application) error
	// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Application, error)
	// ListAll は全応募を新しい順に返す。
	ListAll(ctx context.Context) ([]*model.Application, error)
	// UpdateStatus はステータスを更新する。対象がない場合はfalseを返す。
	UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus) (bool, error)
}
