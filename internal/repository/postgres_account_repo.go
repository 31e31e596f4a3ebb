package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/showcase/internal/model"
)

// アカウント（ユーザー・IdP紐付け・セッション）は掲載ストアの種別に関わらずPostgreSQLに保存する。

const (
	selectUserSQL = `SELECT id, email, name, last_signed_in_at, created_at, updated_at FROM users WHERE id = $1`

	insertUserSQL = `INSERT INTO users (id, email, name, last_signed_in_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`

	insertIdentitySQL = `INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`

	recordSignInSQL = `UPDATE users
		 SET email = $2, name = $3, last_signed_in_at = $4,
		     updated_at = CASE WHEN email <> $2 OR name <> $3 THEN $4 ELSE updated_at END
		 WHERE id = $1`

	selectIdentitySQL = `SELECT id, user_id, provider, provider_user_id, created_at
		 FROM identities
		 WHERE provider = $1 AND provider_user_id = $2`

	insertSessionSQL = `INSERT INTO sessions (token_hash, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`

	selectSessionSQL = `SELECT user_id, expires_at, created_at
		 FROM sessions
		 WHERE token_hash = $1 AND expires_at > now()`

	deleteSessionSQL = `DELETE FROM sessions WHERE token_hash = $1`
)

// NormalizeEmail はメールアドレスを保存・照合用の形式にする。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashSessionToken はCookieのセッショントークンをストアのキーに変換する。
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var (
		user     model.User
		signedIn sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, selectUserSQL, id).
		Scan(&user.ID, &user.Email, &user.Name, &signedIn, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	if signedIn.Valid {
		user.LastSignedInAt = signedIn.Time
	}
	return &user, nil
}

// CreateWithIdentity は初回サインインのユーザーとidentityを同一トランザクションで作成する。
// user.Email は正規化して保存し、呼び出し元の値も書き換える。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	user.Email = NormalizeEmail(user.Email)

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertUserSQL,
			user.ID, user.Email, user.Name, nullTime(user.LastSignedInAt), user.CreatedAt, user.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertIdentitySQL,
			identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert identity: %w", err)
		}
		return nil
	})
}

// RecordSignIn はサインイン日時を記録し、IdPから取得した最新のメールアドレスと表示名を反映する。
// updated_at はプロフィールが変わった場合のみ進める。
func (r *PostgresUserRepo) RecordSignIn(ctx context.Context, id, email, name string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, recordSignInSQL, id, NormalizeEmail(email), name, at)
	if err != nil {
		return fmt.Errorf("failed to record sign-in: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to record sign-in: user %s not found", id)
	}
	return nil
}

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	var identity model.Identity
	err := r.db.QueryRowContext(ctx, selectIdentitySQL, provider, providerUserID).
		Scan(&identity.ID, &identity.UserID, &identity.Provider, &identity.ProviderUserID, &identity.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	return &identity, nil
}

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// トークンはHashSessionTokenでハッシュ化してから保存・検索する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx, insertSessionSQL,
		HashSessionToken(session.ID), session.UserID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID はトークンに対応する有効なセッションを取得する。期限切れ・未登録の場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := model.Session{ID: id}
	err := r.db.QueryRowContext(ctx, selectSessionSQL, HashSessionToken(id)).
		Scan(&session.UserID, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return &session, nil
}

// DeleteByID はトークンに対応するセッションを削除する。存在しなくてもエラーにしない。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, deleteSessionSQL, HashSessionToken(id)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// withTx はfnをトランザクション内で実行し、エラーならロールバックする。
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// compile-time interface check
var (
	_ UserRepository     = (*PostgresUserRepo)(nil)
	_ IdentityRepository = (*PostgresIdentityRepo)(nil)
	_ SessionRepository  = (*PostgresSessionRepo)(nil)
)
