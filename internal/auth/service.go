// Package auth はGoogleサインイン、セッション、管理者判定を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/showcase/internal/model"
	"github.com/hitoshi/showcase/internal/repository"
)

// ErrSessionNotFound はセッションが存在しないか期限切れであることを示す。
var ErrSessionNotFound = errors.New("session not found or expired")

// OAuthUserInfo はIdPから取得したユーザー情報。
type OAuthUserInfo struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
}

// OAuthProvider はリダイレクト型サインインを行うIdP。
type OAuthProvider interface {
	// GetLoginURL はstateを含む認可URLを返す。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをユーザー情報に交換する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // 秒
}

// Service は認証のサービス層。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// GetLoginURL はIdPの認可URLを返す。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はIdPからのコールバックを処理し、セッションとユーザーを返す。
// 初回サインインではユーザーとidentityを作成する。
// 既存ユーザーはサインイン日時を記録し、IdP側のメールアドレス・表示名を反映する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, *model.User, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	user, err := s.resolveUser(ctx, info)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, user, nil
}

func (s *Service) resolveUser(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	if identity == nil {
		now := s.now()
		user := &model.User{
			ID:        uuid.NewString(),
			Email:          info.Email,
			Name:           info.Name,
			LastSignedInAt: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		ident := &model.Identity{
			ID:             uuid.NewString(),
			UserID:         user.ID,
			Provider:       info.Provider,
			ProviderUserID: info.ProviderUserID,
			CreatedAt:      now,
		}
		if err := s.userRepo.CreateWithIdentity(ctx, user, ident); err != nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}
		slog.Info("new user signed up", slog.String("user_id", user.ID), slog.String("provider", info.Provider))
		return user, nil
	}

	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("identity %s refers to missing user %s", identity.ID, identity.UserID)
	}

	now := s.now()
	if err := s.userRepo.RecordSignIn(ctx, user.ID, info.Email, info.Name, now); err != nil {
		return nil, fmt.Errorf("failed to record sign-in: %w", err)
	}
	user.Email = repository.NormalizeEmail(info.Email)
	user.Name = info.Name
	user.LastSignedInAt = now
	slog.Info("user signed in", slog.String("user_id", user.ID))
	return user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// GetCurrentUser はセッションIDに紐づくユーザーを返す。
// セッションがない・期限切れの場合は ErrSessionNotFound を返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}
	return user, nil
}

func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}
	now := s.now()
	session := &model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// generateSessionID は256bitのランダムなセッションIDを返す。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
