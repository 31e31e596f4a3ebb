// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/showcase/internal/auth"
	"github.com/hitoshi/showcase/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var sessionStateContextKey = contextKey("session_state")

// CurrentUserResolver はセッションIDから現在のユーザーを解決する。
// auth.Service が実装する。
type CurrentUserResolver interface {
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// NewSessionMiddleware はCookieのセッションIDから auth.SessionState を組み立て、
// リクエストコンテキストに注入するミドルウェアを返す。
// 未ログインのリクエストも匿名状態で通過させ、拒否は RequireSignIn / RequireAdmin が行う。
func NewSessionMiddleware(resolver CurrentUserResolver, policy auth.AdminPolicy) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := auth.Anonymous()

			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				user, err := resolver.GetCurrentUser(r.Context(), cookie.Value)
				switch {
				case err == nil:
					state = policy.StateFor(user)
				case errors.Is(err, auth.ErrSessionNotFound):
				default:
					slog.Error("failed to resolve session",
						slog.String("error", err.Error()),
					)
				}
			}

			if state.Authenticated {
				annotateUserID(r.Context(), state.User.ID)
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSessionState(r.Context(), state)))
		})
	}
}

// RequireSignIn は未ログインのリクエストに401を返す。
func RequireSignIn() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !SessionStateFromContext(r.Context()).Authenticated {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin は管理者以外のリクエストを拒否する。
// 未ログインは401、管理者でないユーザーは403。
func RequireAdmin() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := SessionStateFromContext(r.Context())
			if !state.Authenticated {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !state.IsAdmin {
				slog.Warn("admin access denied",
					slog.String("user_id", state.User.ID),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionStateFromContext はリクエストコンテキストの認証状態を返す。
// セッションミドルウェアを通過していない場合は匿名状態。
func SessionStateFromContext(ctx context.Context) auth.SessionState {
	state, ok := ctx.Value(sessionStateContextKey).(auth.SessionState)
	if !ok {
		return auth.Anonymous()
	}
	return state
}

// ContextWithSessionState はコンテキストに認証状態を注入する。
func ContextWithSessionState(ctx context.Context, state auth.SessionState) context.Context {
	return context.WithValue(ctx, sessionStateContextKey, state)
}

// UserIDFromContext はログイン中のユーザーIDを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	state := SessionStateFromContext(ctx)
	if !state.Authenticated || state.User == nil || state.User.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return state.User.ID, nil
}
