package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/showcase/internal/auth"
	"github.com/hitoshi/showcase/internal/model"
)

type mockResolver struct {
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockResolver) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	return m.getCurrentUserFn(ctx, sessionID)
}

// compile-time interface check
var _ CurrentUserResolver = (*mockResolver)(nil)
var _ CurrentUserResolver = (*auth.Service)(nil)

func usersBySession() *mockResolver {
	return &mockResolver{getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
		switch sessionID {
		case "admin-session":
			return &model.User{ID: "user-admin", Email: "Owner@Example.com"}, nil
		case "user-session":
			return &model.User{ID: "user-1", Email: "amani@example.com"}, nil
		case "broken":
			return nil, errors.New("db down")
		}
		return nil, auth.ErrSessionNotFound
	}}
}

func serveWithSession(t *testing.T, cookie string, inner http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	mw := NewSessionMiddleware(usersBySession(), auth.NewAdminPolicy("owner@example.com"))
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	mw(inner).ServeHTTP(w, req)
	return w
}

func TestSessionMiddleware_States(t *testing.T) {
	tests := []struct {
		name          string
		cookie        string
		authenticated bool
		admin         bool
	}{
		{"Cookieなし", "", false, false},
		{"期限切れセッション", "expired", false, false},
		{"ストア障害は匿名扱い", "broken", false, false},
		{"一般ユーザー", "user-session", true, false},
		{"管理者（大文字小文字を区別しない）", "admin-session", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got auth.SessionState
			w := serveWithSession(t, tt.cookie, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = SessionStateFromContext(r.Context())
			}))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if got.Authenticated != tt.authenticated || got.IsAdmin != tt.admin {
				t.Errorf("state = %+v", got)
			}
		})
	}
}

func TestRequireSignIn(t *testing.T) {
	guarded := RequireSignIn()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if w := serveWithSession(t, "", guarded); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", w.Code)
	}
	if w := serveWithSession(t, "user-session", guarded); w.Code != http.StatusNoContent {
		t.Errorf("signed in status = %d, want 204", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	guarded := RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		cookie string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"user-session", http.StatusForbidden},
		{"admin-session", http.StatusNoContent},
	}
	for _, tt := range tests {
		if w := serveWithSession(t, tt.cookie, guarded); w.Code != tt.want {
			t.Errorf("cookie %q: status = %d, want %d", tt.cookie, w.Code, tt.want)
		}
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("empty context should not have a user ID")
	}

	ctx := ContextWithSessionState(context.Background(), auth.SessionState{
		User:          &model.User{ID: "user-1"},
		Authenticated: true,
	})
	id, err := UserIDFromContext(ctx)
	if err != nil || id != "user-1" {
		t.Errorf("UserIDFromContext = (%q, %v)", id, err)
	}
}
