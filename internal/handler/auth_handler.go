package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/showcase/internal/auth"
	"github.com/hitoshi/showcase/internal/middleware"
	"github.com/hitoshi/showcase/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	returnToCookie   = "return_to"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, *model.User, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // 秒
	AdminPolicy   auth.AdminPolicy
}

// AuthHandler はGoogleサインインのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{service: service, config: config}
}

// nextActionPaths は NextAction ごとの遷移先。stay はログイン開始時のページに戻る。
var nextActionPaths = map[auth.NextAction]string{
	auth.NextActionAdminDashboard: "/admin",
	auth.NextActionHome:           "/",
}

// Login はGoogleサインインを開始する。
// GET /auth/google/login?return_to=/scholarships/xxx
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.setShortCookie(w, oauthStateCookie, state, 600)
	if rt := r.URL.Query().Get("return_to"); isLocalPath(rt) {
		h.setShortCookie(w, returnToCookie, rt, 600)
	}

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はGoogleからのコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
//
// サインイン後の遷移先は auth.NextActionFor が返すデータで決まる。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		writeInvalidRequest(w, "invalid state parameter")
		return
	}
	h.setShortCookie(w, oauthStateCookie, "", -1)

	code := r.URL.Query().Get("code")
	if code == "" {
		writeInvalidRequest(w, "missing authorization code")
		return
	}

	session, user, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "AUTHENTICATION_FAILED",
			Message:  "Googleアカウントでの認証に失敗しました。",
			Category: "auth",
			Action:   "もう一度ログインしてください。",
		})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	next := auth.NextActionFor(h.config.AdminPolicy.StateFor(user))
	path, ok := nextActionPaths[next]
	if !ok {
		path = "/"
		if c, err := r.Cookie(returnToCookie); err == nil && isLocalPath(c.Value) {
			path = c.Value
		}
	}
	h.setShortCookie(w, returnToCookie, "", -1)

	slog.Info("sign-in completed", slog.String("user_id", user.ID), slog.String("next_action", string(next)))
	http.Redirect(w, r, strings.TrimRight(h.config.BaseURL, "/")+path, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄し、トップページへの遷移を返す。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			// Cookieは削除する
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"next_action": string(auth.NextActionFor(auth.Anonymous())),
	})
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type sessionStateResponse struct {
	Authenticated bool          `json:"authenticated"`
	IsAdmin       bool          `json:"is_admin"`
	User          *userResponse `json:"user"`
	NextAction    string        `json:"next_action"`
}

// Me は現在の認証状態と、画面側が取るべき遷移を返す。未ログインでも200を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	state := middleware.SessionStateFromContext(r.Context())

	resp := sessionStateResponse{
		Authenticated: state.Authenticated,
		IsAdmin:       state.IsAdmin,
		NextAction:    string(auth.NextActionFor(state)),
	}
	if state.User != nil {
		resp.User = &userResponse{ID: state.User.ID, Email: state.User.Email, Name: state.User.Name}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) setShortCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// isLocalPath はオープンリダイレクトにならないサイト内パスかを判定する。
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.ContainsAny(p, "\\\r\n")
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
