package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/showcase/internal/auth"
	"github.com/hitoshi/showcase/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger         *slog.Logger
	StatusRecorder middleware.StatusRecorder

	// セッション・認可
	SessionResolver    middleware.CurrentUserResolver
	AdminPolicy        auth.AdminPolicy
	CSRFConfig         middleware.CSRFConfig
	CORSAllowedOrigins []string

	// レート制限。ApplicationLimiter は応募送信のみに追加で適用する。
	GeneralLimiter     middleware.Limiter
	ApplicationLimiter middleware.Limiter

	// ハンドラー
	Auth         *AuthHandler
	Products     *ProductHandler
	Scholarships *ScholarshipHandler
	Applications *ApplicationHandler
	Admin        *AdminHandler

	// 運用エンドポイント
	Health  http.Handler
	Metrics http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → CORS → Session → CSRF → RateLimit(general)
//
// /health と /metrics はSession以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	if deps.Health != nil {
		r.Method(http.MethodGet, "/health", deps.Health)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver, deps.AdminPolicy))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		if deps.GeneralLimiter != nil {
			r.Use(middleware.NewRateLimitMiddleware(deps.GeneralLimiter, "general"))
		}

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// 認証（OAuthフロー）
		r.Route("/auth", func(r chi.Router) {
			r.Get("/google/login", deps.Auth.Login)
			r.Get("/google/callback", deps.Auth.Callback)
			r.Post("/logout", deps.Auth.Logout)
			r.Get("/me", deps.Auth.Me)
		})

		// 公開の一覧・詳細
		r.Route("/api/products", func(r chi.Router) {
			r.Get("/", deps.Products.List)
			r.Get("/{id}", deps.Products.Get)
		})
		r.Route("/api/scholarships", func(r chi.Router) {
			r.Get("/", deps.Scholarships.List)
			r.Get("/catalog", deps.Scholarships.Catalog)
			r.Get("/{id}", deps.Scholarships.Get)
		})

		// 問い合わせ・応募（ログイン必須）
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSignIn())
			if deps.ApplicationLimiter != nil {
				r.Use(middleware.NewRateLimitMiddleware(deps.ApplicationLimiter, "applications"))
			}
			r.Post("/api/applications", deps.Applications.Submit)
		})

		// 管理ダッシュボード
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())

			r.Route("/products", func(r chi.Router) {
				r.Post("/", deps.Products.Create)
				r.Put("/{id}", deps.Products.Update)
				r.Delete("/{id}", deps.Products.Delete)
			})

			r.Route("/scholarships", func(r chi.Router) {
				r.Post("/", deps.Scholarships.Create)
				r.Delete("/", deps.Scholarships.DeleteAll)
				r.Post("/import", deps.Scholarships.Import)
				r.Put("/{id}", deps.Scholarships.Update)
				r.Delete("/{id}", deps.Scholarships.Delete)
			})

			r.Route("/applications", func(r chi.Router) {
				r.Get("/", deps.Applications.List)
				r.Get("/{id}", deps.Applications.Get)
				r.Put("/{id}/status", deps.Applications.UpdateStatus)
			})

			if deps.Admin != nil {
				r.Post("/snapshots/refresh", deps.Admin.RefreshSnapshots)
			}
		})
	})

	return r
}
