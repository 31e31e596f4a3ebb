package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker は依存先の疎通を確認する。*sql.DB が実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthCheckFunc は関数をHealthCheckerとして扱うアダプタ。
type HealthCheckFunc func(ctx context.Context) error

// PingContext はf(ctx)を呼ぶ。
func (f HealthCheckFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

// NewHealthHandler は GET /health のハンドラーを返す。
// 全ての依存先に2秒以内で疎通できれば200、いずれかが失敗すれば503。
func NewHealthHandler(checks map[string]HealthChecker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for name, c := range checks {
			if err := c.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("component", name), slog.String("error", err.Error()))
				components[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "unavailable"
		}
		writeJSON(w, status, map[string]interface{}{"status": overall, "components": components})
	})
}
