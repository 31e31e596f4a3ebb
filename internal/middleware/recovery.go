package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラー内のpanicを回収して500を返すミドルウェアを返す。
// ロギングミドルウェアの内側に置くと、500がアクセスログとステータス集計に残り、
// サインイン中であればpanicログにuser_idが付く。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// 応答を中断するためのpanicはnet/httpに任せる
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				args := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				if notes, ok := r.Context().Value(annotationsContextKey).(*requestAnnotations); ok && notes.userID != "" {
					args = append(args, slog.String("user_id", notes.userID))
				}
				args = append(args, slog.String("stack", string(debug.Stack())))
				logger.Error("panic recovered", args...)

				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
