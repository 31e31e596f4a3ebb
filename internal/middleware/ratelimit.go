package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/showcase/internal/model"
)

// Limiter はキーごとのリクエスト回数を制限する。
// allowedがfalseの場合、retryAfterは再試行までの目安。
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RatePolicy は1分あたりの上限回数で表したレート制限。
type RatePolicy struct {
	Name      string
	PerMinute int
}

// MemoryLimiter はプロセス内のトークンバケットでレート制限を行う。
// 単一インスタンス構成で使用する。複数インスタンスでは RedisLimiter を使う。
type MemoryLimiter struct {
	policy          RatePolicy
	limit           rate.Limit
	cleanupInterval time.Duration

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewMemoryLimiter はMemoryLimiterを生成し、期限切れエントリの掃除を開始する。
func NewMemoryLimiter(policy RatePolicy, cleanupInterval time.Duration) *MemoryLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	l := &MemoryLimiter{
		policy:          policy,
		limit:           rate.Limit(float64(policy.PerMinute) / 60.0),
		cleanupInterval: cleanupInterval,
		limiters:        make(map[string]*keyLimiter),
		stopCh:          make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow はkeyのトークンを1つ消費する。
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	if l.policy.PerMinute <= 0 {
		return true, 0, nil
	}
	if l.get(key).Allow() {
		return true, 0, nil
	}
	return false, time.Duration(math.Ceil(1.0/float64(l.limit))) * time.Second, nil
}

// Stop は掃除用のゴルーチンを停止する。複数回呼んでもよい。
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Len は保持しているキーの数を返す。
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *MemoryLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if kl, ok := l.limiters[key]; ok {
		kl.lastAccess = now
		return kl.limiter
	}
	kl := &keyLimiter{
		limiter:    rate.NewLimiter(l.limit, l.policy.PerMinute),
		lastAccess: now,
	}
	l.limiters[key] = kl
	return kl.limiter
}

func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスから掃除間隔の2倍を超えたキーを削除する。
func (l *MemoryLimiter) cleanup(now time.Time) {
	ttl := l.cleanupInterval * 2

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, kl := range l.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(l.limiters, key)
		}
	}
}

// NewRateLimitMiddleware はLimiterによるレート制限ミドルウェアを返す。
// ログイン中はユーザーID、未ログインはクライアントIPをキーにする。
// Limiterがエラーを返した場合はリクエストを通す。
func NewRateLimitMiddleware(limiter Limiter, name string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)

			allowed, retryAfter, err := limiter.Allow(r.Context(), name+":"+key)
			if err != nil {
				slog.Warn("rate limiter unavailable",
					slog.String("limit_type", name),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", name),
				)
				writeRateLimitResponse(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if userID, err := UserIDFromContext(r.Context()); err == nil {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	sec := int(math.Ceil(retryAfter.Seconds()))
	if sec < 1 {
		sec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(sec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
