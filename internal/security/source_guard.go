package security

import (
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SourceGuard は奨学金同期元URLへのアクセスを制限する。
// 同期元の登録時（設定読み込み時）と取得時の両方で使用される。
type SourceGuard interface {
	// NewSafeClient は内部ネットワーク宛ての接続をダイヤル時点で拒否するHTTPクライアントを返す。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はDNS解決を行わずにURLを静的に検証する。
	ValidateURL(rawURL string) error

	// LimitBody はレスポンスボディを最大サイズで打ち切るReaderを返す。
	LimitBody(body io.Reader) io.Reader
}

var allowedSchemes = []string{"http", "https"}

// blockedPrefixes はダイヤル前に拒否するアドレス範囲。
// プライベート、ループバック、リンクローカル（メタデータIPを含む）、IPv6ユニークローカル。
var blockedPrefixes = mustPrefixes(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

var blockedHostnames = map[string]struct{}{
	"localhost":                {},
	"metadata.google.internal": {},
}

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}

type sourceGuard struct {
	maxBytes int64
}

// NewSourceGuard は maxBytes をレスポンス上限とするSourceGuardを生成する。
// maxBytes が0以下の場合は上限なし。
func NewSourceGuard(maxBytes int64) *sourceGuard {
	return &sourceGuard{maxBytes: maxBytes}
}

// NewSafeClient はsafeurlのダイヤラ検証を使ったクライアントを返す。
// DNS解決後のIPを検証するため、DNSリバインディングもここで防がれる。
func (g *sourceGuard) NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

func (g *sourceGuard) ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("empty URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme: %q", scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("blocked IP address: %s", addr)
		}
		return nil
	}

	if _, blocked := blockedHostnames[strings.ToLower(host)]; blocked {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func (g *sourceGuard) LimitBody(body io.Reader) io.Reader {
	if g.maxBytes <= 0 {
		return body
	}
	return io.LimitReader(body, g.maxBytes)
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
