package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSourceGuard_NewSafeClient(t *testing.T) {
	guard := NewSourceGuard(1024)
	client := guard.NewSafeClient(5 * time.Second)

	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
	if client.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("expected a custom transport")
	}
}

// httptestサーバーは127.0.0.1で起動するため、ダイヤル時点で拒否される。
func TestSourceGuard_SafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSourceGuard(0).NewSafeClient(5 * time.Second)
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected loopback request to be blocked")
	}
}

func TestSourceGuard_ValidateURL(t *testing.T) {
	guard := NewSourceGuard(0)

	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://scholarships.example.com/feed.json", false},
		{"http://blog.example.org/rss", false},
		{"", true},
		{"not-a-url", true},
		{"ftp://example.com/list", true},
		{"file:///etc/passwd", true},
		{"http://10.0.0.1/list", true},
		{"http://172.16.0.1/list", true},
		{"http://192.168.1.100/list", true},
		{"http://127.0.0.1/list", true},
		{"http://localhost/list", true},
		{"http://LOCALHOST/list", true},
		{"http://169.254.169.254/latest/meta-data/", true},
		{"http://metadata.google.internal/computeMetadata/v1/", true},
		{"http://0.0.0.0/list", true},
		{"http://100.64.0.1/list", true},
		{"http://[::1]/list", true},
		{"http://[fe80::1]/list", true},
		{"http://[::ffff:127.0.0.1]/list", true},
		{"http://93.184.216.34/list", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestSourceGuard_LimitBody(t *testing.T) {
	body := strings.NewReader("0123456789")

	got, err := io.ReadAll(NewSourceGuard(4).LimitBody(body))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "0123" {
		t.Errorf("limited body = %q, want %q", got, "0123")
	}
}

func TestSourceGuard_LimitBodyUnlimited(t *testing.T) {
	got, _ := io.ReadAll(NewSourceGuard(0).LimitBody(strings.NewReader("abcdef")))
	if string(got) != "abcdef" {
		t.Errorf("unlimited body = %q", got)
	}
}

func TestSourceGuardInterface(t *testing.T) {
	var _ SourceGuard = NewSourceGuard(0)
}
