package auth

import (
	"testing"

	"github.com/hitoshi/showcase/internal/model"
)

func TestAdminPolicy_IsAdmin(t *testing.T) {
	p := NewAdminPolicy(" Owner@Example.com ")

	tests := []struct {
		name string
		user *model.User
		want bool
	}{
		{"完全一致", &model.User{Email: "owner@example.com"}, true},
		{"大文字小文字違い", &model.User{Email: "OWNER@example.COM"}, true},
		{"別ユーザー", &model.User{Email: "guest@example.com"}, false},
		{"未ログイン", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsAdmin(tt.user); got != tt.want {
				t.Errorf("IsAdmin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdminPolicy_EmptyEmailNeverAdmin(t *testing.T) {
	p := NewAdminPolicy("")
	if p.IsAdmin(&model.User{Email: ""}) {
		t.Error("an unset admin email must not match users without email")
	}
}

func TestNextActionFor(t *testing.T) {
	p := NewAdminPolicy("owner@example.com")

	tests := []struct {
		name  string
		state SessionState
		want  NextAction
	}{
		{"管理者", p.StateFor(&model.User{Email: "owner@example.com"}), NextActionAdminDashboard},
		{"一般ユーザー", p.StateFor(&model.User{Email: "guest@example.com"}), NextActionStay},
		{"未ログイン", p.StateFor(nil), NextActionHome},
		{"Anonymous", Anonymous(), NextActionHome},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextActionFor(tt.state); got != tt.want {
				t.Errorf("NextActionFor = %q, want %q", got, tt.want)
			}
		})
	}
}
