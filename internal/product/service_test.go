package product

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/showcase/internal/model"
	"github.com/hitoshi/showcase/internal/security"
)

// --- モック ---

type mockProductRepo struct {
	createFn   func(ctx context.Context, p *model.Product) error
	updateFn   func(ctx context.Context, p *model.Product) (bool, error)
	deleteFn   func(ctx context.Context, id string) (bool, error)
	findByIDFn func(ctx context.Context, id string) (*model.Product, error)
	listAllFn  func(ctx context.Context) ([]*model.Product, error)
}

func (m *mockProductRepo) Create(ctx context.Context, p *model.Product) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	return nil
}
func (m *mockProductRepo) Update(ctx context.Context, p *model.Product) (bool, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, p)
	}
	return true, nil
}
func (m *mockProductRepo) Delete(ctx context.Context, id string) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return true, nil
}
func (m *mockProductRepo) FindByID(ctx context.Context, id string) (*model.Product, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockProductRepo) ListAll(ctx context.Context) ([]*model.Product, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

const existingID = "0b6c3a52-7f0e-4b1e-9f55-2f7a4d1e8c90"

var tinyPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

func newTestService(repo *mockProductRepo) *Service {
	s := NewService(repo, security.NewListingSanitizer(), 1024)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return s
}

func validInput() Input {
	return Input{
		Name:        "Crochet Tote",
		Description: "<p>Hand made</p><script>alert(1)</script>",
		Price:       45.5,
		Category:    "Bags",
		InStock:     true,
	}
}

func apiCode(t *testing.T, err error) string {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	return apiErr.Code
}

// --- テスト ---

func TestService_CreateWithUpload(t *testing.T) {
	var stored *model.Product
	repo := &mockProductRepo{createFn: func(ctx context.Context, p *model.Product) error {
		stored = p
		return nil
	}}
	s := newTestService(repo)

	p, err := s.Create(context.Background(), validInput(), bytes.NewReader(tinyPNG))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if stored != p {
		t.Error("returned record should be the stored record")
	}
	if p.ID == "" {
		t.Error("ID should be assigned")
	}
	if !strings.HasPrefix(p.ImageURL, "data:image/png;base64,") {
		t.Errorf("ImageURL = %.30q", p.ImageURL)
	}
	if strings.Contains(p.Description, "script") {
		t.Errorf("description not sanitized: %q", p.Description)
	}
	if !p.CreatedAt.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", p.CreatedAt)
	}
}

func TestService_CreateWithImageURL(t *testing.T) {
	s := newTestService(&mockProductRepo{})
	in := validInput()
	in.ImageURL = "https://cdn.example.com/tote.png"

	p, err := s.Create(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ImageURL != in.ImageURL {
		t.Errorf("ImageURL = %q", p.ImageURL)
	}
}

func TestService_CreateRequiresImage(t *testing.T) {
	s := newTestService(&mockProductRepo{})

	_, err := s.Create(context.Background(), validInput(), nil)
	if got := apiCode(t, err); got != model.ErrCodeValidation {
		t.Errorf("code = %q, want %q", got, model.ErrCodeValidation)
	}
}

func TestService_CreateRejectsUnsafeImageURL(t *testing.T) {
	s := newTestService(&mockProductRepo{})
	in := validInput()
	in.ImageURL = "javascript:alert(1)"

	_, err := s.Create(context.Background(), in, nil)
	if got := apiCode(t, err); got != model.ErrCodeValidation {
		t.Errorf("code = %q", got)
	}
}

func TestService_CreateRejectsNonImageUpload(t *testing.T) {
	s := newTestService(&mockProductRepo{})

	_, err := s.Create(context.Background(), validInput(), strings.NewReader("plain text"))
	if got := apiCode(t, err); got != model.ErrCodeInvalidUpload {
		t.Errorf("code = %q", got)
	}
}

func TestService_CreateRejectsOversizedUpload(t *testing.T) {
	s := newTestService(&mockProductRepo{})
	s.uploadLimit = 16

	_, err := s.Create(context.Background(), validInput(), bytes.NewReader(tinyPNG))
	if got := apiCode(t, err); got != model.ErrCodeUploadTooLarge {
		t.Errorf("code = %q", got)
	}
}

func TestService_CreateValidation(t *testing.T) {
	s := newTestService(&mockProductRepo{})
	in := validInput()
	in.Name = " "
	in.Price = -3

	_, err := s.Create(context.Background(), in, bytes.NewReader(tinyPNG))
	if got := apiCode(t, err); got != model.ErrCodeValidation {
		t.Errorf("code = %q", got)
	}
}

func TestService_CreateStoreFailureIsIOFailure(t *testing.T) {
	repo := &mockProductRepo{createFn: func(ctx context.Context, p *model.Product) error {
		return errors.New("connection refused")
	}}
	s := newTestService(repo)

	_, err := s.Create(context.Background(), validInput(), bytes.NewReader(tinyPNG))
	if !model.IsIOFailure(err) {
		t.Fatalf("expected IOFailure, got %v", err)
	}
}

func TestService_UpdateKeepsImageAndCreatedAt(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockProductRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Product, error) {
			return &model.Product{ID: id, Name: "Old", ImageURL: "https://cdn.example.com/old.png", CreatedAt: created}, nil
		},
	}
	s := newTestService(repo)

	p, err := s.Update(context.Background(), existingID, validInput(), nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.Name != "Crochet Tote" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.ImageURL != "https://cdn.example.com/old.png" {
		t.Errorf("ImageURL = %q, want existing image", p.ImageURL)
	}
	if !p.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed: %v", p.CreatedAt)
	}
	if p.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}

func TestService_UpdateNotFound(t *testing.T) {
	s := newTestService(&mockProductRepo{})

	_, err := s.Update(context.Background(), existingID, validInput(), nil)
	if got := apiCode(t, err); got != model.ErrCodeProductNotFound {
		t.Errorf("code = %q", got)
	}
}

func TestService_UpdateLostRace(t *testing.T) {
	repo := &mockProductRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Product, error) {
			return &model.Product{ID: id, ImageURL: "https://cdn.example.com/a.png"}, nil
		},
		updateFn: func(ctx context.Context, p *model.Product) (bool, error) { return false, nil },
	}
	s := newTestService(repo)

	_, err := s.Update(context.Background(), existingID, validInput(), nil)
	if got := apiCode(t, err); got != model.ErrCodeProductNotFound {
		t.Errorf("code = %q", got)
	}
}

func TestService_DeleteReturnsDeletedRecord(t *testing.T) {
	var deletedID string
	repo := &mockProductRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Product, error) {
			return &model.Product{ID: id, Name: "Scarf"}, nil
		},
		deleteFn: func(ctx context.Context, id string) (bool, error) {
			deletedID = id
			return true, nil
		},
	}
	s := newTestService(repo)

	p, err := s.Delete(context.Background(), existingID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deletedID != existingID || p.Name != "Scarf" {
		t.Errorf("deleted %q, returned %+v", deletedID, p)
	}
}

func TestService_GetMalformedIDIsNotFound(t *testing.T) {
	called := false
	repo := &mockProductRepo{findByIDFn: func(ctx context.Context, id string) (*model.Product, error) {
		called = true
		return nil, nil
	}}
	s := newTestService(repo)

	_, err := s.Get(context.Background(), "not-a-uuid")
	if got := apiCode(t, err); got != model.ErrCodeProductNotFound {
		t.Errorf("code = %q", got)
	}
	if called {
		t.Error("repository should not be queried for malformed IDs")
	}
}

func TestService_ListAllStoreFailure(t *testing.T) {
	repo := &mockProductRepo{listAllFn: func(ctx context.Context) ([]*model.Product, error) {
		return nil, errors.New("timeout")
	}}
	s := newTestService(repo)

	if _, err := s.ListAll(context.Background()); !model.IsIOFailure(err) {
		t.Fatalf("expected IOFailure, got %v", err)
	}
}
