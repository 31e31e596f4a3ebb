package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/showcase/internal/model"
)

// PostgresApplicationRepo はPostgreSQLを使用した応募リポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

const applicationColumns = `id, listing_kind, listing_id, COALESCE(user_id::text, ''), applicant_name, email, phone, address,
	highest_level_of_study, a_level_combination, a_level_points, budget, message, photo_url, status, submitted_at`

// Create は応募を登録する。user_idが空の場合はNULLとして保存する。
func (r *PostgresApplicationRepo) Create(ctx context.Context, a *model.Application) error {
	var userID sql.NullString
	if a.UserID != "" {
		userID = sql.NullString{String: a.UserID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, listing_kind, listing_id, user_id, applicant_name, email, phone, address,
			highest_level_of_study, a_level_combination, a_level_points, budget, message, photo_url, status, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, string(a.ListingKind), a.ListingID, userID, a.ApplicantName, a.Email, a.Phone, a.Address,
		a.HighestLevelOfStudy, a.ALevelCombination, a.ALevelPoints, a.Budget, a.Message, a.PhotoURL,
		string(a.Status), a.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	a, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	return a, nil
}

// ListAll は全応募を新しい順に返す。
func (r *PostgresApplicationRepo) ListAll(ctx context.Context) ([]*model.Application, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications ORDER BY submitted_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*model.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return apps, nil
}

// UpdateStatus は応募ステータスを更新する。
func (r *PostgresApplicationRepo) UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return false, fmt.Errorf("failed to update application status: %w", err)
	}
	return affected(result)
}

func scanApplication(row rowScanner) (*model.Application, error) {
	a := &model.Application{}
	var kind, status string
	err := row.Scan(
		&a.ID, &kind, &a.ListingID, &a.UserID, &a.ApplicantName, &a.Email, &a.Phone, &a.Address,
		&a.HighestLevelOfStudy, &a.ALevelCombination, &a.ALevelPoints, &a.Budget, &a.Message, &a.PhotoURL,
		&status, &a.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ListingKind = model.ListingKind(kind)
	a.Status = model.ApplicationStatus(status)
	return a, nil
}

// compile-time interface check
var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
