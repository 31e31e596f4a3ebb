package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/showcase/internal/model"
)

// PostgresScholarshipRepo はPostgreSQLを使用した奨学金リポジトリ。
type PostgresScholarshipRepo struct {
	db *sql.DB
}

// NewPostgresScholarshipRepo はPostgresScholarshipRepoを生成する。
func NewPostgresScholarshipRepo(db *sql.DB) *PostgresScholarshipRepo {
	return &PostgresScholarshipRepo{db: db}
}

const scholarshipColumns = `id, external_id, source, name, description, country, level, funding_type, image_url,
	requirements, deadline, degree, graduation_year, language, program, semester, type, university,
	created_at, updated_at`

const insertScholarshipSQL = `INSERT INTO scholarships (` + scholarshipColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

func scholarshipArgs(s *model.Scholarship) []interface{} {
	return []interface{}{
		s.ID, s.ExternalID, s.Source, s.Name, s.Description, s.Country, s.Level, s.FundingType, s.ImageURL,
		pq.Array(s.Requirements), s.Deadline, s.Degree, s.GraduationYear, s.Language, s.Program, s.Semester,
		s.Type, s.University, s.CreatedAt, s.UpdatedAt,
	}
}

// Create は奨学金を登録する。
func (r *PostgresScholarshipRepo) Create(ctx context.Context, s *model.Scholarship) error {
	if _, err := r.db.ExecContext(ctx, insertScholarshipSQL, scholarshipArgs(s)...); err != nil {
		return fmt.Errorf("failed to create scholarship: %w", err)
	}
	return nil
}

// CreateBatch は複数件を同一トランザクションで登録する。
func (r *PostgresScholarshipRepo) CreateBatch(ctx context.Context, items []*model.Scholarship) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertScholarshipSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare scholarship insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range items {
		if _, err := stmt.ExecContext(ctx, scholarshipArgs(s)...); err != nil {
			return fmt.Errorf("failed to insert scholarship %q: %w", s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update は奨学金の内容を置き換える。取り込み元の情報は変更しない。
func (r *PostgresScholarshipRepo) Update(ctx context.Context, s *model.Scholarship) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE scholarships
		 SET name = $2, description = $3, country = $4, level = $5, funding_type = $6, image_url = $7,
		     requirements = $8, deadline = $9, degree = $10, graduation_year = $11, language = $12,
		     program = $13, semester = $14, type = $15, university = $16, updated_at = $17
		 WHERE id = $1`,
		s.ID, s.Name, s.Description, s.Country, s.Level, s.FundingType, s.ImageURL,
		pq.Array(s.Requirements), s.Deadline, s.Degree, s.GraduationYear, s.Language,
		s.Program, s.Semester, s.Type, s.University, s.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update scholarship: %w", err)
	}
	return affected(result)
}

// Upsert は(source, external_id)が一致する行を更新し、なければ登録する。
// 既存行のIDと作成日時は維持する。
func (r *PostgresScholarshipRepo) Upsert(ctx context.Context, s *model.Scholarship) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx,
		insertScholarshipSQL+`
		ON CONFLICT (source, external_id) WHERE source <> '' AND external_id <> ''
		DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, country = EXCLUDED.country,
			level = EXCLUDED.level, funding_type = EXCLUDED.funding_type, requirements = EXCLUDED.requirements,
			deadline = EXCLUDED.deadline, degree = EXCLUDED.degree, graduation_year = EXCLUDED.graduation_year,
			language = EXCLUDED.language, program = EXCLUDED.program, semester = EXCLUDED.semester,
			type = EXCLUDED.type, university = EXCLUDED.university, updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0)`,
		scholarshipArgs(s)...,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert scholarship: %w", err)
	}
	return inserted, nil
}

// Delete は奨学金を削除する。
func (r *PostgresScholarshipRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scholarships WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete scholarship: %w", err)
	}
	return affected(result)
}

// DeleteAll は全件を削除する。
func (r *PostgresScholarshipRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scholarships`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete scholarships: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// FindByID は指定IDの奨学金を取得する。見つからない場合はnilを返す。
func (r *PostgresScholarshipRepo) FindByID(ctx context.Context, id string) (*model.Scholarship, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scholarshipColumns+` FROM scholarships WHERE id = $1`, id)
	s, err := scanScholarship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scholarship: %w", err)
	}
	return s, nil
}

// ListAll は全件を登録順に返す。
func (r *PostgresScholarshipRepo) ListAll(ctx context.Context) ([]*model.Scholarship, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scholarshipColumns+` FROM scholarships ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scholarships: %w", err)
	}
	return collectScholarships(rows)
}

// ListPage はプログラム名、IDの順にcursorの次からlimit件を返す。
func (r *PostgresScholarshipRepo) ListPage(ctx context.Context, cursor string, limit int) (*ScholarshipPage, error) {
	c, err := decodeCursor(cursor)
	if err != nil {
		return nil, &ErrInvalidCursor{Err: err}
	}
	limit = normalizeLimit(limit)

	var rows *sql.Rows
	if c == nil {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+scholarshipColumns+` FROM scholarships ORDER BY program, id LIMIT $1`,
			limit+1)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+scholarshipColumns+` FROM scholarships
			 WHERE (program, id) > ($1, $2::uuid)
			 ORDER BY program, id LIMIT $3`,
			c.Program, c.ID, limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list scholarship page: %w", err)
	}
	items, err := collectScholarships(rows)
	if err != nil {
		return nil, err
	}
	return buildPage(items, limit), nil
}

// Count は総件数を返す。
func (r *PostgresScholarshipRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM scholarships`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count scholarships: %w", err)
	}
	return n, nil
}

// buildPage はlimit+1件取得した結果から1ページ分と継続カーソルを作る。
func buildPage(items []*model.Scholarship, limit int) *ScholarshipPage {
	page := &ScholarshipPage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.HasMore = true
		last := page.Items[limit-1]
		page.NextCursor = encodeCursor(last.Program, last.ID)
	}
	return page
}

func collectScholarships(rows *sql.Rows) ([]*model.Scholarship, error) {
	defer rows.Close()

	var items []*model.Scholarship
	for rows.Next() {
		s, err := scanScholarship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scholarship: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scholarships: %w", err)
	}
	return items, nil
}

func scanScholarship(row rowScanner) (*model.Scholarship, error) {
	s := &model.Scholarship{}
	err := row.Scan(
		&s.ID, &s.ExternalID, &s.Source, &s.Name, &s.Description, &s.Country, &s.Level, &s.FundingType, &s.ImageURL,
		pq.Array(&s.Requirements), &s.Deadline, &s.Degree, &s.GraduationYear, &s.Language, &s.Program, &s.Semester,
		&s.Type, &s.University, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// compile-time interface check
var _ ScholarshipRepository = (*PostgresScholarshipRepo)(nil)
