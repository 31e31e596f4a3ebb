package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/showcase/internal/model"
)

var scholarshipRowColumns = []string{
	"id", "external_id", "source", "name", "description", "country", "level", "funding_type", "image_url",
	"requirements", "deadline", "degree", "graduation_year", "language", "program", "semester", "type", "university",
	"created_at", "updated_at",
}

func scholarshipRow(rows *sqlmock.Rows, id, program string) *sqlmock.Rows {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return rows.AddRow(id, "", "", program, "", "China", "Master", "Full", "",
		`{"Language: English"}`, "2026-06-30", "Master", "2025", "English", program, "Fall", "Full", "Tsinghua",
		now, now)
}

func TestPostgresScholarshipRepo_ListPage_FirstPageHasMore(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(scholarshipRowColumns)
	scholarshipRow(rows, "00000000-0000-0000-0000-000000000001", "Architecture")
	scholarshipRow(rows, "00000000-0000-0000-0000-000000000002", "Biology")
	scholarshipRow(rows, "00000000-0000-0000-0000-000000000003", "Chemistry")
	mock.ExpectQuery(`ORDER BY program, id LIMIT \$1`).WithArgs(3).WillReturnRows(rows)

	page, err := NewPostgresScholarshipRepo(db).ListPage(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("ListPage error: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(page.Items))
	}
	if !page.HasMore {
		t.Error("HasMore = false, want true")
	}
	if page.Items[0].Requirements[0] != "Language: English" {
		t.Errorf("Requirements = %v", page.Items[0].Requirements)
	}

	c, err := decodeCursor(page.NextCursor)
	if err != nil {
		t.Fatalf("decodeCursor: %v", err)
	}
	if c.Program != "Biology" || c.ID != "00000000-0000-0000-0000-000000000002" {
		t.Errorf("cursor = %+v, want Biology/...02", c)
	}
}

func TestPostgresScholarshipRepo_ListPage_ContinuesFromCursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cursor := encodeCursor("Biology", "00000000-0000-0000-0000-000000000002")
	rows := sqlmock.NewRows(scholarshipRowColumns)
	scholarshipRow(rows, "00000000-0000-0000-0000-000000000003", "Chemistry")
	mock.ExpectQuery(`WHERE \(program, id\) > \(\$1, \$2::uuid\)`).
		WithArgs("Biology", "00000000-0000-0000-0000-000000000002", 3).
		WillReturnRows(rows)

	page, err := NewPostgresScholarshipRepo(db).ListPage(context.Background(), cursor, 2)
	if err != nil {
		t.Fatalf("ListPage error: %v", err)
	}
	if len(page.Items) != 1 || page.HasMore || page.NextCursor != "" {
		t.Errorf("page = %+v, want single last item", page)
	}
}

func TestPostgresScholarshipRepo_ListPage_InvalidCursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	for _, cursor := range []string{"%%%", encodeCursor("x", "nope")} {
		_, err = NewPostgresScholarshipRepo(db).ListPage(context.Background(), cursor, 10)
		var invalid *ErrInvalidCursor
		if !errors.As(err, &invalid) {
			t.Errorf("ListPage(%q) err = %v, want ErrInvalidCursor", cursor, err)
		}
	}
	// 不正なカーソルはクエリを発行しない
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected query: %v", err)
	}
}

// 一括登録は1件でも失敗したらロールバックする。
func TestPostgresScholarshipRepo_CreateBatch_RollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO scholarships`)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnError(errors.New("value too long"))
	mock.ExpectRollback()

	items := []*model.Scholarship{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}
	if err := NewPostgresScholarshipRepo(db).CreateBatch(context.Background(), items); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresScholarshipRepo_Upsert_ReportsInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`ON CONFLICT \(source, external_id\)`).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))

	created, err := NewPostgresScholarshipRepo(db).Upsert(context.Background(), &model.Scholarship{
		ID: "a", Source: "https://feeds.example.com", ExternalID: "x-1", Name: "A",
	})
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
}

func TestPostgresScholarshipRepo_DeleteAllAndCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM scholarships`).WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectQuery(`SELECT count\(\*\) FROM scholarships`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	repo := NewPostgresScholarshipRepo(db)
	n, err := repo.DeleteAll(context.Background())
	if err != nil || n != 7 {
		t.Fatalf("DeleteAll = (%d, %v), want (7, nil)", n, err)
	}
	count, err := repo.Count(context.Background())
	if err != nil || count != 0 {
		t.Errorf("Count = (%d, %v), want (0, nil)", count, err)
	}
}
