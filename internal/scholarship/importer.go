package scholarship

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/hitoshi/showcase/internal/model"
	"github.com/hitoshi/showcase/internal/repository"
	"github.com/hitoshi/showcase/internal/security"
)

//go:embed import.schema.json
var importSchema []byte

// DefaultCountry は国が指定されていない取り込み行に設定する国。
const DefaultCountry = "China"

// maxReportedErrors はスキーマ違反として報告する最大件数。
const maxReportedErrors = 5

// flexString は文字列と数値のどちらで書かれていても文字列として受け取る。
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Row は外部カタログの1行。
type Row struct {
	ScholarshipID  flexString `json:"scholarship_id"`
	StudentID      flexString `json:"student_id"`
	Degree         string     `json:"degree"`
	GraduationYear flexString `json:"graduation_year"`
	Language       string     `json:"language"`
	Program        string     `json:"program"`
	Semester       string     `json:"semester"`
	Type           string     `json:"type"`
	University     string     `json:"university"`
	Deadline       string     `json:"deadline"`
	Country        string     `json:"country"`
}

// ExternalID は取り込み元での識別子を返す。scholarship_id がなければ student_id を使う。
func (r Row) ExternalID() string {
	if id := strings.TrimSpace(string(r.ScholarshipID)); id != "" {
		return id
	}
	return strings.TrimSpace(string(r.StudentID))
}

// Importer はJSONカタログを検証して奨学金に変換し、登録する。
type Importer struct {
	repo      repository.ScholarshipRepository
	sanitizer security.ListingSanitizer
	schema    *gojsonschema.Schema
	now       func() time.Time
}

// NewImporter は埋め込みスキーマをコンパイルしてImporterを生成する。
func NewImporter(repo repository.ScholarshipRepository, sanitizer security.ListingSanitizer) (*Importer, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(importSchema))
	if err != nil {
		return nil, fmt.Errorf("compile import schema: %w", err)
	}
	return &Importer{
		repo:      repo,
		sanitizer: sanitizer,
		schema:    schema,
		now:       time.Now,
	}, nil
}

// Parse は data をスキーマで検証し、奨学金のスライスに変換する。
// source は取り込み元の識別子（ファイル名やURL）で、各レコードに記録される。
// 検証エラーは INVALID_IMPORT の *model.APIError として返す。
func (im *Importer) Parse(data []byte, source string) ([]*model.Scholarship, error) {
	result, err := im.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, model.NewInvalidImportError(fmt.Sprintf("JSONとして解釈できません: %v", err))
	}
	if !result.Valid() {
		errs := result.Errors()
		msgs := make([]string, 0, maxReportedErrors)
		for i, desc := range errs {
			if i == maxReportedErrors {
				msgs = append(msgs, fmt.Sprintf("他%d件", len(errs)-maxReportedErrors))
				break
			}
			msgs = append(msgs, desc.String())
		}
		return nil, model.NewInvalidImportError(strings.Join(msgs, "; "))
	}

	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, model.NewInvalidImportError(err.Error())
	}

	now := im.now().UTC()
	out := make([]*model.Scholarship, 0, len(rows))
	for _, row := range rows {
		out = append(out, im.MapRow(row, source, now))
	}
	return out, nil
}

// MapRow はカタログの1行を奨学金に変換する。
//   - 名称はプログラム名（空なら "Untitled Scholarship"）
//   - 説明は "<degree> program at <university>"
//   - 学位・資金種別が空なら "Unknown"
//   - 応募条件は言語・学期・卒業年
func (im *Importer) MapRow(row Row, source string, now time.Time) *model.Scholarship {
	clean := im.sanitizer.PlainText
	degree := clean(row.Degree)
	university := clean(row.University)
	program := clean(row.Program)
	language := clean(row.Language)
	semester := clean(row.Semester)
	gradYear := clean(string(row.GraduationYear))
	fundingType := clean(row.Type)

	name := program
	if name == "" {
		name = "Untitled Scholarship"
	}
	country := clean(row.Country)
	if country == "" {
		country = DefaultCountry
	}

	return &model.Scholarship{
		ID:          uuid.NewString(),
		ExternalID:  row.ExternalID(),
		Source:      source,
		Name:        name,
		Description: fmt.Sprintf("%s program at %s", degree, university),
		Country:     country,
		Level:       orUnknown(degree),
		FundingType: orUnknown(fundingType),
		ImageURL:    PlaceholderImage,
		Requirements: []string{
			"Language: " + language,
			"Semester: " + semester,
			"Graduation Year: " + gradYear,
		},
		Deadline:       strings.TrimSpace(row.Deadline),
		Degree:         degree,
		GraduationYear: gradYear,
		Language:       language,
		Program:        program,
		Semester:       semester,
		Type:           fundingType,
		University:     university,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Import は data を検証して全件を一括登録し、登録したレコードを返す。
// 1件でも不正な行があれば何も登録しない。
func (im *Importer) Import(ctx context.Context, data []byte, source string) ([]*model.Scholarship, error) {
	items, err := im.Parse(data, source)
	if err != nil {
		return nil, err
	}
	if err := im.repo.CreateBatch(ctx, items); err != nil {
		slog.Error("奨学金の一括登録に失敗しました",
			slog.String("source", source),
			slog.Int("count", len(items)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewIOFailure("scholarship.import", err)
	}
	slog.Info("奨学金を一括登録しました", slog.String("source", source), slog.Int("count", len(items)))
	return items, nil
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}

