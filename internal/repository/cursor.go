package repository

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// pageCursor はプログラム名順ページングの継続位置。
// 同名のプログラムはIDで順序を決める。
type pageCursor struct {
	Program string `json:"p"`
	ID      string `json:"i"`
}

// encodeCursor は継続位置をURLに埋め込める文字列に変換する。
func encodeCursor(program, id string) string {
	b, _ := json.Marshal(pageCursor{Program: program, ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodeCursor はencodeCursorの逆変換。空文字は先頭を表しnilを返す。
// IDがUUIDでない場合はエラーを返す。
func decodeCursor(s string) (*pageCursor, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var c pageCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	if c.ID == "" {
		return nil, fmt.Errorf("invalid cursor: missing id")
	}
	// 掲載IDは常にUUID。それ以外はストアに渡す前に弾く。
	if _, err := uuid.Parse(c.ID); err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &c, nil
}

// ErrInvalidCursor はカーソル文字列が解釈できないことを表す。
type ErrInvalidCursor struct {
	Err error
}

func (e *ErrInvalidCursor) Error() string { return e.Err.Error() }

func (e *ErrInvalidCursor) Unwrap() error { return e.Err }

// normalizeLimit はページサイズを[1, 100]に収める。0以下は既定の10。
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 10
	case limit > 100:
		return 100
	default:
		return limit
	}
}
