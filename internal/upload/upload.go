// Package upload はアップロードされた画像をデータURIへ変換する。
//
// 商品画像と応募者写真はバイナリを別ストレージに置かず、
// data:<mime>;base64,<payload> 形式の文字列としてレコードに保存する。
// MIMEタイプは拡張子やContent-Typeヘッダではなく先頭バイトから判定する。
package upload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/hitoshi/showcase/internal/model"
)

// DefaultMaxBytes はアップロード上限の既定値（5MiB）。
const DefaultMaxBytes int64 = 5 << 20

// ErrEmpty は空ファイルがアップロードされたことを示す。
var ErrEmpty = errors.New("upload is empty")

// TooLargeError はファイルサイズが上限を超えたことを示す。
type TooLargeError struct {
	MaxBytes int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("upload exceeds %d bytes", e.MaxBytes)
}

// NotImageError は画像以外のファイルがアップロードされたことを示す。
type NotImageError struct {
	Detected string
}

func (e *NotImageError) Error() string {
	return fmt.Sprintf("upload is not an image (detected %s)", e.Detected)
}

// Image は判定済みの画像データ。
type Image struct {
	MIME string
	Data []byte
}

// DataURI は画像をデータURI文字列に変換する。
func (img Image) DataURI() string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(img.MIME) + base64.StdEncoding.EncodedLen(len(img.Data)))
	b.WriteString("data:")
	b.WriteString(img.MIME)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(img.Data))
	return b.String()
}

// ReadImage は r を最大 maxBytes まで読み込み、画像であることを検証する。
// maxBytes が0以下の場合は DefaultMaxBytes を使う。
func ReadImage(r io.Reader, maxBytes int64) (Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return Image{}, ErrEmpty
	}
	if n > maxBytes {
		return Image{}, &TooLargeError{MaxBytes: maxBytes}
	}

	data := buf.Bytes()
	mt := mimetype.Detect(data)
	if !isImage(mt) {
		return Image{}, &NotImageError{Detected: mt.String()}
	}
	return Image{MIME: baseType(mt.String()), Data: data}, nil
}

// ToDataURI は ReadImage の結果をデータURIとして返す。
func ToDataURI(r io.Reader, maxBytes int64) (string, error) {
	img, err := ReadImage(r, maxBytes)
	if err != nil {
		return "", err
	}
	return img.DataURI(), nil
}

func isImage(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}

// baseType はパラメータ（; charset=... など）を除いたMIMEタイプを返す。
func baseType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		return strings.TrimSpace(mime[:i])
	}
	return mime
}

// AsAPIError はアップロード検証エラーを利用者向けの *model.APIError に変換する。
// 検証以外のエラー（読み込み失敗など）はそのまま返す。
func AsAPIError(err error) error {
	var tooLarge *TooLargeError
	var notImage *NotImageError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &tooLarge):
		return model.NewUploadTooLargeError(tooLarge.MaxBytes)
	case errors.As(err, &notImage):
		return model.NewInvalidUploadError("画像ファイル（JPEG、PNG、GIF、WebP など）を選択してください")
	case errors.Is(err, ErrEmpty):
		return model.NewInvalidUploadError("ファイルが空です")
	default:
		return err
	}
}
