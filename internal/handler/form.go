package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/showcase/internal/model"
)

// formMemory はmultipartの解析でメモリに保持する上限。超過分は一時ファイルに退避される。
const formMemory = 1 << 20

// formOverhead は添付ファイル以外のフォーム項目に許容するバイト数。
const formOverhead = 1 << 20

// isJSONRequest はContent-Typeがapplication/jsonかを判定する。
func isJSONRequest(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// decodeJSON はボディをdstにデコードする。未知のフィールドは拒否する。
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes+formOverhead))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.NewUploadTooLargeError(maxBytes)
		}
		return err
	}
	return nil
}

// parseMultipart はmultipart/form-dataを解析する。
// 全体のサイズは添付ファイル上限 + formOverhead に制限する。
func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.NewUploadTooLargeError(maxBytes)
		}
		return err
	}
	return nil
}

// formFile は添付ファイルを返す。添付がない場合はnilを返す。
// 戻り値のcloseは常に呼び出してよい。
func formFile(r *http.Request, field string) (io.Reader, func(), error) {
	f, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	return f, func() { f.Close() }, nil
}

// formString はフォーム値を前後の空白を除いて返す。
func formString(r *http.Request, key string) string {
	return strings.TrimSpace(r.PostFormValue(key))
}

// formFloat は数値のフォーム値を返す。空なら0。
func formFloat(r *http.Request, key string) (float64, error) {
	v := formString(r, key)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, model.NewValidationError(fmt.Sprintf("%s must be a number", key))
	}
	return f, nil
}

// formBool はチェックボックス相当のフォーム値を返す。
// "true" "on" "1" "yes" を真として扱う。
func formBool(r *http.Request, key string) bool {
	switch strings.ToLower(formString(r, key)) {
	case "true", "on", "1", "yes":
		return true
	}
	return false
}

// formList は同名の複数値、または改行区切りの1値をリストとして返す。
func formList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.PostForm[key] {
		for _, line := range strings.Split(v, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}

// readBody はボディ全体をmaxBytesまで読み込む。
func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, model.NewUploadTooLargeError(maxBytes)
		}
		return nil, err
	}
	return data, nil
}

// queryInt は数値のクエリパラメータを返す。未指定や不正な値はdefの値。
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
