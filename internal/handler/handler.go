// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/showcase/internal/middleware"
	"github.com/hitoshi/showcase/internal/model"
)

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeInvalidRequest(w http.ResponseWriter, detail string) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストの解析に失敗しました: " + detail,
		Category: "validation",
		Action:   "正しい形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
//   - *model.APIError: コードに応じたステータス
//   - *model.IOFailure: 503（再試行を促す）
//   - その他: 500
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}
	if model.IsIOFailure(err) {
		slog.Error("listing store failure", slog.String("error", err.Error()))
		middleware.WriteIOFailure(w)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeProductNotFound, model.ErrCodeScholarshipNotFound,
		model.ErrCodeApplicationNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidation, model.ErrCodeInvalidStatus, model.ErrCodeInvalidUpload,
		model.ErrCodeInvalidImport, model.ErrCodeInvalidURL:
		return http.StatusBadRequest
	case model.ErrCodeListingNotFound:
		return http.StatusUnprocessableEntity
	case model.ErrCodeScholarshipClosed:
		return http.StatusConflict
	case model.ErrCodeUploadTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeFetchFailed:
		return http.StatusBadGateway
	case model.ErrCodeIOFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
