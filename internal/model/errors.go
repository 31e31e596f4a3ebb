// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, listing, application, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeProductNotFound     = "PRODUCT_NOT_FOUND"
	ErrCodeScholarshipNotFound = "SCHOLARSHIP_NOT_FOUND"
	ErrCodeApplicationNotFound = "APPLICATION_NOT_FOUND"
	ErrCodeValidation          = "VALIDATION_FAILED"
	ErrCodeInvalidStatus       = "INVALID_STATUS"
	ErrCodeInvalidUpload       = "INVALID_UPLOAD"
	ErrCodeUploadTooLarge      = "UPLOAD_TOO_LARGE"
	ErrCodeInvalidImport       = "INVALID_IMPORT"
	ErrCodeScholarshipClosed   = "SCHOLARSHIP_CLOSED"
	ErrCodeListingNotFound     = "LISTING_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeIOFailure           = "IO_FAILURE"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeFetchFailed         = "FETCH_FAILED"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRF                = "CSRF_TOKEN_INVALID"
)

// NewProductNotFoundError は商品未検出エラーを生成する。
func NewProductNotFoundError(productID string) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("指定された商品が見つかりません: %s", productID),
		Category: "listing",
		Action:   "商品一覧から選び直してください。",
	}
}

// NewScholarshipNotFoundError は奨学金未検出エラーを生成する。
func NewScholarshipNotFoundError(scholarshipID string) *APIError {
	return &APIError{
		Code:     ErrCodeScholarshipNotFound,
		Message:  fmt.Sprintf("指定された奨学金が見つかりません: %s", scholarshipID),
		Category: "listing",
		Action:   "奨学金一覧から選び直してください。",
	}
}

// NewApplicationNotFoundError は応募未検出エラーを生成する。
func NewApplicationNotFoundError(applicationID string) *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  fmt.Sprintf("指定された応募が見つかりません: %s", applicationID),
		Category: "application",
		Action:   "応募IDを確認してください。",
	}
}

// NewListingNotFoundError は応募先の掲載が存在しない場合のエラーを生成する。
func NewListingNotFoundError(listingID string) *APIError {
	return &APIError{
		Code:     ErrCodeListingNotFound,
		Message:  fmt.Sprintf("応募先の掲載が見つかりません: %s", listingID),
		Category: "application",
		Action:   "一覧ページから応募先を選び直してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", detail),
		Category: "validation",
		Action:   "入力内容を確認して再送信してください。",
	}
}

// NewInvalidStatusError は無効な応募ステータスエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには pending、approved、rejected のいずれかを指定してください。",
	}
}

// NewInvalidUploadError は添付ファイルの形式エラーを生成する。
func NewInvalidUploadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUpload,
		Message:  fmt.Sprintf("添付ファイルを受け付けられません: %s", reason),
		Category: "validation",
		Action:   "JPEG、PNG、GIF、WebP のいずれかの画像を添付してください。",
	}
}

// NewUploadTooLargeError は添付ファイルのサイズ超過エラーを生成する。
func NewUploadTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeUploadTooLarge,
		Message:  fmt.Sprintf("添付ファイルが大きすぎます（上限 %d バイト）。", maxBytes),
		Category: "validation",
		Action:   "画像を縮小してから再度添付してください。",
	}
}

// NewInvalidImportError は一括登録データの検証エラーを生成する。
func NewInvalidImportError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImport,
		Message:  fmt.Sprintf("一括登録データが不正です: %s", detail),
		Category: "validation",
		Action:   "JSON配列の各要素に program、university、deadline などの必須項目があるか確認してください。",
	}
}

// NewScholarshipClosedError は締切済み奨学金への応募エラーを生成する。
func NewScholarshipClosedError(scholarshipID string) *APIError {
	return &APIError{
		Code:     ErrCodeScholarshipClosed,
		Message:  fmt.Sprintf("この奨学金の募集は締め切られています: %s", scholarshipID),
		Category: "application",
		Action:   "募集中の奨学金を選んでください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUnauthorizedError は未ログインエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "Googleアカウントでログインしてください。",
	}
}

// NewForbiddenError は管理者以外による管理操作のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインし直してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再試行してください。",
	}
}

// NewCSRFError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを指定してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を指定してください。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// IOFailure はデータストアへの取得・送信が失敗したことを表す。
// プレゼンテーション層は再試行の導線を表示する。
type IOFailure struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *IOFailure) Error() string {
	return fmt.Sprintf("io failure: %s: %v", e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *IOFailure) Unwrap() error {
	return e.Err
}

// NewIOFailure は操作名と原因からIOFailureを生成する。
func NewIOFailure(op string, err error) *IOFailure {
	return &IOFailure{Op: op, Err: err}
}

// IsIOFailure はエラーチェーンにIOFailureが含まれるかを判定する。
func IsIOFailure(err error) bool {
	var ioErr *IOFailure
	return errors.As(err, &ioErr)
}

// IOFailureAPIError はIOFailureをUI向けの統一エラーに変換する。
func IOFailureAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeIOFailure,
		Message:  "データの取得または送信に失敗しました。",
		Category: "system",
		Action:   "時間をおいて再試行してください。",
	}
}
