package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidID はストアの識別子形式として解釈できないIDを表す。
// ストア層のエラーとして扱い、特別なハンドリングは行わない。
var ErrInvalidID = errors.New("invalid food id")

// APIError は統一エラーフォーマットを表す。
// レスポンスボディにはMessageのみを出力し、Codeはログ用に使う。
type APIError struct {
	Status  int    // HTTPステータスコード
	Code    string // エラーコード
	Message string // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeUnavailable    = "UNAVAILABLE"
)

// NewUnauthorizedError はトークン欠落・無効時のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Code:    ErrCodeUnauthorized,
		Message: "unauthorized access",
	}
}

// NewForbiddenError は所有者不一致時のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Status:  http.StatusForbidden,
		Code:    ErrCodeForbidden,
		Message: "forbidden access",
	}
}

// NewInvalidRequestError はリクエストボディを解釈できない場合のエラーを生成する。
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    ErrCodeInvalidRequest,
		Message: message,
	}
}

// NewRateLimitedError はレート制限超過時のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Status:  http.StatusTooManyRequests,
		Code:    ErrCodeRateLimited,
		Message: "too many requests",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Status:  http.StatusInternalServerError,
		Code:    ErrCodeInternal,
		Message: "internal server error",
	}
}

// NewUnavailableError は依存先が利用できない場合のエラーを生成する。
func NewUnavailableError() *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    ErrCodeUnavailable,
		Message: "service unavailable",
	}
}
