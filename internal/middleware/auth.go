// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/foodbridge/internal/auth"
	"github.com/hitoshi/foodbridge/internal/model"
)

// TokenCookieName はアクセストークンを運ぶCookie名。
const TokenCookieName = "token"

// 認証失敗の理由ラベル。
const (
	AuthFailureMissing = "missing"
	AuthFailureInvalid = "invalid"
	AuthFailureExpired = "expired"
	AuthFailureRevoked = "revoked"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストに検証済みクレームを格納するためのキー。
var claimsContextKey = contextKey("claims")

// TokenVerifier はトークン検証に必要なインターフェース。
// auth.TokenServiceが実装する。
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// AuthFailureRecorder は認証失敗の計測先。
type AuthFailureRecorder interface {
	RecordAuthFailure(reason string)
}

// NewTokenMiddleware はCookieのトークンを検証し、クレームをコンテキストに注入するミドルウェアを返す。
// Cookieがない場合は検証を行わずに401を返す。
func NewTokenMiddleware(verifier TokenVerifier, recorder AuthFailureRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(TokenCookieName)
			if err != nil || cookie.Value == "" {
				recorder.RecordAuthFailure(AuthFailureMissing)
				WriteErrorResponse(w, model.NewUnauthorizedError())
				return
			}

			claims, err := verifier.Verify(cookie.Value)
			if err != nil {
				reason := authFailureReason(err)
				recorder.RecordAuthFailure(reason)
				slog.Debug("token verification failed",
					slog.String("reason", reason),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, model.NewUnauthorizedError())
				return
			}

			setRequestEmail(r.Context(), claims.Email())
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// NewOwnerGuard はURLパラメータparamのメールアドレスが認証済みユーザーと一致する場合のみ通すミドルウェアを返す。
// NewTokenMiddlewareの後に配置する。
func NewOwnerGuard(param string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := EmailFromContext(r.Context())
			if email == "" || PathParam(r, param) != email {
				WriteErrorResponse(w, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PathParam はURLパラメータnameをパーセントデコードして返す。
// chiはRawPathがある場合にエンコードされたままの値を返すため、a%40x.comのような値をここで復元する。
// デコードできない値はそのまま返す。
func PathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ClaimsFromContext はリクエストコンテキストから検証済みクレームを取得する。
// トークンミドルウェアを通過したリクエストでのみ有効。
func ClaimsFromContext(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(auth.Claims)
	return claims, ok
}

// EmailFromContext は認証済みユーザーのメールアドレスを返す。未認証の場合は空文字。
func EmailFromContext(ctx context.Context) string {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.Email()
}

// ContextWithClaims はコンテキストにクレームを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaims(ctx context.Context, claims auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return AuthFailureExpired
	case errors.Is(err, auth.ErrRevoked):
		return AuthFailureRevoked
	default:
		return AuthFailureInvalid
	}
}
