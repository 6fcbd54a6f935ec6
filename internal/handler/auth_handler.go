package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/foodbridge/internal/auth"
	"github.com/hitoshi/foodbridge/internal/middleware"
	"github.com/hitoshi/foodbridge/internal/model"
)

// TokenIssuer は認証ハンドラーが必要とするトークン操作。
// auth.TokenServiceが実装する。
type TokenIssuer interface {
	Issue(claims auth.Claims) (string, error)
	Revoke(token string) error
	TTL() time.Duration
}

// TokenRecorder はトークン発行・失効の計測先。
type TokenRecorder interface {
	RecordTokenIssued()
	RecordTokenRevoked()
}

// CookieConfig はトークンCookieの属性設定。
type CookieConfig struct {
	// Production がtrueの場合はSecureかつSameSite=Noneを設定する。
	// falseの場合はSameSite=Strictで非Secure。
	Production bool
}

// AuthHandler はログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	tokens   TokenIssuer
	cookie   CookieConfig
	recorder TokenRecorder
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(tokens TokenIssuer, cookie CookieConfig, recorder TokenRecorder) *AuthHandler {
	return &AuthHandler{
		tokens:   tokens,
		cookie:   cookie,
		recorder: recorder,
	}
}

type successResponse struct {
	Success bool `json:"success"`
}

// Login はボディのクレームに署名したトークンをCookieに設定する。
// パスワード等の確認は行わず、クライアントが送ったクレームをそのまま使う。
// POST /jwt
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var claims auth.Claims
	if err := json.NewDecoder(r.Body).Decode(&claims); err != nil || claims == nil {
		writeInvalidBody(w)
		return
	}

	token, err := h.tokens.Issue(claims)
	if errors.Is(err, auth.ErrMissingEmail) {
		middleware.WriteErrorResponse(w, model.NewInvalidRequestError("email is required"))
		return
	}
	if err != nil {
		slog.Error("failed to issue token", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	h.recorder.RecordTokenIssued()

	cookie := h.tokenCookie(token)
	if ttl := h.tokens.TTL(); ttl > 0 {
		cookie.MaxAge = int(ttl / time.Second)
	}
	http.SetCookie(w, cookie)

	slog.Info("token issued", slog.String("email", claims.Email()))
	writeJSON(w, successResponse{Success: true})
}

// Logout はトークンCookieを削除する。
// 検証可能なトークンは失効リストにも追加し、Cookieを保持したままのクライアントでも使えなくする。
// POST /logout, GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(middleware.TokenCookieName); err == nil && c.Value != "" {
		if err := h.tokens.Revoke(c.Value); err != nil {
			// すでに無効なトークンは失効させる必要がない
			slog.Debug("logout with unusable token", slog.String("error", err.Error()))
		} else {
			h.recorder.RecordTokenRevoked()
		}
	}

	cookie := h.tokenCookie("")
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)

	writeJSON(w, successResponse{Success: true})
}

// tokenCookie はログイン・ログアウトで共通の属性を持つCookieを返す。
func (h *AuthHandler) tokenCookie(value string) *http.Cookie {
	c := &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	if h.cookie.Production {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}
