// Package auth はアクセストークンの発行・検証・失効を提供する。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 検証・発行時のエラー。呼び出し側はerrors.Isで判定する。
var (
	// ErrInvalid は署名不一致、アルゴリズム不一致、形式不正のトークンを表す。
	ErrInvalid = errors.New("invalid token")
	// ErrExpired は有効期限切れのトークンを表す。
	ErrExpired = errors.New("token expired")
	// ErrRevoked はログアウト済みで失効リストに載っているトークンを表す。
	ErrRevoked = errors.New("token revoked")
	// ErrMissingEmail はemailクレームを含まない発行要求を表す。
	ErrMissingEmail = errors.New("claims must include an email")
)

// ClaimEmail はユーザーを識別するクレーム名。
const ClaimEmail = "email"

// Claims はトークンに埋め込まれるクレーム。
// ログイン時にクライアントが送ったJSONオブジェクトをそのまま保持する。
type Claims map[string]any

// Email はemailクレームを返す。文字列でない場合は空文字を返す。
func (c Claims) Email() string {
	email, _ := c[ClaimEmail].(string)
	return email
}

// TokenService はHS256署名のアクセストークンを扱う。
// 秘密鍵とTTLは起動時に一度だけ設定され、以降は変更されない。
type TokenService struct {
	secret   []byte
	ttl      time.Duration
	denylist *DenyList
	now      func() time.Time
}

// NewTokenService はTokenServiceを生成する。
// ttlが0の場合はexpを含まないトークンを発行する。
// denylistがnilの場合、Revokeは何もしない。
func NewTokenService(secret string, ttl time.Duration, denylist *DenyList) *TokenService {
	return &TokenService{
		secret:   []byte(secret),
		ttl:      ttl,
		denylist: denylist,
		now:      time.Now,
	}
}

// TTL はトークンの有効期間を返す。
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue はclaimsに署名したトークンを返す。
// TTLが設定されている場合はexpを追加する。引数のclaimsは変更しない。
func (s *TokenService) Issue(claims Claims) (string, error) {
	if claims.Email() == "" {
		return "", ErrMissingEmail
	}

	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	if s.ttl > 0 {
		mc["exp"] = jwt.NewNumericDate(s.now().Add(s.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、埋め込まれたクレームを返す。
func (s *TokenService) Verify(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, mc, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if s.denylist != nil && s.denylist.Contains(token) {
		return nil, ErrRevoked
	}

	return Claims(mc), nil
}

// Revoke は検証に成功したトークンを失効リストに追加する。
// 検証できないトークンはすでに使えないため、Verifyのエラーをそのまま返す。
func (s *TokenService) Revoke(token string) error {
	if _, err := s.Verify(token); err != nil {
		return err
	}
	if s.denylist != nil {
		s.denylist.Add(token)
	}
	return nil
}

func (s *TokenService) keyFunc(*jwt.Token) (any, error) {
	return s.secret, nil
}
