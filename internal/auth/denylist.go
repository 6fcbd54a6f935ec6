package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DenyList はログアウト済みトークンのプロセス内失効リスト。
// エントリはトークンのTTL経過後に自動で消える（その時点でトークン自体も期限切れになる）。
// 容量を超えた場合は最も古いエントリから追い出される。
type DenyList struct {
	entries *expirable.LRU[string, struct{}]
}

// NewDenyList は最大size件、保持期間ttlの失効リストを生成する。
// ttlが0の場合、エントリは容量による追い出しまで保持される。
func NewDenyList(size int, ttl time.Duration) *DenyList {
	return &DenyList{
		entries: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// Add はトークンを失効させる。
func (d *DenyList) Add(token string) {
	d.entries.Add(tokenKey(token), struct{}{})
}

// Contains はトークンが失効済みかを返す。
func (d *DenyList) Contains(token string) bool {
	_, ok := d.entries.Get(tokenKey(token))
	return ok
}

// Len は保持中のエントリ数を返す。
func (d *DenyList) Len() int {
	return d.entries.Len()
}

// トークン本体ではなくハッシュを保持する
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
