package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"PlaceFinder-App/internal/domain/model"
)

const (
	DefaultCacheSize = 100
	DefaultCacheTTL  = 600 * time.Second
)

// PlacesCache 座標キー → ランキング済みスポット一覧のTTL付きLRUキャッシュ
//
// プロセス内のみ。ストアの内容と食い違っても正しさには影響しない（ミスしたらストアを見る）。
type PlacesCache struct {
	lru *expirable.LRU[string, []model.PlaceSummary]
	ttl time.Duration
}

// NewPlacesCache size・ttl が0以下ならデフォルト値（100件 / 600秒）
func NewPlacesCache(size int, ttl time.Duration) *PlacesCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &PlacesCache{
		lru: expirable.NewLRU[string, []model.PlaceSummary](size, nil, ttl),
		ttl: ttl,
	}
}

// Get 期限切れのエントリはミスになる
func (c *PlacesCache) Get(key model.CoordinateKey) ([]model.PlaceSummary, bool) {
	places, ok := c.lru.Get(key.String())
	if !ok {
		return nil, false
	}
	return model.CloneSummaries(places), true
}

// Put エントリ全体を置き換える（部分更新はしない）
func (c *PlacesCache) Put(key model.CoordinateKey, places []model.PlaceSummary) {
	c.lru.Add(key.String(), model.CloneSummaries(places))
}

func (c *PlacesCache) Invalidate(key model.CoordinateKey) {
	c.lru.Remove(key.String())
}

func (c *PlacesCache) Len() int {
	return c.lru.Len()
}

func (c *PlacesCache) TTL() time.Duration {
	return c.ttl
}
