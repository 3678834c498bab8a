package utils

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheItem 包装缓存数据和过期时间
type CacheItem[V any] struct {
	Data      V
	ExpiresAt time.Time
}

// TTLCache 带过期时间的 LRU 缓存
type TTLCache[V any] struct {
	lruCache *lru.Cache[string, CacheItem[V]]
	ttl      time.Duration
	now      func() time.Time
}

// NewTTLCache 创建容量为 size 的缓存
func NewTTLCache[V any](size int, ttl time.Duration) *TTLCache[V] {
	l, err := lru.New[string, CacheItem[V]](size)
	if err != nil {
		// 只有 size <= 0 时会出错
		panic(err)
	}
	return &TTLCache[V]{lruCache: l, ttl: ttl, now: time.Now}
}

// Set 写入缓存
func (c *TTLCache[V]) Set(key string, data V) {
	c.lruCache.Add(key, CacheItem[V]{
		Data:      data,
		ExpiresAt: c.now().Add(c.ttl),
	})
}

// Get 取缓存，不存在或已过期时 ok 为 false
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V
	val, ok := c.lruCache.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().After(val.ExpiresAt) {
		c.lruCache.Remove(key)
		return zero, false
	}
	return val.Data, true
}

// Delete 删除指定缓存
func (c *TTLCache[V]) Delete(key string) {
	c.lruCache.Remove(key)
}

var (
	nameCache     *TTLCache[string]
	nameCacheOnce sync.Once
)

// GetNameCache 进程内共享的昵称缓存，容量 2000，有效期 1 分钟
func GetNameCache() *TTLCache[string] {
	nameCacheOnce.Do(func() {
		nameCache = NewTTLCache[string](2000, time.Minute)
	})
	return nameCache
}
