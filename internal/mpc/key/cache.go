package key

import (
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultCacheTTL 内存中保留实例的时长
	DefaultCacheTTL = 6 * time.Minute
	// DefaultCacheSweep 过期清理周期
	DefaultCacheSweep = 60 * time.Second
)

// Cache 按实例 id 保存进行中的密钥，过期后无论状态如何都会被移除
type Cache struct {
	items *gocache.Cache
}

// NewCache 创建密钥缓存
func NewCache(ttl, sweep time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if sweep <= 0 {
		sweep = DefaultCacheSweep
	}
	items := gocache.New(ttl, sweep)
	items.OnEvicted(func(id string, v interface{}) {
		if k, ok := v.(*DistributedKey); ok {
			k.Release()
		}
		log.Debug().Str("key_id", id).Msg("Evicted distributed key from cache")
	})
	return &Cache{items: items}
}

// Add 添加新实例，id 已存在时返回错误
func (c *Cache) Add(k *DistributedKey) error {
	if err := c.items.Add(k.ID(), k, gocache.DefaultExpiration); err != nil {
		return protocol.NewViolationError(k.ID(), "key already exist")
	}
	return nil
}

// Pin 保存不过期的实例（生产密钥）
func (c *Cache) Pin(k *DistributedKey) {
	c.items.Set(k.ID(), k, gocache.NoExpiration)
}

// Get 获取未过期的实例
func (c *Cache) Get(id string) (*DistributedKey, bool) {
	v, ok := c.items.Get(id)
	if !ok {
		return nil, false
	}
	k, ok := v.(*DistributedKey)
	return k, ok
}

// Delete 移除实例
func (c *Cache) Delete(id string) {
	c.items.Delete(id)
}

// Len 当前缓存的实例数，包含尚未清理的过期项
func (c *Cache) Len() int {
	return c.items.ItemCount()
}
