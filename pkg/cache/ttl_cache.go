package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"storebot/pkg/logger"
	"storebot/pkg/store"
)

// Config TTL缓存配置，构造后不可变更。
type Config struct {
	MaxSize         int64         `json:"max_size"`         // 最大条目数量
	DefaultTTL      time.Duration `json:"default_ttl"`      // 默认TTL
	CleanupInterval time.Duration `json:"cleanup_interval"` // 清理间隔
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		MaxSize:         1000,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: 1 * time.Minute,
	}
}

// Validate 验证配置。非法配置属于编程错误，在构造期硬失败。
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return NewCacheError(ErrCacheConfigInvalid, "max_size must be positive")
	}
	if c.DefaultTTL <= 0 {
		return NewCacheError(ErrCacheConfigInvalid, "default_ttl must be positive")
	}
	if c.CleanupInterval <= 0 {
		return NewCacheError(ErrCacheConfigInvalid, "cleanup_interval must be positive")
	}
	return nil
}

// TTLCache 线程安全的内存TTL缓存。
// 容量超限时淘汰创建时间最早的条目，按插入时间而非访问时间，
// AccessTime 只参与统计。
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	config  Config

	hitCount  int64
	missCount int64

	janitor *store.Janitor
	log     *logrus.Entry

	lifeMu      sync.Mutex
	initialized bool
}

// New 创建TTL缓存。配置非法时返回错误。
// 后台清扫在 Initialize 中显式启动，而不是在构造时隐式进行。
func New(config Config) (*TTLCache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &TTLCache{
		entries: make(map[string]*Entry),
		config:  config,
		log:     logger.WithComponent("cache"),
	}
	c.janitor = store.NewJanitor(config.CleanupInterval, c.sweep, c.log)

	return c, nil
}

// Initialize 启动后台清扫协程。幂等。
// 即使从未调用，缓存依然通过 Get 路径上的惰性清扫保持正确。
func (c *TTLCache) Initialize() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.initialized {
		return
	}

	c.janitor.Start()
	c.initialized = true
	c.log.Debug("缓存已初始化，周期清扫已启动")
}

// Shutdown 停止后台清扫并清空全部条目。幂等。
// 先取消清扫并等待其退出，再清理状态，保证两者不会并发。
// 关闭后的缓存仍可安全使用，表现为一个只有惰性清扫的空缓存。
func (c *TTLCache) Shutdown() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.janitor.Stop()

	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	atomic.StoreInt64(&c.hitCount, 0)
	atomic.StoreInt64(&c.missCount, 0)
	c.mu.Unlock()

	if c.initialized {
		c.initialized = false
		c.log.Info("缓存已关闭")
	}
}

// Get 获取缓存值。键不存在或已逻辑过期时返回 CACHE_MISS，
// 过期条目在读取时被立即删除。任何内部异常都降级为未命中。
func (c *TTLCache) Get(ctx context.Context, key string) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("缓存读取内部异常，降级为未命中: %v", r)
			value, err = nil, ErrCacheMissNotFound
		}
	}()

	now := time.Now()
	c.janitor.MaybeSweep(now)

	c.mu.Lock()
	entry, exists := c.entries[key]
	if !exists {
		c.mu.Unlock()
		atomic.AddInt64(&c.missCount, 1)
		return nil, ErrCacheMissNotFound
	}

	// 逻辑过期即视为不存在，顺手删除
	if !now.Before(entry.ExpireTime) {
		delete(c.entries, key)
		c.mu.Unlock()
		atomic.AddInt64(&c.missCount, 1)
		return nil, ErrCacheMissNotFound
	}

	entry.AccessTime = now
	entry.HitCount++
	value = entry.Value
	c.mu.Unlock()

	atomic.AddInt64(&c.hitCount, 1)
	return value, nil
}

// Set 设置缓存值。ttl 非正时使用默认TTL。
// 插入会超出容量时先淘汰最旧条目；覆盖已有键会重置其创建/过期时间。
// 任何内部异常都降级为空操作。
func (c *TTLCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("缓存写入内部异常，降级为空操作: %v", r)
			err = nil
		}
	}()

	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	now := time.Now()
	entry := &Entry{
		Value:      value,
		ExpireTime: now.Add(ttl),
		AccessTime: now,
		CreateTime: now,
		HitCount:   0,
		Size:       store.EstimateSize(value),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// 覆盖已有键不会增加条目数，无需淘汰
	if _, exists := c.entries[key]; !exists && int64(len(c.entries)) >= c.config.MaxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	return nil
}

// Delete 删除缓存条目。键不存在时返回 CACHE_MISS。
func (c *TTLCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		return ErrCacheMissNotFound
	}
	delete(c.entries, key)
	return nil
}

// Clear 清空缓存
func (c *TTLCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	atomic.StoreInt64(&c.hitCount, 0)
	atomic.StoreInt64(&c.missCount, 0)
	return nil
}

// Stats 获取缓存统计信息。先执行一次清扫，统计只反映存活条目。
func (c *TTLCache) Stats() Stats {
	c.sweep(time.Now())

	c.mu.RLock()
	size := int64(len(c.entries))

	var totalHits, memory int64
	for key, entry := range c.entries {
		totalHits += entry.HitCount
		memory += store.EstimateEntrySize(key, entry.Size)
	}
	c.mu.RUnlock()

	var avgHits float64
	if size > 0 {
		avgHits = float64(totalHits) / float64(size)
	}

	hitCount := atomic.LoadInt64(&c.hitCount)
	missCount := atomic.LoadInt64(&c.missCount)

	var hitRate float64
	if total := hitCount + missCount; total > 0 {
		hitRate = float64(hitCount) / float64(total)
	}

	return Stats{
		Size:        size,
		MaxSize:     c.config.MaxSize,
		TotalHits:   totalHits,
		AvgHits:     avgHits,
		HitCount:    hitCount,
		MissCount:   missCount,
		HitRate:     hitRate,
		TTL:         c.config.DefaultTTL,
		MemoryUsage: memory,
		LastCleanup: c.janitor.LastSweep(),
	}
}

// LastCleanup 返回最近一次清扫时间
func (c *TTLCache) LastCleanup() time.Time {
	return c.janitor.LastSweep()
}

// sweep 清理所有逻辑过期的条目，返回移除数量。
// 周期清扫与惰性清扫共用此函数。
func (c *TTLCache) sweep(now time.Time) int {
	expiredKeys := make([]string, 0)

	c.mu.RLock()
	for key, entry := range c.entries {
		if !now.Before(entry.ExpireTime) {
			expiredKeys = append(expiredKeys, key)
		}
	}
	c.mu.RUnlock()

	if len(expiredKeys) == 0 {
		return 0
	}

	removed := 0
	c.mu.Lock()
	for _, key := range expiredKeys {
		// 读锁与写锁之间条目可能已被覆盖，删除前复核过期状态
		if entry, exists := c.entries[key]; exists && !now.Before(entry.ExpireTime) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	return removed
}

// evictOldest 淘汰创建时间最早的条目。调用方必须持有写锁。
func (c *TTLCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.CreateTime.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreateTime
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.log.Debugf("容量已满，淘汰最旧条目: %s", oldestKey)
	}
}

var _ Cache = (*TTLCache)(nil)
