// Package cache 提供进程内的 TTL 缓存实现，用于加速昂贵的查询操作。
// 缓存是尽力而为的加速层而非数据源：内部故障一律降级为未命中，
// 不会阻断调用方的主路径。
package cache

import (
	"context"
	"time"
)

// Cache 定义了缓存行为的接口。
type Cache interface {
	// Get 从缓存中获取一个值。未命中时返回 CACHE_MISS 错误。
	Get(ctx context.Context, key string) (interface{}, error)
	// Set 向缓存中设置一个值，可以指定TTL（生存时间）。
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Delete 从缓存中删除一个值。
	Delete(ctx context.Context, key string) error
	// Clear 清空所有缓存条目。
	Clear(ctx context.Context) error
	// Stats 获取缓存的统计信息。
	Stats() Stats
}

// Entry 代表缓存中的一个条目。
// ExpireTime 之后（含边界）该条目即为逻辑过期，读取方必须视其为
// 不存在，即使它在下一次清扫前仍物理驻留在映射中。
type Entry struct {
	Value      interface{} // 缓存的值
	ExpireTime time.Time   // 过期时间
	AccessTime time.Time   // 最后访问时间
	CreateTime time.Time   // 创建时间
	HitCount   int64       // 命中次数，仅用于观测
	Size       int64       // 条目大小估算（字节）
}

// Stats 包含了缓存的详细统计信息。
type Stats struct {
	Size        int64         `json:"size"`         // 当前缓存中的条目数
	MaxSize     int64         `json:"max_size"`     // 缓存最大容量
	TotalHits   int64         `json:"total_hits"`   // 存活条目的命中次数总和
	AvgHits     float64       `json:"avg_hits"`     // 平均每条命中次数
	HitCount    int64         `json:"hit_count"`    // 查询命中次数
	MissCount   int64         `json:"miss_count"`   // 查询未命中次数
	HitRate     float64       `json:"hit_rate"`     // 命中率
	TTL         time.Duration `json:"ttl"`          // 默认的生存时间
	MemoryUsage int64         `json:"memory_usage"` // 内存占用估算（字节）
	LastCleanup time.Time     `json:"last_cleanup"` // 最后一次清理过期条目的时间
}
