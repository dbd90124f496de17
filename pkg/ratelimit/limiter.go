// Package ratelimit 提供按调用方身份的滑动窗口限流器。
// 它逐条记录窗口内的请求时间戳而不是维护可补充的计数器（非令牌桶），
// 以 O(窗口请求数) 的内存换取精确的窗口边界。限流器是前置的
// 保护层而非硬依赖：内部故障一律放行，限流永远不应成为服务中断。
package ratelimit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"storebot/pkg/logger"
	"storebot/pkg/store"
)

// Config 限流配置，构造后不可变更。
type Config struct {
	MaxRequests     int           `json:"max_requests"`     // 窗口内最大请求数
	Window          time.Duration `json:"window"`           // 滑动窗口长度
	CleanupInterval time.Duration `json:"cleanup_interval"` // 清理间隔
}

// DefaultConfig 返回默认限流配置
func DefaultConfig() Config {
	return Config{
		MaxRequests:     60,
		Window:          60 * time.Second,
		CleanupInterval: 5 * time.Minute,
	}
}

// Validate 验证配置。非法配置属于编程错误，在构造期硬失败。
func (c Config) Validate() error {
	if c.MaxRequests <= 0 {
		return NewRateLimitError(ErrRateLimitConfigInvalid, "max_requests must be positive")
	}
	if c.Window <= 0 {
		return NewRateLimitError(ErrRateLimitConfigInvalid, "window must be positive")
	}
	if c.CleanupInterval <= 0 {
		return NewRateLimitError(ErrRateLimitConfigInvalid, "cleanup_interval must be positive")
	}
	return nil
}

// IdentityStats 单个调用方的限流统计
type IdentityStats struct {
	RequestsMade      int           `json:"requests_made"`      // 窗口内已发出的请求数
	RequestsRemaining int           `json:"requests_remaining"` // 剩余可用请求数
	Window            time.Duration `json:"window"`             // 窗口长度
	ResetTime         time.Time     `json:"reset_time"`         // 窗口重置时间
}

// AggregateStats 限流器整体统计
type AggregateStats struct {
	TotalIdentities int           `json:"total_identities"` // 当前跟踪的调用方数量
	TotalRequests   int           `json:"total_requests"`   // 全部窗口内的请求总数
	MaxRequests     int           `json:"max_requests"`     // 单个调用方的请求上限
	Window          time.Duration `json:"window"`           // 窗口长度
	MemoryUsage     int64         `json:"memory_usage"`     // 内存占用估算（字节）
}

// Limiter 滑动窗口限流器。
// 映射中绝不保留空窗口的调用方，空闲身份的内存会归零。
type Limiter struct {
	mu      sync.Mutex
	windows map[int64][]time.Time
	config  Config

	janitor *store.Janitor
	log     *logrus.Entry

	lifeMu      sync.Mutex
	initialized bool
}

// New 创建限流器。配置非法时返回错误。
func New(config Config) (*Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		windows: make(map[int64][]time.Time),
		config:  config,
		log:     logger.WithComponent("ratelimit"),
	}
	l.janitor = store.NewJanitor(config.CleanupInterval, l.sweep, l.log)

	return l, nil
}

// Initialize 启动后台清扫协程。幂等。
func (l *Limiter) Initialize() {
	l.lifeMu.Lock()
	defer l.lifeMu.Unlock()

	if l.initialized {
		return
	}

	l.janitor.Start()
	l.initialized = true
	l.log.Debug("限流器已初始化，周期清扫已启动")
}

// Shutdown 停止后台清扫并清空全部窗口。幂等。
// 关闭后的限流器仍可安全使用，表现为一个只有惰性清扫的空限流器。
func (l *Limiter) Shutdown() {
	l.lifeMu.Lock()
	defer l.lifeMu.Unlock()

	l.janitor.Stop()

	l.mu.Lock()
	l.windows = make(map[int64][]time.Time)
	l.mu.Unlock()

	if l.initialized {
		l.initialized = false
		l.log.Info("限流器已关闭")
	}
}

// IsAllowed 判断调用方是否允许发起请求。
// 先剪除该调用方窗口外的时间戳；达到上限时拒绝且不记录本次请求，
// 否则记录当前时间并返回剩余配额。内部异常时放行。
func (l *Limiter) IsAllowed(identity int64) (allowed bool, remaining int) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorf("限流器内部异常，放行请求: %v", r)
			allowed, remaining = true, 0
		}
	}()

	now := time.Now()
	l.janitor.MaybeSweep(now)

	l.mu.Lock()
	defer l.mu.Unlock()

	window := l.pruneLocked(identity, now)

	if len(window) >= l.config.MaxRequests {
		return false, 0
	}

	l.windows[identity] = append(window, now)
	return true, l.config.MaxRequests - len(l.windows[identity])
}

// IdentityStats 获取单个调用方的限流统计。只剪除过期时间戳，不记录请求。
func (l *Limiter) IdentityStats(identity int64) IdentityStats {
	now := time.Now()

	l.mu.Lock()
	window := l.pruneLocked(identity, now)
	if len(window) > 0 {
		l.windows[identity] = window
	}
	made := len(window)
	var oldest time.Time
	if made > 0 {
		oldest = window[0]
	}
	l.mu.Unlock()

	remaining := l.config.MaxRequests - made
	if remaining < 0 {
		remaining = 0
	}

	resetTime := now.Add(l.config.Window)
	if made > 0 {
		// 最早的时间戳滑出窗口时配额开始恢复
		resetTime = oldest.Add(l.config.Window)
	}

	return IdentityStats{
		RequestsMade:      made,
		RequestsRemaining: remaining,
		Window:            l.config.Window,
		ResetTime:         resetTime,
	}
}

// Reset 强制清空指定调用方的窗口。返回该调用方此前是否被跟踪。
func (l *Limiter) Reset(identity int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.windows[identity]; !exists {
		return false
	}
	delete(l.windows, identity)
	return true
}

// Stats 获取限流器整体统计。先执行一次清扫，统计只反映存活窗口。
func (l *Limiter) Stats() AggregateStats {
	l.sweep(time.Now())

	l.mu.Lock()
	defer l.mu.Unlock()

	totalRequests := 0
	var memory int64
	for _, window := range l.windows {
		totalRequests += len(window)
		// 身份键 + 切片头 + 每个时间戳约24字节
		memory += 8 + 64 + int64(len(window))*24
	}

	return AggregateStats{
		TotalIdentities: len(l.windows),
		TotalRequests:   totalRequests,
		MaxRequests:     l.config.MaxRequests,
		Window:          l.config.Window,
		MemoryUsage:     memory,
	}
}

// LastCleanup 返回最近一次清扫时间
func (l *Limiter) LastCleanup() time.Time {
	return l.janitor.LastSweep()
}

// pruneLocked 剪除单个调用方窗口外的时间戳并返回剩余序列。
// 窗口为空时将该调用方从映射中移除。调用方必须持有锁。
// 边界判定为严格小于：恰好位于 now-window 的请求视为窗口外。
func (l *Limiter) pruneLocked(identity int64, now time.Time) []time.Time {
	window, exists := l.windows[identity]
	if !exists {
		return nil
	}

	kept := window[:0]
	for _, ts := range window {
		if now.Sub(ts) < l.config.Window {
			kept = append(kept, ts)
		}
	}

	if len(kept) == 0 {
		delete(l.windows, identity)
		return nil
	}

	l.windows[identity] = kept
	return kept
}

// sweep 剪除所有调用方窗口外的时间戳并移除空窗口，返回移除的
// 调用方数量。周期清扫与惰性清扫共用此函数。
func (l *Limiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for identity, window := range l.windows {
		kept := window[:0]
		for _, ts := range window {
			if now.Sub(ts) < l.config.Window {
				kept = append(kept, ts)
			}
		}

		if len(kept) == 0 {
			delete(l.windows, identity)
			removed++
		} else {
			l.windows[identity] = kept
		}
	}

	return removed
}
