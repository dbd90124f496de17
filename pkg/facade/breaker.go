package facade

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"storebot/pkg/logger"
)

// BreakerConfig 熔断装饰器配置
type BreakerConfig struct {
	Name        string        `yaml:"name"`          // 熔断器名称
	MaxRequests uint32        `yaml:"max_requests"`  // 半开状态下的最大请求数
	Interval    time.Duration `yaml:"interval"`      // 统计窗口时间
	Timeout     time.Duration `yaml:"timeout"`       // 熔断器打开后的超时时间
	ReadyToTrip uint32        `yaml:"ready_to_trip"` // 触发熔断的连续失败次数阈值
}

// DefaultBreakerConfig 默认熔断配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:        "lookup",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: 5,
	}
}

// Breaker 熔断装饰器：使用 sony/gobreaker 保护昂贵的上游调用
// （外部提供方、文档存储）。上游连续失败达到阈值后快速失败，
// 避免每个请求都等待一个已经不可用的依赖。
func Breaker(config BreakerConfig, fn Lookup) Lookup {
	log := logger.WithComponent("facade")

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ReadyToTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("熔断器 %s 状态从 %v 变更为 %v", name, from, to)
		},
	}
	cb := gobreaker.NewCircuitBreaker(settings)

	return func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return cb.Execute(func() (interface{}, error) {
			return fn(ctx, args...)
		})
	}
}
