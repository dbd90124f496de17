package facade

import (
	"context"

	"storebot/pkg/ratelimit"
)

// IdentityFunc 由调用参数解析出调用方身份
type IdentityFunc func(args ...interface{}) int64

// Throttled 限流装饰器：按调用方身份执行滑动窗口限流，
// 配额耗尽时返回 RATE_LIMITED 错误且不调用底层操作。
// 限流器自身的故障由其内部放行策略兜底，这里无需额外处理。
func Throttled(l *ratelimit.Limiter, identityFn IdentityFunc, fn Lookup) Lookup {
	return func(ctx context.Context, args ...interface{}) (interface{}, error) {
		identity := identityFn(args...)

		allowed, _ := l.IsAllowed(identity)
		if !allowed {
			rlErr := ratelimit.NewRateLimitError(ratelimit.ErrRateLimited, "request quota exhausted")
			rlErr.WithContext("identity", identity)
			return nil, rlErr
		}

		return fn(ctx, args...)
	}
}
