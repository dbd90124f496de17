package facade

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storebot/pkg/cache"
	"storebot/pkg/ratelimit"
)

func newTestCache(t *testing.T) *cache.TTLCache {
	t.Helper()
	c, err := cache.New(cache.Config{
		MaxSize:         100,
		DefaultTTL:      1 * time.Minute,
		CleanupInterval: 1 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

// 测试默认键推导
func TestDefaultKey(t *testing.T) {
	assert.Equal(t, "", DefaultKey())
	assert.Equal(t, "42", DefaultKey(42))
	assert.Equal(t, "svc|42|true", DefaultKey("svc", 42, true))
}

// 测试记忆化：命中时不调用底层操作，未命中时调用并缓存
func TestCached_HitAndMiss(t *testing.T) {
	c := newTestCache(t)

	var calls int64
	lookup := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return args[0].(string) + "-result", nil
	}

	cached := Cached(c, CachedConfig{Prefix: "svc", Name: "getService"}, lookup)
	ctx := context.Background()

	// 首次调用未命中
	result, err := cached(ctx, "abc")
	assert.NoError(t, err)
	assert.Equal(t, "abc-result", result)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	// 相同参数命中缓存，不再调用底层操作
	result, err = cached(ctx, "abc")
	assert.NoError(t, err)
	assert.Equal(t, "abc-result", result)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	// 不同参数各自独立
	result, err = cached(ctx, "xyz")
	assert.NoError(t, err)
	assert.Equal(t, "xyz-result", result)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

// 测试记忆化的TTL：缓存过期后重新调用底层操作
func TestCached_TTL(t *testing.T) {
	c := newTestCache(t)

	var calls int64
	lookup := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return "v", nil
	}

	cached := Cached(c, CachedConfig{Prefix: "svc", Name: "op", TTL: 40 * time.Millisecond}, lookup)
	ctx := context.Background()

	cached(ctx, 1)
	cached(ctx, 1)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	time.Sleep(50 * time.Millisecond)

	cached(ctx, 1)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

// 测试底层操作出错时不缓存错误结果
func TestCached_ErrorNotCached(t *testing.T) {
	c := newTestCache(t)

	var calls int64
	failing := errors.New("upstream unavailable")
	lookup := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			return nil, failing
		}
		return "recovered", nil
	}

	cached := Cached(c, CachedConfig{Prefix: "svc", Name: "op"}, lookup)
	ctx := context.Background()

	_, err := cached(ctx, 1)
	assert.ErrorIs(t, err, failing)

	// 错误未被缓存，下次调用重新执行
	result, err := cached(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, "recovered", result)
}

// 测试自定义键推导函数
func TestCached_CustomKeyFunc(t *testing.T) {
	c := newTestCache(t)

	var calls int64
	lookup := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return "v", nil
	}

	// 忽略第二个参数，只按第一个参数区分
	keyFn := func(args ...interface{}) string {
		return DefaultKey(args[0])
	}

	cached := Cached(c, CachedConfig{Prefix: "svc", Name: "op", KeyFunc: keyFn}, lookup)
	ctx := context.Background()

	cached(ctx, "a", 1)
	cached(ctx, "a", 2)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

// 测试键推导异常时放弃缓存、直接调用底层操作（fail-open）
func TestCached_KeyPanicFailsOpen(t *testing.T) {
	c := newTestCache(t)

	var calls int64
	lookup := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return "v", nil
	}

	keyFn := func(args ...interface{}) string {
		panic("unserializable key")
	}

	cached := Cached(c, CachedConfig{Prefix: "svc", Name: "op", KeyFunc: keyFn}, lookup)
	ctx := context.Background()

	// 不会panic，每次都走底层操作
	result, err := cached(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, "v", result)

	cached(ctx, 1)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

// 测试限流装饰器：配额耗尽时拒绝且不调用底层操作
func TestThrottled(t *testing.T) {
	l, err := ratelimit.New(ratelimit.Config{
		MaxRequests:     2,
		Window:          1 * time.Minute,
		CleanupInterval: 1 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(l.Shutdown)

	var calls int64
	lookup := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return "v", nil
	}

	identityFn := func(args ...interface{}) int64 {
		return args[0].(int64)
	}

	throttled := Throttled(l, identityFn, lookup)
	ctx := context.Background()

	_, err = throttled(ctx, int64(100))
	assert.NoError(t, err)
	_, err = throttled(ctx, int64(100))
	assert.NoError(t, err)

	_, err = throttled(ctx, int64(100))
	assert.Error(t, err)
	assert.True(t, ratelimit.IsRateLimited(err))
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls), "被拒绝的请求不应触达底层操作")

	// 其他调用方不受影响
	_, err = throttled(ctx, int64(200))
	assert.NoError(t, err)
}

// 测试熔断装饰器：连续失败达到阈值后快速失败
func TestBreaker(t *testing.T) {
	var calls int64
	failing := errors.New("provider down")
	lookup := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return nil, failing
	}

	config := DefaultBreakerConfig()
	config.ReadyToTrip = 3
	protected := Breaker(config, lookup)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := protected(ctx)
		assert.ErrorIs(t, err, failing)
	}

	// 熔断已打开，请求不再触达底层操作
	_, err := protected(ctx)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, failing)
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

// 测试装饰器链的组合与包装顺序
func TestChain_Apply(t *testing.T) {
	var order []string

	tag := func(name string) Middleware {
		return func(next Lookup) Lookup {
			return func(ctx context.Context, args ...interface{}) (interface{}, error) {
				order = append(order, name)
				return next(ctx, args...)
			}
		}
	}

	base := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		order = append(order, "base")
		return nil, nil
	}

	chain := NewChain().Use(tag("inner")).Use(tag("outer"))
	wrapped := chain.Apply(base)

	wrapped(context.Background())
	assert.Equal(t, []string{"outer", "inner", "base"}, order)
}

// 测试记忆化与限流装饰器的组合：缓存命中不消耗限流配额
func TestChain_CachedWithThrottle(t *testing.T) {
	c := newTestCache(t)
	l, err := ratelimit.New(ratelimit.Config{
		MaxRequests:     2,
		Window:          1 * time.Minute,
		CleanupInterval: 1 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(l.Shutdown)

	var calls int64
	base := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return "v", nil
	}

	identityFn := func(args ...interface{}) int64 { return args[0].(int64) }

	// 限流在内层，缓存在外层：命中缓存的请求不经过限流
	lookup := Cached(c, CachedConfig{Prefix: "svc", Name: "op"},
		Throttled(l, identityFn, base))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := lookup(ctx, int64(300))
		assert.NoError(t, err)
		assert.Equal(t, "v", result)
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	assert.Equal(t, 1, l.IdentityStats(300).RequestsMade)
}
