package facade

import (
	"context"
	"fmt"
	"time"

	"storebot/pkg/cache"
	"storebot/pkg/logger"
)

// CachedConfig 记忆化装饰器配置
type CachedConfig struct {
	Prefix  string        // 缓存键前缀，用于按业务域隔离
	Name    string        // 被装饰操作的名称，参与缓存键
	TTL     time.Duration // 缓存结果的TTL，非正时使用缓存的默认TTL
	KeyFunc KeyFunc       // 键推导函数，nil 时使用 DefaultKey
}

// Cached 记忆化装饰器：按 (prefix, name, args) 推导缓存键，
// 命中时直接返回缓存值，未命中时调用底层操作并缓存其结果。
// 缓存故障（含未命中）一律回落到底层操作，绝不阻断主路径。
// 不做并发未命中的合并：两个并发调用方可能各自触发一次底层调用，
// 对幂等的底层操作无影响。
func Cached(c cache.Cache, config CachedConfig, fn Lookup) Lookup {
	keyFn := config.KeyFunc
	if keyFn == nil {
		keyFn = DefaultKey
	}
	log := logger.WithComponent("facade")

	return func(ctx context.Context, args ...interface{}) (interface{}, error) {
		key, keyOK := deriveKey(config.Prefix, config.Name, keyFn, args)

		if keyOK {
			if value, err := c.Get(ctx, key); err == nil {
				log.Debugf("缓存命中: %s", key)
				return value, nil
			}
		}

		result, err := fn(ctx, args...)
		if err != nil {
			return nil, err
		}

		if keyOK {
			if err := c.Set(ctx, key, result, config.TTL); err != nil {
				log.Warnf("缓存写入失败，忽略: %v", err)
			} else {
				log.Debugf("缓存未命中，已缓存: %s", key)
			}
		}

		return result, nil
	}
}

// deriveKey 推导完整缓存键。键推导异常时放弃缓存，直接走底层操作。
func deriveKey(prefix, name string, keyFn KeyFunc, args []interface{}) (key string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("facade").Errorf("缓存键推导失败，跳过缓存: %v", r)
			key, ok = "", false
		}
	}()

	return fmt.Sprintf("%s:%s:%s", prefix, name, keyFn(args...)), true
}
