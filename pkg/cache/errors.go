package cache

import (
	"errors"

	storeerror "storebot/pkg/error"
)

type CacheError struct {
	storeerror.BaseError
}

const (
	// ErrCacheMiss 表示在缓存中未找到请求的条目。
	ErrCacheMiss storeerror.ErrorCode = "CACHE_MISS"
	// ErrCacheConfigInvalid 表示缓存配置无效。
	ErrCacheConfigInvalid storeerror.ErrorCode = "CACHE_CONFIG_INVALID"
)

var (
	ErrCacheMissNotFound = NewCacheError(ErrCacheMiss, "cache entry not found")
)

func NewCacheError(code storeerror.ErrorCode, message string) *CacheError {
	return &CacheError{
		BaseError: *storeerror.NewError(code, message),
	}
}

// IsMiss 判断一个错误是否为缓存未命中。
func IsMiss(err error) bool {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Code == ErrCacheMiss
	}
	return false
}
