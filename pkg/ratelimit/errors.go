package ratelimit

import (
	"errors"

	storeerror "storebot/pkg/error"
)

type RateLimitError struct {
	storeerror.BaseError
}

const (
	// ErrRateLimited 表示调用方在当前窗口内的请求配额已耗尽。
	ErrRateLimited storeerror.ErrorCode = "RATE_LIMITED"
	// ErrRateLimitConfigInvalid 表示限流配置无效。
	ErrRateLimitConfigInvalid storeerror.ErrorCode = "RATE_LIMIT_CONFIG_INVALID"
)

func NewRateLimitError(code storeerror.ErrorCode, message string) *RateLimitError {
	return &RateLimitError{
		BaseError: *storeerror.NewError(code, message),
	}
}

// IsRateLimited 判断一个错误是否为限流拒绝。
func IsRateLimited(err error) bool {
	var re *RateLimitError
	if errors.As(err, &re) {
		return re.Code == ErrRateLimited
	}
	return false
}
