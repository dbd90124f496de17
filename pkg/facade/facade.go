// Package facade 提供查询操作的装饰器层。
// 外部协作方（指令处理器、持久层）通过这里的装饰器透明地获得
// 记忆化、限流与熔断能力，而不直接触碰底层的缓存或限流映射。
package facade

import (
	"context"
	"fmt"
	"strings"
)

// Lookup 任意昂贵的读取操作。Go 的阻塞调用加 context 同时覆盖了
// 同步与异步两种上游调用方式。
type Lookup func(ctx context.Context, args ...interface{}) (interface{}, error)

// KeyFunc 由参数推导缓存键的函数。键的推导契约由调用方显式给出，
// 而不是对调用签名做反射内省。
type KeyFunc func(args ...interface{}) string

// DefaultKey 默认键推导：各参数的字符串表示以 "|" 连接。
func DefaultKey(args ...interface{}) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprint(arg)
	}
	return strings.Join(parts, "|")
}

// Middleware 包装一个 Lookup 的装饰器
type Middleware func(Lookup) Lookup

// Chain 装饰器链，用于组合多个装饰器
type Chain struct {
	middlewares []Middleware
}

// NewChain 创建装饰器链
func NewChain() *Chain {
	return &Chain{
		middlewares: make([]Middleware, 0),
	}
}

// Use 添加装饰器到链中
func (c *Chain) Use(m Middleware) *Chain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Apply 应用装饰器链到指定的 Lookup，后添加的在外层。
func (c *Chain) Apply(base Lookup) Lookup {
	fn := base
	for _, m := range c.middlewares {
		fn = m(fn)
	}
	return fn
}
