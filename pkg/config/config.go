// Package config 提供整个进程的配置加载与校验。
// 配置在组合根处加载一次，之后以不可变值的形式注入各组件。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"storebot/pkg/cache"
	"storebot/pkg/logger"
	"storebot/pkg/ratelimit"
)

// Config 主配置结构
type Config struct {
	// 缓存配置
	Cache CacheConfig `mapstructure:"cache"`

	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
}

// CacheConfig TTL缓存配置
type CacheConfig struct {
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`      // 默认TTL
	MaxSize         int64         `mapstructure:"max_size"`         // 最大条目数量
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // 清理间隔
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	MaxRequests     int           `mapstructure:"max_requests"`     // 窗口内最大请求数
	Window          time.Duration `mapstructure:"window"`           // 滑动窗口长度
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // 清理间隔
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别 (debug, info, warn, error)
	Format string `mapstructure:"format"` // 日志格式 (text, json)
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			DefaultTTL:      5 * time.Minute,
			MaxSize:         1000,
			CleanupInterval: 1 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:     60,
			Window:          60 * time.Second,
			CleanupInterval: 5 * time.Minute,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load 加载配置。path 为空时在 ./config 与当前目录中查找
// storebot.yaml，找不到配置文件时使用默认值。环境变量
// （前缀 STOREBOT）覆盖文件中的同名配置。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("storebot")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	defaults := Default()
	v.SetDefault("cache.default_ttl", defaults.Cache.DefaultTTL)
	v.SetDefault("cache.max_size", defaults.Cache.MaxSize)
	v.SetDefault("cache.cleanup_interval", defaults.Cache.CleanupInterval)
	v.SetDefault("rate_limit.max_requests", defaults.RateLimit.MaxRequests)
	v.SetDefault("rate_limit.window", defaults.RateLimit.Window)
	v.SetDefault("rate_limit.cleanup_interval", defaults.RateLimit.CleanupInterval)
	v.SetDefault("logger.level", defaults.Logger.Level)
	v.SetDefault("logger.format", defaults.Logger.Format)

	v.SetEnvPrefix("STOREBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 验证配置。各组件的构造函数会再次校验自己的部分，
// 这里提前拦截以便在进程启动时给出完整的错误信息。
func (c *Config) Validate() error {
	if err := c.CacheConfig().Validate(); err != nil {
		return err
	}
	if err := c.RateLimitConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// CacheConfig 转换为缓存组件配置
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		MaxSize:         c.Cache.MaxSize,
		DefaultTTL:      c.Cache.DefaultTTL,
		CleanupInterval: c.Cache.CleanupInterval,
	}
}

// RateLimitConfig 转换为限流组件配置
func (c *Config) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		MaxRequests:     c.RateLimit.MaxRequests,
		Window:          c.RateLimit.Window,
		CleanupInterval: c.RateLimit.CleanupInterval,
	}
}

// LoggerConfig 转换为日志配置
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logger.Level,
		Format: c.Logger.Format,
	}
}
