// state_monitor 是缓存与限流组件的诊断服务。
// 它作为组合根构造并持有两个组件实例，通过 HTTP 暴露统计与
// 运维操作，并周期性地将状态快照写入日志。
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"storebot/pkg/cache"
	"storebot/pkg/config"
	"storebot/pkg/facade"
	"storebot/pkg/logger"
	"storebot/pkg/ratelimit"
)

var (
	listenAddr = flag.String("listen", ":8080", "HTTP 监听地址")
	configPath = flag.String("config", "", "配置文件路径 (例如 ./config/storebot.yaml)")
	ginMode    = flag.String("gin-mode", "release", "Gin 运行模式 (debug, release, test)")
)

// Monitor 诊断服务
type Monitor struct {
	cache   *cache.TTLCache
	limiter *ratelimit.Limiter
	lookup  facade.Lookup
	server  *http.Server
	cron    *cron.Cron
	log     *logrus.Entry
}

// newProbeLookup 构造一条完整的装饰器链作为探针：
// 记忆化在最外层，其次限流，熔断贴着底层操作。
// 底层操作本身只回显参数，用于在真实流量到来前验证整条链路。
func newProbeLookup(c *cache.TTLCache, l *ratelimit.Limiter) facade.Lookup {
	base := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return gin.H{
			"identity": args[0],
			"key":      args[1],
			"probed":   time.Now().Format(time.RFC3339),
		}, nil
	}

	identityFn := func(args ...interface{}) int64 {
		return args[0].(int64)
	}

	chain := facade.NewChain().
		Use(func(next facade.Lookup) facade.Lookup {
			return facade.Breaker(facade.DefaultBreakerConfig(), next)
		}).
		Use(func(next facade.Lookup) facade.Lookup {
			return facade.Throttled(l, identityFn, next)
		}).
		Use(func(next facade.Lookup) facade.Lookup {
			return facade.Cached(c, facade.CachedConfig{Prefix: "probe", Name: "lookup"}, next)
		})

	return chain.Apply(base)
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.GetLogger().WithError(err).Fatal("加载配置失败")
	}

	logger.Init(cfg.LoggerConfig())
	log := logger.WithComponent("state_monitor")

	ttlCache, err := cache.New(cfg.CacheConfig())
	if err != nil {
		log.WithError(err).Fatal("创建缓存失败")
	}

	limiter, err := ratelimit.New(cfg.RateLimitConfig())
	if err != nil {
		log.WithError(err).Fatal("创建限流器失败")
	}

	ttlCache.Initialize()
	limiter.Initialize()

	monitor := &Monitor{
		cache:   ttlCache,
		limiter: limiter,
		lookup:  newProbeLookup(ttlCache, limiter),
		cron:    cron.New(),
		log:     log,
	}

	if err := monitor.Start(*listenAddr, *ginMode); err != nil {
		log.WithError(err).Fatal("启动诊断服务失败")
	}

	// 等待退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("正在关闭诊断服务...")
	monitor.Stop()
}

// Start 启动 HTTP 服务与周期快照任务
func (m *Monitor) Start(addr, mode string) error {
	gin.SetMode(mode)

	router := gin.New()
	router.Use(gin.Recovery(), requestIDMiddleware())

	router.GET("/health", m.handleHealth)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/cache/stats", m.handleCacheStats)
		v1.DELETE("/cache", m.handleCacheClear)
		v1.GET("/ratelimit/stats", m.handleLimiterStats)
		v1.GET("/ratelimit/check/:id", m.handleLimiterCheck)
		v1.GET("/ratelimit/identity/:id", m.handleIdentityStats)
		v1.POST("/ratelimit/reset/:id", m.handleLimiterReset)
		v1.GET("/probe/:id/:key", m.handleProbe)
	}

	// 每分钟记录一次状态快照
	if _, err := m.cron.AddFunc("@every 1m", m.logSnapshot); err != nil {
		return err
	}
	m.cron.Start()

	m.server = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.WithError(err).Error("HTTP 服务异常退出")
		}
	}()

	m.log.Infof("诊断服务已启动: %s", addr)
	return nil
}

// Stop 停止服务并关闭组件
func (m *Monitor) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.server.Shutdown(ctx); err != nil {
		m.log.WithError(err).Warn("HTTP 服务关闭超时")
	}

	cronCtx := m.cron.Stop()
	<-cronCtx.Done()

	m.cache.Shutdown()
	m.limiter.Shutdown()
	m.log.Info("诊断服务已关闭")
}

// requestIDMiddleware 为每个请求附加唯一的请求ID
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// logSnapshot 记录缓存与限流器的状态快照
func (m *Monitor) logSnapshot() {
	cacheStats := m.cache.Stats()
	limiterStats := m.limiter.Stats()

	m.log.WithFields(logrus.Fields{
		"cache_size":       cacheStats.Size,
		"cache_hit_rate":   cacheStats.HitRate,
		"cache_memory":     cacheStats.MemoryUsage,
		"total_identities": limiterStats.TotalIdentities,
		"total_requests":   limiterStats.TotalRequests,
		"limiter_memory":   limiterStats.MemoryUsage,
	}).Info("状态快照")
}

func (m *Monitor) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (m *Monitor) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, m.cache.Stats())
}

func (m *Monitor) handleCacheClear(c *gin.Context) {
	if err := m.cache.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (m *Monitor) handleLimiterStats(c *gin.Context) {
	c.JSON(http.StatusOK, m.limiter.Stats())
}

func (m *Monitor) handleLimiterCheck(c *gin.Context) {
	identity, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity"})
		return
	}

	allowed, remaining := m.limiter.IsAllowed(identity)
	c.JSON(http.StatusOK, gin.H{
		"identity":  identity,
		"allowed":   allowed,
		"remaining": remaining,
	})
}

func (m *Monitor) handleIdentityStats(c *gin.Context) {
	identity, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity"})
		return
	}

	c.JSON(http.StatusOK, m.limiter.IdentityStats(identity))
}

// handleProbe 让一次请求走完整条装饰器链，用于联调与压测
func (m *Monitor) handleProbe(c *gin.Context) {
	identity, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity"})
		return
	}

	result, err := m.lookup(c.Request.Context(), identity, c.Param("key"))
	if err != nil {
		if ratelimit.IsRateLimited(err) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (m *Monitor) handleLimiterReset(c *gin.Context) {
	identity, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reset": m.limiter.Reset(identity)})
}
