package database

import (
	"context"
	"sync"
	"time"
)

const pingTimeout = 2 * time.Second

// HealthChecker 周期性 Ping 全局 DB，结果供 /health 与 /ready 使用
type HealthChecker struct {
	interval time.Duration
	now      func() time.Time

	mu          sync.RWMutex
	healthy     bool
	lastErr     string
	lastCheck   time.Time
	latency     time.Duration
	failStreak  int
	checkedOnce bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHealthChecker 创建健康检查器，interval <= 0 时为 30 秒
func NewHealthChecker(interval time.Duration) *HealthChecker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthChecker{interval: interval, now: time.Now, stop: make(chan struct{})}
}

// Start 立即检查一次，之后按间隔在后台检查
func (c *HealthChecker) Start() {
	c.check()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.check()
			}
		}
	}()
	log.Info("Database health checker started", "interval", c.interval)
}

// Stop 停止后台检查并等待其退出
func (c *HealthChecker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		log.Info("Database health checker stopped")
	})
}

func (c *HealthChecker) check() {
	start := c.now()
	err := ping()
	elapsed := c.now().Sub(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCheck = start
	c.latency = elapsed
	wasHealthy := c.healthy || !c.checkedOnce
	c.checkedOnce = true
	if err != nil {
		c.failStreak++
		if wasHealthy {
			log.Warn("Database health check failed", "error", err)
		}
		c.healthy = false
		c.lastErr = err.Error()
		return
	}
	if !wasHealthy {
		log.Info("Database health recovered", "failed_checks", c.failStreak)
	}
	c.healthy = true
	c.lastErr = ""
	c.failStreak = 0
}

func ping() error {
	db := DB
	if db == nil {
		return errDBNotInitialized
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return db.PingContext(ctx)
}

// IsHealthy 最近一次检查是否成功
func (c *HealthChecker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// GetStatus 最近一次检查的详情与连接池统计
func (c *HealthChecker) GetStatus() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := map[string]interface{}{
		"healthy":     c.healthy,
		"path":        dbFile,
		"last_check":  c.lastCheck,
		"latency_ms":  float64(c.latency.Microseconds()) / 1000,
		"connections": GetConnectionStats(),
	}
	if c.lastErr != "" {
		status["error"] = c.lastErr
		status["failed_checks"] = c.failStreak
	}
	return status
}

// ConnectionStats 连接池统计
type ConnectionStats struct {
	Open         int `json:"open"`
	InUse        int `json:"in_use"`
	Idle         int `json:"idle"`
	MaxOpenConns int `json:"max_open_conns"`
}

// GetConnectionStats 全局 DB 的连接池统计，未初始化时为零值
func GetConnectionStats() ConnectionStats {
	db := DB
	if db == nil {
		return ConnectionStats{}
	}
	s := db.Stats()
	return ConnectionStats{Open: s.OpenConnections, InUse: s.InUse, Idle: s.Idle, MaxOpenConns: s.MaxOpenConnections}
}
