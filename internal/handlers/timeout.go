package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// TimeoutConfig 超时配置
type TimeoutConfig struct {
	ReadTimeout     time.Duration // 读取超时
	WriteTimeout    time.Duration // 写入超时
	IdleTimeout     time.Duration // 空闲超时
	HandlerTimeout  time.Duration // 单个请求的处理时限，传给数据库查询
	ShutdownTimeout time.Duration // 关闭超时
}

// DefaultTimeoutConfig 默认超时配置
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		HandlerTimeout:  15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Apply 把超时写入 http.Server
func (c *TimeoutConfig) Apply(srv *http.Server) {
	srv.ReadTimeout = c.ReadTimeout
	srv.ReadHeaderTimeout = c.ReadTimeout
	srv.WriteTimeout = c.WriteTimeout
	srv.IdleTimeout = c.IdleTimeout
}

// TimeoutMiddleware 为请求上下文设置截止时间；WebSocket 升级请求是长连接，不设置
func TimeoutMiddleware(cfg *TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg == nil || cfg.HandlerTimeout <= 0 || isWebSocketUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), cfg.HandlerTimeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
