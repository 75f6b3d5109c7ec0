package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"
)

// HealthStatus 健康检查状态
type HealthStatus struct {
	Status    string           `json:"status"` // healthy, degraded, unhealthy
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Checks    map[string]Check `json:"checks"`
	System    SystemInfo       `json:"system"`
	Database  interface{}      `json:"database,omitempty"`
}

// Check 单个检查项
type Check struct {
	Status  string `json:"status"` // pass, fail, skip
	Message string `json:"message,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	GoVersion  string  `json:"go_version"`
	Goroutines int     `json:"goroutines"`
	MemoryMB   float64 `json:"memory_mb"`
}

// startTime 程序启动时间
var startTime = time.Now()

const pingTimeout = 5 * time.Second

// Health 健康检查：数据库不可用为 unhealthy(503)，代理未连接为 degraded(200)
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: h.now(),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Checks:    make(map[string]Check),
		System: SystemInfo{
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
		},
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	status.System.MemoryMB = float64(m.Alloc) / 1024 / 1024

	if err := h.checkDatabase(r.Context()); err != nil {
		status.Checks["database"] = Check{Status: "fail", Message: err.Error()}
		status.Status = "unhealthy"
	} else {
		status.Checks["database"] = Check{Status: "pass", Message: "Connected"}
	}
	if h.monitor != nil {
		status.Database = h.monitor.GetStatus()
		if !h.monitor.IsHealthy() && status.Status == "healthy" {
			status.Status = "degraded"
		}
	}

	switch {
	case h.bridge == nil:
		status.Checks["broker"] = Check{Status: "skip", Message: errBridgeDisabledMessage}
	case h.bridge.IsConnected():
		status.Checks["broker"] = Check{Status: "pass", Message: h.bridge.Stats().Broker}
	default:
		status.Checks["broker"] = Check{Status: "fail", Message: "not connected"}
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
	}

	if h.node != nil && h.node.Pending() != nil {
		status.Checks["node_record"] = Check{Status: "fail", Message: "record changed on disk, restart required"}
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
	}

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

// Readiness 就绪检查
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.checkDatabase(r.Context()); err != nil {
		http.Error(w, "Not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Liveness 存活检查
func Liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return errNoDatabase
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return h.db.PingContext(ctx)
}
