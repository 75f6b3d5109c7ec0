package handlers

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gonglijing/biodataBridge/internal/logger"
	"github.com/gonglijing/biodataBridge/internal/metrics"
	"github.com/gorilla/mux"
)

// statusRecorder 记录状态码与写出字节数
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// Hijack WebSocket 升级需要
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if r.statusCode == 0 {
		r.statusCode = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

// Flush 透传 Flusher
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// routeName mux 路由模板，未匹配路由统一记为 unmatched，避免指标标签爆炸
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// InstrumentMiddleware 记录请求日志与 HTTP 指标，作为 mux 中间件使用
func InstrumentMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	log := logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.statusCode == 0 {
				rec.statusCode = http.StatusOK
			}

			elapsed := time.Since(start)
			route := routeName(r)
			if m != nil {
				m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.statusCode)).Inc()
				m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
			}
			log.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.RequestURI(),
				"route", route,
				"status", rec.statusCode,
				"bytes", rec.bytes,
				"duration", elapsed.String(),
			)
		})
	}
}
