package app

import (
	"fmt"
	"net/http"

	"github.com/gonglijing/biodataBridge/internal/auth"
	"github.com/gonglijing/biodataBridge/internal/config"
	"github.com/gonglijing/biodataBridge/internal/handlers"
	"github.com/gonglijing/biodataBridge/internal/logger"
	"github.com/gonglijing/biodataBridge/internal/metrics"
	"github.com/gonglijing/biodataBridge/internal/stream"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

func buildRouter(h *handlers.Handler, authManager *auth.JWTManager, hub *stream.Hub, m *metrics.Metrics) *mux.Router {
	r := mux.NewRouter()
	r.Use(handlers.InstrumentMiddleware(m))

	registerDevicePlantRoutes(r, h, authManager)
	registerAPIRoutes(r, h, authManager, hub)
	registerHealthRoutes(r, h, m)

	return r
}

// buildHandlerChain 由外到内：panic 恢复、代理头、CORS、限流、超时、压缩
func buildHandlerChain(cfg *config.Config, router http.Handler) http.Handler {
	timeoutConfig := handlers.DefaultTimeoutConfig()
	timeoutConfig.HandlerTimeout = cfg.HTTPHandlerTimeout

	var h http.Handler = gorillahandlers.CompressHandler(router)
	h = handlers.TimeoutMiddleware(timeoutConfig)(h)
	h = handlers.NewRateLimiter(cfg.RateLimitPerMinute).Middleware(h)
	h = corsMiddleware(cfg.GetAllowedOrigins())(h)
	if cfg.TrustProxy {
		h = gorillahandlers.ProxyHeaders(h)
	}
	return gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(recoveryLogger{}),
		gorillahandlers.PrintRecoveryStack(true),
	)(h)
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(origins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorillahandlers.AllowCredentials(),
	)
}

// recoveryLogger 把 RecoveryHandler 的输出转到结构化日志
type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	logger.Error("HTTP handler panic", fmt.Errorf("%s", fmt.Sprint(v...)))
}

func registerHealthRoutes(r *mux.Router, h *handlers.Handler, m *metrics.Metrics) {
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/ready", h.Readiness).Methods("GET")
	r.HandleFunc("/live", handlers.Liveness).Methods("GET")
	r.Handle("/metrics", m.Handler()).Methods("GET")
}
