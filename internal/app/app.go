// Package app 组装并运行桥接服务
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gonglijing/biodataBridge/internal/auth"
	"github.com/gonglijing/biodataBridge/internal/bridge"
	"github.com/gonglijing/biodataBridge/internal/config"
	"github.com/gonglijing/biodataBridge/internal/database"
	"github.com/gonglijing/biodataBridge/internal/graceful"
	"github.com/gonglijing/biodataBridge/internal/handlers"
	"github.com/gonglijing/biodataBridge/internal/logger"
	"github.com/gonglijing/biodataBridge/internal/mapping"
	"github.com/gonglijing/biodataBridge/internal/metrics"
	"github.com/gonglijing/biodataBridge/internal/stream"
)

// Run boots the application and blocks until shutdown completes.
func Run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	holder, err := loadNodeRecord(cfg)
	if err != nil {
		return err
	}

	if err := initDatabase(cfg); err != nil {
		return err
	}

	gracefulMgr := graceful.NewGracefulShutdown(cfg.ShutdownTimeout)
	gracefulMgr.AddShutdownFunc("database", func(ctx context.Context) error {
		return database.Close()
	})

	dbMonitor := database.NewHealthChecker(30 * time.Second)
	dbMonitor.Start()
	gracefulMgr.AddShutdownFunc("database health checker", func(ctx context.Context) error {
		dbMonitor.Stop()
		return nil
	})

	m := metrics.New()
	mappingSvc := mapping.NewService(database.NewAssociationStore(database.DB), mapping.Options{
		CacheTTL: cfg.MappingCacheTTL,
		Metrics:  m,
	})

	hub := stream.NewHub(cfg.GetAllowedOrigins())
	gracefulMgr.AddShutdownFunc("stream hub", func(ctx context.Context) error {
		hub.Close()
		return nil
	})

	var br *bridge.Bridge
	if cfg.BridgeEnabled {
		br = bridge.New(holder.Running(), mappingSvc, bridge.Options{
			QueueSize:         cfg.BridgeQueueSize,
			QOS:               cfg.BridgeQOS,
			ReconnectInterval: cfg.BridgeReconnectInterval,
			Metrics:           m,
			Broadcaster:       hub,
		})
		if err := br.Start(gracefulMgr.Context()); err != nil {
			_ = database.Close()
			return fmt.Errorf("failed to start bridge: %w", err)
		}
		gracefulMgr.AddShutdownFunc("bridge", func(ctx context.Context) error {
			br.Stop()
			return nil
		})
	} else {
		logger.Info("MQTT bridge disabled")
	}

	startNodeWatcher(gracefulMgr.Context(), holder)

	authManager := auth.NewJWTManager(auth.Options{
		Secret:        loadOrGenerateSecretKey(cfg),
		TokenTTL:      cfg.TokenTTL,
		AdminUser:     cfg.AdminUser,
		AdminPassHash: cfg.AdminPasswordHash,
	})
	if !authManager.LoginEnabled() {
		logger.Warn("Admin password hash not configured, write endpoints are unreachable until it is set (see -hash-password)")
	}

	opts := handlers.Options{
		Mapping:   mappingSvc,
		Node:      holder,
		Auth:      authManager,
		DB:        database.DB,
		DBMonitor: dbMonitor,
		Limiter:   handlers.NewBruteForceLimiter(5, 15*time.Minute),
	}
	if br != nil {
		opts.Bridge = br
	}
	h, err := handlers.NewHandler(opts)
	if err != nil {
		_ = gracefulMgr.Shutdown()
		return fmt.Errorf("failed to create handlers: %w", err)
	}

	router := buildRouter(h, authManager, hub, m)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: buildHandlerChain(cfg, router),
	}
	timeouts(cfg).Apply(server)

	gracefulMgr.SetHTTPServer(server)
	gracefulMgr.Start()

	if err := serve(server, cfg, gracefulMgr); err != nil && err != http.ErrServerClosed {
		_ = gracefulMgr.Shutdown()
		return fmt.Errorf("server error: %w", err)
	}

	gracefulMgr.Wait()
	return nil
}

func timeouts(cfg *config.Config) *handlers.TimeoutConfig {
	t := handlers.DefaultTimeoutConfig()
	t.ReadTimeout = cfg.HTTPReadTimeout
	t.WriteTimeout = cfg.HTTPWriteTimeout
	t.IdleTimeout = cfg.HTTPIdleTimeout
	t.HandlerTimeout = cfg.HTTPHandlerTimeout
	t.ShutdownTimeout = cfg.ShutdownTimeout
	return t
}
