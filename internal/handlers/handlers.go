// Package handlers HTTP 接口：设备-植物关联、节点记录、桥接状态、登录与健康检查
package handlers

import (
	"context"
	"time"

	"github.com/gonglijing/biodataBridge/internal/auth"
	"github.com/gonglijing/biodataBridge/internal/bridge"
	"github.com/gonglijing/biodataBridge/internal/logger"
	"github.com/gonglijing/biodataBridge/internal/models"
	"github.com/gonglijing/biodataBridge/internal/nodeconfig"
)

// MappingService 设备-植物关联服务，由 mapping.Service 实现
type MappingService interface {
	Create(ctx context.Context, in models.AssociationInput) (*models.Association, error)
	ActiveFor(ctx context.Context, deviceID string, at time.Time) (*models.Association, error)
	ListFor(ctx context.Context, deviceID string) ([]*models.Association, error)
	Close(ctx context.Context, deviceID string, end *time.Time) (*models.Association, error)
	PlantsMap(ctx context.Context) ([]models.PlantMapEntry, error)
}

// BridgeStatus 桥接运行状态，由 bridge.Bridge 实现
type BridgeStatus interface {
	IsConnected() bool
	Stats() bridge.Stats
}

// Pinger 数据库连通性检查，*sql.DB 满足
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DBMonitor 后台数据库巡检，由 database.HealthChecker 实现
type DBMonitor interface {
	IsHealthy() bool
	GetStatus() map[string]interface{}
}

// Options 处理器依赖；Bridge 为空表示桥接未启用
type Options struct {
	Mapping   MappingService
	Node      *nodeconfig.Holder
	Bridge    BridgeStatus
	Auth      *auth.JWTManager
	DB        Pinger
	DBMonitor DBMonitor
	Limiter   *BruteForceLimiter
	Now       func() time.Time
}

// Handler Web处理器
type Handler struct {
	mapping MappingService
	node    *nodeconfig.Holder
	bridge  BridgeStatus
	auth    *auth.JWTManager
	db      Pinger
	monitor DBMonitor
	limiter *BruteForceLimiter
	now     func() time.Time
	log     *logger.StructuredLogger

	associationBody *bodyValidator
	closeBody       *bodyValidator
}

// NewHandler 创建处理器
func NewHandler(opts Options) (*Handler, error) {
	assocValidator, err := newBodyValidator("association.json", associationSchemaJSON)
	if err != nil {
		return nil, err
	}
	closeValidator, err := newBodyValidator("close.json", closeSchemaJSON)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewBruteForceLimiter(5, 15*time.Minute)
	}
	return &Handler{
		mapping:         opts.Mapping,
		node:            opts.Node,
		bridge:          opts.Bridge,
		auth:            opts.Auth,
		db:              opts.DB,
		monitor:         opts.DBMonitor,
		limiter:         limiter,
		now:             now,
		log:             logger.Named("http"),
		associationBody: assocValidator,
		closeBody:       closeValidator,
	}, nil
}
