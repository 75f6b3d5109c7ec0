// Package mapping 设备-植物关联：创建、关闭、查询活动关联，以及为传感器消息添加植物标签
package mapping

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gonglijing/biodataBridge/internal/database"
	apperrors "github.com/gonglijing/biodataBridge/internal/errors"
	"github.com/gonglijing/biodataBridge/internal/logger"
	"github.com/gonglijing/biodataBridge/internal/metrics"
	"github.com/gonglijing/biodataBridge/internal/models"
)

// Store 关联持久化接口，由 database.AssociationStore 实现
type Store interface {
	Insert(ctx context.Context, a *models.Association) error
	InsertClosingPrevious(ctx context.Context, a *models.Association) (*models.Association, error)
	ActiveForDevice(ctx context.Context, deviceID string, at time.Time) (*models.Association, error)
	ListByDevice(ctx context.Context, deviceID string) ([]*models.Association, error)
	ListActive(ctx context.Context, at time.Time) ([]*models.Association, error)
	LatestOpen(ctx context.Context, deviceID string, notAfter time.Time) (*models.Association, error)
	SetEndTime(ctx context.Context, id string, end, updatedAt time.Time) error
}

// Options 服务参数
type Options struct {
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Service 关联服务
type Service struct {
	store   Store
	cache   *activeCache
	metrics *metrics.Metrics
	now     func() time.Time
	log     *logger.StructuredLogger

	// 写操作串行，保证“关闭旧关联再插入”与缓存失效的顺序
	writeMu sync.Mutex
}

// NewService 创建关联服务
func NewService(store Store, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		store:   store,
		cache:   newActiveCache(opts.CacheTTL),
		metrics: m,
		now:     now,
		log:     logger.Named("mapping"),
	}
}

func badRequest(field, message string) error {
	return apperrors.NewFieldError(apperrors.ErrCodeBadRequest, field, message)
}

func storeError(err error, message string) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperrors.NewErrorWithErr(apperrors.ErrCodeNotFound, message, err)
	}
	return apperrors.WrapError(err, apperrors.ErrCodeDatabaseError, message)
}

// storedTime 按库中精度（毫秒）截断，比较与返回值和读出的一致
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func validCoordinate(v *float64, min, max float64) bool {
	if v == nil {
		return true
	}
	return !math.IsNaN(*v) && !math.IsInf(*v, 0) && *v >= min && *v <= max
}

// Create 创建关联。未指定结束时间时，同设备最近一条 start <= 新 start 的未结束关联在新 start 处关闭。
func (s *Service) Create(ctx context.Context, in models.AssociationInput) (*models.Association, error) {
	deviceID := strings.TrimSpace(in.DeviceID)
	plantName := strings.TrimSpace(in.PlantName)
	if deviceID == "" {
		return nil, badRequest("device_id", "device_id and plant_name are required")
	}
	if plantName == "" {
		return nil, badRequest("plant_name", "device_id and plant_name are required")
	}
	if !validCoordinate(in.GPSLatitude, -90, 90) {
		return nil, badRequest("gps_latitude", "gps_latitude must be between -90 and 90")
	}
	if !validCoordinate(in.GPSLongitude, -180, 180) {
		return nil, badRequest("gps_longitude", "gps_longitude must be between -180 and 180")
	}
	if in.GPSAltitude != nil && (math.IsNaN(*in.GPSAltitude) || math.IsInf(*in.GPSAltitude, 0)) {
		return nil, badRequest("gps_altitude", "gps_altitude must be a finite number")
	}

	now := storedTime(s.now())
	start := now
	if in.StartTime != nil && !in.StartTime.IsZero() {
		start = storedTime(*in.StartTime)
	}
	var end *time.Time
	if in.EndTime != nil && !in.EndTime.IsZero() {
		e := storedTime(*in.EndTime)
		if !e.After(start) {
			return nil, badRequest("end_time", "end_time must be after start_time")
		}
		end = &e
	}

	species := in.PlantSpecies
	if species != nil && strings.TrimSpace(*species) == "" {
		species = nil
	}
	extra := in.AdditionalData
	if extra == nil {
		extra = map[string]interface{}{}
	}

	assoc := &models.Association{
		ID:             NewAssociationID(now),
		DeviceID:       deviceID,
		PlantName:      plantName,
		PlantSpecies:   species,
		GPSLatitude:    in.GPSLatitude,
		GPSLongitude:   in.GPSLongitude,
		GPSAltitude:    in.GPSAltitude,
		AdditionalData: extra,
		StartTime:      start,
		EndTime:        end,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if end == nil {
		closed, err := s.store.InsertClosingPrevious(ctx, assoc)
		if err != nil {
			return nil, storeError(err, "failed to save association")
		}
		if closed != nil {
			s.metrics.AssociationsClosed.Inc()
			s.log.Info("Closed previous association", "device_id", deviceID, "association_id", closed.ID, "end_time", start)
		}
	} else if err := s.store.Insert(ctx, assoc); err != nil {
		return nil, storeError(err, "failed to save association")
	}

	s.cache.invalidate()
	s.metrics.AssociationsCreated.Inc()
	s.log.Info("Association created", "device_id", deviceID, "association_id", assoc.ID, "plant_name", plantName)
	return assoc, nil
}

// ActiveFor 设备在 at 时刻的活动关联，直接查库
func (s *Service) ActiveFor(ctx context.Context, deviceID string, at time.Time) (*models.Association, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, badRequest("device_id", "device_id is required")
	}
	assoc, err := s.store.ActiveForDevice(ctx, deviceID, at.UTC())
	if err != nil {
		return nil, storeError(err, "no active association found for device")
	}
	return assoc, nil
}

// Lookup 设备当前的活动关联，走缓存；没有关联时返回 nil, nil
func (s *Service) Lookup(ctx context.Context, deviceID string) (*models.Association, error) {
	now := s.now().UTC()
	if assoc, ok := s.cache.get(deviceID, now); ok {
		s.metrics.CacheHits.Inc()
		return assoc, nil
	}
	s.metrics.CacheMisses.Inc()

	gen := s.cache.generation()

	assoc, err := s.store.ActiveForDevice(ctx, deviceID, now)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, storeError(err, "failed to look up association")
	}
	if errors.Is(err, database.ErrNotFound) {
		assoc = nil
	}
	s.cache.put(deviceID, assoc, now, gen)
	return assoc, nil
}

// ListFor 设备的全部关联（含历史），开始时间倒序
func (s *Service) ListFor(ctx context.Context, deviceID string) ([]*models.Association, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, badRequest("device_id", "device_id is required")
	}
	list, err := s.store.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, storeError(err, "failed to list associations")
	}
	if list == nil {
		list = []*models.Association{}
	}
	return list, nil
}

// Close 关闭设备最近一条 start <= end 的未结束关联，end 为空时取当前时间
func (s *Service) Close(ctx context.Context, deviceID string, end *time.Time) (*models.Association, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, badRequest("device_id", "device_id is required")
	}

	now := storedTime(s.now())
	endTime := now
	if end != nil && !end.IsZero() {
		endTime = storedTime(*end)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	open, err := s.store.LatestOpen(ctx, deviceID, endTime)
	if err != nil {
		return nil, storeError(err, "no active association found to close")
	}
	if !endTime.After(open.StartTime) {
		return nil, badRequest("end_time", "end_time must be after start_time")
	}
	if err := s.store.SetEndTime(ctx, open.ID, endTime, now); err != nil {
		return nil, storeError(err, "failed to close association")
	}
	open.EndTime = &endTime
	open.UpdatedAt = now

	s.cache.invalidate()
	s.metrics.AssociationsClosed.Inc()
	s.log.Info("Association closed", "device_id", deviceID, "association_id", open.ID)
	return open, nil
}

// PlantsMap 当前活动且带经纬度的关联，每个设备只取开始时间最新的一条，按设备ID排序
func (s *Service) PlantsMap(ctx context.Context) ([]models.PlantMapEntry, error) {
	active, err := s.store.ListActive(ctx, s.now().UTC())
	if err != nil {
		return nil, storeError(err, "failed to list active associations")
	}

	latest := make(map[string]*models.Association)
	for _, assoc := range active {
		if !assoc.HasGPS() {
			continue
		}
		if existing, ok := latest[assoc.DeviceID]; !ok || assoc.StartTime.After(existing.StartTime) {
			latest[assoc.DeviceID] = assoc
		}
	}

	plants := make([]models.PlantMapEntry, 0, len(latest))
	for _, assoc := range latest {
		plants = append(plants, models.PlantMapEntry{
			DeviceID:      assoc.DeviceID,
			AssociationID: assoc.ID,
			PlantName:     assoc.PlantName,
			PlantSpecies:  assoc.PlantSpecies,
			GPSLatitude:   assoc.GPSLatitude,
			GPSLongitude:  assoc.GPSLongitude,
			GPSAltitude:   assoc.GPSAltitude,
			StartTime:     assoc.StartTime,
			EndTime:       assoc.EndTime,
		})
	}
	sort.Slice(plants, func(i, j int) bool { return plants[i].DeviceID < plants[j].DeviceID })
	return plants, nil
}

// Enrich 为消息提取设备ID并添加植物标签；查询失败时按无关联处理并记录日志
func (s *Service) Enrich(ctx context.Context, msg *models.SensorMessage) (string, map[string]string, *models.Association) {
	deviceID := ExtractDeviceID(msg)
	tags := make(map[string]string, len(msg.Tags)+5)
	for k, v := range msg.Tags {
		tags[k] = v
	}
	if deviceID == "" {
		s.log.Warn("Could not extract device_id from message", "topic", msg.Topic)
		return "", EnrichTags(tags, nil), nil
	}

	assoc, err := s.Lookup(ctx, deviceID)
	if err != nil {
		s.log.Error("Association lookup failed", err, "device_id", deviceID)
		assoc = nil
	}
	tags["device_id"] = deviceID
	return deviceID, EnrichTags(tags, assoc), assoc
}

// CacheSize 缓存设备数
func (s *Service) CacheSize() int {
	return s.cache.size()
}
