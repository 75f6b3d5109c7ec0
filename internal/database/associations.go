package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gonglijing/biodataBridge/internal/models"
)

// ErrNotFound 查询无结果
var ErrNotFound = errors.New("association not found")

const associationColumns = `id, device_id, plant_name, plant_species, gps_latitude, gps_longitude, gps_altitude,
	additional_data, start_time, end_time, created_at, updated_at`

// AssociationStore 设备-植物关联的持久化
type AssociationStore struct {
	db *sql.DB
}

// NewAssociationStore 创建关联存储
func NewAssociationStore(db *sql.DB) *AssociationStore {
	return &AssociationStore{db: db}
}

// Ping 检查连接
func (s *AssociationStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssociation(row rowScanner) (*models.Association, error) {
	var (
		a                       models.Association
		species                 sql.NullString
		lat, lon, alt           sql.NullFloat64
		extra                   string
		start, created, updated int64
		end                     sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.DeviceID, &a.PlantName, &species, &lat, &lon, &alt,
		&extra, &start, &end, &created, &updated); err != nil {
		return nil, err
	}

	if species.Valid {
		a.PlantSpecies = &species.String
	}
	a.GPSLatitude = nullFloat(lat)
	a.GPSLongitude = nullFloat(lon)
	a.GPSAltitude = nullFloat(alt)
	a.AdditionalData = map[string]interface{}{}
	if extra != "" {
		if err := json.Unmarshal([]byte(extra), &a.AdditionalData); err != nil {
			return nil, fmt.Errorf("decode additional_data of %s: %w", a.ID, err)
		}
	}
	a.StartTime = fromMillis(start)
	if end.Valid {
		t := fromMillis(end.Int64)
		a.EndTime = &t
	}
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAssociation(ctx context.Context, ex execer, a *models.Association) error {
	extra := a.AdditionalData
	if extra == nil {
		extra = map[string]interface{}{}
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("encode additional_data: %w", err)
	}

	var end any
	if a.EndTime != nil {
		end = toMillis(*a.EndTime)
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO associations (`+associationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeviceID, a.PlantName, a.PlantSpecies, a.GPSLatitude, a.GPSLongitude, a.GPSAltitude,
		string(data), toMillis(a.StartTime), end, toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	return err
}

// Insert 插入关联
func (s *AssociationStore) Insert(ctx context.Context, a *models.Association) error {
	return insertAssociation(ctx, s.db, a)
}

// InsertClosingPrevious 在一个事务内关闭设备最近一条 start <= a.StartTime 的未结束关联（结束于 a.StartTime），
// 然后插入 a。返回被关闭的关联，没有则为 nil。
func (s *AssociationStore) InsertClosingPrevious(ctx context.Context, a *models.Association) (*models.Association, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+associationColumns+` FROM associations
		WHERE device_id = ? AND end_time IS NULL AND start_time <= ?
		ORDER BY start_time DESC, created_at DESC LIMIT 1`,
		a.DeviceID, toMillis(a.StartTime),
	)
	previous, err := scanAssociation(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		previous = nil
	case err != nil:
		return nil, err
	}

	if previous != nil {
		// 同一毫秒开始的旧关联无法以 end > start 关闭，保持原样
		if toMillis(a.StartTime) > toMillis(previous.StartTime) {
			if _, err := tx.ExecContext(ctx,
				`UPDATE associations SET end_time = ?, updated_at = ? WHERE id = ?`,
				toMillis(a.StartTime), toMillis(a.UpdatedAt), previous.ID,
			); err != nil {
				return nil, err
			}
			end := fromMillis(toMillis(a.StartTime))
			previous.EndTime = &end
			previous.UpdatedAt = fromMillis(toMillis(a.UpdatedAt))
		} else {
			previous = nil
		}
	}

	if err := insertAssociation(ctx, tx, a); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return previous, nil
}

// Get 按ID获取
func (s *AssociationStore) Get(ctx context.Context, id string) (*models.Association, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+associationColumns+` FROM associations WHERE id = ?`, id)
	a, err := scanAssociation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListByDevice 设备的全部关联，按开始时间倒序
func (s *AssociationStore) ListByDevice(ctx context.Context, deviceID string) ([]*models.Association, error) {
	return s.list(ctx,
		`SELECT `+associationColumns+` FROM associations WHERE device_id = ?
		ORDER BY start_time DESC, created_at DESC`,
		deviceID,
	)
}

// ActiveForDevice 设备在 at 时刻生效的关联，多条时取开始时间最新的
func (s *AssociationStore) ActiveForDevice(ctx context.Context, deviceID string, at time.Time) (*models.Association, error) {
	ms := toMillis(at)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+associationColumns+` FROM associations
		WHERE device_id = ? AND start_time <= ? AND (end_time IS NULL OR end_time > ?)
		ORDER BY start_time DESC, created_at DESC LIMIT 1`,
		deviceID, ms, ms,
	)
	a, err := scanAssociation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListActive 所有在 at 时刻生效的关联，按设备、开始时间倒序
func (s *AssociationStore) ListActive(ctx context.Context, at time.Time) ([]*models.Association, error) {
	ms := toMillis(at)
	return s.list(ctx,
		`SELECT `+associationColumns+` FROM associations
		WHERE start_time <= ? AND (end_time IS NULL OR end_time > ?)
		ORDER BY device_id, start_time DESC, created_at DESC`,
		ms, ms,
	)
}

// list 执行查询并扫描全部关联；无结果时返回空切片
func (s *AssociationStore) list(ctx context.Context, query string, args ...any) ([]*models.Association, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Association{}
	for rows.Next() {
		a, err := scanAssociation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LatestOpen 设备最近一条 start <= notAfter 的未结束关联
func (s *AssociationStore) LatestOpen(ctx context.Context, deviceID string, notAfter time.Time) (*models.Association, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+associationColumns+` FROM associations
		WHERE device_id = ? AND end_time IS NULL AND start_time <= ?
		ORDER BY start_time DESC, created_at DESC LIMIT 1`,
		deviceID, toMillis(notAfter),
	)
	a, err := scanAssociation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// SetEndTime 设置结束时间
func (s *AssociationStore) SetEndTime(ctx context.Context, id string, end, updatedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE associations SET end_time = ?, updated_at = ? WHERE id = ?`,
		toMillis(end), toMillis(updatedAt), id,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count 关联总数
func (s *AssociationStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM associations`).Scan(&n)
	return n, err
}
