package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gonglijing/biodataBridge/internal/models"
)

func setupAssociationTestDB(t *testing.T) *AssociationStore {
	t.Helper()

	db, err := Open(Options{Path: filepath.Join(t.TempDir(), "biodata.db"), MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	// 重复执行应当无害
	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema second run: %v", err)
	}
	return NewAssociationStore(db)
}

var baseTime = time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

func newAssociation(id, device string, start time.Time) *models.Association {
	lat, lon := 40.4168, -3.7038
	return &models.Association{
		ID:             id,
		DeviceID:       device,
		PlantName:      "Roble del Parque Central",
		GPSLatitude:    &lat,
		GPSLongitude:   &lon,
		AdditionalData: map[string]interface{}{"soil": "clay"},
		StartTime:      start,
		CreatedAt:      start,
		UpdatedAt:      start,
	}
}

func TestAssociationStore_InsertGet(t *testing.T) {
	store := setupAssociationTestDB(t)
	ctx := context.Background()

	species := "Quercus robur"
	a := newAssociation("assoc_1", "biodata1", baseTime)
	a.PlantSpecies = &species

	if err := store.Insert(ctx, a); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.Get(ctx, "assoc_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PlantSpecies == nil || *got.PlantSpecies != species {
		t.Errorf("PlantSpecies = %v, want %s", got.PlantSpecies, species)
	}
	if got.GPSLatitude == nil || *got.GPSLatitude != 40.4168 {
		t.Errorf("GPSLatitude = %v", got.GPSLatitude)
	}
	if got.GPSAltitude != nil {
		t.Errorf("GPSAltitude = %v, want nil", *got.GPSAltitude)
	}
	if !got.StartTime.Equal(baseTime) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, baseTime)
	}
	if got.EndTime != nil {
		t.Errorf("EndTime = %v, want nil", got.EndTime)
	}
	if got.AdditionalData["soil"] != "clay" {
		t.Errorf("AdditionalData = %v", got.AdditionalData)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestAssociationStore_ActiveForDevice(t *testing.T) {
	store := setupAssociationTestDB(t)
	ctx := context.Background()

	closed := newAssociation("assoc_old", "biodata1", baseTime)
	end := baseTime.Add(24 * time.Hour)
	closed.EndTime = &end
	open := newAssociation("assoc_new", "biodata1", baseTime.Add(48*time.Hour))

	for _, a := range []*models.Association{closed, open} {
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert %s: %v", a.ID, err)
		}
	}

	tests := []struct {
		name   string
		at     time.Time
		wantID string
	}{
		{"inside closed window", baseTime.Add(time.Hour), "assoc_old"},
		{"exactly at end is inactive", end, ""},
		{"open association", baseTime.Add(72 * time.Hour), "assoc_new"},
		{"before any", baseTime.Add(-time.Hour), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ActiveForDevice(ctx, "biodata1", tt.at)
			if tt.wantID == "" {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("error = %v, want ErrNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ActiveForDevice: %v", err)
			}
			if got.ID != tt.wantID {
				t.Errorf("ID = %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestAssociationStore_InsertClosingPrevious(t *testing.T) {
	store := setupAssociationTestDB(t)
	ctx := context.Background()

	first := newAssociation("assoc_1", "biodata1", baseTime)
	if _, err := store.InsertClosingPrevious(ctx, first); err != nil {
		t.Fatalf("insert first: %v", err)
	}

	secondStart := baseTime.Add(7 * 24 * time.Hour)
	second := newAssociation("assoc_2", "biodata1", secondStart)
	closed, err := store.InsertClosingPrevious(ctx, second)
	if err != nil {
		t.Fatalf("insert second: %v", err)
	}
	if closed == nil || closed.ID != "assoc_1" {
		t.Fatalf("closed = %v, want assoc_1", closed)
	}

	got, err := store.Get(ctx, "assoc_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.EndTime == nil || !got.EndTime.Equal(secondStart) {
		t.Errorf("EndTime = %v, want %v", got.EndTime, secondStart)
	}

	// 其他设备不受影响
	other := newAssociation("assoc_3", "biodata2", secondStart.Add(time.Hour))
	closed, err = store.InsertClosingPrevious(ctx, other)
	if err != nil {
		t.Fatalf("insert other: %v", err)
	}
	if closed != nil {
		t.Errorf("closed = %v, want nil", closed.ID)
	}
}

func TestAssociationStore_InsertClosingPrevious_SameMillisecond(t *testing.T) {
	store := setupAssociationTestDB(t)
	ctx := context.Background()

	if _, err := store.InsertClosingPrevious(ctx, newAssociation("assoc_1", "biodata1", baseTime)); err != nil {
		t.Fatalf("insert first: %v", err)
	}

	// 与旧关联落在同一毫秒，旧关联保持打开
	second := newAssociation("assoc_2", "biodata1", baseTime.Add(100*time.Microsecond))
	closed, err := store.InsertClosingPrevious(ctx, second)
	if err != nil {
		t.Fatalf("insert second: %v", err)
	}
	if closed != nil {
		t.Errorf("closed = %v, want nil", closed.ID)
	}

	third := newAssociation("assoc_3", "biodata1", baseTime.Add(1500*time.Microsecond))
	closed, err = store.InsertClosingPrevious(ctx, third)
	if err != nil {
		t.Fatalf("insert third: %v", err)
	}
	if closed == nil || closed.EndTime == nil {
		t.Fatalf("closed = %v, want an association ended at the third start", closed)
	}
	if want := baseTime.Add(time.Millisecond); !closed.EndTime.Equal(want) {
		t.Errorf("EndTime = %v, want %v", closed.EndTime, want)
	}
}

func TestAssociationStore_ListByDevice(t *testing.T) {
	store := setupAssociationTestDB(t)
	ctx := context.Background()

	for i, id := range []string{"assoc_a", "assoc_b", "assoc_c"} {
		if err := store.Insert(ctx, newAssociation(id, "biodata1", baseTime.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := store.Insert(ctx, newAssociation("assoc_x", "biodata2", baseTime)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	list, err := store.ListByDevice(ctx, "biodata1")
	if err != nil {
		t.Fatalf("ListByDevice: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].ID != "assoc_c" || list[2].ID != "assoc_a" {
		t.Errorf("order = %s,%s,%s, want newest first", list[0].ID, list[1].ID, list[2].ID)
	}

	empty, err := store.ListByDevice(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListByDevice(nobody): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("len = %d, want 0", len(empty))
	}

	count, err := store.Count(ctx)
	if err != nil || count != 4 {
		t.Errorf("Count = %d, %v, want 4", count, err)
	}
}

func TestAssociationStore_LatestOpenAndSetEndTime(t *testing.T) {
	store := setupAssociationTestDB(t)
	ctx := context.Background()

	if err := store.Insert(ctx, newAssociation("assoc_1", "biodata1", baseTime)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, err := store.LatestOpen(ctx, "biodata1", baseTime.Add(-time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestOpen before start error = %v, want ErrNotFound", err)
	}

	open, err := store.LatestOpen(ctx, "biodata1", baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("LatestOpen: %v", err)
	}

	end := baseTime.Add(time.Hour)
	if err := store.SetEndTime(ctx, open.ID, end, end); err != nil {
		t.Fatalf("SetEndTime: %v", err)
	}
	if _, err := store.LatestOpen(ctx, "biodata1", end); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestOpen after close error = %v, want ErrNotFound", err)
	}
	if err := store.SetEndTime(ctx, "missing", end, end); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetEndTime(missing) error = %v, want ErrNotFound", err)
	}
}

func TestAssociationStore_ListActive(t *testing.T) {
	store := setupAssociationTestDB(t)
	ctx := context.Background()

	a := newAssociation("assoc_1", "biodata1", baseTime)
	b := newAssociation("assoc_2", "biodata2", baseTime.Add(time.Hour))
	future := newAssociation("assoc_3", "biodata3", baseTime.Add(240*time.Hour))
	for _, item := range []*models.Association{a, b, future} {
		if err := store.Insert(ctx, item); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	list, err := store.ListActive(ctx, baseTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].DeviceID != "biodata1" || list[1].DeviceID != "biodata2" {
		t.Errorf("devices = %s,%s", list[0].DeviceID, list[1].DeviceID)
	}
}

func TestInitAndHealth(t *testing.T) {
	original := DB
	t.Cleanup(func() {
		_ = Close()
		DB = original
	})

	path := filepath.Join(t.TempDir(), "init.db")
	if err := Init(Options{Path: path}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Path() != path {
		t.Errorf("Path() = %s, want %s", Path(), path)
	}

	checker := NewHealthChecker(time.Hour)
	checker.check()
	if !checker.IsHealthy() {
		t.Errorf("IsHealthy() = false, status %v", checker.GetStatus())
	}
	if stats := GetConnectionStats(); stats.MaxOpenConns != DefaultMaxOpenConns {
		t.Errorf("MaxOpenConns = %d, want %d", stats.MaxOpenConns, DefaultMaxOpenConns)
	}

	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	checker.check()
	if checker.IsHealthy() {
		t.Error("IsHealthy() = true after Close")
	}
}
