package database

import (
	"database/sql"
	"fmt"
)

const associationsSchema = `CREATE TABLE IF NOT EXISTS associations (
	id TEXT PRIMARY KEY,
	device_id TEXT NOT NULL,
	plant_name TEXT NOT NULL,
	plant_species TEXT,
	gps_latitude REAL,
	gps_longitude REAL,
	gps_altitude REAL,
	additional_data TEXT NOT NULL DEFAULT '{}',
	start_time INTEGER NOT NULL,
	end_time INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	CHECK (end_time IS NULL OR end_time > start_time)
)`

var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_associations_device_start ON associations (device_id, start_time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_associations_open ON associations (device_id) WHERE end_time IS NULL`,
}

// InitSchema 建表与索引，可重复执行
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(associationsSchema); err != nil {
		return fmt.Errorf("failed to create associations table: %w", err)
	}
	for _, stmt := range indexStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
