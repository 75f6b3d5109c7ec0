package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Association 设备与植物的关联，EndTime 为空表示仍在进行
type Association struct {
	ID             string                 `json:"id" db:"id"`
	DeviceID       string                 `json:"device_id" db:"device_id"`
	PlantName      string                 `json:"plant_name" db:"plant_name"`
	PlantSpecies   *string                `json:"plant_species" db:"plant_species"`
	GPSLatitude    *float64               `json:"gps_latitude" db:"gps_latitude"`
	GPSLongitude   *float64               `json:"gps_longitude" db:"gps_longitude"`
	GPSAltitude    *float64               `json:"gps_altitude" db:"gps_altitude"`
	AdditionalData map[string]interface{} `json:"additional_data" db:"additional_data"`
	StartTime      time.Time              `json:"start_time" db:"start_time"`
	EndTime        *time.Time             `json:"end_time" db:"end_time"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at" db:"updated_at"`
}

// IsOpen 是否未设置结束时间
func (a *Association) IsOpen() bool {
	return a.EndTime == nil
}

// ActiveAt 在 t 时刻是否生效：start <= t 且 (end 为空 或 end > t)
func (a *Association) ActiveAt(t time.Time) bool {
	if a.StartTime.After(t) {
		return false
	}
	return a.EndTime == nil || a.EndTime.After(t)
}

// HasGPS 经纬度是否都存在
func (a *Association) HasGPS() bool {
	return a.GPSLatitude != nil && a.GPSLongitude != nil
}

// AssociationInput 创建关联的请求体
type AssociationInput struct {
	DeviceID       string                 `json:"device_id"`
	PlantName      string                 `json:"plant_name"`
	PlantSpecies   *string                `json:"plant_species,omitempty"`
	GPSLatitude    *float64               `json:"gps_latitude,omitempty"`
	GPSLongitude   *float64               `json:"gps_longitude,omitempty"`
	GPSAltitude    *float64               `json:"gps_altitude,omitempty"`
	AdditionalData map[string]interface{} `json:"additional_data,omitempty"`
	StartTime      *time.Time             `json:"start_time,omitempty"`
	EndTime        *time.Time             `json:"end_time,omitempty"`
}

// UnmarshalJSON GPS 字段接受数字或数字字符串（"40.4168"）
func (in *AssociationInput) UnmarshalJSON(data []byte) error {
	type plain AssociationInput
	aux := struct {
		*plain
		GPSLatitude  json.RawMessage `json:"gps_latitude"`
		GPSLongitude json.RawMessage `json:"gps_longitude"`
		GPSAltitude  json.RawMessage `json:"gps_altitude"`
	}{plain: (*plain)(in)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if in.GPSLatitude, err = parseCoordinate("gps_latitude", aux.GPSLatitude); err != nil {
		return err
	}
	if in.GPSLongitude, err = parseCoordinate("gps_longitude", aux.GPSLongitude); err != nil {
		return err
	}
	in.GPSAltitude, err = parseCoordinate("gps_altitude", aux.GPSAltitude)
	return err
}

func parseCoordinate(field string, raw json.RawMessage) (*float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", field, text)
		}
		return &v, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &v, nil
}

// PlantMapEntry 地图展示用的植物位置
type PlantMapEntry struct {
	DeviceID      string     `json:"device_id"`
	AssociationID string     `json:"association_id"`
	PlantName     string     `json:"plant_name"`
	PlantSpecies  *string    `json:"plant_species"`
	GPSLatitude   *float64   `json:"gps_latitude"`
	GPSLongitude  *float64   `json:"gps_longitude"`
	GPSAltitude   *float64   `json:"gps_altitude"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
}

// SensorMessage 节点上报的原始消息
type SensorMessage struct {
	Topic     string                 `json:"topic"`
	DeviceID  string                 `json:"device_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Raw       []byte                 `json:"-"`
	Tags      map[string]string      `json:"tags,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EnrichedMessage 带植物标签的消息，由桥接服务转发
type EnrichedMessage struct {
	DeviceID      string                 `json:"device_id"`
	SourceTopic   string                 `json:"source_topic"`
	Tags          map[string]string      `json:"tags"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Raw           string                 `json:"raw,omitempty"`
	ReceivedAt    time.Time              `json:"received_at"`
	AssociationID string                 `json:"-"`
}
