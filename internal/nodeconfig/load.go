package nodeconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/gonglijing/biodataBridge/internal/errors"
	"gopkg.in/yaml.v3"
)

// Keys 记录的全部键，顺序与模板一致
var Keys = []string{
	"WIFI_SSID",
	"WIFI_PASSWORD",
	"MQTT_BROKER",
	"MQTT_PORT",
	"MQTT_USERNAME",
	"MQTT_PASSWORD",
	"MQTT_BASE_TOPIC",
	"SENSOR_ID",
	"CALIBRATE_PRESSURE",
	"SENSOR_READ_INTERVAL",
	"MQTT_SEND_INTERVAL",
	"DEFAULT_MIDI_CHANNEL",
	"DEFAULT_THRESHOLD",
	"DEFAULT_SCALE",
	"LED_BRIGHTNESS_MAX",
	"LED_BRIGHTNESS_DIM",
	"LED_BRIGHTNESS_ACTIVITY",
}

// Load 从文件加载记录，然后应用同名环境变量并校验。
// path 为空时只从环境变量构建，环境变量一个都没有则返回 ConfigurationMissing。
func Load(path string) (*Record, error) {
	if strings.TrimSpace(path) == "" {
		if !anyEnvSet() {
			return nil, apperrors.NewError(apperrors.ErrCodeConfigMissing, "node configuration not provided")
		}
		rec := Defaults()
		if err := applyEnv(&rec); err != nil {
			return nil, err
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		return &rec, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &apperrors.AppError{
				Code:    apperrors.ErrCodeConfigMissing,
				Message: "node configuration file not found",
				Field:   path,
				Err:     err,
			}
		}
		return nil, apperrors.NewErrorWithErr(apperrors.ErrCodeConfigMissing, "read node configuration", err)
	}

	rec, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(rec); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Parse 从字节解析并校验记录，不读取环境变量
func Parse(data []byte) (*Record, error) {
	rec, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// ParseUnchecked 只解析并填充默认值，不校验；供 -check 列出全部问题
func ParseUnchecked(data []byte) (*Record, error) {
	return decode(data)
}

func decode(data []byte) (*Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apperrors.NewError(apperrors.ErrCodeConfigMissing, "node configuration is empty")
	}

	rec := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rec); err != nil {
		// 只有注释时没有任何文档
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewError(apperrors.ErrCodeConfigMissing, "node configuration is empty")
		}
		return nil, apperrors.NewErrorWithErr(apperrors.ErrCodeConfigInvalid, "malformed node configuration", err)
	}
	return &rec, nil
}

// Marshal 按记录键序列化为 YAML
func (r *Record) Marshal() ([]byte, error) {
	if !r.Scale.Valid() {
		return nil, apperrors.NewFieldError(apperrors.ErrCodeConfigInvalid, "DEFAULT_SCALE", "unknown scale mode")
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, apperrors.NewErrorWithErr(apperrors.ErrCodeInternalError, "marshal node configuration", err)
	}
	return data, nil
}

// Save 写入文件，权限 0600
func (r *Record) Save(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write node configuration: %w", err)
	}
	return nil
}

func anyEnvSet() bool {
	for _, key := range Keys {
		if envValue(key) != "" {
			return true
		}
	}
	return false
}

// applyEnv 同名环境变量覆盖文件中的值
func applyEnv(r *Record) error {
	setStringFromEnv("WIFI_SSID", &r.WiFiSSID)
	setStringFromEnv("WIFI_PASSWORD", &r.WiFiPassword)
	setStringFromEnv("MQTT_BROKER", &r.MQTTBroker)
	setStringFromEnv("MQTT_USERNAME", &r.MQTTUsername)
	setStringFromEnv("MQTT_PASSWORD", &r.MQTTPassword)
	setStringFromEnv("MQTT_BASE_TOPIC", &r.MQTTBaseTopic)
	setStringFromEnv("SENSOR_ID", &r.SensorID)

	ints := []struct {
		key string
		dst *int
	}{
		{"MQTT_PORT", &r.MQTTPort},
		{"SENSOR_READ_INTERVAL", &r.SensorReadInterval},
		{"MQTT_SEND_INTERVAL", &r.MQTTSendInterval},
		{"DEFAULT_MIDI_CHANNEL", &r.MIDIChannel},
		{"DEFAULT_THRESHOLD", &r.Threshold},
		{"LED_BRIGHTNESS_MAX", &r.LEDBrightnessMax},
		{"LED_BRIGHTNESS_DIM", &r.LEDBrightnessDim},
		{"LED_BRIGHTNESS_ACTIVITY", &r.LEDBrightnessActivity},
	}
	for _, item := range ints {
		if err := setIntFromEnv(item.key, item.dst); err != nil {
			return err
		}
	}

	if v := envValue("DEFAULT_SCALE"); v != "" {
		mode, err := ParseScaleMode(v)
		if err != nil {
			return apperrors.NewFieldError(apperrors.ErrCodeConfigInvalid, "DEFAULT_SCALE", err.Error())
		}
		r.Scale = mode
	}
	if v := envValue("CALIBRATE_PRESSURE"); v != "" {
		r.CalibratePressure = parseTrueBoolOrOne(v)
	}
	return nil
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setStringFromEnv(key string, dst *string) {
	if v := envValue(key); v != "" {
		*dst = v
	}
}

func setIntFromEnv(key string, dst *int) error {
	v := envValue(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return apperrors.NewFieldError(apperrors.ErrCodeConfigInvalid, key, "must be an integer")
	}
	*dst = n
	return nil
}

func parseTrueBoolOrOne(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
