package nodeconfig

import (
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/gonglijing/biodataBridge/internal/errors"
)

// ExampleTemplate 检入仓库的示例配置。复制为 secrets.yaml 并填写真实值，不要提交真实凭据。
const ExampleTemplate = `# BiodataFeather node configuration
# Copy this file to secrets.yaml and replace every tu_* value.
# secrets.yaml is ignored by git; never commit real credentials.

# WiFi
WIFI_SSID: tu_wifi_ssid_aqui
WIFI_PASSWORD: tu_wifi_password_aqui

# MQTT broker (1883 plain, 8883 TLS)
MQTT_BROKER: tu_mqtt_broker.com
MQTT_PORT: 1883
MQTT_USERNAME: tu_usuario_mqtt
MQTT_PASSWORD: tu_password_mqtt
MQTT_BASE_TOPIC: biodata

# Node identity, one topic level
SENSOR_ID: tu_sensor_id

# Set to true to calibrate the pressure sensor at boot
CALIBRATE_PRESSURE: false

# Intervals in milliseconds
SENSOR_READ_INTERVAL: 5000
MQTT_SEND_INTERVAL: 10000

# MIDI
DEFAULT_MIDI_CHANNEL: 1
DEFAULT_THRESHOLD: 3
# Chromatic, Minor, Major, Pentatonic, Indian (or 0-4)
DEFAULT_SCALE: Pentatonic

# LED brightness 0-255
LED_BRIGHTNESS_MAX: 255
LED_BRIGHTNESS_DIM: 50
LED_BRIGHTNESS_ACTIVITY: 100
`

// WriteTemplate 写出示例配置，目标文件已存在时返回 ConfigurationConflict
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeConfigConflict,
			Message: "node configuration already exists",
			Field:   path,
		}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(ExampleTemplate), 0644); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
