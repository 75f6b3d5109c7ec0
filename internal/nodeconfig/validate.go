package nodeconfig

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/gonglijing/biodataBridge/internal/errors"
)

// 模板中的占位值
var placeholderValues = map[string]struct{}{
	"tu_wifi_ssid_aqui":                    {},
	"tu_wifi_password_aqui":                {},
	"tu_mqtt_broker.com":                   {},
	"tu_usuario_mqtt":                      {},
	"tu_password_mqtt":                     {},
	"tu_sensor_id":                         {},
	"tu-endpoint.iot.region.amazonaws.com": {},
}

var placeholderPattern = regexp.MustCompile(`(?i)^tu_.*_aqui$`)

// IsPlaceholder 判断值是否仍为模板占位值
func IsPlaceholder(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return false
	}
	if _, ok := placeholderValues[strings.ToLower(v)]; ok {
		return true
	}
	return placeholderPattern.MatchString(v)
}

func invalid(field, format string, args ...interface{}) *apperrors.AppError {
	return apperrors.NewFieldError(apperrors.ErrCodeConfigInvalid, field, fmt.Sprintf(format, args...))
}

// Validate 返回第一个问题；无问题返回 nil
func (r *Record) Validate() error {
	if problems := r.problems(); len(problems) > 0 {
		return problems[0]
	}
	return nil
}

// ValidateAll 返回全部问题
func (r *Record) ValidateAll() []error {
	problems := r.problems()
	out := make([]error, 0, len(problems))
	for _, p := range problems {
		out = append(out, p)
	}
	return out
}

// Warnings 不阻止启动但值得提示的设置
func (r *Record) Warnings() []string {
	var warnings []string
	if r.MQTTSendInterval > 0 && r.SensorReadInterval > 0 && r.MQTTSendInterval < r.SensorReadInterval {
		warnings = append(warnings, fmt.Sprintf(
			"MQTT_SEND_INTERVAL (%d ms) is shorter than SENSOR_READ_INTERVAL (%d ms); batches will often be empty",
			r.MQTTSendInterval, r.SensorReadInterval))
	}
	if r.MQTTPort == DefaultMQTTTLSPort && r.MQTTUsername == "" {
		warnings = append(warnings, "MQTT_PORT 8883 without MQTT_USERNAME; most TLS brokers require credentials")
	}
	return warnings
}

func (r *Record) problems() []*apperrors.AppError {
	var out []*apperrors.AppError
	add := func(err *apperrors.AppError) {
		if err != nil {
			out = append(out, err)
		}
	}

	add(requireValue("WIFI_SSID", r.WiFiSSID))
	if len(r.WiFiSSID) > 32 {
		add(invalid("WIFI_SSID", "must be at most 32 bytes"))
	}
	add(rejectPlaceholder("WIFI_PASSWORD", r.WiFiPassword))

	add(requireValue("MQTT_BROKER", r.MQTTBroker))
	if strings.Contains(r.MQTTBroker, "://") || strings.ContainsAny(r.MQTTBroker, " \t/") {
		add(invalid("MQTT_BROKER", "must be a bare hostname or IP address"))
	}
	if r.MQTTPort < 1 || r.MQTTPort > 65535 {
		add(invalid("MQTT_PORT", "must be between 1 and 65535, got %d", r.MQTTPort))
	}
	add(rejectPlaceholder("MQTT_USERNAME", r.MQTTUsername))
	add(rejectPlaceholder("MQTT_PASSWORD", r.MQTTPassword))

	add(requireValue("MQTT_BASE_TOPIC", r.MQTTBaseTopic))
	if strings.ContainsAny(r.MQTTBaseTopic, "+#") {
		add(invalid("MQTT_BASE_TOPIC", "must not contain MQTT wildcards"))
	}
	add(requireValue("SENSOR_ID", r.SensorID))
	if strings.ContainsAny(r.SensorID, "/+#") {
		add(invalid("SENSOR_ID", "must be a single topic level"))
	}

	if r.SensorReadInterval <= 0 {
		add(invalid("SENSOR_READ_INTERVAL", "must be positive, got %d", r.SensorReadInterval))
	}
	if r.MQTTSendInterval <= 0 {
		add(invalid("MQTT_SEND_INTERVAL", "must be positive, got %d", r.MQTTSendInterval))
	}
	if r.MIDIChannel < 1 || r.MIDIChannel > 16 {
		add(invalid("DEFAULT_MIDI_CHANNEL", "must be between 1 and 16, got %d", r.MIDIChannel))
	}
	if r.Threshold < 0 {
		add(invalid("DEFAULT_THRESHOLD", "must not be negative, got %d", r.Threshold))
	}
	if !r.Scale.Valid() {
		add(invalid("DEFAULT_SCALE", "unknown scale mode %d", int(r.Scale)))
	}
	add(checkBrightness("LED_BRIGHTNESS_MAX", r.LEDBrightnessMax))
	add(checkBrightness("LED_BRIGHTNESS_DIM", r.LEDBrightnessDim))
	add(checkBrightness("LED_BRIGHTNESS_ACTIVITY", r.LEDBrightnessActivity))

	return out
}

func requireValue(field, value string) *apperrors.AppError {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "is required")
	}
	return rejectPlaceholder(field, value)
}

func rejectPlaceholder(field, value string) *apperrors.AppError {
	if IsPlaceholder(value) {
		return invalid(field, "still holds the template placeholder %q", value)
	}
	return nil
}

func checkBrightness(field string, value int) *apperrors.AppError {
	if value < 0 || value > 255 {
		return invalid(field, "must be between 0 and 255, got %d", value)
	}
	return nil
}
