// Package nodeconfig 节点配置记录：WiFi 凭据、MQTT 代理身份、基础主题、传感器标识与调参常量。
// 记录在进程启动时加载一次，校验通过后只读。
package nodeconfig

import (
	"fmt"
	"strings"
	"time"
)

// 默认值，对应集成版固件
const (
	DefaultMQTTPort              = 1883
	DefaultMQTTTLSPort           = 8883
	DefaultMQTTBaseTopic         = "biodata"
	DefaultSensorReadInterval    = 5000
	DefaultMQTTSendInterval      = 10000
	DefaultMIDIChannel           = 1
	DefaultThreshold             = 3
	DefaultScale                 = ScalePentatonic
	DefaultLEDBrightnessMax      = 255
	DefaultLEDBrightnessDim      = 50
	DefaultLEDBrightnessActivity = 100
)

const redactedValue = "******"

// Record 节点配置记录，YAML 键与固件宏名一致
type Record struct {
	WiFiSSID     string `yaml:"WIFI_SSID" json:"wifi_ssid"`
	WiFiPassword string `yaml:"WIFI_PASSWORD" json:"wifi_password"`

	MQTTBroker    string `yaml:"MQTT_BROKER" json:"mqtt_broker"`
	MQTTPort      int    `yaml:"MQTT_PORT" json:"mqtt_port"`
	MQTTUsername  string `yaml:"MQTT_USERNAME" json:"mqtt_username"`
	MQTTPassword  string `yaml:"MQTT_PASSWORD" json:"mqtt_password"`
	MQTTBaseTopic string `yaml:"MQTT_BASE_TOPIC" json:"mqtt_base_topic"`
	SensorID      string `yaml:"SENSOR_ID" json:"sensor_id"`

	CalibratePressure bool `yaml:"CALIBRATE_PRESSURE" json:"calibrate_pressure"`

	SensorReadInterval int       `yaml:"SENSOR_READ_INTERVAL" json:"sensor_read_interval_ms"`
	MQTTSendInterval   int       `yaml:"MQTT_SEND_INTERVAL" json:"mqtt_send_interval_ms"`
	MIDIChannel        int       `yaml:"DEFAULT_MIDI_CHANNEL" json:"midi_channel"`
	Threshold          int       `yaml:"DEFAULT_THRESHOLD" json:"midi_threshold"`
	Scale              ScaleMode `yaml:"DEFAULT_SCALE" json:"scale_mode"`

	LEDBrightnessMax      int `yaml:"LED_BRIGHTNESS_MAX" json:"led_brightness_max"`
	LEDBrightnessDim      int `yaml:"LED_BRIGHTNESS_DIM" json:"led_brightness_dim"`
	LEDBrightnessActivity int `yaml:"LED_BRIGHTNESS_ACTIVITY" json:"led_brightness_activity"`
}

// Tuning 调参常量快照，桥接服务以保留消息发布
type Tuning struct {
	SensorReadInterval    int       `json:"sensor_read_interval_ms"`
	MQTTSendInterval      int       `json:"mqtt_send_interval_ms"`
	MIDIChannel           int       `json:"midi_channel"`
	Threshold             int       `json:"midi_threshold"`
	Scale                 ScaleMode `json:"scale_mode"`
	LEDBrightnessMax      int       `json:"led_brightness_max"`
	LEDBrightnessDim      int       `json:"led_brightness_dim"`
	LEDBrightnessActivity int       `json:"led_brightness_activity"`
	CalibratePressure     bool      `json:"calibrate_pressure"`
}

// Defaults 返回只填充了调参默认值的记录，身份字段为空
func Defaults() Record {
	return Record{
		MQTTPort:              DefaultMQTTPort,
		MQTTBaseTopic:         DefaultMQTTBaseTopic,
		SensorReadInterval:    DefaultSensorReadInterval,
		MQTTSendInterval:      DefaultMQTTSendInterval,
		MIDIChannel:           DefaultMIDIChannel,
		Threshold:             DefaultThreshold,
		Scale:                 DefaultScale,
		LEDBrightnessMax:      DefaultLEDBrightnessMax,
		LEDBrightnessDim:      DefaultLEDBrightnessDim,
		LEDBrightnessActivity: DefaultLEDBrightnessActivity,
	}
}

// ReadInterval 传感器读取周期
func (r *Record) ReadInterval() time.Duration {
	return time.Duration(r.SensorReadInterval) * time.Millisecond
}

// SendInterval MQTT 发送周期
func (r *Record) SendInterval() time.Duration {
	return time.Duration(r.MQTTSendInterval) * time.Millisecond
}

// UseTLS 8883 端口按 TLS 连接
func (r *Record) UseTLS() bool {
	return r.MQTTPort == DefaultMQTTTLSPort
}

// BrokerURL 返回 paho 使用的代理地址
func (r *Record) BrokerURL() string {
	scheme := "tcp"
	if r.UseTLS() {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, r.MQTTBroker, r.MQTTPort)
}

// Topic 拼接 <base>/<parts...>
func (r *Record) Topic(parts ...string) string {
	levels := make([]string, 0, len(parts)+1)
	levels = append(levels, strings.TrimRight(r.MQTTBaseTopic, "/"))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			levels = append(levels, p)
		}
	}
	return strings.Join(levels, "/")
}

// NodeTopic 拼接 <base>/<sensor_id>/<parts...>
func (r *Record) NodeTopic(parts ...string) string {
	return r.Topic(append([]string{r.SensorID}, parts...)...)
}

// Tuning 返回调参快照
func (r *Record) Tuning() Tuning {
	return Tuning{
		SensorReadInterval:    r.SensorReadInterval,
		MQTTSendInterval:      r.MQTTSendInterval,
		MIDIChannel:           r.MIDIChannel,
		Threshold:             r.Threshold,
		Scale:                 r.Scale,
		LEDBrightnessMax:      r.LEDBrightnessMax,
		LEDBrightnessDim:      r.LEDBrightnessDim,
		LEDBrightnessActivity: r.LEDBrightnessActivity,
		CalibratePressure:     r.CalibratePressure,
	}
}

// Redacted 返回隐藏密码后的副本
func (r *Record) Redacted() Record {
	out := *r
	if out.WiFiPassword != "" {
		out.WiFiPassword = redactedValue
	}
	if out.MQTTPassword != "" {
		out.MQTTPassword = redactedValue
	}
	return out
}
