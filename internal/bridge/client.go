package bridge

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gonglijing/biodataBridge/internal/nodeconfig"
	"github.com/google/uuid"
)

// Client 桥接使用的 MQTT 客户端子集，mqtt.Client 满足该接口
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// ClientFactory 按选项创建客户端
type ClientFactory func(opts *mqtt.ClientOptions) Client

func defaultClientFactory(opts *mqtt.ClientOptions) Client {
	return mqtt.NewClient(opts)
}

// NewClientID 生成 <SENSOR_ID>-bridge-<8位十六进制>
func NewClientID(sensorID string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-bridge-%s", sensorID, suffix)
}

// buildClientOptions 按节点配置生成 paho 选项；重连由桥接事件循环负责
func buildClientOptions(rec *nodeconfig.Record, clientID string, timeout time.Duration) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(rec.BrokerURL()).
		SetClientID(clientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true).
		SetKeepAlive(30 * time.Second).
		SetConnectTimeout(timeout).
		SetOrderMatters(false)

	if rec.MQTTUsername != "" {
		opts.SetUsername(rec.MQTTUsername)
	}
	if rec.MQTTPassword != "" {
		opts.SetPassword(rec.MQTTPassword)
	}
	if rec.UseTLS() {
		opts.SetTLSConfig(&tls.Config{
			ServerName: rec.MQTTBroker,
			MinVersion: tls.VersionTLS12,
		})
	}

	// 异常断开时由代理发布 offline
	opts.SetWill(rec.NodeTopic(statusLevel), statusOffline, 1, true)
	return opts
}

func clampQOS(qos int) byte {
	if qos < 0 {
		return 0
	}
	if qos > 2 {
		return 2
	}
	return byte(qos)
}

// waitToken 等待 token 完成，超时返回错误
func waitToken(token mqtt.Token, timeout time.Duration, what string) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt %s timeout", what)
	}
	return token.Error()
}
