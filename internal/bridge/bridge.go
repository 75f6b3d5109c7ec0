// Package bridge 订阅节点上报的 MQTT 消息，按设备-植物关联添加标签后转发到 <base>/<device>/enriched
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gonglijing/biodataBridge/internal/circuit"
	"github.com/gonglijing/biodataBridge/internal/logger"
	"github.com/gonglijing/biodataBridge/internal/mapping"
	"github.com/gonglijing/biodataBridge/internal/metrics"
	"github.com/gonglijing/biodataBridge/internal/models"
	"github.com/gonglijing/biodataBridge/internal/nodeconfig"
)

const (
	statusLevel   = "status"
	configLevel   = "config"
	enrichedLevel = "enriched"

	statusOnline  = "online"
	statusOffline = "offline"

	minFlushInterval         = 500 * time.Millisecond
	defaultConnectTimeout    = 10 * time.Second
	defaultReconnectInterval = 5 * time.Second

	// 连接保持期间同一条消息连续发布失败的上限，达到后丢弃
	maxPublishAttempts = 3
)

var errNotConnected = errors.New("mqtt client not connected")

// Enricher 为消息提取设备ID并添加植物标签，由 mapping.Service 实现
type Enricher interface {
	Enrich(ctx context.Context, msg *models.SensorMessage) (string, map[string]string, *models.Association)
}

// Broadcaster 接收每条标注后的消息，例如实时推送
type Broadcaster interface {
	Broadcast(v interface{})
}

// Options 桥接参数
type Options struct {
	QueueSize         int
	QOS               int
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
	Metrics           *metrics.Metrics
	Broadcaster       Broadcaster
	ClientFactory     ClientFactory
	Breaker           circuit.Config
	Now               func() time.Time
}

// Stats 运行统计
type Stats struct {
	Running         bool          `json:"running"`
	Connected       bool          `json:"connected"`
	Broker          string        `json:"broker"`
	ClientID        string        `json:"client_id"`
	SubscribeTopic  string        `json:"subscribe_topic"`
	FlushIntervalMS int64         `json:"flush_interval_ms"`
	Received        uint64        `json:"received"`
	Mapped          uint64        `json:"mapped"`
	Unmapped        uint64        `json:"unmapped"`
	Ignored         uint64        `json:"ignored"`
	Published       uint64        `json:"published"`
	Dropped         uint64        `json:"dropped"`
	PublishErrors   uint64        `json:"publish_errors"`
	QueueDepth      int           `json:"queue_depth"`
	QueueCapacity   int           `json:"queue_capacity"`
	LastPublish     *time.Time    `json:"last_publish,omitempty"`
	Circuit         circuit.Stats `json:"circuit"`
}

// Bridge MQTT 标注桥接
// 单协程事件循环负责定时发送与重连，消息回调只入队
type Bridge struct {
	rec      *nodeconfig.Record
	enricher Enricher
	hub      Broadcaster
	factory  ClientFactory
	metrics  *metrics.Metrics
	now      func() time.Time
	log      *logger.StructuredLogger

	clientID          string
	subscribeTopic    string
	statusTopic       string
	configTopic       string
	qos               byte
	timeout           time.Duration
	interval          time.Duration
	reconnectInterval time.Duration

	queue   *pendingQueue
	breaker *circuit.Breaker

	// 只在 flush 中访问
	failing  *models.EnrichedMessage
	failures int

	mu           sync.RWMutex
	client       Client
	running      bool
	connected    bool
	lastPublish  time.Time
	ctx          context.Context
	stopChan     chan struct{}
	flushNow     chan struct{}
	reconnectNow chan struct{}
	wg           sync.WaitGroup

	received      atomic.Uint64
	mapped        atomic.Uint64
	unmapped      atomic.Uint64
	ignored       atomic.Uint64
	published     atomic.Uint64
	dropped       atomic.Uint64
	publishErrors atomic.Uint64
}

// New 创建桥接；rec 应已通过校验
func New(rec *nodeconfig.Record, enricher Enricher, opts Options) *Bridge {
	factory := opts.ClientFactory
	if factory == nil {
		factory = defaultClientFactory
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	reconnect := opts.ReconnectInterval
	if reconnect <= 0 {
		reconnect = defaultReconnectInterval
	}
	interval := rec.SendInterval()
	if interval < minFlushInterval {
		interval = minFlushInterval
	}

	return &Bridge{
		rec:               rec,
		enricher:          enricher,
		hub:               opts.Broadcaster,
		factory:           factory,
		metrics:           m,
		now:               now,
		log:               logger.Named("bridge"),
		clientID:          NewClientID(rec.SensorID),
		subscribeTopic:    rec.Topic("#"),
		statusTopic:       rec.NodeTopic(statusLevel),
		configTopic:       rec.NodeTopic(configLevel),
		qos:               clampQOS(opts.QOS),
		timeout:           timeout,
		interval:          interval,
		reconnectInterval: reconnect,
		queue:             newPendingQueue(opts.QueueSize),
		breaker:           newPublishBreaker(opts.Breaker, now),
		ctx:               context.Background(),
	}
}

// Start 创建客户端并启动事件循环；首次连接失败时转入定时重连，不返回错误
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	opts := buildClientOptions(b.rec, b.clientID, b.timeout)
	opts.SetConnectionLostHandler(b.onConnectionLost)
	client := b.factory(opts)
	if client == nil {
		b.mu.Unlock()
		return fmt.Errorf("mqtt client factory returned nil")
	}

	b.client = client
	b.ctx = ctx
	b.running = true
	b.stopChan = make(chan struct{})
	b.flushNow = make(chan struct{}, 1)
	b.reconnectNow = make(chan struct{}, 1)
	b.wg.Add(1)
	go b.runLoop(ctx, b.stopChan, b.flushNow, b.reconnectNow)
	b.mu.Unlock()

	b.log.Info("Bridge starting", "broker", b.rec.BrokerURL(), "client_id", b.clientID, "topic", b.subscribeTopic)
	if err := b.connect(); err != nil {
		b.log.Warn("Initial MQTT connect failed, will retry", "error", err.Error(), "retry_in", b.reconnectInterval.String())
		b.signalReconnect()
	}
	return nil
}

// Stop 停止事件循环，发送剩余消息并以 offline 状态断开
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopChan)
	b.mu.Unlock()

	b.wg.Wait()

	b.mu.Lock()
	client := b.client
	connected := b.connected
	b.connected = false
	b.client = nil
	b.mu.Unlock()

	if client != nil {
		if connected && client.IsConnected() {
			if err := waitToken(client.Publish(b.statusTopic, 1, true, []byte(statusOffline)), b.timeout, "publish"); err != nil {
				b.log.Warn("Publish offline status failed", "error", err.Error())
			}
		}
		client.Disconnect(250)
	}
	b.metrics.BrokerConnected.Set(0)
	b.log.Info("Bridge stopped", "queued", b.queue.len())
}

// Flush 立即发送队列中的消息
func (b *Bridge) Flush() {
	b.mu.RLock()
	ch := b.flushNow
	b.mu.RUnlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// IsConnected 是否已连接代理
func (b *Bridge) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected && b.client != nil && b.client.IsConnected()
}

// Stats 运行统计
func (b *Bridge) Stats() Stats {
	b.mu.RLock()
	running := b.running
	lastPublish := b.lastPublish
	b.mu.RUnlock()

	s := Stats{
		Running:         running,
		Connected:       b.IsConnected(),
		Broker:          b.rec.BrokerURL(),
		ClientID:        b.clientID,
		SubscribeTopic:  b.subscribeTopic,
		FlushIntervalMS: b.interval.Milliseconds(),
		Received:        b.received.Load(),
		Mapped:          b.mapped.Load(),
		Unmapped:        b.unmapped.Load(),
		Ignored:         b.ignored.Load(),
		Published:       b.published.Load(),
		Dropped:         b.dropped.Load(),
		PublishErrors:   b.publishErrors.Load(),
		QueueDepth:      b.queue.len(),
		QueueCapacity:   b.queue.cap,
		Circuit:         b.breaker.Stats(),
	}
	if !lastPublish.IsZero() {
		s.LastPublish = &lastPublish
	}
	return s
}

// connect 连接代理，成功后订阅并发布 online 与调参快照
func (b *Bridge) connect() error {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		return errNotConnected
	}

	if err := waitToken(client.Connect(), b.timeout, "connect"); err != nil {
		return err
	}
	if err := waitToken(client.Subscribe(b.subscribeTopic, b.qos, b.handleMessage), b.timeout, "subscribe"); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subscribeTopic, err)
	}

	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	b.metrics.BrokerConnected.Set(1)
	b.breaker.Reset()

	if err := b.announce(client); err != nil {
		b.log.Warn("Publish node status failed", "error", err.Error())
	}
	b.log.Info("MQTT connected", "broker", b.rec.BrokerURL(), "client_id", b.clientID)
	return nil
}

// announce 发布保留的 online 状态和调参快照
func (b *Bridge) announce(client Client) error {
	if err := waitToken(client.Publish(b.statusTopic, 1, true, []byte(statusOnline)), b.timeout, "publish"); err != nil {
		return err
	}
	snapshot, err := json.Marshal(b.rec.Tuning())
	if err != nil {
		return err
	}
	return waitToken(client.Publish(b.configTopic, 1, true, snapshot), b.timeout, "publish")
}

func (b *Bridge) onConnectionLost(_ mqtt.Client, err error) {
	if err != nil {
		b.log.Warn("MQTT connection lost", "error", err.Error())
	}
	b.markDisconnected()
}

func (b *Bridge) markDisconnected() {
	b.mu.Lock()
	b.connected = false
	running := b.running
	b.mu.Unlock()
	b.metrics.BrokerConnected.Set(0)
	if running {
		b.signalReconnect()
	}
}

func (b *Bridge) signalReconnect() {
	b.mu.RLock()
	ch := b.reconnectNow
	b.mu.RUnlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (b *Bridge) shouldReconnect() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running || b.client == nil {
		return false
	}
	return !b.connected || !b.client.IsConnected()
}

// isOwnTopic 自身发布的主题不再处理
func (b *Bridge) isOwnTopic(topic string) bool {
	return strings.HasSuffix(topic, "/"+enrichedLevel) || topic == b.statusTopic || topic == b.configTopic
}

// handleMessage 订阅回调：解析、标注、入队
func (b *Bridge) handleMessage(_ mqtt.Client, m mqtt.Message) {
	topic := m.Topic()
	if b.isOwnTopic(topic) {
		b.ignored.Add(1)
		return
	}
	b.received.Add(1)
	b.metrics.MessagesReceived.Inc()

	msg := parseSensorMessage(topic, m.Payload(), b.now())

	b.mu.RLock()
	ctx := b.ctx
	b.mu.RUnlock()

	deviceID, tags, assoc := b.enricher.Enrich(ctx, msg)
	if !mapping.ValidDeviceID(deviceID) {
		if deviceID != "" {
			b.log.Warn("Device id is not a single topic level, message ignored", "device_id", deviceID, "topic", topic)
		}
		b.ignored.Add(1)
		return
	}

	enriched := &models.EnrichedMessage{
		DeviceID:    deviceID,
		SourceTopic: topic,
		Tags:        tags,
		Payload:     msg.Payload,
		ReceivedAt:  msg.Timestamp,
	}
	if msg.Payload == nil {
		enriched.Raw = string(msg.Raw)
	}
	if assoc != nil {
		enriched.AssociationID = assoc.ID
		b.mapped.Add(1)
		b.metrics.MessagesEnriched.WithLabelValues("true").Inc()
	} else {
		b.unmapped.Add(1)
		b.metrics.MessagesEnriched.WithLabelValues("false").Inc()
	}

	if dropped := b.queue.push(enriched); dropped > 0 {
		b.recordDropped(dropped)
	}
	b.metrics.QueueDepth.Set(float64(b.queue.len()))

	if b.hub != nil {
		b.hub.Broadcast(enriched)
	}
}

// parseSensorMessage JSON 对象解析为 Payload，其他内容保留原文
func parseSensorMessage(topic string, payload []byte, now time.Time) *models.SensorMessage {
	msg := &models.SensorMessage{
		Topic:     topic,
		Raw:       append([]byte(nil), payload...),
		Timestamp: now.UTC(),
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(payload, &obj); err == nil && obj != nil {
		msg.Payload = obj
	}
	return msg
}

func (b *Bridge) recordDropped(n int) {
	b.dropped.Add(uint64(n))
	b.metrics.MessagesDropped.Add(float64(n))
	b.log.Warn("Publish queue full, dropped oldest messages", "dropped", n, "capacity", b.queue.cap)
}

// runLoop 单协程事件循环（定时发送/立即发送/重连）
func (b *Bridge) runLoop(ctx context.Context, stopChan, flushNow, reconnectNow chan struct{}) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	var reconnectTimer *time.Timer
	var reconnectTimerCh <-chan time.Time

	scheduleReconnect := func(delay time.Duration) {
		if reconnectTimer == nil {
			reconnectTimer = time.NewTimer(delay)
			reconnectTimerCh = reconnectTimer.C
			return
		}
		if !reconnectTimer.Stop() {
			select {
			case <-reconnectTimer.C:
			default:
			}
		}
		reconnectTimer.Reset(delay)
		reconnectTimerCh = reconnectTimer.C
	}

	stopReconnect := func() {
		if reconnectTimer != nil && !reconnectTimer.Stop() {
			select {
			case <-reconnectTimer.C:
			default:
			}
		}
		reconnectTimerCh = nil
	}
	defer stopReconnect()

	for {
		select {
		case <-stopChan:
			b.flush()
			return
		case <-ctx.Done():
			b.flush()
			return
		case <-flushNow:
			b.flush()
		case <-ticker.C:
			b.flush()
		case <-reconnectNow:
			scheduleReconnect(0)
		case <-reconnectTimerCh:
			if !b.shouldReconnect() {
				stopReconnect()
				continue
			}
			if err := b.connect(); err != nil {
				b.log.Warn("MQTT reconnect failed", "error", err.Error(), "retry_in", b.reconnectInterval.String())
				scheduleReconnect(b.reconnectInterval)
				continue
			}
			stopReconnect()
			b.flush()
		}
	}
}

// flush 依次发布队列中的消息；失败时剩余消息放回队首
func (b *Bridge) flush() {
	batch := b.queue.drain()
	if len(batch) == 0 {
		return
	}
	defer func() { b.metrics.QueueDepth.Set(float64(b.queue.len())) }()

	b.mu.RLock()
	client := b.client
	connected := b.connected
	b.mu.RUnlock()

	if client == nil || !connected || !client.IsConnected() {
		if dropped := b.queue.requeue(batch); dropped > 0 {
			b.recordDropped(dropped)
		}
		return
	}

	for i, msg := range batch {
		err := b.breaker.Execute(func() error { return b.publish(client, msg) })
		if err != nil {
			rest := batch[i:]
			var openErr *circuit.OpenError
			if errors.As(err, &openErr) {
				b.log.Debug("Publish paused by circuit breaker", "retry_after", openErr.RetryAfter.String(), "queued", len(batch)-i)
			} else {
				b.publishErrors.Add(1)
				b.metrics.PublishErrors.Inc()
				b.log.Error("Publish enriched message failed", err, "device_id", msg.DeviceID)
				if client.IsConnected() && b.countFailure(msg) >= maxPublishAttempts {
					b.discard(msg)
					rest = batch[i+1:]
				}
			}
			if dropped := b.queue.requeue(rest); dropped > 0 {
				b.recordDropped(dropped)
			}
			if !client.IsConnected() {
				b.markDisconnected()
			}
			return
		}
	}
}

// countFailure 返回 msg 连续失败的次数
func (b *Bridge) countFailure(msg *models.EnrichedMessage) int {
	if b.failing != msg {
		b.failing = msg
		b.failures = 0
	}
	b.failures++
	return b.failures
}

// discard 丢弃反复发布失败的消息
func (b *Bridge) discard(msg *models.EnrichedMessage) {
	b.log.Error("Dropping message after repeated publish failures", nil,
		"device_id", msg.DeviceID, "attempts", b.failures)
	b.failing = nil
	b.failures = 0
	b.dropped.Add(1)
	b.metrics.MessagesDropped.Inc()
}

// newPublishBreaker 代理持续拒绝发布时暂停发送，消息留在队列中
func newPublishBreaker(cfg circuit.Config, now func() time.Time) *circuit.Breaker {
	if cfg.Name == "" {
		cfg.Name = "mqtt-publish"
	}
	if cfg.Now == nil {
		cfg.Now = now
	}
	return circuit.New(cfg)
}

func (b *Bridge) publish(client Client, msg *models.EnrichedMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	topic := b.rec.Topic(msg.DeviceID, enrichedLevel)
	if err := waitToken(client.Publish(topic, b.qos, false, body), b.timeout, "publish"); err != nil {
		return err
	}

	b.published.Add(1)
	b.metrics.MessagesPublished.Inc()
	b.mu.Lock()
	b.lastPublish = b.now()
	b.mu.Unlock()
	return nil
}
