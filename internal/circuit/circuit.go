// Package circuit 熔断器：连续失败达到阈值后暂停调用，恢复超时后半开试探
package circuit

import (
	"sync"
	"time"

	"github.com/gonglijing/biodataBridge/internal/logger"
)

var log = logger.Named("circuit")

// State 熔断器状态
type State int

const (
	Closed   State = iota // 正常放行
	Open                  // 拒绝调用
	HalfOpen              // 试探恢复
)

// String 返回状态字符串
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	Name             string
	FailureThreshold int           // 窗口内失败次数阈值
	FailureWindow    time.Duration // 失败计数窗口
	SuccessThreshold int           // 半开状态下恢复所需成功次数
	RecoveryTimeout  time.Duration // 打开后多久进入半开
	Now              func() time.Time
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Name:             "default",
		FailureThreshold: 5,
		FailureWindow:    time.Minute,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Breaker 熔断器
type Breaker struct {
	mu          sync.Mutex
	cfg         Config
	state       State
	failures    []time.Time
	successes   int
	lastFailure time.Time
	rejected    uint64
}

// Stats 熔断器统计
type Stats struct {
	State      string `json:"state"`
	Failures   int    `json:"failures"`
	Rejected   uint64 `json:"rejected"`
	RetryAfter string `json:"retry_after,omitempty"`
}

// New 创建熔断器，未设置的字段取默认值
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = def.FailureWindow
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// Execute 执行受保护的调用；熔断打开时返回 *OpenError 且不调用 fn
func (b *Breaker) Execute(fn func() error) error {
	if retry, ok := b.allow(); !ok {
		return &OpenError{Name: b.cfg.Name, RetryAfter: retry}
	}
	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advanceLocked(b.cfg.Now())
	if b.state == Open {
		b.rejected++
		return b.retryAfterLocked(b.cfg.Now()), false
	}
	return 0, true
}

// advanceLocked 打开超过恢复超时后进入半开
func (b *Breaker) advanceLocked(now time.Time) {
	if b.state == Open && now.Sub(b.lastFailure) >= b.cfg.RecoveryTimeout {
		b.transitionLocked(HalfOpen, "recovery timeout elapsed")
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()
	if success {
		switch b.state {
		case HalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transitionLocked(Closed, "recovered")
			}
		case Closed:
			b.failures = trimBefore(b.failures, now.Add(-b.cfg.FailureWindow))
		}
		return
	}

	b.lastFailure = now
	switch b.state {
	case HalfOpen:
		b.transitionLocked(Open, "half-open failure")
	case Closed:
		b.failures = append(trimBefore(b.failures, now.Add(-b.cfg.FailureWindow)), now)
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.transitionLocked(Open, "failure threshold reached")
		}
	}
}

func (b *Breaker) transitionLocked(to State, reason string) {
	from := b.state
	b.state = to
	b.successes = 0
	b.failures = b.failures[:0]
	log.Info("Circuit breaker state changed", "name", b.cfg.Name, "from", from.String(), "to", to.String(), "reason", reason)
}

func (b *Breaker) retryAfterLocked(now time.Time) time.Duration {
	d := b.cfg.RecoveryTimeout - now.Sub(b.lastFailure)
	if d < 0 {
		return 0
	}
	return d
}

// State 当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked(b.cfg.Now())
	return b.state
}

// Reset 回到关闭状态
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.successes = 0
	b.failures = b.failures[:0]
	b.rejected = 0
}

// Stats 统计信息
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()
	b.advanceLocked(now)
	s := Stats{
		State:    b.state.String(),
		Failures: len(b.failures),
		Rejected: b.rejected,
	}
	if b.state == Open {
		s.RetryAfter = b.retryAfterLocked(now).String()
	}
	return s
}

func trimBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// OpenError 熔断打开
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return "circuit " + e.Name + " is open, retry after " + e.RetryAfter.String()
}
