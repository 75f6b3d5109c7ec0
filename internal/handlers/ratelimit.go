package handlers

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// sweepEvery 每处理这么多次请求清理一次空闲客户端
const sweepEvery = 256

// eventLog 一个客户端在窗口内的事件时间，按时间先后排列
type eventLog struct {
	events       deque.Deque[time.Time]
	blockedUntil time.Time
}

// expire 丢弃早于 cutoff 的事件
func (l *eventLog) expire(cutoff time.Time) {
	for l.events.Len() > 0 && !l.events.Front().After(cutoff) {
		l.events.PopFront()
	}
}

// clientTable 按来源 IP 分组的事件日志
type clientTable struct {
	mu      sync.Mutex
	clients map[string]*eventLog
	calls   int
}

// get 调用方需持有 mu
func (t *clientTable) get(ip string) *eventLog {
	if ip == "" {
		ip = "unknown"
	}
	if t.clients == nil {
		t.clients = make(map[string]*eventLog)
	}
	l, ok := t.clients[ip]
	if !ok {
		l = &eventLog{}
		t.clients[ip] = l
	}
	return l
}

// sweep 删除窗口内无事件且未封禁的客户端，调用方需持有 mu
func (t *clientTable) sweep(cutoff, now time.Time) {
	t.calls++
	if t.calls%sweepEvery != 0 {
		return
	}
	for ip, l := range t.clients {
		l.expire(cutoff)
		if l.events.Len() == 0 && !now.Before(l.blockedUntil) {
			delete(t.clients, ip)
		}
	}
}

// RateLimiter 按来源 IP 的滑动窗口限流
type RateLimiter struct {
	table  clientTable
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter 创建限流器，requestsPerMinute <= 0 表示不限流
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	return &RateLimiter{limit: requestsPerMinute, window: time.Minute, now: time.Now}
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(ip string) bool {
	ok, _ := rl.reserve(ip)
	return ok
}

// reserve 允许时记录本次请求；拒绝时返回窗口内最早一次请求过期前的等待时间
func (rl *RateLimiter) reserve(ip string) (bool, time.Duration) {
	if rl == nil || rl.limit <= 0 {
		return true, 0
	}
	rl.table.mu.Lock()
	defer rl.table.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	rl.table.sweep(cutoff, now)

	l := rl.table.get(ip)
	l.expire(cutoff)
	if l.events.Len() >= rl.limit {
		return false, l.events.Front().Sub(cutoff)
	}
	l.events.PushBack(now)
	return true, 0
}

// Middleware 超出限额返回 429 和 Retry-After
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := rl.reserve(clientIP(r)); !ok {
			w.Header().Set("Retry-After", retryAfterSeconds(wait))
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BruteForceLimiter 登录暴力破解防护：窗口内失败次数达到上限后封禁一段时间
type BruteForceLimiter struct {
	table     clientTable
	limit     int
	window    time.Duration
	blockTime time.Duration
	now       func() time.Time
}

// NewBruteForceLimiter 创建暴力破解防护器
func NewBruteForceLimiter(maxFailures int, blockDuration time.Duration) *BruteForceLimiter {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &BruteForceLimiter{
		limit:     maxFailures,
		window:    15 * time.Minute,
		blockTime: blockDuration,
		now:       time.Now,
	}
}

// RecordFailure 记录登录失败，封禁期间的失败不计数
func (b *BruteForceLimiter) RecordFailure(ip string) {
	b.table.mu.Lock()
	defer b.table.mu.Unlock()

	now := b.now()
	cutoff := now.Add(-b.window)
	b.table.sweep(cutoff, now)

	l := b.table.get(ip)
	if now.Before(l.blockedUntil) {
		return
	}
	l.expire(cutoff)
	l.events.PushBack(now)
	if l.events.Len() >= b.limit {
		l.blockedUntil = now.Add(b.blockTime)
		l.events.Clear()
	}
}

// RecordSuccess 登录成功后清空该 IP 的失败记录
func (b *BruteForceLimiter) RecordSuccess(ip string) {
	b.table.mu.Lock()
	defer b.table.mu.Unlock()
	l := b.table.get(ip)
	l.events.Clear()
	l.blockedUntil = time.Time{}
}

// IsBlocked 检查IP是否被封禁
func (b *BruteForceLimiter) IsBlocked(ip string) bool {
	blocked, _ := b.BlockStatus(ip)
	return blocked
}

// BlockStatus 返回封禁状态与剩余时间
func (b *BruteForceLimiter) BlockStatus(ip string) (bool, time.Duration) {
	b.table.mu.Lock()
	defer b.table.mu.Unlock()
	remaining := b.table.get(ip).blockedUntil.Sub(b.now())
	if remaining <= 0 {
		return false, 0
	}
	return true, remaining
}

func retryAfterSeconds(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// clientIP 来源 IP；反向代理头由 handlers.ProxyHeaders 预先写入 RemoteAddr
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
