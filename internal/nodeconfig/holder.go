package nodeconfig

import (
	"reflect"
	"sync"
)

// Holder 保存运行中的记录，以及文件变化后重新加载、等待重启生效的记录
type Holder struct {
	mu      sync.RWMutex
	path    string
	running *Record
	pending *Record
	lastErr error
}

// NewHolder 创建 Holder，rec 为进程启动时加载的记录
func NewHolder(path string, rec *Record) *Holder {
	return &Holder{path: path, running: rec}
}

// Path 记录文件路径
func (h *Holder) Path() string {
	return h.path
}

// Running 运行中的记录
func (h *Holder) Running() *Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Pending 与运行中不同、重启后才生效的记录；没有时返回 nil
func (h *Holder) Pending() *Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pending
}

// LastError 最近一次重新加载的错误
func (h *Holder) LastError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastErr
}

// Observe 接收 Watch 的回调结果，记录与运行中的不同时返回 true。
// 加载失败时保留之前的 pending。
func (h *Holder) Observe(rec *Record, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		h.lastErr = err
		return false
	}
	h.lastErr = nil
	if rec == nil || reflect.DeepEqual(rec, h.running) {
		h.pending = nil
		return false
	}
	h.pending = rec
	return true
}
