package bridge

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/gonglijing/biodataBridge/internal/models"
)

// DefaultQueueSize 待发布队列默认容量
const DefaultQueueSize = 1000

// pendingQueue 有界发布队列，满时丢弃最旧的消息
type pendingQueue struct {
	mu    sync.Mutex
	items deque.Deque[*models.EnrichedMessage]
	cap   int
}

func newPendingQueue(capLimit int) *pendingQueue {
	if capLimit <= 0 {
		capLimit = DefaultQueueSize
	}
	return &pendingQueue{cap: capLimit}
}

// push 入队，返回因容量被丢弃的条数
func (q *pendingQueue) push(msg *models.EnrichedMessage) int {
	if msg == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := 0
	for q.items.Len() >= q.cap {
		q.items.PopFront()
		dropped++
	}
	q.items.PushBack(msg)
	return dropped
}

// drain 取出全部消息
func (q *pendingQueue) drain() []*models.EnrichedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.items.Len()
	if n == 0 {
		return nil
	}
	batch := make([]*models.EnrichedMessage, 0, n)
	for q.items.Len() > 0 {
		batch = append(batch, q.items.PopFront())
	}
	return batch
}

// requeue 把未发出的消息放回队首，保持原顺序；超出容量时丢弃其中最旧的，返回丢弃条数
func (q *pendingQueue) requeue(items []*models.EnrichedMessage) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	room := q.cap - q.items.Len()
	if room < 0 {
		room = 0
	}
	dropped := 0
	if len(items) > room {
		dropped = len(items) - room
		items = items[dropped:]
	}
	for i := len(items) - 1; i >= 0; i-- {
		q.items.PushFront(items[i])
	}
	return dropped
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
