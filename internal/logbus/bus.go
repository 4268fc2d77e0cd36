package logbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// 总线上的消息类型；ws 层原样转发给前端。
const (
	TypeLog      = "log"
	TypeResult   = "result"
	TypeRunState = "run_state"
)

type Message struct {
	Type string `json:"type"`
	Time int64  `json:"time"`
	Data any    `json:"data"`
}

type LogData struct {
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Bus 进程内日志/事件总线：固定容量的环形缓冲加非阻塞广播。
// 订阅者跟不上时消息直接丢弃，只计数，不拖慢发布方。
type Bus struct {
	mu     sync.RWMutex
	ring   []Message
	cap    int
	subs   map[chan Message]struct{}
	closed bool

	dropped atomic.Uint64
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 200
	}
	return &Bus{
		cap:  capacity,
		ring: make([]Message, 0, capacity),
		subs: make(map[chan Message]struct{}),
	}
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.ring = nil
}

// Snapshot 返回缓冲区当前内容的拷贝，新连接用它回放历史。
func (b *Bus) Snapshot() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Message, len(b.ring))
	copy(out, b.ring)
	return out
}

// Dropped 返回因订阅者缓冲满而被丢弃的消息总数。
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bus) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Message, buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if b.subs != nil {
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Bus) Publish(typ string, data any) {
	msg := Message{
		Type: typ,
		Time: time.Now().UnixMilli(),
		Data: data,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if len(b.ring) < b.cap {
		b.ring = append(b.ring, msg)
	} else if b.cap > 0 {
		copy(b.ring, b.ring[1:])
		b.ring[b.cap-1] = msg
	}
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	b.mu.Unlock()
}

func (b *Bus) Log(level, message string, fields map[string]any) {
	b.Publish(TypeLog, LogData{Level: level, Msg: message, Fields: fields})
}
