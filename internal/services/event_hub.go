// internal/services/event_hub.go
package services

import (
	"sync"
	"time"
)

// 会话事件类型
const (
	EventTurn  = "turn"
	EventReset = "reset"
	EventEnded = "ended"
)

// SessionEvent 推送给订阅者的会话事件
type SessionEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventHub 按会话分发事件，例如让旁听的 WebSocket 连接看到 HTTP 回合
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan SessionEvent]struct{}
	bufferSize  int
}

// NewEventHub 创建事件中心
func NewEventHub(bufferSize int) *EventHub {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &EventHub{
		subscribers: make(map[string]map[chan SessionEvent]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscribe 订阅会话事件，返回事件通道和取消函数
func (h *EventHub) Subscribe(sessionID string) (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, h.bufferSize)

	h.mu.Lock()
	if h.subscribers[sessionID] == nil {
		h.subscribers[sessionID] = make(map[chan SessionEvent]struct{})
	}
	h.subscribers[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subscribers[sessionID]; ok {
				if _, ok := subs[ch]; ok {
					delete(subs, ch)
					close(ch)
				}
				if len(subs) == 0 {
					delete(h.subscribers, sessionID)
				}
			}
		})
	}
}

// Publish 非阻塞发送，订阅者缓冲区满时丢弃该事件
func (h *EventHub) Publish(event SessionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[event.SessionID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close 会话结束时关闭该会话的所有订阅
func (h *EventHub) Close(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[sessionID] {
		close(ch)
	}
	delete(h.subscribers, sessionID)
}

// Subscribers 会话当前的订阅者数量
func (h *EventHub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sessionID])
}
