package monitor

import (
	"sync"
	"time"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventOrderRegistered EventType = "order_registered"
	EventOrderDispatched EventType = "order_dispatched"
	EventOrderStatus     EventType = "order_status"
	EventOrderFill       EventType = "order_fill"
	EventOrderCancel     EventType = "order_cancel"
	EventQuoteError      EventType = "quote_error"
	EventError           EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// OrderRegisteredPayload 记录订单登记。
type OrderRegisteredPayload struct {
	OrderID      int64  `json:"order_id"`
	SecurityCode string `json:"security_code"`
	Remaining    int64  `json:"remaining"`
}

// OrderDispatchedPayload 记录委托提交。
type OrderDispatchedPayload struct {
	OrderNo      int     `json:"order_no"`
	SecurityCode string  `json:"security_code"`
	Category     string  `json:"category"`
	Price        float64 `json:"price"`
	Volume       int64   `json:"volume"`
}

// OrderStatusPayload 记录委托状态变更。
type OrderStatusPayload struct {
	OrderNo    int    `json:"order_no"`
	Status     string `json:"status"`
	DealVolume int64  `json:"deal_volume"`
}

// OrderFillPayload 记录单笔成交。
type OrderFillPayload struct {
	OrderNo      int     `json:"order_no"`
	SecurityCode string  `json:"security_code"`
	Price        float64 `json:"price"`
	Volume       int64   `json:"volume"`
}

// OrderCancelPayload 记录撤单动作。
type OrderCancelPayload struct {
	OrderNo int    `json:"order_no"`
	Reason  string `json:"reason"`
}

// QuoteErrorPayload 记录单只证券的行情拉取错误。
type QuoteErrorPayload struct {
	SecurityCode string `json:"security_code"`
	Error        string `json:"error"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Bus 将监控事件实时扇出给所有活跃的流式订阅方。投递是尽力而为的：
// 订阅方消费过慢时事件被丢弃，不阻塞记录路径。
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus 创建事件总线。
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe 返回一个带缓冲的事件通道。
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 100)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe 关闭并移除事件通道。
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish 向全部订阅方投递事件。
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}
