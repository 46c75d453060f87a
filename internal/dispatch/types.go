package dispatch

import (
	"time"

	"ashare-trader/internal/broker"
	"ashare-trader/internal/order"
)

// DispatchedOrder 为一次成功提交后的在途委托，由调度器在轮询中就地更新。
type DispatchedOrder struct {
	DispatchedAt time.Time
	OrderNo      int
	Status       broker.OrderStatus
	DealVolume   int64
	DealPrice    float64
	Request      *order.Request
}

// Snapshot 返回在途委托的只读副本，回调方持有副本而非注册表内对象。
func (d *DispatchedOrder) Snapshot() DispatchedOrder {
	return DispatchedOrder{
		DispatchedAt: d.DispatchedAt,
		OrderNo:      d.OrderNo,
		Status:       d.Status,
		DealVolume:   d.DealVolume,
		DealPrice:    d.DealPrice,
		Request:      d.Request,
	}
}

// StatusListener 在在途委托状态或成交量变化时被调用。
type StatusListener func(snapshot DispatchedOrder)
