package order

import (
	"fmt"
	"sync"
	"sync/atomic"

	"ashare-trader/internal/broker"
	"ashare-trader/internal/quote"
)

var nextID atomic.Int64

// ExecutionCallback 在订单发生成交时被同步调用。
type ExecutionCallback func(o Order, price float64, volume int64)

// Order 统一买入、卖出与止损三类委托的能力集合。
// 订单在任一时刻至多归属一个注册表，成交量单调不减。
type Order interface {
	// ID 返回进程内唯一标识。
	ID() int64
	SecurityCode() string
	ExpectedVolume() int64
	ExecutedVolume() int64
	RemainingVolume() int64
	// ShouldCancelIfNotSucceeded 指示该订单是否参与超时撤单。
	ShouldCancelIfNotSucceeded() bool
	// ShouldExecute 基于一笔行情判断是否应当触发委托。
	ShouldExecute(q *quote.FiveLevelQuote) bool
	// BuildRequest 基于触发行情构造委托请求。
	BuildRequest(q *quote.FiveLevelQuote) *Request
	// Deal 记录一笔成交。成交后总量超出预期量属于编程错误，直接报错。
	Deal(price float64, volume int64) error
	IsCompleted() bool
	// NotifyExecution 同步触发成交回调。
	NotifyExecution(price float64, volume int64)
}

// Request 为不可变的委托请求值对象，携带原始订单引用用于回调路由。
type Request struct {
	Category     broker.OrderCategory
	Pricing      broker.PricingType
	Price        float64
	Volume       int64
	SecurityCode string

	// Order 仅用于回调路由，请求内部不直接修改订单。
	Order Order
}

// SubmitRequest 转换为网关提交入参。
func (r *Request) SubmitRequest() broker.SubmitRequest {
	return broker.SubmitRequest{
		SecurityCode: r.SecurityCode,
		Category:     r.Category,
		Pricing:      r.Pricing,
		Price:        r.Price,
		Volume:       r.Volume,
	}
}

// base 承载三类订单共有的字段与簿记。
type base struct {
	id                   int64
	securityCode         string
	expectedVolume       int64
	cancelIfNotSucceeded bool
	onExecution          ExecutionCallback

	mu             sync.Mutex
	executedVolume int64
}

func newBase(securityCode string, expectedVolume int64, cancelIfNotSucceeded bool, cb ExecutionCallback) base {
	return base{
		id:                   nextID.Add(1),
		securityCode:         securityCode,
		expectedVolume:       expectedVolume,
		cancelIfNotSucceeded: cancelIfNotSucceeded,
		onExecution:          cb,
	}
}

func (b *base) ID() int64            { return b.id }
func (b *base) SecurityCode() string { return b.securityCode }

func (b *base) ExpectedVolume() int64 { return b.expectedVolume }

func (b *base) ExecutedVolume() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executedVolume
}

func (b *base) RemainingVolume() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.expectedVolume - b.executedVolume
}

func (b *base) ShouldCancelIfNotSucceeded() bool { return b.cancelIfNotSucceeded }

// Deal 记录一笔成交，保证成交量单调不减且不超过预期量。
func (b *base) Deal(price float64, volume int64) error {
	if volume <= 0 {
		return fmt.Errorf("order: 成交数量必须为正，得到 %d", volume)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.executedVolume+volume > b.expectedVolume {
		return fmt.Errorf("order: 成交总量 %d 超出预期量 %d",
			b.executedVolume+volume, b.expectedVolume)
	}
	b.executedVolume += volume
	return nil
}

func (b *base) IsCompleted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executedVolume >= b.expectedVolume
}

// notify 由各变体在 NotifyExecution 中调用，传入自身引用。
func (b *base) notify(o Order, price float64, volume int64) {
	if b.onExecution != nil {
		b.onExecution(o, price, volume)
	}
}
