package order

import (
	"ashare-trader/internal/broker"
	"ashare-trader/internal/quote"
)

// BuyOrder 以期望价买入：期望价不低于卖一价即触发。
type BuyOrder struct {
	base
	expectedPrice float64
}

var _ Order = (*BuyOrder)(nil)

// NewBuyOrder 创建买入订单。
func NewBuyOrder(securityCode string, expectedPrice float64, volume int64, cancelIfNotSucceeded bool, cb ExecutionCallback) *BuyOrder {
	return &BuyOrder{
		base:          newBase(securityCode, volume, cancelIfNotSucceeded, cb),
		expectedPrice: expectedPrice,
	}
}

// ExpectedPrice 返回期望买入价。
func (o *BuyOrder) ExpectedPrice() float64 { return o.expectedPrice }

// ShouldExecute 在期望价达到或越过卖一价时触发。
func (o *BuyOrder) ShouldExecute(q *quote.FiveLevelQuote) bool {
	minAsk := q.MinSellPrice()
	if minAsk <= 0 {
		return false
	}
	return o.expectedPrice >= minAsk
}

// BuildRequest 以期望价限价买入剩余数量。
func (o *BuyOrder) BuildRequest(q *quote.FiveLevelQuote) *Request {
	return &Request{
		Category:     broker.CategoryBuy,
		Pricing:      broker.PricingLimit,
		Price:        o.expectedPrice,
		Volume:       o.RemainingVolume(),
		SecurityCode: o.securityCode,
		Order:        o,
	}
}

// NotifyExecution 同步触发成交回调。
func (o *BuyOrder) NotifyExecution(price float64, volume int64) {
	o.notify(o, price, volume)
}
