package order

import (
	"ashare-trader/internal/broker"
	"ashare-trader/internal/quote"
)

// sellVolumeMultiple 为卖出订单吃单深度判断的倍数。
const sellVolumeMultiple = 1

// SellOrder 以固定价卖出：价格跌破买盘最低档，或该价位以上的
// 买盘量足以覆盖剩余数量时触发。
type SellOrder struct {
	base
	price float64
}

var _ Order = (*SellOrder)(nil)

// NewSellOrder 创建固定价卖出订单。
func NewSellOrder(securityCode string, price float64, volume int64, cancelIfNotSucceeded bool, cb ExecutionCallback) *SellOrder {
	return &SellOrder{
		base:  newBase(securityCode, volume, cancelIfNotSucceeded, cb),
		price: price,
	}
}

// Price 返回固定卖出价。
func (o *SellOrder) Price() float64 { return o.price }

// ShouldExecute 判断固定价是否已具备成交条件。
func (o *SellOrder) ShouldExecute(q *quote.FiveLevelQuote) bool {
	maxBid := q.MaxBuyPrice()
	if maxBid <= 0 {
		return false
	}

	if o.price < q.MinBuyPrice() {
		return true
	}
	return q.BuyVolumeAtOrAbove(o.price) >= sellVolumeMultiple*o.RemainingVolume()
}

// BuildRequest 以固定价限价卖出剩余数量。
func (o *SellOrder) BuildRequest(q *quote.FiveLevelQuote) *Request {
	return &Request{
		Category:     broker.CategorySell,
		Pricing:      broker.PricingLimit,
		Price:        o.price,
		Volume:       o.RemainingVolume(),
		SecurityCode: o.securityCode,
		Order:        o,
	}
}

// NotifyExecution 同步触发成交回调。
func (o *SellOrder) NotifyExecution(price float64, volume int64) {
	o.notify(o, price, volume)
}
