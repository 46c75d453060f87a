package order

import (
	"ashare-trader/internal/broker"
	"ashare-trader/internal/quote"
)

const (
	// safeLiquidityMultiple：触发价之下买盘总量超过剩余量该倍数时，
	// 认为下方流动性充足，暂不触发。
	safeLiquidityMultiple = 5
	// extrapolatedMultiple：外推量不超过剩余量该倍数时触发。
	extrapolatedMultiple = 2
	// visibleVolumeMultiple：触发价以上可见买盘量不超过剩余量该倍数时触发。
	visibleVolumeMultiple = 3
	// limitDownRatio 为主板跌停幅度。
	limitDownRatio = 0.9

	priceEpsilon = 1e-6
)

// StopLossOrder 止损卖出：依据买盘深度判断触发价是否面临击穿。
type StopLossOrder struct {
	base
	triggerPrice float64
}

var _ Order = (*StopLossOrder)(nil)

// NewStopLossOrder 创建止损订单。
func NewStopLossOrder(securityCode string, triggerPrice float64, volume int64, cancelIfNotSucceeded bool, cb ExecutionCallback) *StopLossOrder {
	return &StopLossOrder{
		base:         newBase(securityCode, volume, cancelIfNotSucceeded, cb),
		triggerPrice: triggerPrice,
	}
}

// TriggerPrice 返回止损触发价。
func (o *StopLossOrder) TriggerPrice() float64 { return o.triggerPrice }

// ShouldExecute 判断是否触发止损。
func (o *StopLossOrder) ShouldExecute(q *quote.FiveLevelQuote) bool {
	maxBid := q.MaxBuyPrice()
	minBid := q.MinBuyPrice()
	if maxBid <= 0 {
		return false
	}

	// 触发价已到达或高于买一价，立即触发。
	if o.triggerPrice >= maxBid-priceEpsilon {
		return true
	}

	// 跌停或买盘价格打平时无法从价差推断，等待后续行情。
	if q.CurrentPrice <= q.PreviousClose*limitDownRatio+priceEpsilon {
		return false
	}
	if maxBid-minBid <= priceEpsilon {
		return false
	}

	remaining := o.RemainingVolume()

	if o.triggerPrice < minBid {
		// 触发价在可见档位之下。买盘总量足够厚时按兵不动，
		// 否则按买一到买五的价差线性外推触发价以上可能成交的量。
		totalBid := q.TotalBuyVolume()
		if totalBid >= safeLiquidityMultiple*remaining {
			return false
		}
		extrapolated := float64(totalBid) * (maxBid - o.triggerPrice) / (maxBid - minBid)
		return extrapolated <= float64(extrapolatedMultiple*remaining)
	}

	// 触发价落在可见档位之间：其上买盘量不足以吸纳剩余量的数倍时触发。
	return q.BuyVolumeAtOrAbove(o.triggerPrice) <= visibleVolumeMultiple*remaining
}

// BuildRequest 以触发价限价卖出剩余数量。
func (o *StopLossOrder) BuildRequest(q *quote.FiveLevelQuote) *Request {
	return &Request{
		Category:     broker.CategorySell,
		Pricing:      broker.PricingLimit,
		Price:        o.triggerPrice,
		Volume:       o.RemainingVolume(),
		SecurityCode: o.securityCode,
		Order:        o,
	}
}

// NotifyExecution 同步触发成交回调。
func (o *StopLossOrder) NotifyExecution(price float64, volume int64) {
	o.notify(o, price, volume)
}
