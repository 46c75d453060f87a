package quote

import (
	"context"
	"time"
)

// DepthLevels 为五档行情的档位数量。
const DepthLevels = 5

// FiveLevelQuote 为单只证券的五档行情快照，构造后不再修改。
// 买卖档位均按档位一至五排列，第一档为最优价。
type FiveLevelQuote struct {
	SecurityCode  string
	SecurityName  string
	PreviousClose float64
	TodayOpen     float64
	CurrentPrice  float64

	BuyPrices   [DepthLevels]float64
	BuyVolumes  [DepthLevels]int64
	SellPrices  [DepthLevels]float64
	SellVolumes [DepthLevels]int64

	DealVolume int64
	DealAmount float64
	Timestamp  time.Time
}

// MaxBuyPrice 返回买一价。
func (q *FiveLevelQuote) MaxBuyPrice() float64 {
	return q.BuyPrices[0]
}

// MinBuyPrice 返回可见档位中最低的买价。
func (q *FiveLevelQuote) MinBuyPrice() float64 {
	min := q.BuyPrices[0]
	for _, p := range q.BuyPrices[1:] {
		if p > 0 && p < min {
			min = p
		}
	}
	return min
}

// MinSellPrice 返回卖一价。
func (q *FiveLevelQuote) MinSellPrice() float64 {
	return q.SellPrices[0]
}

// TotalBuyVolume 返回可见买盘总量。
func (q *FiveLevelQuote) TotalBuyVolume() int64 {
	var total int64
	for _, v := range q.BuyVolumes {
		total += v
	}
	return total
}

// BuyVolumeAtOrAbove 返回买价不低于 price 的可见买盘量之和。
func (q *FiveLevelQuote) BuyVolumeAtOrAbove(price float64) int64 {
	var total int64
	for i, p := range q.BuyPrices {
		if p >= price {
			total += q.BuyVolumes[i]
		}
	}
	return total
}

// Result 为一次行情拉取中单只证券的结果，行情与错误二者取一。
type Result struct {
	SecurityCode string
	Quote        *FiveLevelQuote
	Err          error
}

// Source 抽象行情适配器：按批量证券代码同步返回行情快照。
// 返回结果与输入代码一一对应、顺序一致。
type Source interface {
	FetchQuotes(ctx context.Context, codes []string) ([]Result, error)
}

// Sink 为行情订阅方的投递端。同一证券代码可被多个 Sink 订阅。
type Sink interface {
	OnQuote(result Result)
}
