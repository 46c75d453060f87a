package order

import (
	"testing"

	"ashare-trader/internal/broker"
	"ashare-trader/internal/quote"
)

// depthQuote 构造一笔买一到买五递减、卖一到卖五递增的五档行情。
func depthQuote(prevClose float64, buyPrices [5]float64, buyVolumes [5]int64) *quote.FiveLevelQuote {
	q := &quote.FiveLevelQuote{
		SecurityCode:  "SH600000",
		PreviousClose: prevClose,
		CurrentPrice:  buyPrices[0],
		BuyPrices:     buyPrices,
		BuyVolumes:    buyVolumes,
	}
	for i := 0; i < 5; i++ {
		q.SellPrices[i] = buyPrices[0] + 0.01*float64(i+1)
		q.SellVolumes[i] = 500
	}
	return q
}

func TestStopLoss_TriggerAtOrAboveMaxBid_FiresImmediately(t *testing.T) {
	o := NewStopLossOrder("SH600000", 9.50, 300, true, nil)
	q := depthQuote(10.0, [5]float64{9.40, 9.39, 9.38, 9.37, 9.36}, [5]int64{100, 100, 100, 100, 100})

	if !o.ShouldExecute(q) {
		t.Fatal("expected immediate fire when trigger >= max bid")
	}

	req := o.BuildRequest(q)
	if req.Category != broker.CategorySell {
		t.Errorf("expected sell request, got %v", req.Category)
	}
	if req.Price != 9.50 {
		t.Errorf("expected request price 9.50, got %v", req.Price)
	}
	if req.Volume != 300 {
		t.Errorf("expected request volume 300, got %v", req.Volume)
	}
	if req.Order != o {
		t.Error("expected request to reference originating order")
	}
}

func TestStopLoss_LimitDown_DoesNotFire(t *testing.T) {
	// 昨收 10.00，现价 9.00 触及跌停。
	o := NewStopLossOrder("SH600000", 8.50, 300, true, nil)
	q := depthQuote(10.0, [5]float64{9.00, 8.99, 8.98, 8.97, 8.96}, [5]int64{100, 100, 100, 100, 100})

	if o.ShouldExecute(q) {
		t.Error("expected no fire at limit down")
	}
}

func TestStopLoss_FlatBids_DoesNotFire(t *testing.T) {
	o := NewStopLossOrder("SH600000", 9.30, 300, true, nil)
	q := depthQuote(10.0, [5]float64{9.40, 9.40, 9.40, 9.40, 9.40}, [5]int64{100, 100, 100, 100, 100})

	if o.ShouldExecute(q) {
		t.Error("expected no fire when bid prices are flat")
	}
}

func TestStopLoss_TriggerBelowVisibleBids(t *testing.T) {
	// 触发价 9.30 低于买五 9.36。
	deep := depthQuote(10.0, [5]float64{9.40, 9.39, 9.38, 9.37, 9.36}, [5]int64{400, 400, 400, 400, 400})
	thin := depthQuote(10.0, [5]float64{9.40, 9.39, 9.38, 9.37, 9.36}, [5]int64{50, 50, 50, 50, 50})

	o := NewStopLossOrder("SH600000", 9.30, 300, true, nil)

	// 买盘总量 2000 >= 5×300，下方流动性充足。
	if o.ShouldExecute(deep) {
		t.Error("expected no fire with ample liquidity below trigger")
	}

	// 买盘总量 250，外推量 250×(9.40−9.30)/(9.40−9.36)=625 > 2×300 → 不触发；
	// 剩余量降到 200 后 2×200=400 < 625 仍不触发，需更薄的盘口。
	if o.ShouldExecute(thin) {
		t.Error("expected no fire while extrapolated volume exceeds 2x remaining")
	}

	// 更小的剩余量让外推量落入 2 倍范围。
	small := NewStopLossOrder("SH600000", 9.30, 320, true, nil)
	if !small.ShouldExecute(thin) {
		t.Error("expected fire when extrapolated volume within 2x remaining")
	}
}

func TestStopLoss_TriggerWithinVisibleBids(t *testing.T) {
	prices := [5]float64{9.40, 9.39, 9.38, 9.37, 9.36}

	// 触发价 9.38，其上买盘量 = 买一+买二+买三。
	thin := depthQuote(10.0, prices, [5]int64{100, 100, 100, 500, 500})
	deep := depthQuote(10.0, prices, [5]int64{500, 500, 500, 100, 100})

	o := NewStopLossOrder("SH600000", 9.38, 300, true, nil)

	// 300 ≤ 3×300，触发。
	if !o.ShouldExecute(thin) {
		t.Error("expected fire when visible volume above trigger within 3x remaining")
	}
	// 1500 > 3×300，不触发。
	if o.ShouldExecute(deep) {
		t.Error("expected no fire when visible volume above trigger exceeds 3x remaining")
	}
}

func TestSellOrder_ShouldExecute(t *testing.T) {
	prices := [5]float64{9.40, 9.39, 9.38, 9.37, 9.36}
	q := depthQuote(10.0, prices, [5]int64{100, 100, 100, 100, 100})

	// 固定价低于买五价，直接触发。
	below := NewSellOrder("SH600000", 9.30, 300, false, nil)
	if !below.ShouldExecute(q) {
		t.Error("expected fire when price below min visible bid")
	}

	// 固定价 9.39，其上买盘量 200 < 300，不触发。
	within := NewSellOrder("SH600000", 9.39, 300, false, nil)
	if within.ShouldExecute(q) {
		t.Error("expected no fire when bid volume at or above price below remaining")
	}

	// 剩余量 150 ≤ 200，触发。
	smaller := NewSellOrder("SH600000", 9.39, 150, false, nil)
	if !smaller.ShouldExecute(q) {
		t.Error("expected fire when bid volume covers remaining volume")
	}
}

func TestBuyOrder_ShouldExecute(t *testing.T) {
	q := depthQuote(10.0, [5]float64{9.40, 9.39, 9.38, 9.37, 9.36}, [5]int64{100, 100, 100, 100, 100})
	q.SellPrices[0] = 9.41

	if !NewBuyOrder("SH600000", 9.41, 100, false, nil).ShouldExecute(q) {
		t.Error("expected fire when expected price reaches min ask")
	}
	if !NewBuyOrder("SH600000", 9.50, 100, false, nil).ShouldExecute(q) {
		t.Error("expected fire when expected price above min ask")
	}
	if NewBuyOrder("SH600000", 9.40, 100, false, nil).ShouldExecute(q) {
		t.Error("expected no fire when expected price below min ask")
	}
}

func TestDeal_VolumeAccounting(t *testing.T) {
	o := NewSellOrder("SH600000", 9.40, 300, false, nil)

	if err := o.Deal(9.45, 100); err != nil {
		t.Fatalf("Deal returned error: %v", err)
	}
	if got := o.ExecutedVolume(); got != 100 {
		t.Errorf("expected executed volume 100, got %d", got)
	}
	if got := o.RemainingVolume(); got != 200 {
		t.Errorf("expected remaining volume 200, got %d", got)
	}
	if o.IsCompleted() {
		t.Error("expected order incomplete after partial fill")
	}

	if err := o.Deal(9.44, 200); err != nil {
		t.Fatalf("Deal returned error: %v", err)
	}
	if !o.IsCompleted() {
		t.Error("expected order completed after full fill")
	}
}

func TestDeal_OverfillFailsFast(t *testing.T) {
	o := NewSellOrder("SH600000", 9.40, 300, false, nil)

	if err := o.Deal(9.45, 400); err == nil {
		t.Fatal("expected overfill to fail fast")
	}
	if got := o.ExecutedVolume(); got != 0 {
		t.Errorf("expected rejected fill to leave volume untouched, got %d", got)
	}

	if err := o.Deal(9.45, 0); err == nil {
		t.Fatal("expected non-positive volume to be rejected")
	}
}

func TestNotifyExecution_Callback(t *testing.T) {
	var gotOrder Order
	var gotPrice float64
	var gotVolume int64

	o := NewStopLossOrder("SH600000", 9.50, 300, true, func(o Order, price float64, volume int64) {
		gotOrder = o
		gotPrice = price
		gotVolume = volume
	})

	o.NotifyExecution(9.45, 100)

	if gotOrder != Order(o) {
		t.Error("expected callback to receive originating order")
	}
	if gotPrice != 9.45 || gotVolume != 100 {
		t.Errorf("unexpected callback args: price=%v volume=%v", gotPrice, gotVolume)
	}
}

func TestOrderIDs_Unique(t *testing.T) {
	a := NewBuyOrder("SH600000", 9.40, 100, false, nil)
	b := NewBuyOrder("SH600000", 9.40, 100, false, nil)
	if a.ID() == b.ID() {
		t.Error("expected process-unique order ids")
	}
}
