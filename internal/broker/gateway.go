package broker

import "context"

// OrderCategory 表示委托方向。
type OrderCategory uint8

const (
	CategoryBuy OrderCategory = iota
	CategorySell
)

// String 返回方向名称。
func (c OrderCategory) String() string {
	if c == CategorySell {
		return "sell"
	}
	return "buy"
}

// PricingType 表示委托定价方式。
type PricingType uint8

const (
	// PricingLimit 为限价委托。
	PricingLimit PricingType = iota
	// PricingMarketBestOrCancel 为市价剩余撤销委托。
	PricingMarketBestOrCancel
)

// SubmitRequest 为一次委托提交的入参。
type SubmitRequest struct {
	SecurityCode string
	Category     OrderCategory
	Pricing      PricingType
	Price        float64
	Volume       int64
}

// OrderRecord 为当日委托查询返回的单条记录。
type OrderRecord struct {
	OrderNo    int
	StatusText string
	Status     OrderStatus
	DealPrice  float64
	DealVolume int64
}

// Capital 为资金查询结果。
type Capital struct {
	Remaining   float64
	Usable      float64
	Frozen      float64
	Cashable    float64
	TotalEquity float64
}

// Position 为持仓查询返回的单条记录。
type Position struct {
	SecurityCode    string
	SecurityName    string
	Volume          int64
	AvailableVolume int64
	CostPrice       float64
	CurrentPrice    float64
	MarketValue     float64
}

// Gateway 抽象券商终端的窄请求响应契约。
// 所有调用均为阻塞 I/O，失败以 error 返回，不抛异常。
type Gateway interface {
	// SubmitOrder 提交委托，成功返回券商分配的委托编号。
	SubmitOrder(ctx context.Context, req SubmitRequest) (int, error)
	// CancelOrder 按委托编号撤单。
	CancelOrder(ctx context.Context, securityCode string, orderNo int) error
	// QuerySubmittedOrders 查询当日全部委托及其最新状态。
	QuerySubmittedOrders(ctx context.Context) ([]OrderRecord, error)
	// QueryCapital 查询账户资金。
	QueryCapital(ctx context.Context) (Capital, error)
	// QueryPositions 查询账户全部持仓。
	QueryPositions(ctx context.Context) ([]Position, error)
}
