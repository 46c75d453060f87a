package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ashare-trader/internal/broker"
	"ashare-trader/internal/dispatch"
	"ashare-trader/internal/order"
	"ashare-trader/internal/quote"
)

var (
	// ErrNotInitialized 表示在会话建立前调用了交易操作。
	ErrNotInitialized = errors.New("trading: 交易环境尚未初始化")
	// ErrUnbalancedUninit 表示反初始化次数超过初始化次数。
	ErrUnbalancedUninit = errors.New("trading: 反初始化与初始化不配对")
)

// session 为底层券商会话的生命周期句柄。
type session interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// Facade 为进程级唯一交易入口，统一持有券商会话、行情发布器与委托调度器。
// 环境以引用计数管理：仅首个 Init 打开会话，仅最后一个 Uninit 关闭会话。
type Facade struct {
	session    session
	gateway    broker.Gateway
	publisher  *quote.Publisher
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger

	mu       sync.Mutex
	refCount int
}

// NewFacade 创建交易门面。由组合根构造一次并向下注入，不做隐藏单例。
func NewFacade(sess session, gateway broker.Gateway, publisher *quote.Publisher, dispatcher *dispatch.Dispatcher, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{
		session:    sess,
		gateway:    gateway,
		publisher:  publisher,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Init 增加环境引用计数，首次调用时建立券商会话。
func (f *Facade) Init(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refCount == 0 {
		if err := f.session.Open(ctx); err != nil {
			return fmt.Errorf("trading: 初始化交易环境失败: %w", err)
		}
		f.logger.Info("交易环境已初始化")
	}
	f.refCount++
	return nil
}

// Uninit 减少环境引用计数，最后一次调用时关闭券商会话。
func (f *Facade) Uninit(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refCount == 0 {
		return ErrUnbalancedUninit
	}
	f.refCount--
	if f.refCount > 0 {
		return nil
	}

	if err := f.session.Close(ctx); err != nil {
		return fmt.Errorf("trading: 关闭交易环境失败: %w", err)
	}
	f.logger.Info("交易环境已关闭")
	return nil
}

func (f *Facade) initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refCount > 0
}

// SubscribeQuote 订阅证券行情。
func (f *Facade) SubscribeQuote(code string, sink quote.Sink) {
	f.publisher.Subscribe(code, sink)
}

// UnsubscribeQuote 退订证券行情。
func (f *Facade) UnsubscribeQuote(code string, sink quote.Sink) {
	f.publisher.Unsubscribe(code, sink)
}

// DispatchOrder 提交委托。
func (f *Facade) DispatchOrder(ctx context.Context, req *order.Request) (*dispatch.DispatchedOrder, error) {
	if !f.initialized() {
		return nil, ErrNotInitialized
	}
	return f.dispatcher.Dispatch(ctx, req)
}

// CancelOrder 撤销在途委托。
func (f *Facade) CancelOrder(ctx context.Context, dispatched dispatch.DispatchedOrder, waitForResult bool) bool {
	if !f.initialized() {
		return false
	}
	return f.dispatcher.Cancel(ctx, dispatched, waitForResult)
}

// QueryOrderStatusForcibly 立即执行一次委托状态查询。
func (f *Facade) QueryOrderStatusForcibly(ctx context.Context) {
	f.dispatcher.QueryOrderStatusForcibly(ctx)
}

// QueryCapital 查询账户资金。
func (f *Facade) QueryCapital(ctx context.Context) (broker.Capital, error) {
	if !f.initialized() {
		return broker.Capital{}, ErrNotInitialized
	}
	return f.gateway.QueryCapital(ctx)
}

// QueryPositions 查询账户持仓。
func (f *Facade) QueryPositions(ctx context.Context) ([]broker.Position, error) {
	if !f.initialized() {
		return nil, ErrNotInitialized
	}
	return f.gateway.QueryPositions(ctx)
}
