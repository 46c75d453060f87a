package manager

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ashare-trader/internal/dispatch"
	"ashare-trader/internal/order"
	"ashare-trader/internal/quote"
)

// quoteBus 为管理器依赖的行情订阅端。
type quoteBus interface {
	Subscribe(code string, sink quote.Sink)
	Unsubscribe(code string, sink quote.Sink)
}

// orderDispatcher 为管理器依赖的委托调度端。
type orderDispatcher interface {
	Dispatch(ctx context.Context, req *order.Request) (*dispatch.DispatchedOrder, error)
	Cancel(ctx context.Context, dispatched dispatch.DispatchedOrder, waitForResult bool) bool
	FindByOrder(o order.Order) (dispatch.DispatchedOrder, bool)
	QueryOrderStatusForcibly(ctx context.Context)
}

// EventSink 接收订单生命周期事件，供监控面消费。所有回调均在
// 管理器锁之外同步调用，实现方不应长时间阻塞。
type EventSink interface {
	OrderRegistered(o order.Order)
	OrderDispatched(snapshot dispatch.DispatchedOrder)
	OrderFilled(o order.Order, orderNo int, price float64, volume int64)
	CancelRequested(snapshot dispatch.DispatchedOrder)
	QuoteError(result quote.Result)
}

// Options 控制超时撤单策略。
type Options struct {
	// CancelCheckInterval 为超时撤单定时器的检查间隔。
	CancelCheckInterval time.Duration
	// CancelAfter 为在途委托允许的最大滞留时长。
	CancelAfter time.Duration
}

func (o Options) withDefaults() Options {
	if o.CancelCheckInterval <= 0 {
		o.CancelCheckInterval = 5 * time.Second
	}
	if o.CancelAfter <= 0 {
		o.CancelAfter = 30 * time.Second
	}
	return o
}

// Manager 持有未发出订单的活动注册表，按行情决定触发时机，
// 并对账部分成交与完全成交。
type Manager struct {
	bus        quoteBus
	dispatcher orderDispatcher
	logger     *zap.Logger
	opts       Options
	events     EventSink

	// mu 保护活动注册表与在途索引。触发判断与提交在同一把锁下完成，
	// 杜绝相邻两笔行情把同一订单触发两次。
	mu       sync.Mutex
	active   map[string][]order.Order
	inflight map[int64]dispatch.DispatchedOrder
	// removing 标记正在注销的订单，撤单确认回流时不得重新登记剩余部分。
	removing map[int64]struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewManager 创建订单管理器，并把自身注册为调度器的状态监听方。
func NewManager(bus quoteBus, dispatcher *dispatch.Dispatcher, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		bus:        bus,
		dispatcher: dispatcher,
		logger:     logger,
		opts:       opts.withDefaults(),
		active:     make(map[string][]order.Order),
		inflight:   make(map[int64]dispatch.DispatchedOrder),
		removing:   make(map[int64]struct{}),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	dispatcher.AddStatusListener(m.onStatusChanged)
	return m
}

// SetEventSink 挂接生命周期事件接收方，须在 Start 之前调用。
func (m *Manager) SetEventSink(sink EventSink) {
	m.events = sink
}

var _ quote.Sink = (*Manager)(nil)

// Register 将订单加入活动注册表；该证券首个活动订单触发行情订阅。
func (m *Manager) Register(o order.Order) {
	code := o.SecurityCode()

	m.mu.Lock()
	orders, existed := m.active[code]
	m.active[code] = append(orders, o)
	if !existed {
		m.bus.Subscribe(code, m)
	}
	m.mu.Unlock()

	m.logger.Info("订单已登记",
		zap.Int64("order_id", o.ID()),
		zap.String("code", code),
		zap.Int64("remaining", o.RemainingVolume()),
	)
	if m.events != nil {
		m.events.OrderRegistered(o)
	}
}

// Unregister 将订单移出系统。活动注册表中不存在时认为其可能已在途，
// 按原始订单引用定位在途委托并发起阻塞撤单；找不到任何在途委托
// 同样视为注销成功。
func (m *Manager) Unregister(ctx context.Context, o order.Order) bool {
	if m.removeActive(o) {
		m.logger.Info("订单已注销", zap.Int64("order_id", o.ID()))
		return true
	}

	dispatched, ok := m.dispatcher.FindByOrder(o)
	if !ok {
		return true
	}

	m.mu.Lock()
	m.removing[o.ID()] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.removing, o.ID())
		m.mu.Unlock()
	}()

	if !m.dispatcher.Cancel(ctx, dispatched, true) {
		m.logger.Warn("在途订单撤单未确认",
			zap.Int64("order_id", o.ID()),
			zap.Int("order_no", dispatched.OrderNo),
		)
		return false
	}
	return true
}

// ActiveCount 返回指定证券的活动订单数量。
func (m *Manager) ActiveCount(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active[code])
}

// OnQuote 实现 quote.Sink：对每笔行情评估该证券的全部活动订单。
// 触发判断与提交在注册表锁内完成，提交成功的订单随即移出活动注册表。
func (m *Manager) OnQuote(result quote.Result) {
	if result.Err != nil {
		m.logger.Warn("行情结果携带错误",
			zap.String("code", result.SecurityCode),
			zap.Error(result.Err),
		)
		if m.events != nil {
			m.events.QuoteError(result)
		}
		return
	}
	if result.Quote == nil {
		return
	}

	ctx := context.Background()
	var fired []dispatch.DispatchedOrder

	m.mu.Lock()
	orders := m.active[result.SecurityCode]
	// 触发会修改注册表，先复制再遍历。
	candidates := make([]order.Order, len(orders))
	copy(candidates, orders)

	for _, o := range candidates {
		if !o.ShouldExecute(result.Quote) {
			continue
		}

		req := o.BuildRequest(result.Quote)
		dispatched, err := m.dispatcher.Dispatch(ctx, req)
		if err != nil {
			m.logger.Warn("触发后提交失败，订单保持活动",
				zap.Int64("order_id", o.ID()),
				zap.String("code", result.SecurityCode),
				zap.Error(err),
			)
			continue
		}

		m.removeActiveLocked(o)
		snapshot := dispatched.Snapshot()
		m.inflight[o.ID()] = snapshot
		fired = append(fired, snapshot)

		m.logger.Info("订单已触发",
			zap.Int64("order_id", o.ID()),
			zap.Int("order_no", dispatched.OrderNo),
			zap.String("code", result.SecurityCode),
			zap.Float64("price", req.Price),
			zap.Int64("volume", req.Volume),
		)
	}

	if len(fired) > 0 && len(m.active[result.SecurityCode]) == 0 {
		m.bus.Unsubscribe(result.SecurityCode, m)
	}
	m.mu.Unlock()

	if len(fired) == 0 {
		return
	}
	if m.events != nil {
		for _, snapshot := range fired {
			m.events.OrderDispatched(snapshot)
		}
	}
	m.dispatcher.QueryOrderStatusForcibly(ctx)
}

// onStatusChanged 处理调度器的状态变更通知：结算新增成交量，
// 同步触发成交回调；终态且未完成的订单把剩余部分重新登记回活动注册表。
func (m *Manager) onStatusChanged(snapshot dispatch.DispatchedOrder) {
	if snapshot.Request == nil || snapshot.Request.Order == nil {
		return
	}
	o := snapshot.Request.Order

	delta := snapshot.DealVolume - o.ExecutedVolume()
	if delta > 0 {
		if err := o.Deal(snapshot.DealPrice, delta); err != nil {
			m.logger.Error("成交结算失败",
				zap.Int64("order_id", o.ID()),
				zap.Int("order_no", snapshot.OrderNo),
				zap.Error(err),
			)
			return
		}
		// 调用方可能依赖回调先于调度器侧簿记清理完成。
		o.NotifyExecution(snapshot.DealPrice, delta)
		if m.events != nil {
			m.events.OrderFilled(o, snapshot.OrderNo, snapshot.DealPrice, delta)
		}
	}

	if !snapshot.Status.IsTerminal() {
		m.mu.Lock()
		m.inflight[o.ID()] = snapshot
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	delete(m.inflight, o.ID())
	_, beingRemoved := m.removing[o.ID()]
	m.mu.Unlock()

	if beingRemoved {
		return
	}

	if !o.IsCompleted() {
		m.logger.Info("订单未全部成交，剩余部分重新登记",
			zap.Int64("order_id", o.ID()),
			zap.Int64("remaining", o.RemainingVolume()),
		)
		m.Register(o)
	}
}

// Start 启动超时撤单定时器。
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.doneCh)

		ticker := time.NewTicker(m.opts.CancelCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.cancelStaleOrders(ctx)
			}
		}
	}()
}

// Stop 停止定时器并等待后台协程退出。
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.doneCh
}

// cancelStaleOrders 对滞留超过 CancelAfter 且声明超时即撤的在途订单
// 发起非阻塞撤单；失败只记录日志，下一轮重新评估。
func (m *Manager) cancelStaleOrders(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	stale := make([]dispatch.DispatchedOrder, 0, len(m.inflight))
	for _, dispatched := range m.inflight {
		if dispatched.Request == nil || dispatched.Request.Order == nil {
			continue
		}
		if !dispatched.Request.Order.ShouldCancelIfNotSucceeded() {
			continue
		}
		if now.Sub(dispatched.DispatchedAt) > m.opts.CancelAfter {
			stale = append(stale, dispatched)
		}
	}
	m.mu.Unlock()

	for _, dispatched := range stale {
		if !m.dispatcher.Cancel(ctx, dispatched, false) {
			m.logger.Warn("超时撤单请求失败，下一轮重试",
				zap.Int("order_no", dispatched.OrderNo),
			)
		} else {
			m.logger.Info("超时撤单已发出",
				zap.Int("order_no", dispatched.OrderNo),
				zap.Duration("age", now.Sub(dispatched.DispatchedAt)),
			)
			if m.events != nil {
				m.events.CancelRequested(dispatched)
			}
		}
	}
}

func (m *Manager) removeActive(o order.Order) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.removeActiveLocked(o)
	if removed && len(m.active[o.SecurityCode()]) == 0 {
		m.bus.Unsubscribe(o.SecurityCode(), m)
	}
	return removed
}

// removeActiveLocked 在持锁状态下将订单移出活动注册表，
// 该证券的活动列表为空时同步摘除键。
func (m *Manager) removeActiveLocked(o order.Order) bool {
	code := o.SecurityCode()
	orders := m.active[code]
	for i, candidate := range orders {
		if candidate.ID() != o.ID() {
			continue
		}
		orders = append(orders[:i], orders[i+1:]...)
		if len(orders) == 0 {
			delete(m.active, code)
		} else {
			m.active[code] = orders
		}
		return true
	}
	return false
}
