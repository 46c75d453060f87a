package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ashare-trader/internal/broker"
	"ashare-trader/internal/order"
)

// Options 控制调度器轮询与撤单重试节奏。
type Options struct {
	StatusPollInterval time.Duration
	CancelRetryDelay   time.Duration
	CancelMaxRetries   int
}

func (o Options) withDefaults() Options {
	if o.StatusPollInterval <= 0 {
		o.StatusPollInterval = time.Second
	}
	if o.CancelRetryDelay <= 0 {
		o.CancelRetryDelay = time.Second
	}
	if o.CancelMaxRetries <= 0 {
		o.CancelMaxRetries = 10
	}
	return o
}

// Dispatcher 提交委托并跟踪其状态直至终态。
type Dispatcher struct {
	gateway broker.Gateway
	logger  *zap.Logger
	opts    Options

	// mu 保护在途注册表；状态比较与更新在同一把锁下完成，
	// 保证单个委托的状态通知按进度单调推进。
	mu       sync.Mutex
	inflight map[int]*DispatchedOrder

	listenerMu sync.RWMutex
	listeners  []StatusListener

	// pollMu 串行化全部状态推进：常规轮询与撤单确认共用同一把锁，
	// 单个委托的通知因此严格按进度顺序派发。忙时新 tick 直接跳过。
	pollMu sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDispatcher 创建委托调度器。
func NewDispatcher(gateway broker.Gateway, opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		gateway:  gateway,
		logger:   logger,
		opts:     opts.withDefaults(),
		inflight: make(map[int]*DispatchedOrder),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// AddStatusListener 注册状态变更回调，通知按注册顺序同步派发。
func (d *Dispatcher) AddStatusListener(listener StatusListener) {
	if listener == nil {
		return
	}
	d.listenerMu.Lock()
	d.listeners = append(d.listeners, listener)
	d.listenerMu.Unlock()
}

// Dispatch 提交委托。成功时登记在途委托并返回；失败时不登记任何状态。
func (d *Dispatcher) Dispatch(ctx context.Context, req *order.Request) (*DispatchedOrder, error) {
	orderNo, err := d.gateway.SubmitOrder(ctx, req.SubmitRequest())
	if err != nil {
		return nil, fmt.Errorf("提交委托失败: %w", err)
	}

	dispatched := &DispatchedOrder{
		DispatchedAt: time.Now(),
		OrderNo:      orderNo,
		Status:       broker.StatusNotSubmitted,
		Request:      req,
	}

	d.mu.Lock()
	d.inflight[orderNo] = dispatched
	d.mu.Unlock()

	d.logger.Info("委托已提交",
		zap.Int("order_no", orderNo),
		zap.String("code", req.SecurityCode),
		zap.String("category", req.Category.String()),
		zap.Float64("price", req.Price),
		zap.Int64("volume", req.Volume),
	)
	return dispatched, nil
}

// InflightCount 返回在途委托数量。
func (d *Dispatcher) InflightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// InflightSnapshots 返回全部在途委托的只读副本。
func (d *Dispatcher) InflightSnapshots() []DispatchedOrder {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshots := make([]DispatchedOrder, 0, len(d.inflight))
	for _, dispatched := range d.inflight {
		snapshots = append(snapshots, dispatched.Snapshot())
	}
	return snapshots
}

// FindByOrder 按原始订单引用定位在途委托。
func (d *Dispatcher) FindByOrder(o order.Order) (DispatchedOrder, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, dispatched := range d.inflight {
		if dispatched.Request != nil && dispatched.Request.Order == o {
			return dispatched.Snapshot(), true
		}
	}
	return DispatchedOrder{}, false
}

// Start 启动状态轮询定时器。
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.doneCh)

		ticker := time.NewTicker(d.opts.StatusPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-ticker.C:
				d.pollStatus(ctx)
			}
		}
	}()
}

// Stop 停止轮询并等待后台协程退出。
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	<-d.doneCh
}

// QueryOrderStatusForcibly 立即执行一次状态轮询，用于缩短提交后
// 首次状态确认的延迟。常规轮询进行中时本次调用为空操作。
func (d *Dispatcher) QueryOrderStatusForcibly(ctx context.Context) {
	d.pollStatus(ctx)
}

// pollStatus 查询当日委托并推进在途委托状态。忙时跳过，不排队。
func (d *Dispatcher) pollStatus(ctx context.Context) {
	if !d.pollMu.TryLock() {
		return
	}
	defer d.pollMu.Unlock()

	if d.InflightCount() == 0 {
		return
	}

	records, err := d.gateway.QuerySubmittedOrders(ctx)
	if err != nil {
		d.logger.Warn("查询当日委托失败，等待下一轮", zap.Error(err))
		return
	}

	for _, record := range records {
		d.applyRecord(record)
	}
}

// applyRecord 将单条委托记录与在途注册表比对，有变化时就地更新并通知。
func (d *Dispatcher) applyRecord(record broker.OrderRecord) {
	if record.Status == broker.StatusUnknown {
		d.mu.Lock()
		_, tracked := d.inflight[record.OrderNo]
		d.mu.Unlock()
		if tracked {
			d.logger.Error("无法识别的委托状态文本",
				zap.Int("order_no", record.OrderNo),
				zap.String("status_text", record.StatusText),
			)
		}
		return
	}

	d.mu.Lock()
	dispatched, ok := d.inflight[record.OrderNo]
	if !ok {
		d.mu.Unlock()
		return
	}

	// 终态不允许回退：到达终态的委托只会被移除，不再接受任何更新。
	if dispatched.Status.IsTerminal() {
		d.mu.Unlock()
		return
	}

	changed := dispatched.Status != record.Status || dispatched.DealVolume != record.DealVolume
	if !changed {
		d.mu.Unlock()
		return
	}

	dispatched.Status = record.Status
	dispatched.DealVolume = record.DealVolume
	if record.DealPrice > 0 {
		dispatched.DealPrice = record.DealPrice
	}
	snapshot := dispatched.Snapshot()
	d.mu.Unlock()

	d.notify(snapshot)

	if snapshot.Status.IsTerminal() {
		d.mu.Lock()
		delete(d.inflight, record.OrderNo)
		d.mu.Unlock()
		d.logger.Info("委托到达终态",
			zap.Int("order_no", snapshot.OrderNo),
			zap.String("status", snapshot.Status.String()),
			zap.Int64("deal_volume", snapshot.DealVolume),
		)
	}
}

func (d *Dispatcher) notify(snapshot DispatchedOrder) {
	d.listenerMu.RLock()
	listeners := make([]StatusListener, len(d.listeners))
	copy(listeners, d.listeners)
	d.listenerMu.RUnlock()

	for _, listener := range listeners {
		listener(snapshot)
	}
}

// Cancel 请求撤单。waitForResult 为真时以固定间隔轮询委托状态，
// 直到到达终态、查询失败或重试次数耗尽；网关直接拒绝撤单时立即返回失败。
func (d *Dispatcher) Cancel(ctx context.Context, dispatched DispatchedOrder, waitForResult bool) bool {
	code := ""
	if dispatched.Request != nil {
		code = dispatched.Request.SecurityCode
	}

	if err := d.gateway.CancelOrder(ctx, code, dispatched.OrderNo); err != nil {
		d.logger.Warn("撤单请求被拒绝",
			zap.Int("order_no", dispatched.OrderNo),
			zap.Error(err),
		)
		return false
	}

	if !waitForResult {
		return true
	}

	for attempt := 0; attempt < d.opts.CancelMaxRetries; attempt++ {
		terminal, ok := d.confirmCancel(ctx, dispatched.OrderNo)
		if !ok {
			return false
		}
		if terminal {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(d.opts.CancelRetryDelay):
		}
	}

	return false
}

// confirmCancel 执行一次撤单确认查询并推进目标委托的状态。
// 确认与常规轮询持有同一把 pollMu，期间的定时 tick 按忙时语义跳过，
// 避免旧记录在终态通知之后追加派发。
func (d *Dispatcher) confirmCancel(ctx context.Context, orderNo int) (terminal, ok bool) {
	d.pollMu.Lock()
	defer d.pollMu.Unlock()

	records, err := d.gateway.QuerySubmittedOrders(ctx)
	if err != nil {
		d.logger.Warn("撤单确认查询失败",
			zap.Int("order_no", orderNo),
			zap.Error(err),
		)
		return false, false
	}

	for _, record := range records {
		if record.OrderNo != orderNo {
			continue
		}
		d.applyRecord(record)
		if record.Status.IsTerminal() {
			return true, true
		}
	}
	return false, true
}
