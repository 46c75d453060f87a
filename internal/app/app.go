package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ashare-trader/internal/broker"
	"ashare-trader/internal/config"
	"ashare-trader/internal/dispatch"
	"ashare-trader/internal/manager"
	"ashare-trader/internal/monitor"
	"ashare-trader/internal/order"
	"ashare-trader/internal/quote"
	"ashare-trader/internal/store"
	"ashare-trader/internal/trading"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store

	facade  *trading.Facade
	manager *manager.Manager
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Facade 返回交易门面，供外层（回测评估、CLI）复用。
func (a *App) Facade() *trading.Facade {
	return a.facade
}

// Manager 返回订单管理器。
func (a *App) Manager() *manager.Manager {
	return a.manager
}

// Run 完成组件装配并阻塞运行，直至 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易系统启动",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("bridge", a.cfg.Bridge.BaseURL),
	)

	bridge := broker.NewBridge(a.cfg.Bridge, a.logger)

	publisher := quote.NewPublisher(bridge, a.cfg.Quote.PollInterval, a.cfg.Quote.BatchSize, a.logger)

	dispatcher := dispatch.NewDispatcher(bridge, dispatch.Options{
		StatusPollInterval: a.cfg.Dispatch.StatusPollInterval,
		CancelRetryDelay:   a.cfg.Dispatch.CancelRetryDelay,
		CancelMaxRetries:   a.cfg.Dispatch.CancelMaxRetries,
	}, a.logger)

	a.manager = manager.NewManager(publisher, dispatcher, manager.Options{
		CancelCheckInterval: a.cfg.Manager.CancelCheckInterval,
		CancelAfter:         a.cfg.Manager.CancelAfter,
	}, a.logger)

	a.facade = trading.NewFacade(bridge, bridge, publisher, dispatcher, a.logger)

	monitorSvc, err := monitor.NewService(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化监控服务失败: %w", err)
	}

	dispatcher.AddStatusListener(func(snapshot dispatch.DispatchedOrder) {
		monitorSvc.RecordStatus(ctx, snapshot)
	})
	a.manager.SetEventSink(&monitorEvents{ctx: ctx, svc: monitorSvc})

	if err := a.facade.Init(ctx); err != nil {
		return err
	}
	defer func() {
		if uninitErr := a.facade.Uninit(context.Background()); uninitErr != nil {
			a.logger.Warn("关闭交易环境失败", zap.Error(uninitErr))
			monitorSvc.RecordError(context.Background(), "关闭交易环境失败", uninitErr, nil)
		}
	}()

	publisher.Start(ctx)
	defer publisher.Stop()

	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	a.manager.Start(ctx)
	defer a.manager.Stop()

	if a.cfg.Monitor.Enabled {
		if err := startMonitorServer(ctx, monitorSvc, dispatcher, a.cfg.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	<-ctx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}
	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}

// monitorEvents 把订单生命周期事件转写进监控服务。
type monitorEvents struct {
	ctx context.Context
	svc *monitor.Service
}

var _ manager.EventSink = (*monitorEvents)(nil)

func (e *monitorEvents) OrderRegistered(o order.Order) {
	e.svc.RecordRegistered(e.ctx, o)
}

func (e *monitorEvents) OrderDispatched(snapshot dispatch.DispatchedOrder) {
	e.svc.RecordDispatch(e.ctx, snapshot)
}

func (e *monitorEvents) OrderFilled(o order.Order, orderNo int, price float64, volume int64) {
	e.svc.RecordFill(e.ctx, orderNo, o.SecurityCode(), price, volume)
}

func (e *monitorEvents) CancelRequested(snapshot dispatch.DispatchedOrder) {
	e.svc.RecordCancel(e.ctx, snapshot, "超时未成交")
}

func (e *monitorEvents) QuoteError(result quote.Result) {
	e.svc.RecordQuoteError(e.ctx, result)
}
