package quote

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Publisher 周期性拉取已订阅证券的五档行情并分发给全部订阅方。
// 同一证券代码只占用一个拉取槽位，结果扇出到每个订阅该代码的 Sink。
type Publisher struct {
	source    Source
	logger    *zap.Logger
	interval  time.Duration
	batchSize int

	mu   sync.RWMutex
	subs map[string]map[Sink]struct{}

	// pollMu 保证同一时刻至多一次轮询，上一次未结束时新的 tick 直接跳过。
	pollMu sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewPublisher 创建行情发布器。
func NewPublisher(source Source, interval time.Duration, batchSize int, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Publisher{
		source:    source,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		subs:      make(map[string]map[Sink]struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Subscribe 将 sink 加入证券代码的订阅集合。
func (p *Publisher) Subscribe(code string, sink Sink) {
	if code == "" || sink == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.subs[code]
	if !ok {
		set = make(map[Sink]struct{})
		p.subs[code] = set
	}
	set[sink] = struct{}{}
}

// Unsubscribe 将 sink 移出证券代码的订阅集合，订阅集合为空时立即摘除该代码。
func (p *Publisher) Unsubscribe(code string, sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.subs[code]
	if !ok {
		return
	}
	delete(set, sink)
	if len(set) == 0 {
		delete(p.subs, code)
	}
}

// SubscribedCodes 返回当前订阅代码快照。
func (p *Publisher) SubscribedCodes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	codes := make([]string, 0, len(p.subs))
	for code := range p.subs {
		codes = append(codes, code)
	}
	return codes
}

// Start 启动轮询定时器，直至 ctx 取消或 Stop 被调用。
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		defer close(p.doneCh)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.PollOnce(ctx)
			}
		}
	}()
}

// Stop 停止轮询并等待后台协程退出。
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	<-p.doneCh
}

// PollOnce 执行一次行情轮询。上一次轮询尚未结束时直接跳过，不排队。
func (p *Publisher) PollOnce(ctx context.Context) {
	if !p.pollMu.TryLock() {
		p.logger.Debug("上一轮行情轮询未结束，跳过本次")
		return
	}
	defer p.pollMu.Unlock()

	codes := p.SubscribedCodes()
	if len(codes) == 0 {
		return
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for start := 0; start < len(codes); start += p.batchSize {
		end := start + p.batchSize
		if end > len(codes) {
			end = len(codes)
		}
		batch := codes[start:end]

		group.Go(func() error {
			results, err := p.source.FetchQuotes(groupCtx, batch)
			if err != nil {
				return err
			}
			for _, result := range results {
				p.deliver(result)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		p.logger.Warn("行情轮询失败，等待下一轮", zap.Error(err))
	}
}

// deliver 在读锁下重新取订阅集合，容忍轮询期间的订阅变更。
func (p *Publisher) deliver(result Result) {
	p.mu.RLock()
	set := p.subs[result.SecurityCode]
	sinks := make([]Sink, 0, len(set))
	for sink := range set {
		sinks = append(sinks, sink)
	}
	p.mu.RUnlock()

	for _, sink := range sinks {
		sink.OnQuote(result)
	}
}
