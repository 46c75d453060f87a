package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ashare-trader/internal/dispatch"
	"ashare-trader/internal/order"
	"ashare-trader/internal/quote"
	"ashare-trader/internal/store"
)

// Service 负责持久化监控事件并向事件总线实时推送。
type Service struct {
	db     *sql.DB
	bus    *Bus
	logger *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		bus:    NewBus(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Bus 返回实时事件总线。
func (s *Service) Bus() *Bus {
	return s.bus
}

// Record 写入单个事件并推送到总线。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	s.bus.Publish(event)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// RecordRegistered 记录订单登记。
func (s *Service) RecordRegistered(ctx context.Context, o order.Order) {
	if err := s.Record(ctx, Event{
		Type:      EventOrderRegistered,
		Timestamp: time.Now().UTC(),
		Payload: OrderRegisteredPayload{
			OrderID:      o.ID(),
			SecurityCode: o.SecurityCode(),
			Remaining:    o.RemainingVolume(),
		},
	}); err != nil {
		s.logger.Warn("记录登记事件失败", zap.Error(err))
	}
}

// RecordDispatch 记录委托提交。
func (s *Service) RecordDispatch(ctx context.Context, dispatched dispatch.DispatchedOrder) {
	payload := OrderDispatchedPayload{OrderNo: dispatched.OrderNo}
	if req := dispatched.Request; req != nil {
		payload.SecurityCode = req.SecurityCode
		payload.Category = req.Category.String()
		payload.Price = req.Price
		payload.Volume = req.Volume
	}
	if err := s.Record(ctx, Event{
		Type:      EventOrderDispatched,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("记录委托事件失败", zap.Error(err))
	}
}

// RecordStatus 记录委托状态变更。
func (s *Service) RecordStatus(ctx context.Context, snapshot dispatch.DispatchedOrder) {
	if err := s.Record(ctx, Event{
		Type:      EventOrderStatus,
		Timestamp: time.Now().UTC(),
		Payload: OrderStatusPayload{
			OrderNo:    snapshot.OrderNo,
			Status:     snapshot.Status.String(),
			DealVolume: snapshot.DealVolume,
		},
	}); err != nil {
		s.logger.Warn("记录状态事件失败", zap.Error(err))
	}
}

// RecordFill 记录单笔成交。
func (s *Service) RecordFill(ctx context.Context, orderNo int, code string, price float64, volume int64) {
	if err := s.Record(ctx, Event{
		Type:      EventOrderFill,
		Timestamp: time.Now().UTC(),
		Payload: OrderFillPayload{
			OrderNo:      orderNo,
			SecurityCode: code,
			Price:        price,
			Volume:       volume,
		},
	}); err != nil {
		s.logger.Warn("记录成交事件失败", zap.Error(err))
	}
}

// RecordCancel 记录撤单动作。
func (s *Service) RecordCancel(ctx context.Context, dispatched dispatch.DispatchedOrder, reason string) {
	if err := s.Record(ctx, Event{
		Type:      EventOrderCancel,
		Timestamp: time.Now().UTC(),
		Payload: OrderCancelPayload{
			OrderNo: dispatched.OrderNo,
			Reason:  reason,
		},
	}); err != nil {
		s.logger.Warn("记录撤单事件失败", zap.Error(err))
	}
}

// RecordQuoteError 记录行情拉取错误。
func (s *Service) RecordQuoteError(ctx context.Context, result quote.Result) {
	if result.Err == nil {
		return
	}
	if err := s.Record(ctx, Event{
		Type:      EventQuoteError,
		Timestamp: time.Now().UTC(),
		Payload: QuoteErrorPayload{
			SecurityCode: result.SecurityCode,
			Error:        result.Err.Error(),
		},
	}); err != nil {
		s.logger.Warn("记录行情错误事件失败", zap.Error(err))
	}
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Error:   err.Error(),
		Context: ctxMap,
	}
	if recErr := s.Record(ctx, Event{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// ListEvents 按类型检索最近事件。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM monitor_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}
