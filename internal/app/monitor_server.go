package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ashare-trader/internal/dispatch"
	"ashare-trader/internal/monitor"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func startMonitorServer(ctx context.Context, svc *monitor.Service, dispatcher *dispatch.Dispatcher, port int, logger *zap.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 200
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				if v > 1000 {
					v = 1000
				}
				limit = v
			}
		}

		eventType := monitor.EventType("")
		if typ := strings.TrimSpace(q.Get("type")); typ != "" {
			eventType = monitor.EventType(strings.ToLower(typ))
		}

		events, err := svc.ListEvents(r.Context(), eventType, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(events); err != nil {
			logger.Warn("写入监控响应失败", zap.Error(err))
		}
	})

	mux.HandleFunc("/inflight", func(w http.ResponseWriter, r *http.Request) {
		type inflightView struct {
			OrderNo      int       `json:"order_no"`
			SecurityCode string    `json:"security_code"`
			Status       string    `json:"status"`
			DealVolume   int64     `json:"deal_volume"`
			DispatchedAt time.Time `json:"dispatched_at"`
		}

		snapshots := dispatcher.InflightSnapshots()
		views := make([]inflightView, 0, len(snapshots))
		for _, snapshot := range snapshots {
			view := inflightView{
				OrderNo:      snapshot.OrderNo,
				Status:       snapshot.Status.String(),
				DealVolume:   snapshot.DealVolume,
				DispatchedAt: snapshot.DispatchedAt,
			}
			if snapshot.Request != nil {
				view.SecurityCode = snapshot.Request.SecurityCode
			}
			views = append(views, view)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(views); err != nil {
			logger.Warn("写入监控响应失败", zap.Error(err))
		}
	})

	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("升级监控流连接失败", zap.Error(err))
			return
		}
		defer conn.Close()

		ch := svc.Bus().Subscribe()
		defer svc.Bus().Unsubscribe(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if err := conn.WriteJSON(evt); err != nil {
					return
				}
			}
		}
	})

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("关闭监控服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	logger.Info("监控接口已启动", zap.String("addr", addr))
	return nil
}
