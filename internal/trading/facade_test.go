package trading

import (
	"context"
	"errors"
	"testing"

	"ashare-trader/internal/broker"
	"ashare-trader/internal/dispatch"
)

type mockSession struct {
	opens   int
	closes  int
	openErr error
}

func (s *mockSession) Open(ctx context.Context) error {
	s.opens++
	return s.openErr
}

func (s *mockSession) Close(ctx context.Context) error {
	s.closes++
	return nil
}

type capitalGateway struct {
	capital broker.Capital
	calls   int
}

func (g *capitalGateway) SubmitOrder(ctx context.Context, req broker.SubmitRequest) (int, error) {
	return 0, errors.New("unexpected")
}

func (g *capitalGateway) CancelOrder(ctx context.Context, code string, orderNo int) error {
	return errors.New("unexpected")
}

func (g *capitalGateway) QuerySubmittedOrders(ctx context.Context) ([]broker.OrderRecord, error) {
	return nil, nil
}

func (g *capitalGateway) QueryCapital(ctx context.Context) (broker.Capital, error) {
	g.calls++
	return g.capital, nil
}

func (g *capitalGateway) QueryPositions(ctx context.Context) ([]broker.Position, error) {
	return []broker.Position{{SecurityCode: "SH600000", Volume: 1000, AvailableVolume: 800}}, nil
}

func TestInitUninit_RefCounted(t *testing.T) {
	sess := &mockSession{}
	facade := NewFacade(sess, &capitalGateway{}, nil, nil, nil)
	ctx := context.Background()

	if err := facade.Init(ctx); err != nil {
		t.Fatalf("first Init failed: %v", err)
	}
	if err := facade.Init(ctx); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	if sess.opens != 1 {
		t.Errorf("expected session opened once, got %d", sess.opens)
	}

	if err := facade.Uninit(ctx); err != nil {
		t.Fatalf("first Uninit failed: %v", err)
	}
	if sess.closes != 0 {
		t.Errorf("expected session still open with one reference left, got %d closes", sess.closes)
	}

	if err := facade.Uninit(ctx); err != nil {
		t.Fatalf("last Uninit failed: %v", err)
	}
	if sess.closes != 1 {
		t.Errorf("expected session closed once, got %d", sess.closes)
	}
}

func TestUninit_Unbalanced(t *testing.T) {
	facade := NewFacade(&mockSession{}, &capitalGateway{}, nil, nil, nil)

	if err := facade.Uninit(context.Background()); !errors.Is(err, ErrUnbalancedUninit) {
		t.Errorf("expected ErrUnbalancedUninit, got %v", err)
	}
}

func TestInit_SessionFailureKeepsUninitialized(t *testing.T) {
	sess := &mockSession{openErr: errors.New("终端未就绪")}
	facade := NewFacade(sess, &capitalGateway{}, nil, nil, nil)
	ctx := context.Background()

	if err := facade.Init(ctx); err == nil {
		t.Fatal("expected Init to fail")
	}
	if _, err := facade.QueryCapital(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized after failed Init, got %v", err)
	}

	// 会话恢复后重试应成功。
	sess.openErr = nil
	if err := facade.Init(ctx); err != nil {
		t.Fatalf("retry Init failed: %v", err)
	}
}

func TestOperationsRequireInit(t *testing.T) {
	facade := NewFacade(&mockSession{}, &capitalGateway{}, nil, nil, nil)
	ctx := context.Background()

	if _, err := facade.DispatchOrder(ctx, nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized from DispatchOrder, got %v", err)
	}
	if facade.CancelOrder(ctx, dispatch.DispatchedOrder{}, true) {
		t.Error("expected CancelOrder to fail before Init")
	}
	if _, err := facade.QueryCapital(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized from QueryCapital, got %v", err)
	}
	if _, err := facade.QueryPositions(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized from QueryPositions, got %v", err)
	}
}

func TestQueryCapital_DelegatesToGateway(t *testing.T) {
	gateway := &capitalGateway{capital: broker.Capital{Usable: 50000, TotalEquity: 120000}}
	facade := NewFacade(&mockSession{}, gateway, nil, nil, nil)
	ctx := context.Background()

	if err := facade.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	capital, err := facade.QueryCapital(ctx)
	if err != nil {
		t.Fatalf("QueryCapital failed: %v", err)
	}
	if capital.Usable != 50000 || capital.TotalEquity != 120000 {
		t.Errorf("unexpected capital: %+v", capital)
	}
	if gateway.calls != 1 {
		t.Errorf("expected 1 gateway call, got %d", gateway.calls)
	}

	positions, err := facade.QueryPositions(ctx)
	if err != nil {
		t.Fatalf("QueryPositions failed: %v", err)
	}
	if len(positions) != 1 || positions[0].SecurityCode != "SH600000" {
		t.Errorf("unexpected positions: %+v", positions)
	}
}
