package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/sentinel/internal/config"
	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/exchange"
	"github.com/assist-by/sentinel/internal/exchange/exchangetest"
	"github.com/assist-by/sentinel/internal/position"
	"github.com/assist-by/sentinel/internal/risk"
)

type fixture struct {
	engine  *Engine
	gw      *exchangetest.MockGateway
	guard   *risk.Guard
	tracker *position.Tracker
	hook    *test.Hook
}

func newFixture(t *testing.T, balance int64, mutate ...func(*config.Risk)) *fixture {
	t.Helper()
	cfg := config.DefaultRisk()
	for _, m := range mutate {
		m(&cfg)
	}

	logger, hook := test.NewNullLogger()
	entry := logrus.NewEntry(logger)

	gw := new(exchangetest.MockGateway)
	guard := risk.NewGuard(cfg, decimal.NewFromInt(balance), risk.WithLogger(entry))
	tracker := position.NewTracker(gw, guard, position.WithTrackerLogger(entry))
	engine := NewEngine(cfg, gw, guard, tracker, nil, entry)

	return &fixture{engine: engine, gw: gw, guard: guard, tracker: tracker, hook: hook}
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func btcSignal(id string) domain.Signal {
	leverage := 3
	return domain.Signal{
		ID:         id,
		Symbol:     "BTCUSDT",
		Side:       domain.Long,
		Confidence: 0.8,
		EntryPrice: decimal.NewFromInt(50000),
		StopLoss:   dec("49000"),
		TakeProfit: dec("52000"),
		Leverage:   &leverage,
		Strategy:   "trend",
	}
}

func filled(id, price, qty string) *domain.OrderResult {
	return &domain.OrderResult{
		OrderID:     id,
		Status:      "FILLED",
		AvgPrice:    decimal.RequireFromString(price),
		ExecutedQty: decimal.RequireFromString(qty),
	}
}

func TestSubmitRegistersBracket(t *testing.T) {
	f := newFixture(t, 10000)
	sig := btcSignal("sig-1")

	f.gw.On("SetLeverage", mock.Anything, "BTCUSDT", 3).Return(nil).Once()
	f.gw.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(o domain.OrderRequest) bool {
		return o.Type == domain.Market && o.Side == domain.Buy && !o.ReduceOnly &&
			o.Quantity.Equal(decimal.RequireFromString("0.02")) &&
			o.ClientOrderID == ClientOrderID("sig-1", LegEntry)
	})).Return(filled("100", "50010", "0.02"), nil).Once()
	f.gw.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(o domain.OrderRequest) bool {
		return o.Type == domain.StopMarket && o.Side == domain.Sell && o.ReduceOnly &&
			o.StopPrice.Equal(decimal.NewFromInt(49000)) &&
			o.ClientOrderID == ClientOrderID("sig-1", LegStop)
	})).Return(&domain.OrderResult{OrderID: "101", Status: "NEW"}, nil).Once()
	f.gw.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(o domain.OrderRequest) bool {
		return o.Type == domain.TakeProfitMarket && o.Side == domain.Sell && o.ReduceOnly &&
			o.StopPrice.Equal(decimal.NewFromInt(52000))
	})).Return(&domain.OrderResult{OrderID: "102", Status: "NEW"}, nil).Once()

	report := f.engine.Submit(context.Background(), sig)

	require.True(t, report.Success, report.Error)
	assert.Equal(t, Registered, report.State)
	assert.Equal(t, []State{Validating, Authorizing, Sizing, EnteringOrder, PlacingStop, PlacingTakeProfit, Registered}, report.Path)
	assert.Empty(t, report.Warnings)

	require.NotNil(t, report.Position)
	assert.Equal(t, domain.StatusOpen, report.Position.Status)
	assert.Equal(t, "0.02", report.Position.Quantity.String())
	assert.Equal(t, "50010", report.Position.EntryPrice.String())
	assert.Equal(t, "100", report.Position.EntryOrderID)
	assert.Equal(t, "101", report.Position.StopOrderID)
	assert.Equal(t, "102", report.Position.TakeProfitOrderID)

	open := f.tracker.GetOpen()
	require.Len(t, open, 1)
	assert.Equal(t, "BTCUSDT", open[0].Symbol)
	assert.Equal(t, []string{"BTCUSDT"}, f.guard.OpenSymbols())
	assert.False(t, f.guard.IsReserved("BTCUSDT"))
	f.gw.AssertExpectations(t)
}

func TestSubmitDegradedWhenStopFails(t *testing.T) {
	f := newFixture(t, 10000)

	f.gw.On("SetLeverage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.gw.On("PlaceOrder", mock.Anything, exchangetest.OrderOfType(domain.Market)).
		Return(filled("1", "50000", "0.02"), nil).Once()
	f.gw.On("PlaceOrder", mock.Anything, exchangetest.OrderOfType(domain.StopMarket)).
		Return(nil, exchange.NewVenueError("place_order", "BTCUSDT", errors.New("Order would immediately trigger"))).Once()
	f.gw.On("PlaceOrder", mock.Anything, exchangetest.OrderOfType(domain.TakeProfitMarket)).
		Return(&domain.OrderResult{OrderID: "3"}, nil).Once()

	report := f.engine.Submit(context.Background(), btcSignal("sig-degraded"))

	require.True(t, report.Success)
	assert.Equal(t, Registered, report.State)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "손절 주문 실패")

	pos, ok := f.tracker.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, domain.StatusDegraded, pos.Status)
	assert.Empty(t, pos.StopOrderID)
	assert.Equal(t, "3", pos.TakeProfitOrderID)

	history := f.tracker.GetHistory()
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusDegraded, history[0].Status)
	f.gw.AssertExpectations(t)
}

func TestSubmitMissingTakeProfitPrice(t *testing.T) {
	f := newFixture(t, 10000)
	sig := btcSignal("sig-no-tp")
	sig.TakeProfit = nil

	f.gw.On("SetLeverage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.gw.On("PlaceOrder", mock.Anything, exchangetest.OrderOfType(domain.Market)).
		Return(filled("1", "50000", "0.02"), nil).Once()
	f.gw.On("PlaceOrder", mock.Anything, exchangetest.OrderOfType(domain.StopMarket)).
		Return(&domain.OrderResult{OrderID: "2"}, nil).Once()

	report := f.engine.Submit(context.Background(), sig)

	require.True(t, report.Success)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "익절")
	assert.Equal(t, domain.StatusDegraded, report.Position.Status)
	f.gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, exchangetest.OrderOfType(domain.TakeProfitMarket))
}

func TestSubmitProtectiveLegsDisabled(t *testing.T) {
	f := newFixture(t, 10000, func(r *config.Risk) {
		r.UseStopLoss = false
		r.UseTakeProfit = false
	})

	f.gw.On("SetLeverage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.gw.On("PlaceOrder", mock.Anything, exchangetest.OrderOfType(domain.Market)).
		Return(filled("1", "50000", "0.02"), nil).Once()

	report := f.engine.Submit(context.Background(), btcSignal("sig-bare"))

	require.True(t, report.Success)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, domain.StatusOpen, report.Position.Status)
	assert.Equal(t, []State{Validating, Authorizing, Sizing, EnteringOrder, Registered}, report.Path)
	f.gw.AssertNumberOfCalls(t, "PlaceOrder", 1)
}

func TestSubmitLeverageFailureIsWarning(t *testing.T) {
	f := newFixture(t, 10000)

	f.gw.On("SetLeverage", mock.Anything, "BTCUSDT", 3).Return(errors.New("leverage not modified")).Once()
	f.gw.On("PlaceOrder", mock.Anything, mock.Anything).Return(filled("1", "50000", "0.02"), nil)

	report := f.engine.Submit(context.Background(), btcSignal("sig-lev"))

	require.True(t, report.Success)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "레버리지")
	assert.Equal(t, domain.StatusOpen, report.Position.Status)
}

func TestSubmitEntryFailure(t *testing.T) {
	f := newFixture(t, 10000)

	f.gw.On("SetLeverage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.gw.On("PlaceOrder", mock.Anything, exchangetest.OrderOfType(domain.Market)).
		Return(nil, exchange.NewVenueError("place_order", "BTCUSDT", errors.New("insufficient margin"))).Once()

	report := f.engine.Submit(context.Background(), btcSignal("sig-fail"))

	assert.False(t, report.Success)
	assert.Equal(t, EntryFailed, report.State)
	assert.Equal(t, string(EntryFailed), report.Reason)
	assert.Contains(t, report.Error, "insufficient margin")
	assert.Nil(t, report.Position)

	// 보호 주문 없음, 열린 포지션 없음, 예약 해제
	f.gw.AssertNumberOfCalls(t, "PlaceOrder", 1)
	assert.Empty(t, f.tracker.GetOpen())
	assert.Empty(t, f.tracker.GetHistory())
	assert.False(t, f.guard.IsReserved("BTCUSDT"))

	var sawError bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["state"] == EntryFailed {
			sawError = true
		}
	}
	assert.True(t, sawError, "EntryFailed는 에러 로그로 남아야 합니다")
}

func TestSubmitRejectedBeforeVenue(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Signal)
		state  State
		reason string
	}{
		{"신뢰도 부족", func(s *domain.Signal) { s.Confidence = 0.3 }, Rejected, "LowConfidence"},
		{"진입가 0", func(s *domain.Signal) { s.EntryPrice = decimal.Zero }, Rejected, "InvalidPrice"},
		{"손절가가 진입가와 동일", func(s *domain.Signal) { s.StopLoss = dec("50000") }, Rejected, "InvalidStopLoss"},
		{"빈 심볼", func(s *domain.Signal) { s.Symbol = "" }, Rejected, "InvalidSymbol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10000)
			sig := btcSignal("sig-reject")
			tt.mutate(&sig)

			report := f.engine.Submit(context.Background(), sig)

			assert.False(t, report.Success)
			assert.Equal(t, tt.state, report.State)
			assert.Equal(t, tt.reason, report.Reason)
			assert.Equal(t, []State{Validating, tt.state}, report.Path)
			f.gw.AssertNotCalled(t, "SetLeverage", mock.Anything, mock.Anything, mock.Anything)
			f.gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitSizingFailureReleasesReservation(t *testing.T) {
	f := newFixture(t, 1)
	sig := btcSignal("sig-tiny")
	sig.EntryPrice = decimal.NewFromInt(1000000)
	sig.StopLoss = dec("1")
	sig.TakeProfit = nil

	report := f.engine.Submit(context.Background(), sig)

	assert.Equal(t, Rejected, report.State)
	assert.Equal(t, ReasonInvalidStopDistance, report.Reason)
	assert.Equal(t, []State{Validating, Authorizing, Sizing, Rejected}, report.Path)
	assert.False(t, f.guard.IsReserved("BTCUSDT"))
	f.gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestSubmitBlockedByRiskGuard(t *testing.T) {
	f := newFixture(t, 10000)

	f.gw.On("SetLeverage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.gw.On("PlaceOrder", mock.Anything, mock.Anything).Return(filled("1", "50000", "0.02"), nil)

	first := f.engine.Submit(context.Background(), btcSignal("sig-a"))
	require.True(t, first.Success)

	second := f.engine.Submit(context.Background(), btcSignal("sig-b"))
	assert.Equal(t, Blocked, second.State)
	assert.Equal(t, string(risk.DuplicatePosition), second.Reason)

	f.engine.Halt("점검")
	sig := btcSignal("sig-c")
	sig.Symbol = "ETHUSDT"
	halted := f.engine.Submit(context.Background(), sig)
	assert.Equal(t, Blocked, halted.State)
	assert.Equal(t, string(risk.TradingHalted), halted.Reason)

	f.engine.Resume()
	assert.False(t, f.engine.Account().Halted)
}

func TestSubmitConcurrentSameSymbol(t *testing.T) {
	f := newFixture(t, 10000)

	f.gw.On("SetLeverage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.gw.On("PlaceOrder", mock.Anything, exchangetest.OrderOfType(domain.Market)).
		Return(filled("1", "2000", "0.5"), nil)
	f.gw.On("PlaceOrder", mock.Anything, mock.Anything).Return(&domain.OrderResult{OrderID: "2"}, nil)

	const n = 12
	reports := make([]ExecutionReport, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			leverage := 3
			reports[i] = f.engine.Submit(context.Background(), domain.Signal{
				ID:         fmt.Sprintf("eth-%d", i),
				Symbol:     "ETHUSDT",
				Side:       domain.Short,
				Confidence: 0.9,
				EntryPrice: decimal.NewFromInt(2000),
				StopLoss:   dec("2040"),
				TakeProfit: dec("1900"),
				Leverage:   &leverage,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	registered := 0
	for _, r := range reports {
		switch r.State {
		case Registered:
			registered++
		case Blocked:
			assert.Equal(t, string(risk.DuplicatePosition), r.Reason)
		default:
			t.Errorf("예상하지 못한 상태: %s", r.State)
		}
	}
	assert.Equal(t, 1, registered)
	assert.Len(t, f.tracker.GetOpen(), 1)
	f.gw.AssertNumberOfCalls(t, "PlaceOrder", 3)
}

func TestRoundTripToCloseAll(t *testing.T) {
	f := newFixture(t, 10000)

	f.gw.On("SetLeverage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.gw.On("PlaceOrder", mock.Anything, mock.Anything).Return(filled("1", "50000", "0.02"), nil)
	f.gw.On("ClosePosition", mock.Anything, "BTCUSDT", mock.Anything).
		Return(&domain.CloseResult{Symbol: "BTCUSDT", ExitPrice: decimal.NewFromInt(49000), RealizedPnL: decimal.NewFromInt(-20)}, nil).Once()

	report := f.engine.Submit(context.Background(), btcSignal("sig-rt"))
	require.True(t, report.Success)

	results := f.engine.CloseAll(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, domain.ClosureClosed, results[0].Status)

	closed := 0
	for _, rec := range f.tracker.GetHistory() {
		if rec.Status == domain.StatusClosed {
			closed++
			assert.Equal(t, report.Position.ID, rec.PositionID)
		}
	}
	assert.Equal(t, 1, closed)
	assert.Empty(t, f.tracker.GetOpen())

	acct := f.engine.Account()
	assert.Equal(t, "-20", acct.DailyPnL.String())
	assert.Equal(t, "9980", acct.Balance.String())
	assert.Empty(t, f.guard.OpenSymbols())
}

func TestSubmitAfterCancelStillPlacesProtection(t *testing.T) {
	f := newFixture(t, 10000)
	ctx, cancel := context.WithCancel(context.Background())

	f.gw.On("SetLeverage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.gw.On("PlaceOrder", mock.Anything, exchangetest.OrderOfType(domain.Market)).
		Run(func(mock.Arguments) { cancel() }).
		Return(filled("1", "50000", "0.02"), nil).Once()
	f.gw.On("PlaceOrder", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), mock.Anything).
		Return(&domain.OrderResult{OrderID: "2"}, nil).Twice()

	report := f.engine.Submit(ctx, btcSignal("sig-cancel"))

	require.True(t, report.Success)
	assert.Empty(t, report.Warnings)
	f.gw.AssertExpectations(t)
}

func TestReconcileTaskAutoHalt(t *testing.T) {
	f := newFixture(t, 10000)
	task := NewReconcileTask(f.engine)
	ctx := context.Background()

	f.gw.On("GetAccountBalance", mock.Anything).Return(decimal.Zero, errors.New("timeout")).Times(MaxReconcileFailures)

	for i := 1; i < MaxReconcileFailures; i++ {
		require.Error(t, task.Execute(ctx))
		assert.False(t, f.engine.Account().Halted)
	}
	require.Error(t, task.Execute(ctx))
	assert.Equal(t, MaxReconcileFailures, task.Failures())

	acct := f.engine.Account()
	assert.True(t, acct.Halted)
	assert.Contains(t, acct.HaltReason, "연속")

	f.gw.On("GetAccountBalance", mock.Anything).Return(decimal.NewFromInt(10000), nil)
	f.gw.On("GetOpenPositions", mock.Anything).Return([]domain.VenuePosition{}, nil)

	require.NoError(t, task.Execute(ctx))
	assert.Equal(t, 0, task.Failures())
	assert.False(t, f.engine.Account().Halted)
}

func TestReconcileTaskKeepsManualHalt(t *testing.T) {
	f := newFixture(t, 10000)
	task := NewReconcileTask(f.engine)

	f.engine.Halt("수동 중지")
	f.gw.On("GetAccountBalance", mock.Anything).Return(decimal.NewFromInt(10000), nil)
	f.gw.On("GetOpenPositions", mock.Anything).Return([]domain.VenuePosition{}, nil)

	require.NoError(t, task.Execute(context.Background()))

	acct := f.engine.Account()
	assert.True(t, acct.Halted)
	assert.Equal(t, "수동 중지", acct.HaltReason)
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{Registered, Rejected, Blocked, EntryFailed} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []State{Validating, Authorizing, Sizing, EnteringOrder, PlacingStop, PlacingTakeProfit} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestExecutionErrorUnwrap(t *testing.T) {
	venueErr := exchange.NewVenueError("place_order", "BTCUSDT", exchange.ErrNoPosition)
	err := error(&ExecutionError{Phase: EntryFailed, Err: venueErr})

	assert.ErrorIs(t, err, exchange.ErrNoPosition)
	assert.Contains(t, err.Error(), "EntryFailed")
}
