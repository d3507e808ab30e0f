package position

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/exchange"
	"github.com/assist-by/sentinel/internal/exchange/exchangetest"
)

type fakeLedger struct {
	mu       sync.Mutex
	opened   []string
	closed   map[string]decimal.Decimal
	balance  decimal.Decimal
	reserved map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{closed: make(map[string]decimal.Decimal), reserved: make(map[string]bool)}
}

func (l *fakeLedger) Opened(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened = append(l.opened, symbol)
}

func (l *fakeLedger) Closed(symbol string, pnl decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed[symbol] = pnl
}

func (l *fakeLedger) RefreshBalance(balance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = balance
}

func (l *fakeLedger) IsReserved(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserved[symbol]
}

type memJournal struct {
	mu      sync.Mutex
	records []domain.TradeRecord
	err     error
}

func (j *memJournal) Append(_ context.Context, rec domain.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.records = append(j.records, rec)
	return nil
}

func testPosition(id, symbol string) domain.Position {
	return domain.Position{
		ID:         id,
		Symbol:     symbol,
		Side:       domain.Long,
		Quantity:   decimal.RequireFromString("0.5"),
		EntryPrice: decimal.NewFromInt(100),
		Leverage:   3,
		Status:     domain.StatusOpen,
		CreatedAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestTrackerRegister(t *testing.T) {
	ctx := context.Background()
	gw := new(exchangetest.MockGateway)
	ledger := newFakeLedger()
	journal := &memJournal{}
	tr := NewTracker(gw, ledger, WithJournal(journal))

	pos := testPosition("p-1", "BTCUSDT")
	require.NoError(t, tr.Register(ctx, pos))

	// 같은 ID 재등록은 무시
	require.NoError(t, tr.Register(ctx, pos))
	assert.Len(t, tr.GetOpen(), 1)
	assert.Len(t, tr.GetHistory(), 1)
	assert.Equal(t, []string{"BTCUSDT"}, ledger.opened)
	assert.Len(t, journal.records, 1)

	// 다른 ID로 같은 심볼 등록은 거부
	err := tr.Register(ctx, testPosition("p-2", "BTCUSDT"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPositionExists))

	var perr *PositionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "BTCUSDT", perr.Symbol)
}

func TestTrackerRegisterDegraded(t *testing.T) {
	tr := NewTracker(new(exchangetest.MockGateway), newFakeLedger())

	pos := testPosition("p-1", "ETHUSDT")
	pos.Status = domain.StatusDegraded
	pos.Warnings = []string{"손절 주문 실패"}
	require.NoError(t, tr.Register(context.Background(), pos))

	history := tr.GetHistory()
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusDegraded, history[0].Status)
	assert.Equal(t, []string{"손절 주문 실패"}, history[0].Warnings)

	got, ok := tr.Get("ETHUSDT")
	require.True(t, ok)
	assert.True(t, got.Degraded())
}

func TestTrackerCloseRoundTrip(t *testing.T) {
	ctx := context.Background()
	gw := new(exchangetest.MockGateway)
	ledger := newFakeLedger()
	tr := NewTracker(gw, ledger)

	require.NoError(t, tr.Register(ctx, testPosition("p-1", "BTCUSDT")))

	gw.On("ClosePosition", mock.Anything, "BTCUSDT", mock.Anything).Return(&domain.CloseResult{
		Symbol:      "BTCUSDT",
		OrderID:     "42",
		Quantity:    decimal.RequireFromString("0.5"),
		ExitPrice:   decimal.NewFromInt(110),
		RealizedPnL: decimal.NewFromInt(5),
	}, nil).Once()

	res, err := tr.Close(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, domain.ClosureClosed, res.Status)
	assert.Equal(t, "5", res.RealizedPnL.String())

	assert.Empty(t, tr.GetOpen())
	assert.Equal(t, "5", ledger.closed["BTCUSDT"].String())

	var closed []domain.TradeRecord
	for _, rec := range tr.GetHistory() {
		if rec.Status == domain.StatusClosed {
			closed = append(closed, rec)
		}
	}
	require.Len(t, closed, 1)
	assert.Equal(t, "p-1", closed[0].PositionID)
	assert.Equal(t, "110", closed[0].ExitPrice.String())
	assert.Equal(t, ReasonClosed, closed[0].Reason)
	assert.NotNil(t, closed[0].ClosedAt)

	m := tr.Performance()
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, "5", m.TotalPnL.String())

	// 이미 종료된 심볼
	_, err = tr.Close(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ErrPositionNotFound)
	gw.AssertExpectations(t)
}

func TestTrackerCloseVanishedOnVenue(t *testing.T) {
	ctx := context.Background()
	gw := new(exchangetest.MockGateway)
	ledger := newFakeLedger()
	tr := NewTracker(gw, ledger)

	require.NoError(t, tr.Register(ctx, testPosition("p-1", "SOLUSDT")))
	gw.On("ClosePosition", mock.Anything, "SOLUSDT", mock.Anything).
		Return(nil, exchange.NewVenueError("close", "SOLUSDT", exchange.ErrNoPosition)).Once()

	res, err := tr.Close(ctx, "SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, domain.ClosureClosed, res.Status)
	assert.True(t, res.RealizedPnL.IsZero())
	assert.Empty(t, tr.GetOpen())

	history := tr.GetHistory()
	assert.Equal(t, ReasonReconciled, history[len(history)-1].Reason)
}

func TestTrackerCloseAllPartialFailure(t *testing.T) {
	ctx := context.Background()
	gw := new(exchangetest.MockGateway)
	ledger := newFakeLedger()
	tr := NewTracker(gw, ledger)

	for i, symbol := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		require.NoError(t, tr.Register(ctx, testPosition(string(rune('a'+i)), symbol)))
	}

	gw.On("ClosePosition", mock.Anything, "BTCUSDT", mock.Anything).
		Return(&domain.CloseResult{Symbol: "BTCUSDT", RealizedPnL: decimal.NewFromInt(10)}, nil)
	gw.On("ClosePosition", mock.Anything, "ETHUSDT", mock.Anything).
		Return(nil, exchange.NewVenueError("close", "ETHUSDT", errors.New("timeout")))
	gw.On("ClosePosition", mock.Anything, "SOLUSDT", mock.Anything).
		Return(&domain.CloseResult{Symbol: "SOLUSDT", RealizedPnL: decimal.NewFromInt(-4)}, nil)

	results := tr.CloseAll(ctx)
	require.Len(t, results, 3)

	byStatus := map[domain.ClosureStatus][]string{}
	for _, r := range results {
		byStatus[r.Status] = append(byStatus[r.Status], r.Symbol)
	}
	assert.ElementsMatch(t, []string{"BTCUSDT", "SOLUSDT"}, byStatus[domain.ClosureClosed])
	assert.Equal(t, []string{"ETHUSDT"}, byStatus[domain.ClosureError])

	open := tr.GetOpen()
	require.Len(t, open, 1)
	assert.Equal(t, "ETHUSDT", open[0].Symbol)

	for _, r := range results {
		if r.Status == domain.ClosureError {
			assert.NotEmpty(t, r.Error)
		}
	}
}

func TestTrackerCloseAllEmpty(t *testing.T) {
	tr := NewTracker(new(exchangetest.MockGateway), newFakeLedger())
	assert.Empty(t, tr.CloseAll(context.Background()))
}

func TestTrackerReconcile(t *testing.T) {
	ctx := context.Background()
	gw := new(exchangetest.MockGateway)
	ledger := newFakeLedger()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(gw, ledger, WithTrackerClock(func() time.Time { return now }))

	require.NoError(t, tr.Register(ctx, testPosition("p-1", "BTCUSDT")))
	require.NoError(t, tr.Register(ctx, testPosition("p-2", "ETHUSDT")))
	ledger.reserved["XRPUSDT"] = true

	gw.On("GetAccountBalance", mock.Anything).Return(decimal.NewFromInt(9000), nil)
	gw.On("GetOpenPositions", mock.Anything).Return([]domain.VenuePosition{
		{Symbol: "BTCUSDT", Side: domain.Long, Quantity: decimal.RequireFromString("0.5")},
		{Symbol: "DOGEUSDT", Side: domain.Short, Quantity: decimal.NewFromInt(1000), EntryPrice: decimal.RequireFromString("0.1"), Leverage: 2},
		{Symbol: "XRPUSDT", Side: domain.Long, Quantity: decimal.NewFromInt(10)},
	}, nil)

	require.NoError(t, tr.Reconcile(ctx))

	assert.Equal(t, "9000", ledger.balance.String())

	symbols := []string{}
	for _, p := range tr.GetOpen() {
		symbols = append(symbols, p.Symbol)
	}
	// ETHUSDT는 사라졌고 DOGEUSDT는 새로 추적, 예약 중인 XRPUSDT는 제외
	assert.Equal(t, []string{"BTCUSDT", "DOGEUSDT"}, symbols)

	assert.True(t, ledger.closed["ETHUSDT"].IsZero())
	_, closedBTC := ledger.closed["BTCUSDT"]
	assert.False(t, closedBTC)

	doge, ok := tr.Get("DOGEUSDT")
	require.True(t, ok)
	assert.Equal(t, domain.Short, doge.Side)
	assert.Equal(t, ReasonAdopted, doge.Strategy)

	// 보호 주문을 확인할 수 없는 포지션은 DEGRADED로 추적
	assert.Equal(t, domain.StatusDegraded, doge.Status)
	assert.Empty(t, doge.StopOrderID)
	assert.Empty(t, doge.TakeProfitOrderID)
	assert.Len(t, doge.Warnings, 2)

	history := tr.GetHistory()
	last := history[len(history)-1]
	assert.Equal(t, "DOGEUSDT", last.Symbol)
	assert.Equal(t, domain.StatusDegraded, last.Status)
}

func TestTrackerReconcileAdoptedStatus(t *testing.T) {
	tests := []struct {
		name       string
		stop, tp   bool
		wantStatus domain.TradeStatus
	}{
		{"손절/익절 모두 사용", true, true, domain.StatusDegraded},
		{"손절만 사용", true, false, domain.StatusDegraded},
		{"익절만 사용", false, true, domain.StatusDegraded},
		{"보호 주문 미사용", false, false, domain.StatusOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := new(exchangetest.MockGateway)
			tr := NewTracker(gw, newFakeLedger(), WithProtection(tt.stop, tt.tp))

			gw.On("GetAccountBalance", mock.Anything).Return(decimal.NewFromInt(1000), nil)
			gw.On("GetOpenPositions", mock.Anything).Return([]domain.VenuePosition{
				{Symbol: "DOGEUSDT", Side: domain.Short, Quantity: decimal.NewFromInt(1000)},
			}, nil)

			require.NoError(t, tr.Reconcile(context.Background()))

			doge, ok := tr.Get("DOGEUSDT")
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, doge.Status)
		})
	}
}

func TestTrackerReconcileSkipsNewerPositions(t *testing.T) {
	ctx := context.Background()
	gw := new(exchangetest.MockGateway)
	ledger := newFakeLedger()
	snapshot := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(gw, ledger, WithTrackerClock(func() time.Time { return snapshot }))

	pos := testPosition("p-1", "BTCUSDT")
	pos.CreatedAt = snapshot.Add(time.Second)
	require.NoError(t, tr.Register(ctx, pos))

	gw.On("GetAccountBalance", mock.Anything).Return(decimal.NewFromInt(1000), nil)
	gw.On("GetOpenPositions", mock.Anything).Return([]domain.VenuePosition{}, nil)

	require.NoError(t, tr.Reconcile(ctx))
	assert.Len(t, tr.GetOpen(), 1)
}

func TestTrackerReconcileVenueFailure(t *testing.T) {
	gw := new(exchangetest.MockGateway)
	tr := NewTracker(gw, newFakeLedger())

	gw.On("GetAccountBalance", mock.Anything).Return(decimal.Zero, errors.New("연결 실패"))

	err := tr.Reconcile(context.Background())
	require.Error(t, err)
	var perr *PositionError
	assert.ErrorAs(t, err, &perr)
	gw.AssertNotCalled(t, "GetOpenPositions", mock.Anything)
}

func TestTrackerJournalFailureDoesNotBlock(t *testing.T) {
	tr := NewTracker(new(exchangetest.MockGateway), newFakeLedger(),
		WithJournal(&memJournal{err: errors.New("디스크 가득 참")}))

	require.NoError(t, tr.Register(context.Background(), testPosition("p-1", "BTCUSDT")))
	assert.Len(t, tr.GetHistory(), 1)
}

func TestTrackerRestore(t *testing.T) {
	tr := NewTracker(new(exchangetest.MockGateway), newFakeLedger())
	tr.Restore([]domain.TradeRecord{
		{ID: "r-1", PositionID: "p-1", Symbol: "BTCUSDT", Status: domain.StatusOpen},
		{ID: "r-2", PositionID: "p-1", Symbol: "BTCUSDT", Status: domain.StatusClosed, RealizedPnL: decimal.NewFromInt(7)},
	})

	assert.Len(t, tr.GetHistory(), 2)
	assert.Equal(t, "7", tr.Performance().TotalPnL.String())

	// 복원된 포지션 ID는 다시 등록되지 않음
	require.NoError(t, tr.Register(context.Background(), testPosition("p-1", "BTCUSDT")))
	assert.Empty(t, tr.GetOpen())
}

func TestTrackerRestoreOpenPositions(t *testing.T) {
	ctx := context.Background()
	gw := new(exchangetest.MockGateway)
	ledger := newFakeLedger()
	journal := &memJournal{}
	opened := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tr := NewTracker(gw, ledger, WithJournal(journal),
		WithTrackerClock(func() time.Time { return opened.Add(3 * time.Hour) }))

	tr.Restore([]domain.TradeRecord{
		{ID: "r-1", PositionID: "p-1", SignalID: "sig-1", Symbol: "BTCUSDT", Side: domain.Long,
			Quantity: decimal.RequireFromString("0.5"), EntryPrice: decimal.NewFromInt(100), Leverage: 3,
			EntryOrderID: "1", StopOrderID: "2", TakeProfitOrderID: "3",
			Status: domain.StatusOpen, Strategy: "breakout", OpenedAt: opened},
		{ID: "r-2", PositionID: "p-2", SignalID: "sig-2", Symbol: "ETHUSDT", Side: domain.Short,
			Quantity: decimal.NewFromInt(2), EntryPrice: decimal.NewFromInt(3000), Leverage: 5,
			EntryOrderID: "4", Status: domain.StatusDegraded, Warnings: []string{"익절 주문 실패"}, OpenedAt: opened},
		{ID: "r-3", PositionID: "p-3", Symbol: "SOLUSDT", Status: domain.StatusOpen, OpenedAt: opened},
		{ID: "r-4", PositionID: "p-3", Symbol: "SOLUSDT", Status: domain.StatusClosed, OpenedAt: opened},
	})

	open := tr.GetOpen()
	require.Len(t, open, 2)
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, ledger.opened)

	btc, ok := tr.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "p-1", btc.ID)
	assert.Equal(t, "sig-1", btc.SignalID)
	assert.Equal(t, "breakout", btc.Strategy)
	assert.Equal(t, "2", btc.StopOrderID)
	assert.Equal(t, "3", btc.TakeProfitOrderID)
	assert.Equal(t, 3, btc.Leverage)
	assert.Equal(t, domain.StatusOpen, btc.Status)

	eth, ok := tr.Get("ETHUSDT")
	require.True(t, ok)
	assert.True(t, eth.Degraded())
	assert.Equal(t, []string{"익절 주문 실패"}, eth.Warnings)

	// 거래소에 남은 BTCUSDT는 같은 ID로 유지되고, 사라진 ETHUSDT는 CLOSED 기록으로 마감
	gw.On("GetAccountBalance", mock.Anything).Return(decimal.NewFromInt(1000), nil)
	gw.On("GetOpenPositions", mock.Anything).Return([]domain.VenuePosition{
		{Symbol: "BTCUSDT", Side: domain.Long, Quantity: decimal.RequireFromString("0.5")},
	}, nil)
	require.NoError(t, tr.Reconcile(ctx))

	open = tr.GetOpen()
	require.Len(t, open, 1)
	assert.Equal(t, "p-1", open[0].ID)

	require.Len(t, journal.records, 1)
	closed := journal.records[0]
	assert.Equal(t, "p-2", closed.PositionID)
	assert.Equal(t, "sig-2", closed.SignalID)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Equal(t, ReasonReconciled, closed.Reason)
	assert.True(t, ledger.closed["ETHUSDT"].IsZero())
}
