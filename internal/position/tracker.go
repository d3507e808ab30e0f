package position

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/exchange"
)

// 거래 기록의 종료 사유
const (
	ReasonClosed     = "closed"
	ReasonReconciled = "reconciled"
	ReasonAdopted    = "adopted"
)

// AccountLedger는 트래커가 포지션 변화를 알리는 리스크 상태 소유자입니다
type AccountLedger interface {
	Opened(symbol string)
	Closed(symbol string, realizedPnL decimal.Decimal)
	RefreshBalance(balance decimal.Decimal)
	IsReserved(symbol string) bool
}

// Journal은 거래 기록의 영구 저장소입니다
type Journal interface {
	Append(ctx context.Context, rec domain.TradeRecord) error
}

// Tracker는 열린 포지션과 거래 이력의 기준 저장소입니다
type Tracker struct {
	mu         sync.RWMutex
	gateway    exchange.Gateway
	ledger     AccountLedger
	journal    Journal
	open       map[string]*domain.Position // symbol -> position
	registered map[string]struct{}         // 등록된 적 있는 포지션 ID
	closing    map[string]struct{}
	history    []domain.TradeRecord
	useStop    bool
	useTP      bool
	now        func() time.Time
	logger     *logrus.Entry
}

// TrackerOption은 Tracker 생성 옵션입니다
type TrackerOption func(*Tracker)

// WithJournal은 거래 기록 저장소를 설정합니다
func WithJournal(j Journal) TrackerOption {
	return func(t *Tracker) {
		t.journal = j
	}
}

// WithTrackerLogger는 로거를 설정합니다
func WithTrackerLogger(logger *logrus.Entry) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithProtection은 포지션에 손절/익절 주문이 있어야 하는지 설정합니다 (기본값: 둘 다 필요).
// 거래소에서 발견한 포지션은 보호 주문을 확인할 수 없으므로 하나라도 필요하면 DEGRADED로 추적합니다.
func WithProtection(useStopLoss, useTakeProfit bool) TrackerOption {
	return func(t *Tracker) {
		t.useStop = useStopLoss
		t.useTP = useTakeProfit
	}
}

// WithTrackerClock은 현재 시각 함수를 교체합니다
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker는 새로운 포지션 트래커를 생성합니다
func NewTracker(gateway exchange.Gateway, ledger AccountLedger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		gateway:    gateway,
		ledger:     ledger,
		open:       make(map[string]*domain.Position),
		registered: make(map[string]struct{}),
		closing:    make(map[string]struct{}),
		useStop:    true,
		useTP:      true,
		now:        time.Now,
		logger:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithField("component", "tracker")
	return t
}

// Restore는 저장소에서 읽은 이력을 메모리에 적재하고 (시작 시 한 번),
// 포지션별 마지막 기록이 CLOSED가 아닌 포지션을 열린 집합으로 되살립니다.
// 되살린 포지션은 이후 Reconcile에서 거래소 기준으로 확인되거나 종료됩니다.
func (t *Tracker) Restore(records []domain.TradeRecord) {
	t.mu.Lock()
	t.history = append(t.history[:0:0], records...)

	latest := make(map[string]domain.TradeRecord)
	var order []string
	for _, rec := range records {
		if _, ok := latest[rec.PositionID]; !ok {
			order = append(order, rec.PositionID)
		}
		latest[rec.PositionID] = rec
		t.registered[rec.PositionID] = struct{}{}
	}

	var restored []string
	for _, id := range order {
		rec := latest[id]
		if rec.Status == domain.StatusClosed {
			continue
		}
		pos := positionFromRecord(rec)
		t.open[pos.Symbol] = &pos // 같은 심볼이면 나중 기록이 우선
		restored = append(restored, pos.Symbol)
	}
	t.mu.Unlock()

	for _, symbol := range restored {
		t.ledger.Opened(symbol)
	}
	if len(restored) > 0 {
		t.logger.WithField("symbols", restored).Info("저장된 열린 포지션 복원")
	}
}

// Register는 진입이 확인된 포지션을 열린 집합에 추가합니다.
// 같은 ID로 다시 호출하면 아무 일도 하지 않고, 다른 ID가 같은 심볼을 점유하면 ErrPositionExists를 반환합니다.
func (t *Tracker) Register(ctx context.Context, pos domain.Position) error {
	t.mu.Lock()
	if _, seen := t.registered[pos.ID]; seen {
		t.mu.Unlock()
		return nil
	}
	if existing, ok := t.open[pos.Symbol]; ok {
		t.mu.Unlock()
		return NewPositionError(pos.Symbol, "register",
			errors.Join(ErrPositionExists, errors.New("기존 포지션 ID: "+existing.ID)))
	}

	if pos.Status == "" {
		pos.Status = domain.StatusOpen
	}
	stored := pos
	stored.Warnings = append([]string(nil), pos.Warnings...)
	t.open[pos.Symbol] = &stored
	t.registered[pos.ID] = struct{}{}

	rec := recordFromPosition(stored)
	rec.ID = uuid.NewString()
	rec.Status = stored.Status
	t.history = append(t.history, rec)
	t.mu.Unlock()

	t.ledger.Opened(pos.Symbol)
	t.persist(ctx, rec)

	t.logger.WithFields(logrus.Fields{
		"symbol":   pos.Symbol,
		"position": pos.ID,
		"status":   stored.Status,
		"quantity": stored.Quantity.String(),
	}).Info("포지션 등록")
	return nil
}

// RecordTrade는 거래 기록을 이력에 추가합니다
func (t *Tracker) RecordTrade(ctx context.Context, rec domain.TradeRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	t.mu.Lock()
	t.history = append(t.history, rec)
	t.mu.Unlock()

	t.persist(ctx, rec)
}

func (t *Tracker) persist(ctx context.Context, rec domain.TradeRecord) {
	if t.journal == nil {
		return
	}
	if err := t.journal.Append(ctx, rec); err != nil {
		t.logger.WithError(err).WithFields(logrus.Fields{
			"symbol": rec.Symbol,
			"record": rec.ID,
		}).Error("거래 기록 저장 실패")
	}
}

// GetOpen은 열린 포지션을 심볼 순으로 반환합니다
func (t *Tracker) GetOpen() []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	positions := make([]domain.Position, 0, len(t.open))
	for _, p := range t.open {
		positions = append(positions, *p)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
	return positions
}

// Get은 심볼의 열린 포지션을 반환합니다
func (t *Tracker) Get(symbol string) (domain.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.open[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// GetHistory는 거래 이력의 복사본을 반환합니다
func (t *Tracker) GetHistory() []domain.TradeRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]domain.TradeRecord(nil), t.history...)
}

// Performance는 현재 이력으로 성과 지표를 계산합니다
func (t *Tracker) Performance() domain.PerformanceMetrics {
	return CalculatePerformance(t.GetHistory())
}

// Close는 심볼의 포지션을 거래소에서 청산하고 CLOSED 기록을 추가합니다
func (t *Tracker) Close(ctx context.Context, symbol string) (domain.ClosureResult, error) {
	t.mu.Lock()
	p, ok := t.open[symbol]
	if !ok {
		t.mu.Unlock()
		return closureError(symbol, ErrPositionNotFound), NewPositionError(symbol, "close", ErrPositionNotFound)
	}
	if _, busy := t.closing[symbol]; busy {
		t.mu.Unlock()
		return closureError(symbol, ErrCloseInProgress), NewPositionError(symbol, "close", ErrCloseInProgress)
	}
	t.closing[symbol] = struct{}{}
	pos := *p
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.closing, symbol)
		t.mu.Unlock()
	}()

	res, err := t.gateway.ClosePosition(ctx, symbol, &pos.Quantity)
	if err != nil {
		if errors.Is(err, exchange.ErrNoPosition) {
			// 거래소에 이미 없으면 거래소 기준으로 종료 처리
			t.finalize(ctx, pos, decimal.Zero, decimal.Zero, ReasonReconciled)
			return domain.ClosureResult{Symbol: symbol, Status: domain.ClosureClosed, RealizedPnL: decimal.Zero}, nil
		}
		t.logger.WithError(err).WithField("symbol", symbol).Error("포지션 청산 실패")
		return closureError(symbol, err), NewPositionError(symbol, "close", err)
	}

	t.finalize(ctx, pos, res.RealizedPnL, res.ExitPrice, ReasonClosed)
	return domain.ClosureResult{Symbol: symbol, Status: domain.ClosureClosed, RealizedPnL: res.RealizedPnL}, nil
}

func closureError(symbol string, err error) domain.ClosureResult {
	return domain.ClosureResult{Symbol: symbol, Status: domain.ClosureError, RealizedPnL: decimal.Zero, Error: err.Error()}
}

// CloseAll은 열린 포지션을 각각 독립적으로 청산하고 심볼별 결과를 반환합니다.
// 일부 실패해도 나머지 청산은 계속되며, 실패한 심볼은 열린 집합에 남습니다.
func (t *Tracker) CloseAll(ctx context.Context) []domain.ClosureResult {
	open := t.GetOpen()
	results := make([]domain.ClosureResult, len(open))

	// 실패는 결과에 기록되므로 고루틴은 항상 nil을 반환합니다
	var g errgroup.Group
	for i, p := range open {
		i, p := i, p
		g.Go(func() error {
			results[i], _ = t.Close(ctx, p.Symbol)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// finalize는 포지션을 열린 집합에서 제거하고 CLOSED 기록을 추가합니다
func (t *Tracker) finalize(ctx context.Context, pos domain.Position, pnl, exitPrice decimal.Decimal, reason string) {
	t.mu.Lock()
	if current, ok := t.open[pos.Symbol]; !ok || current.ID != pos.ID {
		t.mu.Unlock()
		return
	}
	delete(t.open, pos.Symbol)

	closedAt := t.now().UTC()
	rec := recordFromPosition(pos)
	rec.ID = uuid.NewString()
	rec.Status = domain.StatusClosed
	rec.RealizedPnL = pnl
	rec.ExitPrice = exitPrice
	rec.Reason = reason
	rec.ClosedAt = &closedAt
	t.history = append(t.history, rec)
	t.mu.Unlock()

	t.ledger.Closed(pos.Symbol, pnl)
	t.persist(ctx, rec)

	t.logger.WithFields(logrus.Fields{
		"symbol":       pos.Symbol,
		"position":     pos.ID,
		"realized_pnl": pnl.String(),
		"reason":       reason,
	}).Info("포지션 종료")
}

// Reconcile은 거래소의 잔고와 포지션 목록으로 로컬 상태를 갱신합니다.
// 거래소에서 사라진 포지션은 손익 0으로 종료 처리하고, 로컬에 없는 거래소 포지션은 새로 등록합니다.
func (t *Tracker) Reconcile(ctx context.Context) error {
	balance, err := t.gateway.GetAccountBalance(ctx)
	if err != nil {
		return NewPositionError("", "reconcile", err)
	}
	t.ledger.RefreshBalance(balance)

	snapshotAt := t.now()
	venue, err := t.gateway.GetOpenPositions(ctx)
	if err != nil {
		return NewPositionError("", "reconcile", err)
	}

	onVenue := make(map[string]domain.VenuePosition, len(venue))
	for _, vp := range venue {
		onVenue[vp.Symbol] = vp
	}

	for _, pos := range t.GetOpen() {
		if _, ok := onVenue[pos.Symbol]; ok {
			continue
		}
		// 조회 이후 등록된 포지션은 다음 주기에 확인
		if pos.CreatedAt.After(snapshotAt) {
			continue
		}
		t.logger.WithField("symbol", pos.Symbol).Warn("거래소에서 사라진 포지션을 종료 처리합니다")
		t.finalize(ctx, pos, decimal.Zero, decimal.Zero, ReasonReconciled)
	}

	for _, vp := range venue {
		if _, ok := t.Get(vp.Symbol); ok || t.ledger.IsReserved(vp.Symbol) {
			continue
		}
		adopted := domain.Position{
			ID:         uuid.NewString(),
			Symbol:     vp.Symbol,
			Side:       vp.Side,
			Quantity:   vp.Quantity,
			EntryPrice: vp.EntryPrice,
			Leverage:   vp.Leverage,
			Status:     domain.StatusOpen,
			Warnings:   []string{"거래소에서 발견되어 추적을 시작한 포지션입니다"},
			Strategy:   ReasonAdopted,
			CreatedAt:  t.now().UTC(),
		}
		// 보호 주문 ID를 알 수 없으므로 보호된 포지션으로 보고하지 않음
		if t.useStop || t.useTP {
			adopted.Status = domain.StatusDegraded
			adopted.Warnings = append(adopted.Warnings, "손절/익절 주문이 확인되지 않았습니다")
		}
		if err := t.Register(ctx, adopted); err != nil {
			t.logger.WithError(err).WithField("symbol", vp.Symbol).Warn("거래소 포지션 등록 실패")
		}
	}

	return nil
}

func recordFromPosition(p domain.Position) domain.TradeRecord {
	return domain.TradeRecord{
		PositionID:        p.ID,
		SignalID:          p.SignalID,
		Symbol:            p.Symbol,
		Side:              p.Side,
		Quantity:          p.Quantity,
		EntryPrice:        p.EntryPrice,
		Leverage:          p.Leverage,
		RealizedPnL:       decimal.Zero,
		ExitPrice:         decimal.Zero,
		EntryOrderID:      p.EntryOrderID,
		StopOrderID:       p.StopOrderID,
		TakeProfitOrderID: p.TakeProfitOrderID,
		Warnings:          append([]string(nil), p.Warnings...),
		Strategy:          p.Strategy,
		OpenedAt:          p.CreatedAt,
	}
}

func positionFromRecord(rec domain.TradeRecord) domain.Position {
	return domain.Position{
		ID:                rec.PositionID,
		SignalID:          rec.SignalID,
		Symbol:            rec.Symbol,
		Side:              rec.Side,
		Quantity:          rec.Quantity,
		EntryPrice:        rec.EntryPrice,
		Leverage:          rec.Leverage,
		EntryOrderID:      rec.EntryOrderID,
		StopOrderID:       rec.StopOrderID,
		TakeProfitOrderID: rec.TakeProfitOrderID,
		Status:            rec.Status,
		Warnings:          append([]string(nil), rec.Warnings...),
		Strategy:          rec.Strategy,
		CreatedAt:         rec.OpenedAt,
	}
}
