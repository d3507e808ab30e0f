// Package risk는 계정 상태와 열린 심볼 집합을 소유하고 신규 진입을 승인하거나 차단합니다.
package risk

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/assist-by/sentinel/internal/config"
	"github.com/assist-by/sentinel/internal/domain"
)

// Reason은 진입 차단 사유입니다
type Reason string

const (
	DuplicatePosition     Reason = "DuplicatePosition"
	PositionLimitReached  Reason = "PositionLimitReached"
	DailyLossLimitReached Reason = "DailyLossLimitReached"
	TradingHalted         Reason = "TradingHalted"
)

// Blocked는 리스크 가드가 진입을 거부했음을 나타냅니다
type Blocked struct {
	Reason Reason
	Symbol string
	Detail string
}

func (b *Blocked) Error() string {
	return fmt.Sprintf("진입 차단 [%s] (%s): %s", b.Symbol, b.Reason, b.Detail)
}

// Reservation은 승인된 시그널이 진입을 마칠 때까지 심볼 자리를 점유합니다
type Reservation struct {
	Symbol   string
	SignalID string
	// Account는 승인 시점의 계정 상태입니다 (포지션 크기 계산에 사용)
	Account domain.AccountState
}

// Guard는 AccountState와 열린/예약된 심볼 집합의 유일한 소유자입니다.
// 승인과 상태 변경은 같은 뮤텍스로 직렬화됩니다.
type Guard struct {
	mu       sync.Mutex
	cfg      config.Risk
	state    domain.AccountState
	open     map[string]struct{}
	reserved map[string]string // symbol -> signal id
	now      func() time.Time
	logger   *logrus.Entry
}

// Option은 Guard 생성 옵션입니다
type Option func(*Guard)

// WithClock은 현재 시각 함수를 교체합니다
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// WithLogger는 로거를 설정합니다
func WithLogger(logger *logrus.Entry) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// NewGuard는 초기 잔고로 새로운 Guard를 생성합니다
func NewGuard(cfg config.Risk, balance decimal.Decimal, opts ...Option) *Guard {
	g := &Guard{
		cfg:      cfg,
		open:     make(map[string]struct{}),
		reserved: make(map[string]string),
		now:      time.Now,
		logger:   logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.logger = g.logger.WithField("component", "risk_guard")
	g.state = domain.AccountState{
		Balance:  balance,
		DailyPnL: decimal.Zero,
		Day:      utcDay(g.now()),
	}
	return g
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// rollDay는 UTC 날짜가 바뀌었으면 당일 손익을 초기화합니다. 호출자가 mu를 잡고 있어야 합니다
func (g *Guard) rollDay() {
	today := utcDay(g.now())
	if today.After(g.state.Day) {
		if !g.state.DailyPnL.IsZero() {
			g.logger.WithFields(logrus.Fields{
				"previous_day": g.state.Day.Format("2006-01-02"),
				"daily_pnl":    g.state.DailyPnL.String(),
			}).Info("UTC 날짜 변경으로 당일 손익을 초기화합니다")
		}
		g.state.Day = today
		g.state.DailyPnL = decimal.Zero
	}
}

// Evaluate는 주어진 계정 상태와 점유 심볼 목록에 대해 규칙을 순서대로 평가합니다.
// 중복 포지션, 포지션 한도, 일일 손실 한도, 거래 중지 순으로 확인합니다.
func Evaluate(symbol string, acct domain.AccountState, occupied []string, cfg config.Risk) error {
	for _, s := range occupied {
		if s == symbol {
			return &Blocked{Reason: DuplicatePosition, Symbol: symbol,
				Detail: "이미 해당 심볼에 포지션이 존재하거나 진입 중입니다"}
		}
	}

	if len(occupied) >= cfg.MaxPositions {
		return &Blocked{Reason: PositionLimitReached, Symbol: symbol,
			Detail: fmt.Sprintf("열린 포지션 %d개 (최대 %d개)", len(occupied), cfg.MaxPositions)}
	}

	floor := acct.Balance.Mul(decimal.NewFromFloat(cfg.MaxDailyLossFraction)).Neg()
	if acct.DailyPnL.LessThanOrEqual(floor) {
		return &Blocked{Reason: DailyLossLimitReached, Symbol: symbol,
			Detail: fmt.Sprintf("당일 손익 %s <= 한도 %s", acct.DailyPnL, floor)}
	}

	if acct.Halted {
		return &Blocked{Reason: TradingHalted, Symbol: symbol, Detail: acct.HaltReason}
	}

	return nil
}

// Authorize는 시그널을 평가하고 통과하면 심볼을 원자적으로 예약합니다.
// 예약은 포지션 한도에 포함되며 Opened 또는 Release로 해제됩니다.
func (g *Guard) Authorize(sig domain.Signal) (*Reservation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay()
	if err := Evaluate(sig.Symbol, g.state, g.occupiedLocked(), g.cfg); err != nil {
		return nil, err
	}

	g.reserved[sig.Symbol] = sig.ID
	return &Reservation{Symbol: sig.Symbol, SignalID: sig.ID, Account: g.state}, nil
}

func (g *Guard) occupiedLocked() []string {
	symbols := make([]string, 0, len(g.open)+len(g.reserved))
	for s := range g.open {
		symbols = append(symbols, s)
	}
	for s := range g.reserved {
		if _, ok := g.open[s]; !ok {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// Release는 진입에 실패한 예약을 해제합니다. 이미 열린 포지션으로 전환되었으면 아무 일도 하지 않습니다
func (g *Guard) Release(res *Reservation) {
	if res == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.reserved[res.Symbol]; ok && id == res.SignalID {
		delete(g.reserved, res.Symbol)
	}
}

// IsReserved는 심볼이 진입 진행 중인지 확인합니다
func (g *Guard) IsReserved(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.reserved[symbol]
	return ok
}

// Opened는 심볼을 열린 포지션으로 기록하고 예약을 제거합니다
func (g *Guard) Opened(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.reserved, symbol)
	g.open[symbol] = struct{}{}
}

// Closed는 포지션 종료를 반영하고 실현 손익을 잔고와 당일 손익에 더합니다
func (g *Guard) Closed(symbol string, realizedPnL decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay()
	delete(g.open, symbol)
	g.state.DailyPnL = g.state.DailyPnL.Add(realizedPnL)
	g.state.Balance = g.state.Balance.Add(realizedPnL)
}

// RefreshBalance는 거래소에서 조회한 잔고로 갱신합니다
func (g *Guard) RefreshBalance(balance decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay()
	g.state.Balance = balance
}

// Halt는 모든 신규 진입을 차단합니다
func (g *Guard) Halt(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.Halted = true
	g.state.HaltReason = reason
	g.logger.WithField("reason", reason).Warn("신규 진입이 중지되었습니다")
}

// Resume은 신규 진입 차단을 해제합니다
func (g *Guard) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.Halted {
		g.logger.Info("신규 진입이 재개되었습니다")
	}
	g.state.Halted = false
	g.state.HaltReason = ""
}

// Snapshot은 현재 계정 상태의 복사본을 반환합니다
func (g *Guard) Snapshot() domain.AccountState {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay()
	return g.state
}

// OpenSymbols는 열린 포지션 심볼 목록을 반환합니다
func (g *Guard) OpenSymbols() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	symbols := make([]string, 0, len(g.open))
	for s := range g.open {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
