package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/sentinel/internal/config"
	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/exchange"
	"github.com/assist-by/sentinel/internal/monitoring"
	"github.com/assist-by/sentinel/internal/notification"
	"github.com/assist-by/sentinel/internal/position"
	"github.com/assist-by/sentinel/internal/risk"
	"github.com/assist-by/sentinel/internal/validation"
)

// ReasonInvalidStopDistance는 수량 계산 실패로 거절된 시그널의 사유입니다
const ReasonInvalidStopDistance = "InvalidStopDistance"

// Engine은 시그널 한 건을 검증부터 등록까지 처리하는 실행 파이프라인입니다.
// 서로 다른 심볼의 시그널은 동시에 처리할 수 있습니다.
type Engine struct {
	cfg         config.Risk
	guard       *risk.Guard
	tracker     *position.Tracker
	coordinator *Coordinator
	notifier    notification.Notifier
	logger      *logrus.Entry
}

// NewEngine은 가드와 트래커를 연결한 실행 엔진을 생성합니다
func NewEngine(cfg config.Risk, gateway exchange.Gateway, guard *risk.Guard, tracker *position.Tracker,
	notifier notification.Notifier, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if notifier == nil {
		notifier = notification.Nop{}
	}
	return &Engine{
		cfg:         cfg,
		guard:       guard,
		tracker:     tracker,
		coordinator: NewCoordinator(gateway, tracker, cfg, logger),
		notifier:    notifier,
		logger:      logger.WithField("component", "engine"),
	}
}

// Submit은 시그널을 처리하고 종료 상태를 담은 보고서를 반환합니다.
// 검증 실패는 Rejected, 리스크 차단은 Blocked, 진입 주문 실패는 EntryFailed로 끝나며
// 이 경우 거래소에 남는 주문은 없습니다.
func (e *Engine) Submit(ctx context.Context, sig domain.Signal) ExecutionReport {
	started := time.Now()
	report := ExecutionReport{
		SignalID: sig.ID,
		Symbol:   sig.Symbol,
		Warnings: []string{},
	}
	enter := func(s State) {
		report.State = s
		report.Path = append(report.Path, s)
	}
	fail := func(s State, reason string, err error) ExecutionReport {
		enter(s)
		report.Reason = reason
		report.Error = err.Error()
		e.finish(&report, started)
		return report
	}

	// 1. 검증
	enter(Validating)
	if err := validation.Validate(sig, e.guard.Snapshot(), e.cfg); err != nil {
		var rej *validation.Rejection
		reason := "Invalid"
		if errors.As(err, &rej) {
			reason = string(rej.Reason)
		}
		return fail(Rejected, reason, err)
	}

	// 2. 승인 (심볼 예약)
	enter(Authorizing)
	res, err := e.guard.Authorize(sig)
	if err != nil {
		var blocked *risk.Blocked
		reason := "Blocked"
		if errors.As(err, &blocked) {
			reason = string(blocked.Reason)
		}
		return fail(Blocked, reason, err)
	}
	// 등록에 성공하면 Opened가 예약을 대체하므로 Release는 아무 일도 하지 않습니다
	defer e.guard.Release(res)

	// 3. 수량 계산
	enter(Sizing)
	qty, err := position.CalculateQuantity(sig, res.Account, e.cfg)
	if err != nil {
		return fail(Rejected, ReasonInvalidStopDistance, err)
	}

	// 4. 주문 실행
	result, err := e.coordinator.Execute(ctx, sig, qty, enter)
	if err != nil {
		var execErr *ExecutionError
		reason := string(EntryFailed)
		if errors.As(err, &execErr) {
			reason = string(execErr.Phase)
		}
		if nerr := e.notifier.SendError(fmt.Errorf("%s 진입 실패: %w", sig.Symbol, err)); nerr != nil {
			e.logger.WithError(nerr).Warn("에러 알림 전송 실패")
		}
		return fail(EntryFailed, reason, err)
	}

	// 5. 등록 완료
	enter(Registered)
	report.Success = true
	pos := result.Position
	report.Position = &pos
	report.Warnings = append(report.Warnings, result.Warnings...)

	info := notification.TradeInfo{
		SignalID:   sig.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		Balance:    res.Account.Balance,
		Leverage:   pos.Leverage,
		Degraded:   result.Degraded,
		Warnings:   result.Warnings,
	}
	if err := e.notifier.SendTradeInfo(info); err != nil {
		e.logger.WithError(err).Warn("거래 정보 알림 전송 실패")
	}

	e.finish(&report, started)
	return report
}

// finish는 종료 상태를 로그와 지표에 기록합니다
func (e *Engine) finish(report *ExecutionReport, started time.Time) {
	monitoring.RecordExecution(string(report.State), report.Reason, time.Since(started))
	e.updateGauges()

	fields := logrus.Fields{
		"signal": report.SignalID,
		"symbol": report.Symbol,
		"state":  report.State,
	}
	if report.Reason != "" {
		fields["reason"] = report.Reason
	}
	if len(report.Warnings) > 0 {
		fields["warnings"] = report.Warnings
	}
	log := e.logger.WithFields(fields)

	switch report.State {
	case Registered:
		if len(report.Warnings) > 0 {
			log.Warn("포지션 등록 (경고 있음)")
			return
		}
		log.Info("포지션 등록")
	case EntryFailed:
		log.WithField("error", report.Error).Error("진입 주문 실패")
	default:
		log.WithField("error", report.Error).Info("시그널 처리 중단")
	}
}

func (e *Engine) updateGauges() {
	monitoring.SetOpenPositions(len(e.tracker.GetOpen()))
	acct := e.guard.Snapshot()
	pnl, _ := acct.DailyPnL.Float64()
	monitoring.SetDailyPnL(pnl)
	monitoring.SetHalted(acct.Halted)
}

// CloseAll은 모든 열린 포지션을 청산하고 결과를 알림으로 전송합니다
func (e *Engine) CloseAll(ctx context.Context) []domain.ClosureResult {
	results := e.tracker.CloseAll(ctx)
	for _, r := range results {
		if r.Status == domain.ClosureError {
			monitoring.RecordVenueError("close_position")
		}
	}
	e.updateGauges()

	if len(results) > 0 {
		if err := e.notifier.SendCloseReport(results); err != nil {
			e.logger.WithError(err).Warn("청산 결과 알림 전송 실패")
		}
	}
	return results
}

// Halt는 신규 진입을 중지합니다
func (e *Engine) Halt(reason string) {
	e.guard.Halt(reason)
	monitoring.SetHalted(true)
	if err := e.notifier.SendInfo("⛔ 신규 진입 중지: " + reason); err != nil {
		e.logger.WithError(err).Warn("알림 전송 실패")
	}
}

// Resume은 신규 진입을 재개합니다
func (e *Engine) Resume() {
	e.guard.Resume()
	monitoring.SetHalted(false)
	if err := e.notifier.SendInfo("✅ 신규 진입 재개"); err != nil {
		e.logger.WithError(err).Warn("알림 전송 실패")
	}
}

// Account는 현재 계정 상태를 반환합니다
func (e *Engine) Account() domain.AccountState {
	return e.guard.Snapshot()
}

// Tracker는 포지션 트래커를 반환합니다
func (e *Engine) Tracker() *position.Tracker {
	return e.tracker
}
