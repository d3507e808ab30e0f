package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/assist-by/sentinel/internal/config"
	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/exchange"
	"github.com/assist-by/sentinel/internal/monitoring"
	"github.com/assist-by/sentinel/internal/position"
)

// Registrar는 체결된 포지션을 등록하는 대상입니다 (position.Tracker)
type Registrar interface {
	Register(ctx context.Context, pos domain.Position) error
}

// Coordinator는 진입 주문과 손절/익절 보호 주문을 순서대로 실행합니다
type Coordinator struct {
	gateway   exchange.Gateway
	registrar Registrar
	cfg       config.Risk
	now       func() time.Time
	logger    *logrus.Entry
}

// NewCoordinator는 새로운 주문 코디네이터를 생성합니다
func NewCoordinator(gateway exchange.Gateway, registrar Registrar, cfg config.Risk, logger *logrus.Entry) *Coordinator {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{
		gateway:   gateway,
		registrar: registrar,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.WithField("component", "coordinator"),
	}
}

// Execute는 시그널과 계산된 수량으로 브래킷 주문을 실행합니다.
// 진입 주문이 실패하면 EntryFailed 단계의 ExecutionError를 반환하고 다른 주문은 내지 않습니다.
// 진입 이후의 실패는 경고로 기록되며 포지션은 DEGRADED 상태로 등록됩니다.
// onState가 nil이 아니면 단계가 바뀔 때마다 호출됩니다.
func (c *Coordinator) Execute(ctx context.Context, sig domain.Signal, qty decimal.Decimal, onState func(State)) (*ExecutionResult, error) {
	enter := func(s State) {
		if onState != nil {
			onState(s)
		}
	}

	log := c.logger.WithFields(logrus.Fields{
		"signal": sig.ID,
		"symbol": sig.Symbol,
		"side":   sig.Side,
	})
	var warnings []string
	degraded := false

	// 1. 레버리지 설정 (실패는 경고)
	leverage := position.EffectiveLeverage(sig, c.cfg)
	if err := c.gateway.SetLeverage(ctx, sig.Symbol, leverage); err != nil {
		monitoring.RecordVenueError("set_leverage")
		warnings = append(warnings, fmt.Sprintf("레버리지 %dx 설정 실패: %v", leverage, err))
		log.WithError(err).Warn("레버리지 설정 실패, 현재 레버리지로 진행합니다")
	}

	// 2. 진입 주문
	enter(EnteringOrder)
	entry, err := c.gateway.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          sig.Side.EntryOrderSide(),
		Type:          domain.Market,
		Quantity:      qty,
		ClientOrderID: ClientOrderID(sig.ID, LegEntry),
	})
	if err != nil {
		monitoring.RecordVenueError("place_entry_order")
		return nil, &ExecutionError{Phase: EntryFailed, Err: err}
	}

	filledQty := qty
	if entry.ExecutedQty.IsPositive() {
		filledQty = entry.ExecutedQty
	}
	entryPrice := sig.EntryPrice
	if entry.AvgPrice.IsPositive() {
		entryPrice = entry.AvgPrice
	}

	pos := domain.Position{
		ID:           uuid.NewString(),
		SignalID:     sig.ID,
		Symbol:       sig.Symbol,
		Side:         sig.Side,
		Quantity:     filledQty,
		EntryPrice:   entryPrice,
		Leverage:     leverage,
		StopLoss:     sig.StopLoss,
		TakeProfit:   sig.TakeProfit,
		EntryOrderID: entry.OrderID,
		Strategy:     sig.Strategy,
		CreatedAt:    c.now().UTC(),
	}
	log.WithFields(logrus.Fields{
		"order_id": entry.OrderID,
		"quantity": filledQty.String(),
		"price":    entryPrice.String(),
	}).Info("진입 주문 체결")

	// 진입 이후에는 호출자 취소와 무관하게 보호 주문과 등록을 마칩니다
	legCtx := context.WithoutCancel(ctx)

	// 3. 손절 주문
	if c.cfg.UseStopLoss {
		enter(PlacingStop)
		id, warn := c.placeProtective(legCtx, sig, filledQty, sig.StopLoss, domain.StopMarket, LegStop, "손절")
		if warn != "" {
			warnings = append(warnings, warn)
			degraded = true
		}
		pos.StopOrderID = id
	}

	// 4. 익절 주문
	if c.cfg.UseTakeProfit {
		enter(PlacingTakeProfit)
		id, warn := c.placeProtective(legCtx, sig, filledQty, sig.TakeProfit, domain.TakeProfitMarket, LegTakeProfit, "익절")
		if warn != "" {
			warnings = append(warnings, warn)
			degraded = true
		}
		pos.TakeProfitOrderID = id
	}

	// 5. 등록
	pos.Status = domain.StatusOpen
	if degraded {
		pos.Status = domain.StatusDegraded
		monitoring.RecordDegraded(sig.Symbol)
		log.WithField("warnings", warnings).Warn("보호 주문 없이 포지션이 열렸습니다")
	}
	pos.Warnings = append([]string(nil), warnings...)

	if err := c.registrar.Register(legCtx, pos); err != nil {
		warnings = append(warnings, fmt.Sprintf("포지션 등록 실패: %v", err))
		log.WithError(err).Error("체결된 포지션을 등록하지 못했습니다. 다음 조정 주기에 반영됩니다")
	}

	return &ExecutionResult{Position: pos, Warnings: warnings, Degraded: degraded}, nil
}

// placeProtective는 손절 또는 익절 주문을 내고 주문 ID와 경고를 반환합니다
func (c *Coordinator) placeProtective(ctx context.Context, sig domain.Signal, qty decimal.Decimal, price *decimal.Decimal,
	orderType domain.OrderType, leg Leg, label string) (string, string) {
	if price == nil {
		return "", fmt.Sprintf("%s 가격이 없어 %s 주문을 생략했습니다", label, label)
	}

	res, err := c.gateway.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          sig.Side.ExitOrderSide(),
		Type:          orderType,
		Quantity:      qty,
		StopPrice:     *price,
		ReduceOnly:    true,
		ClientOrderID: ClientOrderID(sig.ID, leg),
	})
	if err != nil {
		monitoring.RecordVenueError("place_" + string(leg) + "_order")
		c.logger.WithError(err).WithFields(logrus.Fields{
			"signal": sig.ID,
			"symbol": sig.Symbol,
			"price":  price.String(),
		}).Warnf("%s 주문 실패", label)
		return "", fmt.Sprintf("%s 주문 실패: %v", label, err)
	}
	return res.OrderID, ""
}
