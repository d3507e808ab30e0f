package position

import (
	"github.com/shopspring/decimal"

	"github.com/assist-by/sentinel/internal/config"
	"github.com/assist-by/sentinel/internal/domain"
)

// QuantityPrecision은 주문 수량의 소수점 자릿수입니다
const QuantityPrecision = 4

// SizeBreakdown은 수량 계산의 중간값을 담습니다
type SizeBreakdown struct {
	RiskAmount    decimal.Decimal // 잔고 × 거래당 최대 리스크
	PriceDistance decimal.Decimal // |진입가 - 손절가|
	RawQuantity   decimal.Decimal // RiskAmount / PriceDistance
	Leveraged     decimal.Decimal // RawQuantity × 레버리지
	Ceiling       decimal.Decimal // 잔고의 MaxNotionalFraction에 해당하는 수량
	Quantity      decimal.Decimal // 최종 수량
}

// EffectiveLeverage는 시그널 레버리지(없으면 기본값)를 최대 레버리지로 제한해 반환합니다
func EffectiveLeverage(sig domain.Signal, cfg config.Risk) int {
	leverage := cfg.DefaultLeverage
	if sig.Leverage != nil && *sig.Leverage > 0 {
		leverage = *sig.Leverage
	}
	if leverage > cfg.MaxLeverage {
		leverage = cfg.MaxLeverage
	}
	return leverage
}

// CalculateQuantity는 리스크 예산으로부터 주문 수량을 계산합니다.
// 결과가 0 이하이면 ErrInvalidStopDistance를 반환합니다.
func CalculateQuantity(sig domain.Signal, acct domain.AccountState, cfg config.Risk) (decimal.Decimal, error) {
	b, err := Breakdown(sig, acct, cfg)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Quantity, nil
}

// Breakdown은 CalculateQuantity와 같은 계산을 수행하고 중간값을 함께 반환합니다
func Breakdown(sig domain.Signal, acct domain.AccountState, cfg config.Risk) (SizeBreakdown, error) {
	var b SizeBreakdown
	if !sig.EntryPrice.IsPositive() {
		return b, NewPositionError(sig.Symbol, "size", ErrInvalidStopDistance)
	}

	b.RiskAmount = acct.Balance.Mul(decimal.NewFromFloat(cfg.MaxRiskPerTrade))

	// 손절가가 없으면 진입가 대비 기본 비율을 사용
	if sig.StopLoss != nil {
		b.PriceDistance = sig.EntryPrice.Sub(*sig.StopLoss).Abs()
	} else {
		b.PriceDistance = sig.EntryPrice.Mul(decimal.NewFromFloat(cfg.DefaultStopDistance))
	}
	if !b.PriceDistance.IsPositive() {
		return b, NewPositionError(sig.Symbol, "size", ErrInvalidStopDistance)
	}

	b.RawQuantity = b.RiskAmount.Div(b.PriceDistance)
	b.Leveraged = b.RawQuantity.Mul(decimal.NewFromInt(int64(EffectiveLeverage(sig, cfg))))
	b.Ceiling = acct.Balance.Mul(decimal.NewFromFloat(cfg.MaxNotionalFraction)).Div(sig.EntryPrice)

	qty := decimal.Min(b.Leveraged, b.Ceiling).Round(QuantityPrecision)

	// 손절 시 손실이 리스크 예산을 넘지 않도록 레버리지 적용 전 수량으로 제한
	qty = decimal.Min(qty, b.RawQuantity.Truncate(QuantityPrecision))

	if !qty.IsPositive() {
		return b, NewPositionError(sig.Symbol, "size", ErrInvalidStopDistance)
	}

	b.Quantity = qty
	return b, nil
}
