// Package notification은 거래 알림 전송 인터페이스와 메시지 타입을 정의합니다.
package notification

import (
	"github.com/shopspring/decimal"

	"github.com/assist-by/sentinel/internal/domain"
)

// Notifier는 알림 전송 인터페이스를 정의합니다
type Notifier interface {
	// SendError는 에러 알림을 전송합니다
	SendError(err error) error

	// SendInfo는 일반 정보 알림을 전송합니다
	SendInfo(message string) error

	// SendTradeInfo는 포지션 등록 정보를 전송합니다
	SendTradeInfo(info TradeInfo) error

	// SendCloseReport는 일괄 청산 결과를 전송합니다
	SendCloseReport(results []domain.ClosureResult) error
}

// TradeInfo는 등록된 포지션의 알림 정보입니다
type TradeInfo struct {
	SignalID   string
	Symbol     string           // 심볼 (예: BTCUSDT)
	Side       domain.Side      // LONG / SHORT
	Quantity   decimal.Decimal  // 체결 수량 (코인)
	EntryPrice decimal.Decimal  // 진입가
	StopLoss   *decimal.Decimal // 손절가
	TakeProfit *decimal.Decimal // 익절가
	Balance    decimal.Decimal  // 승인 시점 USDT 잔고
	Leverage   int              // 사용 레버리지
	Degraded   bool             // 보호 주문 누락 여부
	Warnings   []string
}

// PositionValue는 포지션 명목 가치(USDT)를 반환합니다
func (i TradeInfo) PositionValue() decimal.Decimal {
	return i.Quantity.Mul(i.EntryPrice)
}

// GetColorForTrade는 포지션 방향과 상태에 따른 색상을 반환합니다
func GetColorForTrade(side domain.Side, degraded bool) int {
	if degraded {
		return domain.ColorWarning
	}
	switch side {
	case domain.Long:
		return domain.ColorSuccess
	case domain.Short:
		return domain.ColorError
	default:
		return domain.ColorInfo
	}
}

// Nop은 아무 것도 전송하지 않는 Notifier입니다
type Nop struct{}

func (Nop) SendError(error) error                        { return nil }
func (Nop) SendInfo(string) error                        { return nil }
func (Nop) SendTradeInfo(TradeInfo) error                { return nil }
func (Nop) SendCloseReport([]domain.ClosureResult) error { return nil }
