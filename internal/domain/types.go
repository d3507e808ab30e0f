package domain

import (
	"fmt"
	"strings"
)

// Side는 시그널과 포지션의 방향을 정의합니다
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// ParseSide는 문자열을 Side로 변환합니다 (대소문자 무시)
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Long:
		return Long, nil
	case Short:
		return Short, nil
	default:
		return "", fmt.Errorf("알 수 없는 포지션 방향: %q", s)
	}
}

// OrderSide는 주문 방향을 정의합니다
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType은 주문 유형을 정의합니다
type OrderType string

const (
	Market           OrderType = "MARKET"
	StopMarket       OrderType = "STOP_MARKET"
	TakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// TradeStatus는 포지션과 거래 기록의 상태를 정의합니다
type TradeStatus string

const (
	StatusOpen     TradeStatus = "OPEN"
	StatusDegraded TradeStatus = "DEGRADED"
	StatusClosed   TradeStatus = "CLOSED"
)

// ClosureStatus는 청산 요청 결과 상태입니다
type ClosureStatus string

const (
	ClosureClosed ClosureStatus = "CLOSED"
	ClosureError  ClosureStatus = "ERROR"
)

// NotificationColor는 알림 색상 코드를 정의합니다
const (
	ColorSuccess = 0x00FF00 // 녹색
	ColorError   = 0xFF0000 // 빨간색
	ColorInfo    = 0x0000FF // 파란색
	ColorWarning = 0xFFA500 // 주황색
)

// ErrorCode는 거래소 API 에러 코드를 정의합니다
const (
	ErrPositionModeNoChange = -4059 // 포지션 모드 변경 불필요 에러
	ErrUnknownOrder         = -2013 // 존재하지 않는 주문
)

// EntryOrderSide는 포지션 진입을 위한 주문 방향을 반환합니다 (LONG→BUY, SHORT→SELL)
func (s Side) EntryOrderSide() OrderSide {
	if s == Long {
		return Buy
	}
	return Sell
}

// ExitOrderSide는 포지션 청산과 보호 주문을 위한 주문 방향을 반환합니다
func (s Side) ExitOrderSide() OrderSide {
	if s == Long {
		return Sell
	}
	return Buy
}
