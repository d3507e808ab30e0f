package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest는 주문 요청 정보를 표현합니다
type OrderRequest struct {
	Symbol        string          // 심볼 (예: BTCUSDT)
	Side          OrderSide       // 매수/매도
	Type          OrderType       // 주문 유형
	Quantity      decimal.Decimal // 수량
	StopPrice     decimal.Decimal // 트리거 가격 (STOP_MARKET, TAKE_PROFIT_MARKET)
	ReduceOnly    bool            // 포지션 축소 전용 여부
	ClientOrderID string          // 클라이언트 측 주문 ID (중복 방지 키)
}

// OrderResult는 주문 응답을 표현합니다
type OrderResult struct {
	OrderID       string          // 거래소 주문 ID
	ClientOrderID string          // 클라이언트 측 주문 ID
	Symbol        string          // 심볼
	Status        string          // 주문 상태 (NEW, FILLED ...)
	AvgPrice      decimal.Decimal // 평균 체결 가격
	ExecutedQty   decimal.Decimal // 체결된 수량
	CreateTime    time.Time       // 주문 생성 시간
}

// VenuePosition은 거래소가 보고하는 포지션입니다
type VenuePosition struct {
	Symbol        string          // 심볼
	Side          Side            // 롱/숏
	Quantity      decimal.Decimal // 절대 수량
	EntryPrice    decimal.Decimal // 평균 진입가
	MarkPrice     decimal.Decimal // 마크 가격
	UnrealizedPnL decimal.Decimal // 미실현 손익
	Leverage      int             // 레버리지
}

// CloseResult는 거래소 청산 결과입니다
type CloseResult struct {
	Symbol      string
	OrderID     string
	Quantity    decimal.Decimal
	ExitPrice   decimal.Decimal
	RealizedPnL decimal.Decimal
}
