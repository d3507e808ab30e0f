package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountState는 리스크 가드가 소유하는 계정 상태입니다
type AccountState struct {
	Balance    decimal.Decimal `json:"balance"`              // USDT 지갑 잔고
	DailyPnL   decimal.Decimal `json:"dailyPnl"`             // 당일 실현 손익 (UTC 기준)
	Day        time.Time       `json:"day"`                  // DailyPnL이 속한 UTC 날짜
	Halted     bool            `json:"halted"`               // 신규 진입 중지 여부
	HaltReason string          `json:"haltReason,omitempty"` // 중지 사유
}

// Position은 심볼당 하나만 존재하는 열린 포지션입니다
type Position struct {
	ID                string           `json:"id"`
	SignalID          string           `json:"signalId,omitempty"`
	Symbol            string           `json:"symbol"`
	Side              Side             `json:"side"`
	Quantity          decimal.Decimal  `json:"quantity"`
	EntryPrice        decimal.Decimal  `json:"entryPrice"`
	Leverage          int              `json:"leverage"`
	StopLoss          *decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit        *decimal.Decimal `json:"takeProfit,omitempty"`
	EntryOrderID      string           `json:"entryOrderId,omitempty"`
	StopOrderID       string           `json:"stopOrderId,omitempty"`
	TakeProfitOrderID string           `json:"takeProfitOrderId,omitempty"`
	Status            TradeStatus      `json:"status"`
	Warnings          []string         `json:"warnings,omitempty"`
	Strategy          string           `json:"strategy,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// Degraded는 보호 주문 중 하나 이상이 누락되었는지 반환합니다
func (p Position) Degraded() bool {
	return p.Status == StatusDegraded
}

// TradeRecord는 추가만 가능한 거래 이력 항목입니다
type TradeRecord struct {
	ID                string          `json:"id"`
	PositionID        string          `json:"positionId"`
	SignalID          string          `json:"signalId,omitempty"`
	Symbol            string          `json:"symbol"`
	Side              Side            `json:"side"`
	Quantity          decimal.Decimal `json:"quantity"`
	EntryPrice        decimal.Decimal `json:"entryPrice"`
	Leverage          int             `json:"leverage,omitempty"`
	ExitPrice         decimal.Decimal `json:"exitPrice"`
	RealizedPnL       decimal.Decimal `json:"realizedPnl"`
	EntryOrderID      string          `json:"entryOrderId,omitempty"`
	StopOrderID       string          `json:"stopOrderId,omitempty"`
	TakeProfitOrderID string          `json:"takeProfitOrderId,omitempty"`
	Status            TradeStatus     `json:"status"`
	Reason            string          `json:"reason,omitempty"`
	Warnings          []string        `json:"warnings,omitempty"`
	Strategy          string          `json:"strategy,omitempty"`
	OpenedAt          time.Time       `json:"openedAt"`
	ClosedAt          *time.Time      `json:"closedAt,omitempty"`
}

// ClosureResult는 심볼별 청산 결과입니다
type ClosureResult struct {
	Symbol      string          `json:"symbol"`
	Status      ClosureStatus   `json:"status"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
	Error       string          `json:"error,omitempty"`
}

// PerformanceMetrics는 CLOSED 거래 기록으로부터 계산한 성과 지표입니다
type PerformanceMetrics struct {
	TotalTrades   int             `json:"totalTrades"`
	WinningTrades int             `json:"winningTrades"`
	LosingTrades  int             `json:"losingTrades"`
	WinRate       float64         `json:"winRate"` // 퍼센트
	ProfitFactor  decimal.Decimal `json:"profitFactor"`
	TotalPnL      decimal.Decimal `json:"totalPnl"`
	GrossProfit   decimal.Decimal `json:"grossProfit"`
	GrossLoss     decimal.Decimal `json:"grossLoss"`
	AvgWin        decimal.Decimal `json:"avgWin"`
	AvgLoss       decimal.Decimal `json:"avgLoss"`
	MaxDrawdown   decimal.Decimal `json:"maxDrawdown"`
}
