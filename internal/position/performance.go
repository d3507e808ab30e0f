package position

import (
	"github.com/shopspring/decimal"

	"github.com/assist-by/sentinel/internal/domain"
)

// CalculatePerformance는 거래 이력에서 CLOSED 기록만으로 성과 지표를 계산합니다
func CalculatePerformance(history []domain.TradeRecord) domain.PerformanceMetrics {
	m := domain.PerformanceMetrics{
		ProfitFactor: decimal.Zero,
		TotalPnL:     decimal.Zero,
		GrossProfit:  decimal.Zero,
		GrossLoss:    decimal.Zero,
		AvgWin:       decimal.Zero,
		AvgLoss:      decimal.Zero,
		MaxDrawdown:  decimal.Zero,
	}

	// 누적 손익 곡선의 고점 대비 최대 낙폭
	equity := decimal.Zero
	peak := decimal.Zero

	for _, rec := range history {
		if rec.Status != domain.StatusClosed {
			continue
		}
		m.TotalTrades++

		// 승/패 계산
		switch {
		case rec.RealizedPnL.IsPositive():
			m.WinningTrades++
			m.GrossProfit = m.GrossProfit.Add(rec.RealizedPnL)
		case rec.RealizedPnL.IsNegative():
			m.LosingTrades++
			m.GrossLoss = m.GrossLoss.Add(rec.RealizedPnL.Abs())
		}

		equity = equity.Add(rec.RealizedPnL)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd := peak.Sub(equity); dd.GreaterThan(m.MaxDrawdown) {
			m.MaxDrawdown = dd
		}
	}

	if m.TotalTrades == 0 {
		return m
	}

	m.TotalPnL = m.GrossProfit.Sub(m.GrossLoss)

	// 승률 계산
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100

	// 프로핏 팩터 계산
	if m.GrossLoss.IsPositive() {
		m.ProfitFactor = m.GrossProfit.Div(m.GrossLoss).Round(4)
	} else {
		m.ProfitFactor = m.GrossProfit // 손실이 없는 경우
	}

	// 평균 승/패 금액 계산
	if m.WinningTrades > 0 {
		m.AvgWin = m.GrossProfit.Div(decimal.NewFromInt(int64(m.WinningTrades)))
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = m.GrossLoss.Div(decimal.NewFromInt(int64(m.LosingTrades)))
	}

	return m
}
