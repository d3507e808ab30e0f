// Package report는 성과 지표와 거래 이력을 터미널 표와 엑셀 파일로 출력합니다.
package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/assist-by/sentinel/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// RenderPerformance는 성과 지표 표를 출력합니다
func RenderPerformance(w io.Writer, m domain.PerformanceMetrics) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("PERFORMANCE")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📊 총 거래", m.TotalTrades},
		{"✅ 수익 거래", m.WinningTrades},
		{"❌ 손실 거래", m.LosingTrades},
		{"🎯 승률", fmt.Sprintf("%.2f%%", m.WinRate)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"💰 총 손익", "$" + m.TotalPnL.StringFixed(2)},
		{"📈 총 이익", "$" + m.GrossProfit.StringFixed(2)},
		{"📉 총 손실", "$" + m.GrossLoss.StringFixed(2)},
		{"⚖️ 프로핏 팩터", m.ProfitFactor.StringFixed(2)},
		{"➕ 평균 이익", "$" + m.AvgWin.StringFixed(2)},
		{"➖ 평균 손실", "$" + m.AvgLoss.StringFixed(2)},
		{"🔻 최대 낙폭", "$" + m.MaxDrawdown.StringFixed(2)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 14, Align: text.AlignRight},
	})
	t.Render()
}

// RenderTrades는 거래 이력 표를 출력합니다
func RenderTrades(w io.Writer, records []domain.TradeRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("TRADES")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"시각", "심볼", "방향", "상태", "수량", "진입가", "청산가", "실현 손익", "사유"})

	for _, rec := range records {
		at := rec.OpenedAt
		exit := "-"
		pnl := "-"
		if rec.ClosedAt != nil {
			at = *rec.ClosedAt
			exit = rec.ExitPrice.String()
			pnl = rec.RealizedPnL.StringFixed(2)
		}
		reason := rec.Reason
		if rec.Status == domain.StatusDegraded && len(rec.Warnings) > 0 {
			reason = rec.Warnings[0]
		}
		t.AppendRow(table.Row{
			at.UTC().Format(timeLayout), rec.Symbol, rec.Side, rec.Status,
			rec.Quantity.String(), rec.EntryPrice.String(), exit, pnl, reason,
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, WidthMax: 40},
	})
	t.Render()
}

// RenderClosures는 일괄 청산 결과 표를 출력합니다
func RenderClosures(w io.Writer, results []domain.ClosureResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("CLOSE ALL")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"심볼", "결과", "실현 손익", "에러"})
	for _, r := range results {
		t.AppendRow(table.Row{r.Symbol, r.Status, r.RealizedPnL.StringFixed(2), r.Error})
	}
	t.Render()
}
