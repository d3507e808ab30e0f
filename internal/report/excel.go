package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/assist-by/sentinel/internal/domain"
)

const (
	tradesSheet  = "Trades"
	summarySheet = "Summary"
)

// ExportXLSX는 거래 이력과 성과 지표를 엑셀 파일로 저장합니다
func ExportXLSX(path string, records []domain.TradeRecord, m domain.PerformanceMetrics) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("디렉터리 생성 실패 %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	if err := fx.SetSheetName(fx.GetSheetName(0), tradesSheet); err != nil {
		return err
	}
	if _, err := fx.NewSheet(summarySheet); err != nil {
		return err
	}

	header, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"366092"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("스타일 생성 실패: %w", err)
	}

	if err := writeTrades(fx, records, header); err != nil {
		return err
	}
	if err := writeSummary(fx, m, header); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func writeTrades(fx *excelize.File, records []domain.TradeRecord, header int) error {
	headers := []interface{}{"Record ID", "Position ID", "Symbol", "Side", "Status", "Quantity",
		"Entry Price", "Exit Price", "Realized PnL", "Reason", "Warnings", "Opened At", "Closed At"}
	if err := fx.SetSheetRow(tradesSheet, "A1", &headers); err != nil {
		return err
	}
	if err := fx.SetCellStyle(tradesSheet, "A1", "M1", header); err != nil {
		return err
	}

	for i, rec := range records {
		closedAt := ""
		if rec.ClosedAt != nil {
			closedAt = rec.ClosedAt.UTC().Format(timeLayout)
		}
		qty, _ := rec.Quantity.Float64()
		entry, _ := rec.EntryPrice.Float64()
		exit, _ := rec.ExitPrice.Float64()
		pnl, _ := rec.RealizedPnL.Float64()

		row := []interface{}{rec.ID, rec.PositionID, rec.Symbol, string(rec.Side), string(rec.Status),
			qty, entry, exit, pnl, rec.Reason, strings.Join(rec.Warnings, "; "),
			rec.OpenedAt.UTC().Format(timeLayout), closedAt}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(tradesSheet, cell, &row); err != nil {
			return err
		}
	}

	if err := fx.SetColWidth(tradesSheet, "A", "B", 38); err != nil {
		return err
	}
	return fx.SetColWidth(tradesSheet, "C", "M", 14)
}

func writeSummary(fx *excelize.File, m domain.PerformanceMetrics, header int) error {
	pf, _ := m.ProfitFactor.Float64()
	total, _ := m.TotalPnL.Float64()
	gp, _ := m.GrossProfit.Float64()
	gl, _ := m.GrossLoss.Float64()
	avgWin, _ := m.AvgWin.Float64()
	avgLoss, _ := m.AvgLoss.Float64()
	dd, _ := m.MaxDrawdown.Float64()

	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Total Trades", m.TotalTrades},
		{"Winning Trades", m.WinningTrades},
		{"Losing Trades", m.LosingTrades},
		{"Win Rate (%)", m.WinRate},
		{"Profit Factor", pf},
		{"Total PnL", total},
		{"Gross Profit", gp},
		{"Gross Loss", gl},
		{"Average Win", avgWin},
		{"Average Loss", avgLoss},
		{"Max Drawdown", dd},
	}
	for i, row := range rows {
		row := row
		if err := fx.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return err
		}
	}
	if err := fx.SetCellStyle(summarySheet, "A1", "B1", header); err != nil {
		return err
	}
	return fx.SetColWidth(summarySheet, "A", "A", 18)
}
