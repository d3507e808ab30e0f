package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/exchange"
)

const quoteAsset = "USDT"

// GetAccountBalance는 USDT 지갑 잔고를 조회합니다
func (c *Client) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/account", nil, true)
	if err != nil {
		return decimal.Zero, exchange.NewVenueError("get_balance", "", err)
	}

	var result struct {
		Assets []struct {
			Asset            string          `json:"asset"`
			WalletBalance    decimal.Decimal `json:"walletBalance"`
			AvailableBalance decimal.Decimal `json:"availableBalance"`
		} `json:"assets"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return decimal.Zero, exchange.NewVenueError("get_balance", "", fmt.Errorf("응답 파싱 실패: %w", err))
	}

	for _, asset := range result.Assets {
		if asset.Asset == quoteAsset {
			return asset.WalletBalance, nil
		}
	}

	return decimal.Zero, nil
}

type positionRisk struct {
	Symbol           string          `json:"symbol"`
	PositionAmt      decimal.Decimal `json:"positionAmt"`
	EntryPrice       decimal.Decimal `json:"entryPrice"`
	MarkPrice        decimal.Decimal `json:"markPrice"`
	UnrealizedProfit decimal.Decimal `json:"unRealizedProfit"`
	Leverage         int             `json:"leverage,string"`
	PositionSide     string          `json:"positionSide"`
}

func (c *Client) positionRisk(ctx context.Context, symbol string) ([]positionRisk, error) {
	params := url.Values{}
	if symbol != "" {
		params.Add("symbol", symbol)
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", params, true)
	if err != nil {
		return nil, err
	}

	var positions []positionRisk
	if err := json.Unmarshal(resp, &positions); err != nil {
		return nil, fmt.Errorf("포지션 데이터 파싱 실패: %w", err)
	}
	return positions, nil
}

// GetOpenPositions는 현재 열린 포지션을 조회합니다
func (c *Client) GetOpenPositions(ctx context.Context) ([]domain.VenuePosition, error) {
	raw, err := c.positionRisk(ctx, "")
	if err != nil {
		return nil, exchange.NewVenueError("get_positions", "", err)
	}

	// 활성 포지션만 필터링 (수량이 0이 아닌 포지션)
	var positions []domain.VenuePosition
	for _, p := range raw {
		if p.PositionAmt.IsZero() {
			continue
		}
		positions = append(positions, toVenuePosition(p))
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
	return positions, nil
}

func toVenuePosition(p positionRisk) domain.VenuePosition {
	side := domain.Long
	if p.PositionAmt.IsNegative() {
		side = domain.Short
	}
	return domain.VenuePosition{
		Symbol:        p.Symbol,
		Side:          side,
		Quantity:      p.PositionAmt.Abs(),
		EntryPrice:    p.EntryPrice,
		MarkPrice:     p.MarkPrice,
		UnrealizedPnL: p.UnrealizedProfit,
		Leverage:      p.Leverage,
	}
}
