package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/exchange"
)

type orderResponse struct {
	OrderID       int64           `json:"orderId"`
	Symbol        string          `json:"symbol"`
	Status        string          `json:"status"`
	ClientOrderID string          `json:"clientOrderId"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	UpdateTime    int64           `json:"updateTime"`
}

func (o orderResponse) toResult() *domain.OrderResult {
	return &domain.OrderResult{
		OrderID:       strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Status:        o.Status,
		AvgPrice:      o.AvgPrice,
		ExecutedQty:   o.ExecutedQty,
		CreateTime:    time.UnixMilli(o.UpdateTime),
	}
}

func orderParams(order domain.OrderRequest) url.Values {
	params := url.Values{}
	params.Add("symbol", order.Symbol)
	params.Add("side", string(order.Side))
	params.Add("type", string(order.Type))
	params.Add("quantity", order.Quantity.String())

	if order.StopPrice.IsPositive() {
		params.Add("stopPrice", order.StopPrice.String())
		params.Add("workingType", "MARK_PRICE")
	}
	if order.ReduceOnly {
		params.Add("reduceOnly", "true")
	}
	// 클라이언트 주문 ID가 설정되었으면 추가
	if order.ClientOrderID != "" {
		params.Add("newClientOrderId", order.ClientOrderID)
	}
	params.Add("newOrderRespType", "RESULT")

	return params
}

// PlaceOrder는 새로운 주문을 생성합니다.
// 재시도 가능한 실패 후에는 먼저 클라이언트 주문 ID로 거래소를 조회하여,
// 이전 요청이 이미 접수되었다면 다시 주문하지 않고 그 결과를 반환합니다.
func (c *Client) PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderResult, error) {
	params := orderParams(order)
	log := c.logger.WithFields(map[string]interface{}{
		"symbol":          order.Symbol,
		"type":            order.Type,
		"client_order_id": order.ClientOrderID,
	})

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				lastErr = err
				break
			}

			existing, err := c.QueryOrder(ctx, order.Symbol, order.ClientOrderID)
			if err == nil {
				log.WithField("order_id", existing.OrderID).Info("이전 주문 요청이 이미 접수되어 있어 재주문하지 않습니다")
				return existing, nil
			}
			if !hasCode(err, domain.ErrUnknownOrder) {
				// 주문 존재 여부를 알 수 없으면 중복 위험 때문에 재주문하지 않음
				lastErr = err
				log.WithError(err).Warn("주문 상태 조회 실패")
				continue
			}
		}

		resp, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true)
		if err == nil {
			var result orderResponse
			if err := json.Unmarshal(resp, &result); err != nil {
				return nil, exchange.NewVenueError("place_order", order.Symbol, fmt.Errorf("주문 응답 파싱 실패: %w", err))
			}
			return result.toResult(), nil
		}

		lastErr = err
		if !IsRetryableError(err) || order.ClientOrderID == "" || ctx.Err() != nil {
			break
		}
		log.WithError(err).WithField("attempt", attempt+1).Warn("주문 요청 실패, 재시도합니다")
	}

	return nil, exchange.NewVenueError("place_order", order.Symbol,
		fmt.Errorf("주문 실행 실패 [타입: %s, 수량: %s]: %w", order.Type, order.Quantity, lastErr))
}

// backoff는 attempt 번째 재시도 전까지 지수적으로 대기합니다
func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.retryBaseDelay << (attempt - 1)
	if delay > c.retryMaxDelay || delay <= 0 {
		delay = c.retryMaxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// QueryOrder는 클라이언트 주문 ID로 주문을 조회합니다
func (c *Client) QueryOrder(ctx context.Context, symbol, clientOrderID string) (*domain.OrderResult, error) {
	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("origClientOrderId", clientOrderID)

	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/order", params, true)
	if err != nil {
		return nil, err
	}

	var result orderResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("주문 조회 응답 파싱 실패: %w", err)
	}
	return result.toResult(), nil
}

// CancelAllOrders는 심볼의 모든 열린 주문을 취소합니다
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Add("symbol", symbol)

	if _, err := c.doRequest(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params, true); err != nil {
		return exchange.NewVenueError("cancel_orders", symbol, err)
	}
	return nil
}

// SetLeverage는 레버리지를 설정합니다
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("leverage", strconv.Itoa(leverage))

	if _, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/leverage", params, true); err != nil {
		return exchange.NewVenueError("set_leverage", symbol, err)
	}
	return nil
}

// EnsureOneWayMode는 계정을 단방향 포지션 모드로 설정합니다
func (c *Client) EnsureOneWayMode(ctx context.Context) error {
	params := url.Values{}
	params.Add("dualSidePosition", "false")

	_, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/positionSide/dual", params, true)
	if err != nil {
		if hasCode(err, domain.ErrPositionModeNoChange) {
			// 이미 원하는 모드로 설정된 경우, 에러가 아님
			return nil
		}
		return exchange.NewVenueError("set_position_mode", "", err)
	}
	return nil
}

// ClosePosition은 reduce-only 시장가 주문으로 포지션을 청산한 뒤 남은 보호 주문을 취소합니다.
// 실현 손익은 청산 직전 포지션의 미실현 손익을 사용합니다.
func (c *Client) ClosePosition(ctx context.Context, symbol string, quantity *decimal.Decimal) (*domain.CloseResult, error) {
	raw, err := c.positionRisk(ctx, symbol)
	if err != nil {
		return nil, exchange.NewVenueError("close_position", symbol, err)
	}

	var current *domain.VenuePosition
	for _, p := range raw {
		if p.Symbol == symbol && !p.PositionAmt.IsZero() {
			vp := toVenuePosition(p)
			current = &vp
			break
		}
	}
	if current == nil {
		return nil, exchange.NewVenueError("close_position", symbol, exchange.ErrNoPosition)
	}

	qty := current.Quantity
	if quantity != nil && quantity.IsPositive() && quantity.LessThan(qty) {
		qty = *quantity
	}

	// 청산이 실패해도 손절/익절 주문은 그대로 남아 있어야 합니다
	res, err := c.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:        symbol,
		Side:          current.Side.ExitOrderSide(),
		Type:          domain.Market,
		Quantity:      qty,
		ReduceOnly:    true,
		ClientOrderID: "cl-" + strings.ReplaceAll(uuid.NewString(), "-", ""),
	})
	if err != nil {
		return nil, err
	}

	// 전량 청산된 경우에만 남은 보호 주문을 정리
	if qty.Equal(current.Quantity) {
		if err := c.CancelAllOrders(ctx, symbol); err != nil {
			// reduce-only 주문이라 포지션이 없으면 체결되지 않음
			c.logger.WithError(err).WithField("symbol", symbol).Warn("청산 후 남은 주문 취소 실패")
		}
	}

	pnl := current.UnrealizedPnL
	if qty.LessThan(current.Quantity) {
		pnl = pnl.Mul(qty).Div(current.Quantity)
	}

	exitPrice := res.AvgPrice
	if !exitPrice.IsPositive() {
		exitPrice = current.MarkPrice
	}

	return &domain.CloseResult{
		Symbol:      symbol,
		OrderID:     res.OrderID,
		Quantity:    qty,
		ExitPrice:   exitPrice,
		RealizedPnL: pnl,
	}, nil
}
