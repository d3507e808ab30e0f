package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Signal은 외부 스코어링 엔진이 제안한 거래입니다.
// 수신 후에는 변경하지 않으며 한 번만 처리됩니다.
type Signal struct {
	ID         string           `json:"id,omitempty"`
	Symbol     string           `json:"symbol"`
	Side       Side             `json:"side"`
	Confidence float64          `json:"confidence"`
	EntryPrice decimal.Decimal  `json:"entryPrice"`
	StopLoss   *decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit *decimal.Decimal `json:"takeProfit,omitempty"`
	Leverage   *int             `json:"leverage,omitempty"`
	Strategy   string           `json:"strategy"`
	ReceivedAt time.Time        `json:"receivedAt"`
}

// ParseSignal은 JSON 시그널을 디코딩하고 정규화합니다.
// 알 수 없는 필드가 있거나 방향/레버리지가 잘못되면 에러를 반환합니다.
func ParseSignal(data []byte) (Signal, error) {
	var raw struct {
		ID         string           `json:"id"`
		Symbol     string           `json:"symbol"`
		Side       string           `json:"side"`
		Confidence float64          `json:"confidence"`
		EntryPrice decimal.Decimal  `json:"entryPrice"`
		StopLoss   *decimal.Decimal `json:"stopLoss"`
		TakeProfit *decimal.Decimal `json:"takeProfit"`
		Leverage   *int             `json:"leverage"`
		Strategy   string           `json:"strategy"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return Signal{}, fmt.Errorf("시그널 디코딩 실패: %w", err)
	}

	side, err := ParseSide(raw.Side)
	if err != nil {
		return Signal{}, err
	}

	if raw.Leverage != nil && *raw.Leverage <= 0 {
		return Signal{}, fmt.Errorf("레버리지는 양의 정수여야 합니다: %d", *raw.Leverage)
	}

	sig := Signal{
		ID:         raw.ID,
		Symbol:     strings.ToUpper(strings.TrimSpace(raw.Symbol)),
		Side:       side,
		Confidence: raw.Confidence,
		EntryPrice: raw.EntryPrice,
		StopLoss:   raw.StopLoss,
		TakeProfit: raw.TakeProfit,
		Leverage:   raw.Leverage,
		Strategy:   raw.Strategy,
		ReceivedAt: time.Now().UTC(),
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}

	return sig, nil
}
