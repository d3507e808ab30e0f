// Package exchangetest는 exchange.Gateway의 testify 목 구현을 제공합니다.
package exchangetest

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/exchange"
)

// MockGateway는 테스트용 거래소 게이트웨이입니다
type MockGateway struct {
	mock.Mock
}

var _ exchange.Gateway = (*MockGateway)(nil)

func (m *MockGateway) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockGateway) GetOpenPositions(ctx context.Context) ([]domain.VenuePosition, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]domain.VenuePosition), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return m.Called(ctx, symbol, leverage).Error(0)
}

func (m *MockGateway) PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderResult, error) {
	args := m.Called(ctx, order)
	if v := args.Get(0); v != nil {
		return v.(*domain.OrderResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) ClosePosition(ctx context.Context, symbol string, quantity *decimal.Decimal) (*domain.CloseResult, error) {
	args := m.Called(ctx, symbol, quantity)
	if v := args.Get(0); v != nil {
		return v.(*domain.CloseResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// OrderOfType은 주문 유형으로 PlaceOrder 호출을 매칭합니다
func OrderOfType(t domain.OrderType) interface{} {
	return mock.MatchedBy(func(o domain.OrderRequest) bool { return o.Type == t })
}

// OrderFor는 심볼과 주문 유형으로 PlaceOrder 호출을 매칭합니다
func OrderFor(symbol string, t domain.OrderType) interface{} {
	return mock.MatchedBy(func(o domain.OrderRequest) bool {
		return o.Symbol == symbol && o.Type == t
	})
}
