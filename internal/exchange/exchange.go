package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/assist-by/sentinel/internal/domain"
)

// ErrNoPosition은 청산하려는 심볼에 거래소 포지션이 없을 때 반환됩니다
var ErrNoPosition = errors.New("거래소에 해당 심볼의 포지션이 없습니다")

// Gateway는 인증된 거래소 접근을 정의하는 인터페이스입니다
type Gateway interface {
	// GetAccountBalance는 USDT 지갑 잔고를 조회합니다
	GetAccountBalance(ctx context.Context) (decimal.Decimal, error)

	// GetOpenPositions는 수량이 0이 아닌 포지션 목록을 조회합니다
	GetOpenPositions(ctx context.Context) ([]domain.VenuePosition, error)

	// SetLeverage는 심볼의 레버리지를 설정합니다
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceOrder는 새로운 주문을 생성합니다
	PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderResult, error)

	// ClosePosition은 심볼의 포지션을 청산합니다. quantity가 nil이면 전체 청산합니다
	ClosePosition(ctx context.Context, symbol string, quantity *decimal.Decimal) (*domain.CloseResult, error)
}

// VenueError는 거래소 호출 실패를 나타냅니다 (네트워크, 타임아웃, 인증, 요청 제한 포함)
type VenueError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *VenueError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("거래소 에러 [%s, 작업: %s]: %v", e.Symbol, e.Op, e.Err)
	}
	return fmt.Sprintf("거래소 에러 [작업: %s]: %v", e.Op, e.Err)
}

// Unwrap은 내부 에러를 반환합니다
func (e *VenueError) Unwrap() error {
	return e.Err
}

// NewVenueError는 새로운 VenueError를 생성합니다
func NewVenueError(op, symbol string, err error) *VenueError {
	return &VenueError{Op: op, Symbol: symbol, Err: err}
}
