// Package validation은 거래 시그널의 기본 유효성을 검사합니다.
package validation

import (
	"fmt"

	"github.com/assist-by/sentinel/internal/config"
	"github.com/assist-by/sentinel/internal/domain"
)

// Reason은 시그널 거절 사유입니다
type Reason string

const (
	LowConfidence   Reason = "LowConfidence"
	InvalidPrice    Reason = "InvalidPrice"
	InvalidStopLoss Reason = "InvalidStopLoss"
	InvalidSymbol   Reason = "InvalidSymbol"
)

// Rejection은 유효성 검사에서 거절된 시그널을 나타냅니다
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("시그널 거절 (%s): %s", r.Reason, r.Detail)
}

// Validate는 시그널을 순서대로 검사하고 첫 번째 실패에서 *Rejection을 반환합니다.
// 신뢰도, 진입가, 손절가, 심볼 순으로 확인하며 부수 효과는 없습니다.
func Validate(sig domain.Signal, _ domain.AccountState, cfg config.Risk) error {
	if sig.Confidence < cfg.MinConfidence {
		return &Rejection{
			Reason: LowConfidence,
			Detail: fmt.Sprintf("신뢰도 %.4f < 최소 %.4f", sig.Confidence, cfg.MinConfidence),
		}
	}

	if !sig.EntryPrice.IsPositive() {
		return &Rejection{
			Reason: InvalidPrice,
			Detail: fmt.Sprintf("진입가는 0보다 커야 합니다: %s", sig.EntryPrice),
		}
	}

	if sig.StopLoss != nil && sig.StopLoss.Equal(sig.EntryPrice) {
		return &Rejection{
			Reason: InvalidStopLoss,
			Detail: fmt.Sprintf("손절가가 진입가와 같습니다: %s", sig.StopLoss),
		}
	}

	if sig.Symbol == "" {
		return &Rejection{Reason: InvalidSymbol, Detail: "심볼이 비어 있습니다"}
	}

	return nil
}
