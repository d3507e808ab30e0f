// Package trading은 시그널을 검증, 승인, 수량 계산, 주문 실행, 등록까지 이어지는 실행 파이프라인입니다.
package trading

import (
	"fmt"

	"github.com/assist-by/sentinel/internal/domain"
)

// State는 시그널 처리 상태입니다
type State string

const (
	Validating        State = "Validating"
	Authorizing       State = "Authorizing"
	Sizing            State = "Sizing"
	EnteringOrder     State = "EnteringOrder"
	PlacingStop       State = "PlacingStop"
	PlacingTakeProfit State = "PlacingTakeProfit"
	Registered        State = "Registered"

	// 종료 실패 상태
	Rejected    State = "Rejected"
	Blocked     State = "Blocked"
	EntryFailed State = "EntryFailed"
)

// Terminal은 더 이상 전이가 없는 상태인지 반환합니다
func (s State) Terminal() bool {
	switch s {
	case Registered, Rejected, Blocked, EntryFailed:
		return true
	}
	return false
}

// ExecutionError는 거래 실행 중 발생한 오류를 나타내는 구조체입니다.
type ExecutionError struct {
	Phase State
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("매매 실행 실패 (%s): %v", e.Phase, e.Err)
}

// Unwrap은 내부 에러를 반환합니다
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ExecutionResult는 진입이 체결된 실행의 결과입니다
type ExecutionResult struct {
	Position domain.Position
	Warnings []string
	Degraded bool
}

// ExecutionReport는 시그널 한 건의 처리 결과입니다 (JSON 출력 형식)
type ExecutionReport struct {
	SignalID string           `json:"signalId"`
	Symbol   string           `json:"symbol"`
	Success  bool             `json:"success"`
	State    State            `json:"state"`
	Reason   string           `json:"reason,omitempty"`
	Path     []State          `json:"path"`
	Position *domain.Position `json:"position,omitempty"`
	Warnings []string         `json:"warnings"`
	Error    string           `json:"error,omitempty"`
}
