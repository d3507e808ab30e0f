package trading

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/sentinel/internal/monitoring"
)

// MaxReconcileFailures는 자동 거래 중지까지 허용하는 연속 조정 실패 횟수입니다
const MaxReconcileFailures = 3

const autoHaltReason = "거래소 상태 조회가 연속으로 실패했습니다"

// ReconcileTask는 주기적으로 거래소 상태를 반영하는 스케줄러 작업입니다.
// 연속 실패가 MaxReconcileFailures에 도달하면 신규 진입을 중지하고,
// 자동으로 중지한 경우에만 다음 성공 시 재개합니다.
type ReconcileTask struct {
	engine     *Engine
	mu         sync.Mutex
	failures   int
	autoHalted bool
	logger     *logrus.Entry
}

// NewReconcileTask는 새로운 조정 작업을 생성합니다
func NewReconcileTask(engine *Engine) *ReconcileTask {
	return &ReconcileTask{
		engine: engine,
		logger: engine.logger.WithField("task", "reconcile"),
	}
}

// Execute는 조정을 한 번 실행합니다
func (t *ReconcileTask) Execute(ctx context.Context) error {
	err := t.engine.tracker.Reconcile(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		monitoring.RecordReconcileFailure()
		t.failures++
		t.logger.WithError(err).WithField("failures", t.failures).Warn("거래소 상태 조정 실패")

		acct := t.engine.guard.Snapshot()
		if t.failures >= MaxReconcileFailures && !acct.Halted {
			t.autoHalted = true
			t.engine.Halt(fmt.Sprintf("%s (%d회)", autoHaltReason, t.failures))
		}
		return err
	}

	t.failures = 0
	if t.autoHalted {
		t.autoHalted = false
		t.engine.Resume()
	}
	t.engine.updateGauges()
	return nil
}

// Failures는 현재 연속 실패 횟수를 반환합니다
func (t *ReconcileTask) Failures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures
}
