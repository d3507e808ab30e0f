// Package monitoring은 실행 파이프라인의 프로메테우스 지표를 정의합니다.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// 실행 지표
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_executions_total",
			Help: "Signals processed by terminal state",
		},
		[]string{"state", "reason"},
	)

	degradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_degraded_executions_total",
			Help: "Executions registered without every protective order",
		},
		[]string{"symbol"},
	)

	executionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_execution_duration_seconds",
			Help:    "Time from submission to terminal state",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	// 거래소 지표
	venueErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_venue_errors_total",
			Help: "Failed venue calls by operation",
		},
		[]string{"op"},
	)

	// 계정 지표
	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_open_positions",
			Help: "Number of tracked open positions",
		},
	)

	dailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_daily_pnl",
			Help: "Realized P&L of the current UTC day",
		},
	)

	tradingHalted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_trading_halted",
			Help: "1 when new entries are halted",
		},
	)

	reconcileFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_reconcile_failures_total",
			Help: "Reconciliation cycles that could not read the venue",
		},
	)
)

func init() {
	prometheus.MustRegister(executionsTotal)
	prometheus.MustRegister(degradedTotal)
	prometheus.MustRegister(executionLatency)
	prometheus.MustRegister(venueErrorsTotal)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(dailyPnL)
	prometheus.MustRegister(tradingHalted)
	prometheus.MustRegister(reconcileFailures)
}

// Handler는 /metrics 엔드포인트 핸들러를 반환합니다
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordExecution은 시그널 처리 결과와 소요 시간을 기록합니다
func RecordExecution(state, reason string, elapsed time.Duration) {
	executionsTotal.WithLabelValues(state, reason).Inc()
	executionLatency.WithLabelValues(state).Observe(elapsed.Seconds())
}

// RecordDegraded는 보호 주문이 누락된 실행을 기록합니다
func RecordDegraded(symbol string) {
	degradedTotal.WithLabelValues(symbol).Inc()
}

// RecordVenueError는 거래소 호출 실패를 기록합니다
func RecordVenueError(op string) {
	venueErrorsTotal.WithLabelValues(op).Inc()
}

// RecordReconcileFailure는 조정 실패를 기록합니다
func RecordReconcileFailure() {
	reconcileFailures.Inc()
}

// SetOpenPositions는 열린 포지션 수를 갱신합니다
func SetOpenPositions(n int) {
	openPositions.Set(float64(n))
}

// SetDailyPnL은 당일 실현 손익을 갱신합니다
func SetDailyPnL(pnl float64) {
	dailyPnL.Set(pnl)
}

// SetHalted는 거래 중지 상태를 갱신합니다
func SetHalted(halted bool) {
	if halted {
		tradingHalted.Set(1)
		return
	}
	tradingHalted.Set(0)
}
