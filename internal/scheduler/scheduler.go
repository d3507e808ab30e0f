// Package scheduler는 정해진 간격으로 작업을 반복 실행합니다.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Task는 스케줄러가 실행할 작업을 정의하는 인터페이스입니다
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc는 함수를 Task로 사용하기 위한 어댑터입니다
type TaskFunc func(ctx context.Context) error

// Execute는 f(ctx)를 호출합니다
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Scheduler는 정해진 간격마다 작업을 실행하는 스케줄러입니다
type Scheduler struct {
	interval time.Duration
	task     Task
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *logrus.Entry
}

// NewScheduler는 새로운 스케줄러를 생성합니다
func NewScheduler(interval time.Duration, task Task, logger *logrus.Entry) *Scheduler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{
		interval: interval,
		task:     task,
		stopCh:   make(chan struct{}),
		logger:   logger.WithField("component", "scheduler"),
	}
}

// nextRun은 간격 경계에 맞춘 다음 실행 시각을 계산합니다
func (s *Scheduler) nextRun(now time.Time) time.Time {
	return now.Truncate(s.interval).Add(s.interval)
}

// Start는 ctx가 끝나거나 Stop이 호출될 때까지 작업을 반복합니다.
// 작업이 실패해도 다음 주기에 다시 실행합니다.
func (s *Scheduler) Start(ctx context.Context) error {
	now := time.Now()
	next := s.nextRun(now)
	s.logger.Debugf("다음 실행까지 %v 대기 (다음 실행: %s)", next.Sub(now).Round(time.Second), next.Format("15:04:05"))

	timer := time.NewTimer(next.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.stopCh:
			return nil

		case <-timer.C:
			if err := s.task.Execute(ctx); err != nil {
				s.logger.WithError(err).Warn("작업 실행 실패")
			}

			now = time.Now()
			next = s.nextRun(now)
			s.logger.Debugf("다음 실행까지 %v 대기 (다음 실행: %s)", next.Sub(now).Round(time.Second), next.Format("15:04:05"))
			timer.Reset(next.Sub(now))
		}
	}
}

// Stop은 스케줄러를 중지합니다. 여러 번 호출해도 안전합니다
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
