package binance

import (
	"context"
	"sync"
	"time"
)

// RateLimiter는 토큰 버킷 방식의 요청 제한기입니다
type RateLimiter struct {
	capacity   float64
	tokens     float64
	refillRate float64 // 초당 충전되는 토큰 수
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter는 per 기간 동안 limit개의 요청을 허용하는 제한기를 생성합니다
func NewRateLimiter(limit int, per time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RateLimiter{
		capacity:   float64(limit),
		tokens:     float64(limit),
		refillRate: float64(limit) / per.Seconds(),
		lastRefill: time.Now(),
	}
}

// Allow는 토큰 하나를 즉시 사용할 수 있으면 사용하고 true를 반환합니다
func (rl *RateLimiter) Allow() bool {
	_, ok := rl.reserve()
	return ok
}

// Wait는 토큰을 사용할 수 있을 때까지 대기합니다
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait, ok := rl.reserve()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve는 토큰을 하나 사용하거나, 불가능하면 다음 토큰까지의 대기 시간을 반환합니다
func (rl *RateLimiter) reserve() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.refillRate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}

	missing := 1 - rl.tokens
	return time.Duration(missing / rl.refillRate * float64(time.Second)), false
}
