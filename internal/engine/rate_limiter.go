package engine

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 只计算需要等待的时长，从不自己 sleep。调用方在 Gate 返回后
// 必须按该时长延迟并发出请求：全局令牌在 Gate 里就被预定了。
type RateLimiter struct {
	mu sync.Mutex

	minDelay time.Duration
	global   *rate.Limiter

	lastRequest map[string]time.Time

	now func() time.Time
}

func NewRateLimiter(minDelay time.Duration, perMinute, burst int) *RateLimiter {
	if minDelay <= 0 {
		minDelay = 20 * time.Second
	}
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		minDelay:    minDelay,
		global:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
		lastRequest: make(map[string]time.Time),
		now:         time.Now,
	}
}

// Gate 返回该账号下一次请求前需要等待的时长（可能为 0）。
// 同时记录本次请求的计划发出时刻，作为下一次间隔计算的基准。
func (l *RateLimiter) Gate(accountID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	wait := time.Duration(0)
	if last, ok := l.lastRequest[accountID]; ok {
		if d := l.minDelay - now.Sub(last); d > wait {
			wait = d
		}
	}

	r := l.global.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > wait {
		wait = d
	}

	l.lastRequest[accountID] = now.Add(wait)
	return wait
}
