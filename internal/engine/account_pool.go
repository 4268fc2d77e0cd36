package engine

import (
	"errors"
	"sort"
	"sync"
	"time"

	"lookup_engine/internal/model"
)

var (
	// ErrNoAccount 当前没有可用账号（都在忙/冷却/限流保留中），稍后重试即可。
	ErrNoAccount = errors.New("no account available")
	// ErrPoolExhausted 所有账号都已被封禁，本次运行无法继续。
	ErrPoolExhausted = errors.New("account pool exhausted")
)

type poolAccount struct {
	model.Account
	busy        bool
	holdUntilMs int64
	lastUsedMs  int64
}

// AccountPool 管理一组有凭据的账号：使用计数、冷却与封禁状态。
// 所有状态变更都走 Acquire/Release，没有隐藏的全局状态。
type AccountPool struct {
	mu sync.Mutex

	rotationThreshold int
	coolingPeriod     time.Duration

	accounts []*poolAccount

	now func() time.Time
}

func NewAccountPool(accounts []model.Account, rotationThreshold int, coolingPeriod time.Duration) *AccountPool {
	if rotationThreshold <= 0 {
		rotationThreshold = 200
	}
	if coolingPeriod <= 0 {
		coolingPeriod = 15 * time.Minute
	}
	p := &AccountPool{
		rotationThreshold: rotationThreshold,
		coolingPeriod:     coolingPeriod,
		now:               time.Now,
	}
	for _, a := range accounts {
		if a.Status == "" {
			a.Status = model.AccountActive
		}
		p.accounts = append(p.accounts, &poolAccount{Account: a})
	}
	return p
}

// Acquire 选出当前可用、近期用量最少的账号并把它标记为占用。
// 没有空闲账号返回 ErrNoAccount；全部被封禁返回 ErrPoolExhausted。
func (p *AccountPool) Acquire() (model.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	nowMs := p.now().UnixMilli()
	p.wakeCooledLocked(nowMs)

	alive := 0
	var best *poolAccount
	for _, a := range p.accounts {
		if a.Status == model.AccountBanned {
			continue
		}
		alive++
		if a.Status != model.AccountActive || a.busy || a.holdUntilMs > nowMs {
			continue
		}
		if best == nil ||
			a.ChecksPerformed < best.ChecksPerformed ||
			(a.ChecksPerformed == best.ChecksPerformed && a.lastUsedMs < best.lastUsedMs) {
			best = a
		}
	}
	if alive == 0 {
		return model.Account{}, ErrPoolExhausted
	}
	if best == nil {
		return model.Account{}, ErrNoAccount
	}

	best.busy = true
	best.lastUsedMs = nowMs
	return best.Account, nil
}

// Release 归还账号并根据结果更新状态。封禁是永久的；达到轮换阈值的
// 账号进入冷却并清零计数；被限流的账号临时降权但不计入阈值。
func (p *AccountPool) Release(accountID string, outcome model.LookupOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a := p.findLocked(accountID)
	if a == nil {
		return
	}
	nowMs := p.now().UnixMilli()

	a.busy = false
	a.ChecksPerformed++
	a.UpdatedAt = p.now()

	switch outcome.Kind {
	case model.OutcomeBanned:
		a.Status = model.AccountBanned
		return
	case model.OutcomeRateLimited:
		if d := outcome.RetryAfter(); d > 0 {
			a.holdUntilMs = nowMs + d.Milliseconds()
		}
	}

	if a.Status == model.AccountActive && a.ChecksPerformed >= p.rotationThreshold {
		a.Status = model.AccountCooling
		a.CooldownUntilMs = nowMs + p.coolingPeriod.Milliseconds()
		a.ChecksPerformed = 0
	}
}

// Cancel 归还一个没有实际发出请求的账号，不计使用次数。
func (p *AccountPool) Cancel(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a := p.findLocked(accountID); a != nil {
		a.busy = false
	}
}

// NextWakeMs 返回最早一个会重新变为可用的时刻（冷却或限流保留到期），
// 没有这样的时刻时返回 0。
func (p *AccountPool) NextWakeMs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var wake int64
	for _, a := range p.accounts {
		if a.Status == model.AccountBanned {
			continue
		}
		var at int64
		if a.Status == model.AccountCooling {
			at = a.CooldownUntilMs
		} else if a.holdUntilMs > 0 {
			at = a.holdUntilMs
		}
		if at > 0 && (wake == 0 || at < wake) {
			wake = at
		}
	}
	return wake
}

// Snapshot 返回诊断视图；在锁内拷贝，读不到半更新状态。
func (p *AccountPool) Snapshot() []model.AccountState {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.AccountState, 0, len(p.accounts))
	for _, a := range p.accounts {
		out = append(out, model.AccountState{
			AccountID:       a.ID,
			Label:           a.Label,
			Status:          a.Status,
			ChecksPerformed: a.ChecksPerformed,
			CooldownUntilMs: a.CooldownUntilMs,
			HoldUntilMs:     a.holdUntilMs,
			InFlight:        a.busy,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// Accounts 返回账号当前状态的拷贝，用于落库。
func (p *AccountPool) Accounts() []model.Account {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.Account, 0, len(p.accounts))
	for _, a := range p.accounts {
		out = append(out, a.Account)
	}
	return out
}

func (p *AccountPool) wakeCooledLocked(nowMs int64) {
	for _, a := range p.accounts {
		if a.Status == model.AccountCooling && a.CooldownUntilMs > 0 && a.CooldownUntilMs <= nowMs {
			a.Status = model.AccountActive
			a.CooldownUntilMs = 0
		}
		if a.holdUntilMs > 0 && a.holdUntilMs <= nowMs {
			a.holdUntilMs = 0
		}
	}
}

func (p *AccountPool) findLocked(accountID string) *poolAccount {
	for _, a := range p.accounts {
		if a.ID == accountID {
			return a
		}
	}
	return nil
}
