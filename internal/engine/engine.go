package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lookup_engine/internal/directory"
	"lookup_engine/internal/logbus"
	"lookup_engine/internal/model"
	"lookup_engine/internal/notify"
	"lookup_engine/internal/sink"
	"lookup_engine/internal/store/sqlite"
)

type Options struct {
	Store    *sqlite.Store
	Client   directory.Client
	Bus      *logbus.Bus
	Sink     sink.Sink
	Notifier notify.Notifier
	Limits   Limits
}

// Engine 调度一次批量验证：待查标识 + 重试队列 → 账号池/限速闸门 →
// 目录查询 → 结果分类。状态只由调度循环这一个写者修改；工作协程只做
// 网络调用并把结果送回 done 通道。
type Engine struct {
	store    *sqlite.Store
	client   directory.Client
	bus      *logbus.Bus
	sink     sink.Sink
	notifier notify.Notifier

	limits Limits

	rr atomic.Uint64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	run     *model.RunState
	pool    *AccountPool
}

func New(opts Options) *Engine {
	return &Engine{
		store:    opts.Store,
		client:   opts.Client,
		bus:      opts.Bus,
		sink:     opts.Sink,
		notifier: opts.Notifier,
		limits:   opts.Limits.withDefaults(),
	}
}

// attemptDone 由工作协程送回调度循环的单次尝试结果。dispatched 表示请求
// 已经发往目录服务；取消发生在限速等待中时为 false。
type attemptDone struct {
	entry      model.RetryEntry
	accountID  string
	outcome    model.LookupOutcome
	canceled   bool
	dispatched bool
}

// Start 加载可用账号与未完成标识并启动调度循环。已在运行时直接返回。
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	fail := func(err error) error {
		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.mu.Unlock()
		cancel()
		return err
	}

	accounts, err := e.store.ListAccounts(ctx)
	if err != nil {
		return fail(err)
	}
	accounts = filterUsableAccounts(accounts)
	if len(accounts) == 0 {
		return fail(errors.New("no usable accounts in storage"))
	}
	identifiers, err := e.store.ListPendingIdentifiers(ctx)
	if err != nil {
		return fail(err)
	}
	if len(identifiers) == 0 {
		return fail(errors.New("no pending identifiers in storage"))
	}

	// API 改过的限额在这里生效，不用重启进程
	if overrides, ok, err := e.store.GetLimitsSettings(ctx); err == nil && ok {
		e.limits = e.limits.withOverrides(overrides)
	}

	pool := NewAccountPool(accounts, e.limits.RotationThreshold, e.limits.CoolingPeriod)
	limiter := NewRateLimiter(e.limits.MinDelay, e.limits.GlobalRatePerMinute, e.limits.GlobalBurst)

	e.mu.Lock()
	e.pool = pool
	e.run = &model.RunState{
		StartedAtMs: time.Now().UnixMilli(),
		Total:       len(identifiers),
		Pending:     len(identifiers),
	}
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Log("info", "引擎已启动", map[string]any{
			"client":      e.client.Name(),
			"accounts":    len(accounts),
			"identifiers": len(identifiers),
		})
	}

	e.wg.Add(1)
	go e.loop(runCtx, pool, limiter, identifiers)
	return nil
}

// Stop 取消新的派发并等在途请求完成。未完成的标识留在存储里，
// 下一次 Start 会接着处理（至少一次语义）。
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	wasRunning := e.running
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !wasRunning {
		return nil
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if e.bus != nil {
			e.bus.Log("info", "引擎已停止", nil)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) State() model.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := model.EngineState{Running: e.running}
	if e.run != nil {
		run := *e.run
		out.Run = &run
	}
	if e.pool != nil {
		out.Accounts = e.pool.Snapshot()
	}
	return out
}

func (e *Engine) loop(ctx context.Context, pool *AccountPool, limiter *RateLimiter, identifiers []string) {
	defer e.wg.Done()

	pending := make([]model.RetryEntry, 0, len(identifiers))
	for _, id := range identifiers {
		pending = append(pending, model.RetryEntry{Identifier: id})
	}
	rq := newRetryQueue()
	done := make(chan attemptDone, e.limits.MaxInFlight)
	inFlight := 0
	fatal := false

	for {
		canceled := ctx.Err() != nil
		if !fatal && !canceled {
			fatal = e.dispatchReady(ctx, pool, limiter, &pending, rq, &inFlight, done)
		}

		if inFlight == 0 && (fatal || canceled || (len(pending) == 0 && rq.Len() == 0)) {
			break
		}

		if fatal || canceled {
			// 不再派发，只等在途请求排空
			d := <-done
			inFlight--
			e.handleDone(ctx, d, pool, &pending, rq)
			e.publishRun(&pending, rq, inFlight)
			continue
		}

		var timerCh <-chan time.Time
		var timer *time.Timer
		if wakeMs := e.nextWakeMs(pool, rq, &pending, inFlight); wakeMs > 0 {
			d := time.Until(time.UnixMilli(wakeMs))
			if d < time.Millisecond {
				d = time.Millisecond
			}
			timer = time.NewTimer(d)
			timerCh = timer.C
		}

		select {
		case <-ctx.Done():
		case d := <-done:
			inFlight--
			e.handleDone(ctx, d, pool, &pending, rq)
			e.publishRun(&pending, rq, inFlight)
		case <-timerCh:
		}
		if timer != nil {
			timer.Stop()
		}
	}

	e.finish(pool, rq, pending, fatal)
}

// nextWakeMs 计算下一次可能有事可做的时刻：重试到期、冷却/限流保留
// 到期。有在途请求时不需要兜底轮询，done 通道会唤醒循环。
func (e *Engine) nextWakeMs(pool *AccountPool, rq *retryQueue, pending *[]model.RetryEntry, inFlight int) int64 {
	wake := rq.NextEligibleMs()
	if at := pool.NextWakeMs(); at > 0 && (wake == 0 || at < wake) {
		wake = at
	}
	if wake == 0 && inFlight == 0 && (len(*pending) > 0 || rq.Len() > 0) {
		wake = time.Now().Add(250 * time.Millisecond).UnixMilli()
	}
	return wake
}

// dispatchReady 尽可能多地派发工作协程；返回 true 表示账号池已耗尽，
// 运行需要致命中止。
func (e *Engine) dispatchReady(ctx context.Context, pool *AccountPool, limiter *RateLimiter, pending *[]model.RetryEntry, rq *retryQueue, inFlight *int, done chan attemptDone) bool {
	for *inFlight < e.limits.MaxInFlight {
		nowMs := time.Now().UnixMilli()
		eligible := rq.NextEligibleMs()
		hasRetry := eligible > 0 && eligible <= nowMs
		if !hasRetry && len(*pending) == 0 {
			return false
		}

		acc, err := pool.Acquire()
		if errors.Is(err, ErrPoolExhausted) {
			e.setRunError(ErrPoolExhausted)
			if e.bus != nil {
				e.bus.Log("error", "账号池耗尽，运行中止", map[string]any{
					"unresolved": len(*pending) + rq.Len(),
				})
			}
			return true
		}
		if err != nil {
			return false
		}

		// 重试优先于新任务，限制队列增长
		var entry model.RetryEntry
		if hasRetry {
			entry, _ = rq.PopEligible(nowMs)
		} else {
			entry = (*pending)[0]
			*pending = (*pending)[1:]
		}
		entry.Dispatches++

		wait := limiter.Gate(acc.ID)
		*inFlight++
		e.publishRun(pending, rq, *inFlight)

		e.wg.Add(1)
		go e.attempt(ctx, acc, entry, wait, done)
	}
	return false
}

// attempt 在限速等待后执行一次目录查询。整个过程账号保持占用，
// 保证同一账号不会有并发请求。
func (e *Engine) attempt(ctx context.Context, acc model.Account, entry model.RetryEntry, wait time.Duration, done chan<- attemptDone) {
	defer e.wg.Done()

	if wait > 0 && !sleepUntil(ctx, time.Now().Add(wait)) {
		done <- attemptDone{entry: entry, accountID: acc.ID, canceled: true}
		return
	}

	outcome, err := e.client.Lookup(ctx, acc, entry.Identifier)
	if err != nil {
		if ctx.Err() != nil {
			done <- attemptDone{entry: entry, accountID: acc.ID, canceled: true, dispatched: true}
			return
		}
		outcome = model.Transient(err)
	}
	done <- attemptDone{entry: entry, accountID: acc.ID, outcome: outcome, dispatched: true}
}

func (e *Engine) handleDone(ctx context.Context, d attemptDone, pool *AccountPool, pending *[]model.RetryEntry, rq *retryQueue) {
	// 排空阶段运行上下文已取消，完成的结果仍要落库
	ctx = context.WithoutCancel(ctx)
	if d.canceled {
		if d.dispatched {
			// 请求已打到目录服务，中途被取消：账号用量照常计数，
			// 标识回队头等下次运行补一个确定结果
			pool.Release(d.accountID, model.LookupOutcome{})
			e.persistAccount(ctx, pool, d.accountID)
		} else {
			// 还在限速等待中：没有发出请求，账号不计数
			pool.Cancel(d.accountID)
			d.entry.Dispatches--
		}
		*pending = append([]model.RetryEntry{d.entry}, *pending...)
		return
	}

	pool.Release(d.accountID, d.outcome)
	e.persistAccount(ctx, pool, d.accountID)

	nowMs := time.Now().UnixMilli()
	switch d.outcome.Kind {
	case model.OutcomeFound:
		e.emitResult(ctx, model.VerificationResult{
			Identifier: d.entry.Identifier,
			Outcome:    model.ResultFound,
			Profile:    d.outcome.Profile,
			AccountID:  d.accountID,
			Attempts:   d.entry.Dispatches,
		})

	case model.OutcomeNotFound:
		// 隐私设置导致的假阴性在协议层无法区分，统一按未注册处理
		e.emitResult(ctx, model.VerificationResult{
			Identifier: d.entry.Identifier,
			Outcome:    model.ResultNotFound,
			AccountID:  d.accountID,
			Attempts:   d.entry.Dispatches,
		})

	case model.OutcomeRateLimited:
		retryAfter := d.outcome.RetryAfter()
		if retryAfter <= 0 {
			retryAfter = e.limits.BackoffBase
		}
		d.entry.NextEligibleMs = nowMs + retryAfter.Milliseconds()
		rq.Push(d.entry)
		if e.bus != nil {
			e.bus.Log("warn", "收到限流，稍后重试", map[string]any{
				"identifier":   d.entry.Identifier,
				"accountId":    d.accountID,
				"retryAfterMs": retryAfter.Milliseconds(),
			})
		}

	case model.OutcomeBanned:
		// 账号级失败：换号重试，不消耗尝试预算
		d.entry.NextEligibleMs = nowMs
		rq.Push(d.entry)
		if e.bus != nil {
			e.bus.Log("warn", "账号被封禁，换号重试", map[string]any{
				"identifier": d.entry.Identifier,
				"accountId":  d.accountID,
			})
		}

	case model.OutcomeTransient:
		d.entry.Failures++
		if d.entry.Failures >= e.limits.MaxAttempts {
			e.emitResult(ctx, model.VerificationResult{
				Identifier: d.entry.Identifier,
				Outcome:    model.ResultExhausted,
				AccountID:  d.accountID,
				Attempts:   d.entry.Dispatches,
				Error:      d.outcome.Cause,
			})
			return
		}
		backoff := backoffDelay(e.limits.BackoffBase, e.limits.BackoffCap, d.entry.Failures)
		d.entry.NextEligibleMs = nowMs + backoff.Milliseconds()
		rq.Push(d.entry)
		if e.bus != nil {
			e.bus.Log("warn", "查询失败，退避重试", map[string]any{
				"identifier": d.entry.Identifier,
				"accountId":  d.accountID,
				"error":      d.outcome.Cause,
				"failures":   d.entry.Failures,
				"backoffMs":  backoff.Milliseconds(),
			})
		}
	}
}

func backoffDelay(base, ceil time.Duration, failures int) time.Duration {
	n := failures - 1
	if n < 0 {
		n = 0
	}
	if n > 16 {
		n = 16
	}
	d := base * time.Duration(1<<n)
	if d > ceil || d <= 0 {
		d = ceil
	}
	return d
}

func (e *Engine) emitResult(ctx context.Context, res model.VerificationResult) {
	res.ID = uuid.NewString()
	res.AtMs = time.Now().UnixMilli()

	if e.sink != nil {
		if err := e.sink.Write(ctx, res); err != nil && e.bus != nil {
			e.bus.Log("error", "结果写入失败", map[string]any{
				"identifier": res.Identifier,
				"error":      err.Error(),
			})
		}
	}
	if e.bus != nil {
		e.bus.Publish("result", res)
	}

	e.mu.Lock()
	if e.run != nil {
		switch res.Outcome {
		case model.ResultFound:
			e.run.Found++
		case model.ResultNotFound:
			e.run.NotFound++
		case model.ResultExhausted:
			e.run.Exhausted++
		}
	}
	e.mu.Unlock()
}

func (e *Engine) persistAccount(ctx context.Context, pool *AccountPool, accountID string) {
	if e.store == nil {
		return
	}
	for _, acc := range pool.Accounts() {
		if acc.ID == accountID {
			if err := e.store.SaveAccountRunState(ctx, acc); err != nil && e.bus != nil {
				e.bus.Log("warn", "账号状态落库失败", map[string]any{
					"accountId": accountID,
					"error":     err.Error(),
				})
			}
			return
		}
	}
}

func (e *Engine) publishRun(pending *[]model.RetryEntry, rq *retryQueue, inFlight int) {
	e.mu.Lock()
	if e.run != nil {
		e.run.Pending = len(*pending)
		e.run.Retrying = rq.Len()
		e.run.InFlight = inFlight
		if e.bus != nil {
			e.bus.Publish("run_state", *e.run)
		}
	}
	e.mu.Unlock()
}

func (e *Engine) setRunError(err error) {
	e.mu.Lock()
	if e.run != nil {
		e.run.LastError = err.Error()
	}
	e.mu.Unlock()
}

func (e *Engine) finish(pool *AccountPool, rq *retryQueue, pending []model.RetryEntry, fatal bool) {
	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, acc := range pool.Accounts() {
		if err := e.store.SaveAccountRunState(persistCtx, acc); err != nil && e.bus != nil {
			e.bus.Log("warn", "账号状态落库失败", map[string]any{
				"accountId": acc.ID,
				"error":     err.Error(),
			})
		}
	}

	unresolved := len(pending) + rq.Len()

	e.mu.Lock()
	e.running = false
	e.cancel = nil
	var summary notify.RunSummary
	if e.run != nil {
		e.run.FinishedAtMs = time.Now().UnixMilli()
		e.run.Halted = fatal
		e.run.Pending = len(pending)
		e.run.Retrying = rq.Len()
		e.run.InFlight = 0
		summary = notify.RunSummary{
			At:         e.run.FinishedAtMs,
			DurationMs: e.run.FinishedAtMs - e.run.StartedAtMs,
			Total:      e.run.Total,
			Found:      e.run.Found,
			NotFound:   e.run.NotFound,
			Exhausted:  e.run.Exhausted,
			Unresolved: unresolved,
			Halted:     fatal,
			HaltReason: e.run.LastError,
		}
		if e.bus != nil {
			e.bus.Publish("run_state", *e.run)
		}
	}
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Log("info", "运行结束", map[string]any{
			"found":      summary.Found,
			"notFound":   summary.NotFound,
			"exhausted":  summary.Exhausted,
			"unresolved": unresolved,
			"halted":     fatal,
		})
	}
	if e.notifier != nil {
		e.notifier.NotifyRunFinished(context.Background(), summary)
	}
}

func filterUsableAccounts(accounts []model.Account) []model.Account {
	out := make([]model.Account, 0, len(accounts))
	for _, a := range accounts {
		if !a.Usable() {
			continue
		}
		out = append(out, a)
	}
	return out
}

func sleepUntil(ctx context.Context, t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
