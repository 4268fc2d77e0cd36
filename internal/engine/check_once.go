package engine

import (
	"context"
	"errors"
	"time"

	"lookup_engine/internal/model"
)

type CheckResult struct {
	Identifier   string            `json:"identifier"`
	Kind         model.OutcomeKind `json:"kind"`
	Profile      *model.Profile    `json:"profile,omitempty"`
	RetryAfterMs int64             `json:"retryAfterMs,omitempty"`
	Cause        string            `json:"cause,omitempty"`
	AccountID    string            `json:"accountId"`
}

// CheckOnce 用轮询选出的账号对单个标识做一次直接查询，绕过运行队列。
// 用于验证账号凭据和上游连通性，不写结果、不计入重试预算。
func (e *Engine) CheckOnce(ctx context.Context, rawIdentifier string) (CheckResult, error) {
	if e.store == nil {
		return CheckResult{}, errors.New("store unavailable")
	}
	if e.client == nil {
		return CheckResult{}, errors.New("directory client unavailable")
	}

	identifier, err := model.NormalizeIdentifier(rawIdentifier)
	if err != nil {
		return CheckResult{}, err
	}

	accounts, err := e.store.ListAccounts(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	accounts = filterUsableAccounts(accounts)
	if len(accounts) == 0 {
		return CheckResult{}, errors.New("no usable accounts in storage")
	}

	n := e.rr.Add(1)
	acc := accounts[int(n-1)%len(accounts)]

	if e.bus != nil {
		e.bus.Log("info", "单次查询", map[string]any{
			"identifier": identifier,
			"accountId":  acc.ID,
		})
	}

	outcome, err := e.client.Lookup(ctx, acc, identifier)
	if err != nil {
		return CheckResult{}, err
	}

	if outcome.Kind == model.OutcomeBanned {
		acc.Status = model.AccountBanned
		acc.UpdatedAt = time.Now()
		if err := e.store.SaveAccountRunState(ctx, acc); err != nil && e.bus != nil {
			e.bus.Log("warn", "账号状态落库失败", map[string]any{
				"accountId": acc.ID,
				"error":     err.Error(),
			})
		}
	}

	return CheckResult{
		Identifier:   identifier,
		Kind:         outcome.Kind,
		Profile:      outcome.Profile,
		RetryAfterMs: outcome.RetryAfterMs,
		Cause:        outcome.Cause,
		AccountID:    acc.ID,
	}, nil
}
