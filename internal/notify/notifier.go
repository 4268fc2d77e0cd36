package notify

import "context"

// RunSummary 一次批量验证运行的汇总。Halted 表示运行被致命条件
// （例如账号池耗尽）中断，而不是正常跑完。
type RunSummary struct {
	At         int64  `json:"atMs"`
	DurationMs int64  `json:"durationMs"`
	Total      int    `json:"total"`
	Found      int    `json:"found"`
	NotFound   int    `json:"notFound"`
	Exhausted  int    `json:"exhausted"`
	Unresolved int    `json:"unresolved"`
	Halted     bool   `json:"halted"`
	HaltReason string `json:"haltReason,omitempty"`
}

type Notifier interface {
	NotifyRunFinished(ctx context.Context, summary RunSummary)
}
