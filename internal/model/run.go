package model

type AccountState struct {
	AccountID       string        `json:"accountId"`
	Label           string        `json:"label,omitempty"`
	Status          AccountStatus `json:"status"`
	ChecksPerformed int           `json:"checksPerformed"`
	CooldownUntilMs int64         `json:"cooldownUntilMs,omitempty"`
	HoldUntilMs     int64         `json:"holdUntilMs,omitempty"`
	InFlight        bool          `json:"inFlight"`
}

type RunState struct {
	StartedAtMs  int64  `json:"startedAtMs"`
	FinishedAtMs int64  `json:"finishedAtMs,omitempty"`
	Total        int    `json:"total"`
	Pending      int    `json:"pending"`
	InFlight     int    `json:"inFlight"`
	Retrying     int    `json:"retrying"`
	Found        int    `json:"found"`
	NotFound     int    `json:"notFound"`
	Exhausted    int    `json:"exhausted"`
	LastError    string `json:"lastError,omitempty"`
	Halted       bool   `json:"halted"`
}

func (r RunState) Done() int {
	return r.Found + r.NotFound + r.Exhausted
}

type EngineState struct {
	Running  bool           `json:"running"`
	Run      *RunState      `json:"run,omitempty"`
	Accounts []AccountState `json:"accounts,omitempty"`
}
