package model

type ResultOutcome string

const (
	ResultFound     ResultOutcome = "found"
	ResultNotFound  ResultOutcome = "not_found"
	ResultExhausted ResultOutcome = "exhausted"
)

// VerificationResult is the single terminal record emitted for a
// submitted identifier.
type VerificationResult struct {
	ID         string        `json:"id"`
	Identifier string        `json:"identifier"`
	Outcome    ResultOutcome `json:"outcome"`
	Profile    *Profile      `json:"profile,omitempty"`
	AccountID  string        `json:"accountId,omitempty"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
	AtMs       int64         `json:"atMs"`
}

// RetryEntry schedules an identifier for another attempt. Failures counts
// transient errors only; bans and rate limits re-queue at no budget cost.
type RetryEntry struct {
	Identifier     string `json:"identifier"`
	Dispatches     int    `json:"dispatches"`
	Failures       int    `json:"failures"`
	NextEligibleMs int64  `json:"nextEligibleMs"`
}
