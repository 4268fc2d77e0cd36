package model

import "time"

type OutcomeKind string

const (
	OutcomeFound       OutcomeKind = "found"
	OutcomeNotFound    OutcomeKind = "not_found"
	OutcomeRateLimited OutcomeKind = "rate_limited"
	OutcomeBanned      OutcomeKind = "banned"
	OutcomeTransient   OutcomeKind = "transient_error"
)

// Profile carries the public fields the directory exposes for a
// registered identifier.
type Profile struct {
	DisplayName string `json:"displayName,omitempty"`
	About       string `json:"about,omitempty"`
	HasAvatar   bool   `json:"hasAvatar,omitempty"`
	LastSeenMs  int64  `json:"lastSeenMs,omitempty"`
}

// LookupOutcome is the closed set of answers a directory lookup can
// produce. A privacy-masked number is indistinguishable from a real
// not-found at the wire level, so both land on OutcomeNotFound.
type LookupOutcome struct {
	Kind         OutcomeKind `json:"kind"`
	Profile      *Profile    `json:"profile,omitempty"`
	RetryAfterMs int64       `json:"retryAfterMs,omitempty"`
	Cause        string      `json:"cause,omitempty"`
}

func Found(p Profile) LookupOutcome {
	return LookupOutcome{Kind: OutcomeFound, Profile: &p}
}

func NotFound() LookupOutcome {
	return LookupOutcome{Kind: OutcomeNotFound}
}

func RateLimited(retryAfter time.Duration) LookupOutcome {
	ms := retryAfter.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return LookupOutcome{Kind: OutcomeRateLimited, RetryAfterMs: ms}
}

func Banned() LookupOutcome {
	return LookupOutcome{Kind: OutcomeBanned}
}

func Transient(err error) LookupOutcome {
	cause := "unknown"
	if err != nil {
		cause = err.Error()
	}
	return LookupOutcome{Kind: OutcomeTransient, Cause: cause}
}

func (o LookupOutcome) RetryAfter() time.Duration {
	if o.RetryAfterMs <= 0 {
		return 0
	}
	return time.Duration(o.RetryAfterMs) * time.Millisecond
}

func (o LookupOutcome) Terminal() bool {
	return o.Kind == OutcomeFound || o.Kind == OutcomeNotFound
}
