package model

type EmailSettings struct {
	Enabled  bool   `json:"enabled"`
	Email    string `json:"email"`
	AuthCode string `json:"authCode,omitempty"`
}

// LimitsSettings overrides the yaml limits between runs without a
// restart. Zero values fall back to the configured defaults.
type LimitsSettings struct {
	MinDelaySeconds     int `json:"minDelaySeconds"`
	GlobalRatePerMinute int `json:"globalRatePerMinute"`
	RotationThreshold   int `json:"rotationThreshold"`
	MaxAttempts         int `json:"maxAttempts"`
}
