package model

import "time"

type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountCooling AccountStatus = "cooling"
	AccountBanned  AccountStatus = "banned"
)

type Account struct {
	ID              string        `json:"id"`
	Label           string        `json:"label,omitempty"`
	MSISDN          string        `json:"msisdn"`
	Token           string        `json:"token,omitempty"`
	UserAgent       string        `json:"userAgent,omitempty"`
	Proxy           string        `json:"proxy,omitempty"`
	Status          AccountStatus `json:"status"`
	ChecksPerformed int           `json:"checksPerformed"`
	CooldownUntilMs int64         `json:"cooldownUntilMs,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func (a Account) Usable() bool {
	return a.Status != AccountBanned && a.Token != ""
}
