package engine

import (
	"time"

	"lookup_engine/internal/config"
	"lookup_engine/internal/model"
)

type Limits struct {
	MinDelay            time.Duration
	GlobalRatePerMinute int
	GlobalBurst         int
	RotationThreshold   int
	CoolingPeriod       time.Duration
	MaxAttempts         int
	BackoffBase         time.Duration
	BackoffCap          time.Duration
	MaxInFlight         int
}

// LimitsFromConfig 把 yaml 配置与数据库里的运行时覆盖合并成引擎限额。
func LimitsFromConfig(c config.LimitsConfig, o model.LimitsSettings) Limits {
	l := Limits{
		MinDelay:            c.MinDelay(),
		GlobalRatePerMinute: c.GlobalRatePerMinute,
		GlobalBurst:         c.GlobalBurst,
		RotationThreshold:   c.RotationThreshold,
		CoolingPeriod:       c.CoolingPeriod(),
		MaxAttempts:         c.MaxAttempts,
		BackoffBase:         c.BackoffBase(),
		BackoffCap:          c.BackoffCap(),
		MaxInFlight:         c.MaxInFlight,
	}
	return l.withOverrides(o)
}

// withOverrides 应用 API 保存的运行时限额，零值不覆盖。
func (l Limits) withOverrides(o model.LimitsSettings) Limits {
	if o.MinDelaySeconds > 0 {
		l.MinDelay = time.Duration(o.MinDelaySeconds) * time.Second
	}
	if o.GlobalRatePerMinute > 0 {
		l.GlobalRatePerMinute = o.GlobalRatePerMinute
	}
	if o.RotationThreshold > 0 {
		l.RotationThreshold = o.RotationThreshold
	}
	if o.MaxAttempts > 0 {
		l.MaxAttempts = o.MaxAttempts
	}
	return l.withDefaults()
}

func (l Limits) withDefaults() Limits {
	if l.MinDelay <= 0 {
		l.MinDelay = 20 * time.Second
	}
	if l.GlobalRatePerMinute <= 0 {
		l.GlobalRatePerMinute = 30
	}
	// 突发默认 1：令牌桶初始是满的，更大的突发会让第一分钟超出全局上限
	if l.GlobalBurst <= 0 {
		l.GlobalBurst = 1
	}
	if l.RotationThreshold <= 0 {
		l.RotationThreshold = 200
	}
	if l.CoolingPeriod <= 0 {
		l.CoolingPeriod = 15 * time.Minute
	}
	if l.MaxAttempts <= 0 {
		l.MaxAttempts = 3
	}
	if l.BackoffBase <= 0 {
		l.BackoffBase = 5 * time.Second
	}
	if l.BackoffCap <= 0 {
		l.BackoffCap = 5 * time.Minute
	}
	if l.MaxInFlight <= 0 {
		l.MaxInFlight = 8
	}
	return l
}
