package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// VelocityStore tracks per-subject activity in explicit rolling windows
// with expiry, replacing any process-wide counter.
type VelocityStore interface {
	// IncrCount bumps and returns the number of transactions for the
	// subject within the window.
	IncrCount(ctx context.Context, subject string, window time.Duration) (int64, error)
	// AddAmount accumulates and returns the subject's total within the
	// window.
	AddAmount(ctx context.Context, subject string, amount decimal.Decimal, window time.Duration) (decimal.Decimal, error)
}

// FraudConfig tunes the advisory heuristics. Zero values fall back to the
// defaults below.
type FraudConfig struct {
	SuspiciousAmount decimal.Decimal
	VelocityWindow   time.Duration
	VelocityLimit    int64
	DailyLimit       decimal.Decimal
	// StoreTimeout bounds the inline store round trips; analysis must stay
	// cheap because it runs on every execution.
	StoreTimeout time.Duration
}

func (c FraudConfig) withDefaults() FraudConfig {
	if c.SuspiciousAmount.IsZero() {
		c.SuspiciousAmount = decimal.NewFromInt(500)
	}
	if c.VelocityWindow == 0 {
		c.VelocityWindow = time.Hour
	}
	if c.VelocityLimit == 0 {
		c.VelocityLimit = 10
	}
	if c.DailyLimit.IsZero() {
		c.DailyLimit = decimal.NewFromInt(2000)
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = 50 * time.Millisecond
	}
	return c
}

type Assessment struct {
	Score      int      `json:"score"`
	Indicators []string `json:"indicators"`
}

// FraudDetector scores transactions with cheap heuristics. It is advisory:
// a failing store degrades the assessment, it never fails the payment.
type FraudDetector struct {
	store VelocityStore
	cfg   FraudConfig
}

func NewFraudDetector(store VelocityStore, cfg FraudConfig) *FraudDetector {
	return &FraudDetector{store: store, cfg: cfg.withDefaults()}
}

// Analyze returns a score in [0,100] plus the indicators that fired.
func (d *FraudDetector) Analyze(ctx context.Context, subject string, amount decimal.Decimal, method string) Assessment {
	var a Assessment

	if amount.GreaterThan(d.cfg.SuspiciousAmount) {
		a.Score += 40
		a.Indicators = append(a.Indicators, "suspicious_amount")
	}
	if amount.GreaterThanOrEqual(decimal.NewFromInt(100)) && amount.Mod(decimal.NewFromInt(100)).IsZero() {
		a.Score += 10
		a.Indicators = append(a.Indicators, "round_amount")
	}

	if d.store != nil && subject != "" {
		storeCtx, cancel := context.WithTimeout(ctx, d.cfg.StoreTimeout)
		defer cancel()

		count, err := d.store.IncrCount(storeCtx, subject, d.cfg.VelocityWindow)
		if err != nil {
			a.Indicators = append(a.Indicators, "velocity_unavailable")
		} else if count > d.cfg.VelocityLimit {
			a.Score += 30
			a.Indicators = append(a.Indicators, "velocity_exceeded")
		}

		total, err := d.store.AddAmount(storeCtx, subject, amount, 24*time.Hour)
		if err == nil && total.GreaterThan(d.cfg.DailyLimit) {
			a.Score += 20
			a.Indicators = append(a.Indicators, "daily_total_exceeded")
		}
	}

	if a.Score > 100 {
		a.Score = 100
	}
	return a
}
