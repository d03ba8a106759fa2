package app

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nvila/courtbook/internal/domain"
)

// ValidationRules bound what a well-formed booking or payment may look
// like. Zero values fall back to the defaults below.
type ValidationRules struct {
	MinAdvance  time.Duration
	MaxAdvance  time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration
	MaxParty    int
	MaxAmount   decimal.Decimal
}

func (r ValidationRules) withDefaults() ValidationRules {
	if r.MaxAdvance == 0 {
		r.MaxAdvance = 90 * 24 * time.Hour
	}
	if r.MinDuration == 0 {
		r.MinDuration = 30 * time.Minute
	}
	if r.MaxDuration == 0 {
		r.MaxDuration = 4 * time.Hour
	}
	if r.MaxParty == 0 {
		r.MaxParty = 12
	}
	if r.MaxAmount.IsZero() {
		r.MaxAmount = decimal.NewFromInt(10000)
	}
	return r
}

type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Errors   []Issue
	Warnings []Issue
}

func (r ValidationResult) IsValid() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) addError(code, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) addWarning(code, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Message: fmt.Sprintf(format, args...)})
}

// Validator runs the layered pre-commit checks: temporal, resource,
// business, payment, and multi-tenant. The concurrency layer (no
// overlapping active record) belongs to the AvailabilityChecker under the
// resource lock.
type Validator struct {
	rules ValidationRules
}

func NewValidator(rules ValidationRules) *Validator {
	return &Validator{rules: rules.withDefaults()}
}

func (v *Validator) ValidateReservation(res domain.Reservation, resource domain.Resource, now time.Time) ValidationResult {
	var out ValidationResult

	// Temporal layer.
	if !domain.ValidInterval(res.StartsAt, res.EndsAt) {
		out.addError("invalid_interval", "end must be after start")
		return out
	}
	if res.StartsAt.Before(now) {
		out.addError("starts_in_past", "reservation starts in the past")
	}
	if v.rules.MinAdvance > 0 && res.StartsAt.Sub(now) < v.rules.MinAdvance {
		out.addError("too_soon", "reservation must be at least %s in advance", v.rules.MinAdvance)
	}
	if res.StartsAt.Sub(now) > v.rules.MaxAdvance {
		out.addError("too_far_ahead", "reservation exceeds the %s advance window", v.rules.MaxAdvance)
	}
	dur := res.EndsAt.Sub(res.StartsAt)
	if dur < v.rules.MinDuration {
		out.addError("too_short", "duration below minimum %s", v.rules.MinDuration)
	}
	if dur > v.rules.MaxDuration {
		out.addError("too_long", "duration above maximum %s", v.rules.MaxDuration)
	}

	// Resource layer.
	if !resource.Active {
		out.addError("resource_inactive", "resource %s is not active", resource.ID)
	}
	if !resource.WithinOperatingHours(res.StartsAt, res.EndsAt) {
		out.addError("outside_operating_hours", "interval falls outside operating hours")
	}

	// Business layer.
	if res.PartySize < 1 {
		out.addError("party_size", "party size must be at least 1")
	} else if res.PartySize > v.rules.MaxParty {
		out.addError("party_size", "party size above maximum %d", v.rules.MaxParty)
	}

	// Payment layer.
	if res.Price.IsNegative() {
		out.addError("negative_price", "price must not be negative")
	}
	if res.Price.GreaterThan(v.rules.MaxAmount) {
		out.addError("price_too_large", "price above maximum %s", v.rules.MaxAmount)
	}
	if res.PaymentStatus == domain.PaymentPaid && res.Status == domain.ReservationCancelled {
		out.addWarning("paid_but_cancelled", "cancelled reservation still marked paid; refund may be pending")
	}

	// Multi-tenant layer.
	if res.OrgID != "" && resource.OrgID != "" && res.OrgID != resource.OrgID {
		out.addError("cross_tenant", "reservation and resource belong to different organizations")
	}

	return out
}

func (v *Validator) ValidatePayment(amount decimal.Decimal, txType domain.TransactionType) ValidationResult {
	var out ValidationResult
	if !amount.IsPositive() {
		out.addError("non_positive_amount", "amount must be positive")
	}
	if amount.GreaterThan(v.rules.MaxAmount) {
		out.addError("amount_too_large", "amount above maximum %s", v.rules.MaxAmount)
	}
	switch txType {
	case domain.TxPayment, domain.TxRefund, domain.TxTransfer, domain.TxFee, domain.TxAdjustment:
	default:
		out.addError("unknown_type", "unknown transaction type %q", txType)
	}
	return out
}
