package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFraudDetector_Analyze(t *testing.T) {
	t.Parallel()

	hasIndicator := func(a Assessment, want string) bool {
		for _, ind := range a.Indicators {
			if ind == want {
				return true
			}
		}
		return false
	}

	t.Run("small odd amount scores zero", func(t *testing.T) {
		d := NewFraudDetector(newFakeVelocityStore(), FraudConfig{})
		a := d.Analyze(context.Background(), "acc-1", decimal.NewFromFloat(37.50), "card")
		if a.Score != 0 {
			t.Fatalf("expected score 0, got %d (%v)", a.Score, a.Indicators)
		}
	})

	t.Run("amount above threshold", func(t *testing.T) {
		d := NewFraudDetector(newFakeVelocityStore(), FraudConfig{})
		a := d.Analyze(context.Background(), "acc-1", decimal.NewFromFloat(750.50), "card")
		if !hasIndicator(a, "suspicious_amount") {
			t.Fatalf("expected suspicious_amount, got %v", a.Indicators)
		}
		if a.Score != 40 {
			t.Fatalf("expected score 40, got %d", a.Score)
		}
	})

	t.Run("round amount adds a small bump", func(t *testing.T) {
		d := NewFraudDetector(newFakeVelocityStore(), FraudConfig{})
		a := d.Analyze(context.Background(), "acc-1", decimal.NewFromInt(300), "card")
		if !hasIndicator(a, "round_amount") {
			t.Fatalf("expected round_amount, got %v", a.Indicators)
		}
		if a.Score != 10 {
			t.Fatalf("expected score 10, got %d", a.Score)
		}
	})

	t.Run("velocity over the limit", func(t *testing.T) {
		store := newFakeVelocityStore()
		d := NewFraudDetector(store, FraudConfig{VelocityLimit: 3})
		var last Assessment
		for i := 0; i < 5; i++ {
			last = d.Analyze(context.Background(), "acc-1", decimal.NewFromInt(5), "card")
		}
		if !hasIndicator(last, "velocity_exceeded") {
			t.Fatalf("expected velocity_exceeded after 5 calls, got %v", last.Indicators)
		}
	})

	t.Run("daily total over the limit", func(t *testing.T) {
		store := newFakeVelocityStore()
		d := NewFraudDetector(store, FraudConfig{DailyLimit: decimal.NewFromInt(100)})
		d.Analyze(context.Background(), "acc-1", decimal.NewFromInt(80), "card")
		a := d.Analyze(context.Background(), "acc-1", decimal.NewFromInt(30), "card")
		if !hasIndicator(a, "daily_total_exceeded") {
			t.Fatalf("expected daily_total_exceeded, got %v", a.Indicators)
		}
	})

	t.Run("score caps at 100", func(t *testing.T) {
		store := newFakeVelocityStore()
		store.count = 100
		store.total = decimal.NewFromInt(100000)
		d := NewFraudDetector(store, FraudConfig{})
		a := d.Analyze(context.Background(), "acc-1", decimal.NewFromInt(900), "card")
		if a.Score != 100 {
			t.Fatalf("expected capped score 100, got %d", a.Score)
		}
	})

	t.Run("store failure degrades instead of failing", func(t *testing.T) {
		store := newFakeVelocityStore()
		store.err = errors.New("connection refused")
		d := NewFraudDetector(store, FraudConfig{})
		a := d.Analyze(context.Background(), "acc-1", decimal.NewFromInt(5), "card")
		if !hasIndicator(a, "velocity_unavailable") {
			t.Fatalf("expected velocity_unavailable, got %v", a.Indicators)
		}
		if a.Score != 0 {
			t.Fatalf("expected amount checks unaffected, got score %d", a.Score)
		}
	})

	t.Run("nil store skips velocity checks", func(t *testing.T) {
		d := NewFraudDetector(nil, FraudConfig{})
		a := d.Analyze(context.Background(), "acc-1", decimal.NewFromInt(5), "card")
		if a.Score != 0 || len(a.Indicators) != 0 {
			t.Fatalf("expected clean assessment, got %d %v", a.Score, a.Indicators)
		}
	})
}

type fakeVelocityStore struct {
	count int64
	total decimal.Decimal
	err   error
}

func newFakeVelocityStore() *fakeVelocityStore {
	return &fakeVelocityStore{total: decimal.Zero}
}

func (s *fakeVelocityStore) IncrCount(_ context.Context, _ string, _ time.Duration) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.count++
	return s.count, nil
}

func (s *fakeVelocityStore) AddAmount(_ context.Context, _ string, amount decimal.Decimal, _ time.Duration) (decimal.Decimal, error) {
	if s.err != nil {
		return decimal.Zero, s.err
	}
	s.total = s.total.Add(amount)
	return s.total, nil
}
