package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nvila/courtbook/internal/clock"
	"github.com/nvila/courtbook/internal/domain"
)

// ReconcileRepository reads a day's worth of both ledgers and repairs safe
// gaps.
type ReconcileRepository interface {
	ListTransactionsByDate(ctx context.Context, date time.Time) ([]domain.Transaction, error)
	ListRevenueByTransactionID(ctx context.Context, transactionID string) ([]domain.RevenueEntry, error)
	ReservationExists(ctx context.Context, id string) (bool, error)
	CreateRevenueEntry(ctx context.Context, e domain.RevenueEntry) error
}

type DiscrepancyType string

const (
	DiscrepancyMissingRevenue DiscrepancyType = "missing_revenue"
	DiscrepancyMismatch       DiscrepancyType = "mismatch"
	DiscrepancyOrphaned       DiscrepancyType = "orphaned"
	DiscrepancyIntegrity      DiscrepancyType = "integrity_issue"
)

type Discrepancy struct {
	Type          DiscrepancyType `json:"type"`
	TransactionID string          `json:"transaction_id"`
	Detail        string          `json:"detail"`
	Fixed         bool            `json:"fixed"`
}

type ReconcileReport struct {
	Date              time.Time     `json:"date"`
	TotalTransactions int           `json:"total_transactions"`
	TotalAmount       string        `json:"total_amount"`
	Discrepancies     []Discrepancy `json:"discrepancies"`
	OrphanedRecords   []string      `json:"orphaned_records"`
	Recommendations   []string      `json:"recommendations"`
}

// ReconcileService verifies that the payment and revenue ledgers agree for
// a day. Running it twice with no intervening writes yields the same
// discrepancy set.
type ReconcileService struct {
	repo      ReconcileRepository
	clock     clock.Clock
	maxAmount decimal.Decimal
}

func NewReconcileService(repo ReconcileRepository, clk clock.Clock, maxAmount decimal.Decimal) *ReconcileService {
	if maxAmount.IsZero() {
		maxAmount = decimal.NewFromInt(10000)
	}
	return &ReconcileService{repo: repo, clock: clk, maxAmount: maxAmount}
}

// Reconcile inspects every transaction of the day. autoFix only creates a
// missing revenue entry when the source transaction is completed and the
// mapping is unambiguous; mismatches are reported, never auto-corrected.
func (s *ReconcileService) Reconcile(ctx context.Context, date time.Time, autoFix bool) (ReconcileReport, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	report := ReconcileReport{Date: day}

	txs, err := s.repo.ListTransactionsByDate(ctx, day)
	if err != nil {
		return ReconcileReport{}, err
	}

	total := decimal.Zero
	for _, tx := range txs {
		report.TotalTransactions++
		if tx.Status == domain.TxCompleted || tx.Status == domain.TxRefunded || tx.Status == domain.TxPartialRefund {
			total = total.Add(tx.Amount)
		}

		if d, ok := s.checkIntegrity(tx); ok {
			report.Discrepancies = append(report.Discrepancies, d)
			continue
		}

		if orphan, err := s.checkOrphaned(ctx, tx); err != nil {
			return ReconcileReport{}, err
		} else if orphan != nil {
			report.Discrepancies = append(report.Discrepancies, *orphan)
			report.OrphanedRecords = append(report.OrphanedRecords, tx.ID)
		}

		ds, err := s.checkRevenue(ctx, tx, day, autoFix)
		if err != nil {
			return ReconcileReport{}, err
		}
		report.Discrepancies = append(report.Discrepancies, ds...)
	}

	report.TotalAmount = total.StringFixed(2)
	report.Recommendations = recommendations(report.Discrepancies)
	return report, nil
}

func (s *ReconcileService) checkIntegrity(tx domain.Transaction) (Discrepancy, bool) {
	switch {
	case !tx.Amount.IsPositive():
		return Discrepancy{
			Type:          DiscrepancyIntegrity,
			TransactionID: tx.ID,
			Detail:        fmt.Sprintf("non-positive amount %s", tx.Amount.StringFixed(2)),
		}, true
	case tx.Amount.GreaterThan(s.maxAmount):
		return Discrepancy{
			Type:          DiscrepancyIntegrity,
			TransactionID: tx.ID,
			Detail:        fmt.Sprintf("amount %s exceeds bound %s", tx.Amount.StringFixed(2), s.maxAmount.StringFixed(2)),
		}, true
	case tx.RefundedAmount.GreaterThan(tx.Amount):
		return Discrepancy{
			Type:          DiscrepancyIntegrity,
			TransactionID: tx.ID,
			Detail:        fmt.Sprintf("refunded %s exceeds original %s", tx.RefundedAmount.StringFixed(2), tx.Amount.StringFixed(2)),
		}, true
	}
	return Discrepancy{}, false
}

func (s *ReconcileService) checkOrphaned(ctx context.Context, tx domain.Transaction) (*Discrepancy, error) {
	if tx.Type != domain.TxPayment {
		return nil, nil
	}
	if tx.Reference == "" {
		return &Discrepancy{
			Type:          DiscrepancyOrphaned,
			TransactionID: tx.ID,
			Detail:        "payment has no external reference",
		}, nil
	}
	exists, err := s.repo.ReservationExists(ctx, tx.Reference)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &Discrepancy{
			Type:          DiscrepancyOrphaned,
			TransactionID: tx.ID,
			Detail:        fmt.Sprintf("reference %s does not resolve", tx.Reference),
		}, nil
	}
	return nil, nil
}

func (s *ReconcileService) checkRevenue(ctx context.Context, tx domain.Transaction, day time.Time, autoFix bool) ([]Discrepancy, error) {
	// Only completed payment/fee transactions must carry a revenue entry.
	expectsRevenue := tx.Type == domain.TxPayment || tx.Type == domain.TxFee
	settled := tx.Status == domain.TxCompleted || tx.Status == domain.TxRefunded || tx.Status == domain.TxPartialRefund
	if !expectsRevenue || !settled {
		return nil, nil
	}

	entries, err := s.repo.ListRevenueByTransactionID(ctx, tx.ID)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		d := Discrepancy{
			Type:          DiscrepancyMissingRevenue,
			TransactionID: tx.ID,
			Detail:        "completed transaction has no revenue entry",
		}
		if autoFix {
			entry := domain.RevenueEntry{
				ID:            newID(),
				TransactionID: tx.ID,
				Amount:        tx.Amount,
				Concept:       string(tx.Type),
				EntryDate:     day,
				CreatedAt:     s.clock.Now(),
			}
			if err := s.repo.CreateRevenueEntry(ctx, entry); err != nil {
				return nil, err
			}
			d.Fixed = true
		}
		return []Discrepancy{d}, nil
	}

	if len(entries) > 1 {
		// More than one positive entry for one transaction is ambiguous;
		// never auto-correct.
		positives := 0
		for _, e := range entries {
			if e.Amount.IsPositive() {
				positives++
			}
		}
		if positives > 1 {
			return []Discrepancy{{
				Type:          DiscrepancyMismatch,
				TransactionID: tx.ID,
				Detail:        fmt.Sprintf("%d revenue entries for one transaction", len(entries)),
			}}, nil
		}
	}

	var out []Discrepancy
	for _, e := range entries {
		if !e.Amount.IsPositive() {
			continue
		}
		if !e.Amount.Equal(tx.Amount) {
			out = append(out, Discrepancy{
				Type:          DiscrepancyMismatch,
				TransactionID: tx.ID,
				Detail:        fmt.Sprintf("revenue %s does not match amount %s", e.Amount.StringFixed(2), tx.Amount.StringFixed(2)),
			})
		}
		if !e.EntryDate.UTC().Truncate(24 * time.Hour).Equal(day) {
			out = append(out, Discrepancy{
				Type:          DiscrepancyMismatch,
				TransactionID: tx.ID,
				Detail:        fmt.Sprintf("revenue dated %s, transaction dated %s", e.EntryDate.Format("2006-01-02"), day.Format("2006-01-02")),
			})
		}
	}
	return out, nil
}

func recommendations(ds []Discrepancy) []string {
	counts := map[DiscrepancyType]int{}
	for _, d := range ds {
		if !d.Fixed {
			counts[d.Type]++
		}
	}
	var out []string
	if n := counts[DiscrepancyMissingRevenue]; n > 0 {
		out = append(out, fmt.Sprintf("%d completed transactions lack revenue entries; re-run with auto-fix", n))
	}
	if n := counts[DiscrepancyMismatch]; n > 0 {
		out = append(out, fmt.Sprintf("%d amount/date mismatches need manual review", n))
	}
	if n := counts[DiscrepancyOrphaned]; n > 0 {
		out = append(out, fmt.Sprintf("%d transactions have no valid external reference", n))
	}
	if n := counts[DiscrepancyIntegrity]; n > 0 {
		out = append(out, fmt.Sprintf("%d transactions violate amount bounds; investigate before correcting", n))
	}
	return out
}
