package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxPayment    TransactionType = "payment"
	TxRefund     TransactionType = "refund"
	TxTransfer   TransactionType = "transfer"
	TxFee        TransactionType = "fee"
	TxAdjustment TransactionType = "adjustment"
)

// SkipsFundsCheck reports whether the type moves money back toward the
// payer and therefore needs no balance validation on the source.
func (t TransactionType) SkipsFundsCheck() bool {
	return t == TxRefund || t == TxAdjustment
}

type TransactionStatus string

const (
	TxProcessing    TransactionStatus = "processing"
	TxCompleted     TransactionStatus = "completed"
	TxFailed        TransactionStatus = "failed"
	TxRefunded      TransactionStatus = "refunded"
	TxPartialRefund TransactionStatus = "partial_refund"
)

// Transaction is one logical movement of money. Amounts are fixed-point
// with 2-decimal precision.
type Transaction struct {
	ID                   string
	OrgID                string
	Type                 TransactionType
	Status               TransactionStatus
	Amount               decimal.Decimal
	RefundedAmount       decimal.Decimal
	SourceAccountID      string
	DestinationAccountID string
	Reference            string
	IdempotencyKey       string
	GatewayRef           string
	Metadata             map[string]string
	CreatedAt            time.Time
	CompletedAt          *time.Time
}

// RemainingRefundable is the amount that may still be refunded without
// creating money.
func (t Transaction) RemainingRefundable() decimal.Decimal {
	return t.Amount.Sub(t.RefundedAmount)
}

type MovementDirection string

const (
	MovementDebit  MovementDirection = "debit"
	MovementCredit MovementDirection = "credit"
)

// Movement records one leg of a transaction against an account.
type Movement struct {
	ID            string
	TransactionID string
	AccountID     string
	Direction     MovementDirection
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	CreatedAt     time.Time
}

// AuditRecord is the immutable 1:1 companion of a completed Transaction.
type AuditRecord struct {
	ID            string
	TransactionID string
	Actor         string
	Movements     []Movement
	CreatedAt     time.Time
}

// RevenueEntry links a completed transaction into the revenue ledger.
type RevenueEntry struct {
	ID            string
	TransactionID string
	Amount        decimal.Decimal
	Concept       string
	EntryDate     time.Time
	CreatedAt     time.Time
}

// Account is a payer wallet or a club vault within one organizational
// scope.
type Account struct {
	ID        string
	OrgID     string
	OwnerName string
	Balance   decimal.Decimal
	CreatedAt time.Time
}
