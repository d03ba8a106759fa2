package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nvila/courtbook/internal/clock"
	"github.com/nvila/courtbook/internal/domain"
)

// PaymentRepository is the storage surface of the executor. Every step of
// an execution runs inside one WithTx unit; a failure anywhere rolls the
// whole unit back, leaving no partial transaction and no orphan audit.
type PaymentRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindCompletedByIdempotencyKey(ctx context.Context, key string, since time.Time) (*domain.Transaction, error)
	GetAccountForUpdate(ctx context.Context, id string) (domain.Account, error)
	UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal) error
	CreateTransaction(ctx context.Context, tx domain.Transaction) error
	GetTransactionForUpdate(ctx context.Context, id string) (domain.Transaction, error)
	GetTransactionByGatewayRef(ctx context.Context, ref string) (domain.Transaction, error)
	MarkTransactionCompleted(ctx context.Context, id string, at time.Time) error
	MarkTransactionFailed(ctx context.Context, id string, at time.Time) error
	SetTransactionRefund(ctx context.Context, id string, status domain.TransactionStatus, refunded decimal.Decimal) error
	CreateMovement(ctx context.Context, m domain.Movement) error
	CreateAuditRecord(ctx context.Context, a domain.AuditRecord) error
	CreateRevenueEntry(ctx context.Context, e domain.RevenueEntry) error
}

// GatewayResult reports the outcome of an external gateway call. An
// unconfirmed capture leaves the transaction processing until the gateway
// confirmation feeds back in.
type GatewayResult struct {
	Ref       string
	Confirmed bool
}

// PaymentGateway abstracts the external payment provider.
type PaymentGateway interface {
	Authorize(ctx context.Context, amount decimal.Decimal, method, reference string) (GatewayResult, error)
	Capture(ctx context.Context, ref string) (GatewayResult, error)
	Refund(ctx context.Context, ref string, amount decimal.Decimal) error
}

// ReservationMarker feeds settled payments back into the booking record
// that referenced them.
type ReservationMarker interface {
	MarkPaid(ctx context.Context, reservationID, transactionID string) error
	MarkPaymentFailed(ctx context.Context, reservationID string) error
}

// PaymentConfig tunes the executor. Zero values fall back to the defaults
// below. Amount bounds live in the Validator's rules.
type PaymentConfig struct {
	// IdempotencyWindow bounds the duplicate lookup.
	IdempotencyWindow time.Duration
	// SafetyMargin is withheld from source balances during funds checks.
	SafetyMargin decimal.Decimal
	// FraudBlockThreshold blocks executions scoring at or above it.
	// Zero keeps the detector advisory.
	FraudBlockThreshold int
}

func (c PaymentConfig) withDefaults() PaymentConfig {
	if c.IdempotencyWindow == 0 {
		c.IdempotencyWindow = 24 * time.Hour
	}
	return c
}

type PaymentService struct {
	repo      PaymentRepository
	fraud     *FraudDetector
	validator *Validator
	clock     clock.Clock
	cfg       PaymentConfig
	gateway   PaymentGateway
	events    EventPublisher
	bookings  ReservationMarker
}

func NewPaymentService(repo PaymentRepository, fraud *FraudDetector, validator *Validator, clk clock.Clock, cfg PaymentConfig, opts ...PaymentServiceOption) *PaymentService {
	svc := &PaymentService{
		repo:      repo,
		fraud:     fraud,
		validator: validator,
		clock:     clk,
		cfg:       cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type PaymentServiceOption func(*PaymentService)

func WithGateway(gw PaymentGateway) PaymentServiceOption {
	return func(s *PaymentService) { s.gateway = gw }
}

func WithPaymentEvents(pub EventPublisher) PaymentServiceOption {
	return func(s *PaymentService) { s.events = pub }
}

// WithReservationMarker wires the booking coordinator so a settled payment
// confirms its reservation in the same atomic unit.
func WithReservationMarker(m ReservationMarker) PaymentServiceOption {
	return func(s *PaymentService) { s.bookings = m }
}

type ExecuteInput struct {
	OrgID                string
	Amount               decimal.Decimal
	Type                 domain.TransactionType
	Method               string
	SourceAccountID      string
	DestinationAccountID string
	Reference            string
	IdempotencyKey       string
	Actor                string
	Metadata             map[string]string
}

type ExecuteResult struct {
	Transaction domain.Transaction
	AuditID     string
	Risk        Assessment
}

// Execute moves money exactly once for the given idempotency key. All
// steps run inside one atomic unit; the partial-unique index on the key
// resolves a true race to a single winner.
func (s *PaymentService) Execute(ctx context.Context, in ExecuteInput) (ExecuteResult, error) {
	amount := in.Amount.Round(2)
	if v := s.validator.ValidatePayment(amount, in.Type); !v.IsValid() {
		return ExecuteResult{}, paymentIssueError(v.Errors[0])
	}
	// Hour-bucket key derivation both collides across unrelated requests
	// and misses duplicates split across the boundary, so the caller must
	// supply a globally unique key.
	if in.IdempotencyKey == "" {
		return ExecuteResult{}, domain.ErrIdempotencyKeyRequired
	}

	now := s.clock.Now()
	var result ExecuteResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindCompletedByIdempotencyKey(txCtx, in.IdempotencyKey, now.Add(-s.cfg.IdempotencyWindow))
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateTransaction
		}

		if in.SourceAccountID != "" && !in.Type.SkipsFundsCheck() {
			src, err := s.repo.GetAccountForUpdate(txCtx, in.SourceAccountID)
			if err != nil {
				return err
			}
			if src.Balance.Sub(s.cfg.SafetyMargin).LessThan(amount) {
				return domain.ErrInsufficientFunds
			}
		}

		risk := s.fraud.Analyze(txCtx, in.SourceAccountID, amount, in.Method)
		result.Risk = risk
		if risk.Score >= 50 {
			slog.Warn("high risk transaction",
				"score", risk.Score,
				"indicators", risk.Indicators,
				"reference", in.Reference,
			)
		}
		if s.cfg.FraudBlockThreshold > 0 && risk.Score >= s.cfg.FraudBlockThreshold {
			return domain.ErrHighRiskBlocked
		}

		tx := domain.Transaction{
			ID:                   newID(),
			OrgID:                in.OrgID,
			Type:                 in.Type,
			Status:               domain.TxProcessing,
			Amount:               amount,
			RefundedAmount:       decimal.Zero,
			SourceAccountID:      in.SourceAccountID,
			DestinationAccountID: in.DestinationAccountID,
			Reference:            in.Reference,
			IdempotencyKey:       in.IdempotencyKey,
			Metadata:             in.Metadata,
			CreatedAt:            now,
		}

		if s.gateway != nil && in.Method != "" {
			auth, err := s.gateway.Authorize(txCtx, amount, in.Method, in.Reference)
			if err != nil {
				return err
			}
			cap, err := s.gateway.Capture(txCtx, auth.Ref)
			if err != nil {
				return err
			}
			tx.GatewayRef = cap.Ref
			if !cap.Confirmed {
				// The gateway will confirm asynchronously; the transaction
				// stays processing and settles in ConfirmGateway.
				if err := s.repo.CreateTransaction(txCtx, tx); err != nil {
					return err
				}
				result.Transaction = tx
				return nil
			}
		}

		if err := s.repo.CreateTransaction(txCtx, tx); err != nil {
			return err
		}
		auditID, err := s.settle(txCtx, &tx, in.Actor, now)
		if err != nil {
			return err
		}
		if err := s.markReservation(txCtx, tx, true); err != nil {
			return err
		}
		result.Transaction = tx
		result.AuditID = auditID
		return nil
	})
	if err != nil {
		return ExecuteResult{}, err
	}

	fireAndForget(s.events, "payment."+string(result.Transaction.Status), TransactionEvent{
		TransactionID: result.Transaction.ID,
		Type:          string(result.Transaction.Type),
		Status:        string(result.Transaction.Status),
		Amount:        result.Transaction.Amount.StringFixed(2),
		Reference:     result.Transaction.Reference,
	})
	return result, nil
}

// settle moves the money, writes the 1:1 audit record and marks the
// transaction completed. Must run inside the caller's unit.
func (s *PaymentService) settle(txCtx context.Context, tx *domain.Transaction, actor string, now time.Time) (string, error) {
	var movements []domain.Movement

	if tx.SourceAccountID != "" {
		src, err := s.repo.GetAccountForUpdate(txCtx, tx.SourceAccountID)
		if err != nil {
			return "", err
		}
		newBal := src.Balance.Sub(tx.Amount)
		if newBal.IsNegative() {
			return "", domain.ErrInsufficientFunds
		}
		if err := s.repo.UpdateAccountBalance(txCtx, src.ID, newBal); err != nil {
			return "", err
		}
		m := domain.Movement{
			ID:            newID(),
			TransactionID: tx.ID,
			AccountID:     src.ID,
			Direction:     domain.MovementDebit,
			Amount:        tx.Amount,
			BalanceAfter:  newBal,
			CreatedAt:     now,
		}
		if err := s.repo.CreateMovement(txCtx, m); err != nil {
			return "", err
		}
		movements = append(movements, m)
	}

	if tx.DestinationAccountID != "" {
		dst, err := s.repo.GetAccountForUpdate(txCtx, tx.DestinationAccountID)
		if err != nil {
			return "", err
		}
		newBal := dst.Balance.Add(tx.Amount)
		if err := s.repo.UpdateAccountBalance(txCtx, dst.ID, newBal); err != nil {
			return "", err
		}
		m := domain.Movement{
			ID:            newID(),
			TransactionID: tx.ID,
			AccountID:     dst.ID,
			Direction:     domain.MovementCredit,
			Amount:        tx.Amount,
			BalanceAfter:  newBal,
			CreatedAt:     now,
		}
		if err := s.repo.CreateMovement(txCtx, m); err != nil {
			return "", err
		}
		movements = append(movements, m)
	}

	audit := domain.AuditRecord{
		ID:            newID(),
		TransactionID: tx.ID,
		Actor:         actor,
		Movements:     movements,
		CreatedAt:     now,
	}
	if err := s.repo.CreateAuditRecord(txCtx, audit); err != nil {
		return "", err
	}

	if err := s.repo.MarkTransactionCompleted(txCtx, tx.ID, now); err != nil {
		return "", err
	}
	tx.Status = domain.TxCompleted
	tx.CompletedAt = &now

	if tx.Type == domain.TxPayment || tx.Type == domain.TxFee {
		entry := domain.RevenueEntry{
			ID:            newID(),
			TransactionID: tx.ID,
			Amount:        tx.Amount,
			Concept:       string(tx.Type),
			EntryDate:     now.Truncate(24 * time.Hour),
			CreatedAt:     now,
		}
		if err := s.repo.CreateRevenueEntry(txCtx, entry); err != nil {
			return "", err
		}
	}
	return audit.ID, nil
}

// markReservation moves a referenced reservation's payment status inside
// the caller's unit, so the ledger and the booking commit or roll back
// together. References that do not name a reservation are left to
// reconciliation.
func (s *PaymentService) markReservation(txCtx context.Context, tx domain.Transaction, paid bool) error {
	if s.bookings == nil || tx.Type != domain.TxPayment || tx.Reference == "" {
		return nil
	}
	var err error
	if paid {
		err = s.bookings.MarkPaid(txCtx, tx.Reference, tx.ID)
	} else {
		err = s.bookings.MarkPaymentFailed(txCtx, tx.Reference)
	}
	if errors.Is(err, domain.ErrReservationNotFound) || errors.Is(err, domain.ErrInvalidID) {
		return nil
	}
	return err
}

// paymentIssueError maps validator issues onto the error taxonomy the
// transport layer and retry policy branch on.
func paymentIssueError(issue Issue) error {
	switch issue.Code {
	case "non_positive_amount":
		return domain.ErrInvalidAmount
	case "amount_too_large":
		return domain.ErrAmountTooLarge
	default:
		return fmt.Errorf("%w: %s", domain.ErrValidation, issue.Message)
	}
}

// ConfirmGateway feeds an asynchronous gateway confirmation back into the
// transaction state machine. A declined capture marks the transaction
// failed without moving money.
func (s *PaymentService) ConfirmGateway(ctx context.Context, gatewayRef string, confirmed bool, actor string) (domain.Transaction, error) {
	now := s.clock.Now()
	var out domain.Transaction

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		tx, err := s.repo.GetTransactionByGatewayRef(txCtx, gatewayRef)
		if err != nil {
			return err
		}
		if tx.Status != domain.TxProcessing {
			return domain.ErrTransactionNotPending
		}
		if !confirmed {
			if err := s.repo.MarkTransactionFailed(txCtx, tx.ID, now); err != nil {
				return err
			}
			if err := s.markReservation(txCtx, tx, false); err != nil {
				return err
			}
			tx.Status = domain.TxFailed
			out = tx
			return nil
		}
		if _, err := s.settle(txCtx, &tx, actor, now); err != nil {
			return err
		}
		if err := s.markReservation(txCtx, tx, true); err != nil {
			return err
		}
		out = tx
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	fireAndForget(s.events, "payment."+string(out.Status), TransactionEvent{
		TransactionID: out.ID,
		Type:          string(out.Type),
		Status:        string(out.Status),
		Amount:        out.Amount.StringFixed(2),
		Reference:     out.Reference,
	})
	return out, nil
}

type RefundInput struct {
	TransactionID string
	// Amount empty means a full refund of the remaining balance.
	Amount decimal.Decimal
	Reason string
	Actor  string
}

// Refund reverses up to the remaining refundable balance of a completed
// transaction. The ledger stays zero-sum beyond the refunded amount.
func (s *PaymentService) Refund(ctx context.Context, in RefundInput) (ExecuteResult, error) {
	now := s.clock.Now()
	var result ExecuteResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		orig, err := s.repo.GetTransactionForUpdate(txCtx, in.TransactionID)
		if err != nil {
			return err
		}
		switch orig.Status {
		case domain.TxCompleted, domain.TxPartialRefund:
		default:
			return fmt.Errorf("%w: transaction is %s", domain.ErrInvalidState, orig.Status)
		}

		remaining := orig.RemainingRefundable()
		amount := in.Amount.Round(2)
		if amount.IsZero() {
			amount = remaining
		}
		if !amount.IsPositive() {
			return domain.ErrInvalidAmount
		}
		if amount.GreaterThan(remaining) {
			return domain.ErrRefundExceedsBalance
		}

		if s.gateway != nil && orig.GatewayRef != "" {
			if err := s.gateway.Refund(txCtx, orig.GatewayRef, amount); err != nil {
				return err
			}
		}

		// The refund reverses direction: the original destination pays the
		// original source back.
		refund := domain.Transaction{
			ID:                   newID(),
			OrgID:                orig.OrgID,
			Type:                 domain.TxRefund,
			Status:               domain.TxProcessing,
			Amount:               amount,
			RefundedAmount:       decimal.Zero,
			SourceAccountID:      orig.DestinationAccountID,
			DestinationAccountID: orig.SourceAccountID,
			Reference:            orig.ID,
			IdempotencyKey:       "refund:" + orig.ID + ":" + orig.RefundedAmount.Add(amount).StringFixed(2),
			CreatedAt:            now,
		}
		if err := s.repo.CreateTransaction(txCtx, refund); err != nil {
			return err
		}
		auditID, err := s.settle(txCtx, &refund, in.Actor, now)
		if err != nil {
			return err
		}

		entry := domain.RevenueEntry{
			ID:            newID(),
			TransactionID: refund.ID,
			Amount:        amount.Neg(),
			Concept:       "refund:" + in.Reason,
			EntryDate:     now.Truncate(24 * time.Hour),
			CreatedAt:     now,
		}
		if err := s.repo.CreateRevenueEntry(txCtx, entry); err != nil {
			return err
		}

		refunded := orig.RefundedAmount.Add(amount)
		status := domain.TxPartialRefund
		if refunded.Equal(orig.Amount) {
			status = domain.TxRefunded
		}
		if err := s.repo.SetTransactionRefund(txCtx, orig.ID, status, refunded); err != nil {
			return err
		}

		result.Transaction = refund
		result.AuditID = auditID
		return nil
	})
	if err != nil {
		return ExecuteResult{}, err
	}

	fireAndForget(s.events, "payment.refunded", TransactionEvent{
		TransactionID: result.Transaction.ID,
		Type:          string(result.Transaction.Type),
		Status:        string(result.Transaction.Status),
		Amount:        result.Transaction.Amount.StringFixed(2),
		Reference:     result.Transaction.Reference,
	})
	return result, nil
}
