package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nvila/courtbook/internal/domain"
)

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const transactionColumns = `
id, org_id, type, status, amount, refunded_amount,
COALESCE(source_account_id::text, ''), COALESCE(destination_account_id::text, ''),
COALESCE(reference, ''), COALESCE(idempotency_key, ''), COALESCE(gateway_ref, ''),
metadata, created_at, completed_at`

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var tx domain.Transaction
	var txType, status string
	var metadata []byte
	err := row.Scan(
		&tx.ID, &tx.OrgID, &txType, &status, &tx.Amount, &tx.RefundedAmount,
		&tx.SourceAccountID, &tx.DestinationAccountID,
		&tx.Reference, &tx.IdempotencyKey, &tx.GatewayRef,
		&metadata, &tx.CreatedAt, &tx.CompletedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.Type = domain.TransactionType(txType)
	tx.Status = domain.TransactionStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return domain.Transaction{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return tx, nil
}

func (r *PaymentRepository) FindCompletedByIdempotencyKey(ctx context.Context, key string, since time.Time) (*domain.Transaction, error) {
	query := `
SELECT ` + transactionColumns + `
FROM transactions
WHERE idempotency_key = $1
  AND status IN ('completed', 'refunded', 'partial_refund')
  AND created_at >= $2`

	tx, err := scanTransaction(r.queryRow(ctx, query, key, since))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find transaction by idempotency key: %w", err)
	}
	return &tx, nil
}

func (r *PaymentRepository) GetAccountForUpdate(ctx context.Context, id string) (domain.Account, error) {
	const query = `SELECT id, org_id, owner_name, balance, created_at FROM accounts WHERE id = $1 FOR UPDATE`

	var a domain.Account
	err := r.queryRow(ctx, query, id).Scan(&a.ID, &a.OrgID, &a.OwnerName, &a.Balance, &a.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Account{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *PaymentRepository) UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	const stmt = `UPDATE accounts SET balance = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, balance)
	if err != nil {
		return fmt.Errorf("update account balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *PaymentRepository) CreateTransaction(ctx context.Context, tx domain.Transaction) error {
	const stmt = `
INSERT INTO transactions (id, org_id, type, status, amount, refunded_amount,
	source_account_id, destination_account_id, reference, idempotency_key, gateway_ref, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::uuid, NULLIF($8, '')::uuid, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12, $13)`

	var metadata []byte
	if len(tx.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(tx.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}

	_, err := r.exec(ctx, stmt,
		tx.ID, tx.OrgID, string(tx.Type), string(tx.Status), tx.Amount, tx.RefundedAmount,
		tx.SourceAccountID, tx.DestinationAccountID, tx.Reference, tx.IdempotencyKey, tx.GatewayRef,
		metadata, tx.CreatedAt,
	)
	if err != nil {
		// The partial-unique index on idempotency_key resolves concurrent
		// executions of one logical operation to a single winner.
		if isUniqueViolation(err) {
			return domain.ErrDuplicateTransaction
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetTransactionForUpdate(ctx context.Context, id string) (domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

	tx, err := scanTransaction(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Transaction{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Transaction{}, domain.ErrTransactionNotFound
		}
		return domain.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (r *PaymentRepository) GetTransactionByGatewayRef(ctx context.Context, ref string) (domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE gateway_ref = $1 FOR UPDATE`

	tx, err := scanTransaction(r.queryRow(ctx, query, ref))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Transaction{}, domain.ErrTransactionNotFound
		}
		return domain.Transaction{}, fmt.Errorf("get transaction by gateway ref: %w", err)
	}
	return tx, nil
}

func (r *PaymentRepository) MarkTransactionCompleted(ctx context.Context, id string, at time.Time) error {
	const stmt = `UPDATE transactions SET status = 'completed', completed_at = $2 WHERE id = $1 AND status = 'processing'`

	tag, err := r.exec(ctx, stmt, id, at)
	if err != nil {
		return fmt.Errorf("mark transaction completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotPending
	}
	return nil
}

func (r *PaymentRepository) MarkTransactionFailed(ctx context.Context, id string, at time.Time) error {
	const stmt = `UPDATE transactions SET status = 'failed', completed_at = $2 WHERE id = $1 AND status = 'processing'`

	tag, err := r.exec(ctx, stmt, id, at)
	if err != nil {
		return fmt.Errorf("mark transaction failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotPending
	}
	return nil
}

func (r *PaymentRepository) SetTransactionRefund(ctx context.Context, id string, status domain.TransactionStatus, refunded decimal.Decimal) error {
	const stmt = `UPDATE transactions SET status = $2, refunded_amount = $3 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, string(status), refunded)
	if err != nil {
		return fmt.Errorf("set transaction refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func (r *PaymentRepository) CreateMovement(ctx context.Context, m domain.Movement) error {
	const stmt = `
INSERT INTO movements (id, transaction_id, account_id, direction, amount, balance_after, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt, m.ID, m.TransactionID, m.AccountID, string(m.Direction), m.Amount, m.BalanceAfter, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create movement: %w", err)
	}
	return nil
}

func (r *PaymentRepository) CreateAuditRecord(ctx context.Context, a domain.AuditRecord) error {
	const stmt = `
INSERT INTO audit_records (id, transaction_id, actor, movements, created_at)
VALUES ($1, $2, $3, $4, $5)`

	movements, err := json.Marshal(a.Movements)
	if err != nil {
		return fmt.Errorf("encode movements: %w", err)
	}

	_, err = r.exec(ctx, stmt, a.ID, a.TransactionID, a.Actor, movements, a.CreatedAt)
	if err != nil {
		// The unique constraint keeps the audit 1:1 with its transaction.
		if isUniqueViolation(err) {
			return fmt.Errorf("audit record already exists for transaction %s", a.TransactionID)
		}
		return fmt.Errorf("create audit record: %w", err)
	}
	return nil
}

func (r *PaymentRepository) CreateRevenueEntry(ctx context.Context, e domain.RevenueEntry) error {
	const stmt = `
INSERT INTO revenue_entries (id, transaction_id, amount, concept, entry_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.exec(ctx, stmt, e.ID, e.TransactionID, e.Amount, e.Concept, e.EntryDate, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create revenue entry: %w", err)
	}
	return nil
}

func (r *PaymentRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *PaymentRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
