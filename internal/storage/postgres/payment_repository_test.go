package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nvila/courtbook/internal/domain"
	"github.com/nvila/courtbook/internal/testutil"
)

func TestPaymentRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewPaymentRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	orgID := uuid.NewString()
	makeTransaction := func(key string) domain.Transaction {
		return domain.Transaction{
			ID:             uuid.NewString(),
			OrgID:          orgID,
			Type:           domain.TxPayment,
			Status:         domain.TxProcessing,
			Amount:         decimal.NewFromInt(40),
			RefundedAmount: decimal.Zero,
			IdempotencyKey: key,
			CreatedAt:      time.Now().UTC(),
		}
	}

	t.Run("idempotency key lookup covers settled transactions", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		tx := makeTransaction("key-1")
		if err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}

		since := time.Now().UTC().Add(-time.Hour)
		found, err := repo.FindCompletedByIdempotencyKey(ctx, "key-1", since)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found != nil {
			t.Fatalf("processing transaction must not satisfy the lookup, got %+v", found)
		}

		if err := repo.MarkTransactionCompleted(ctx, tx.ID, time.Now().UTC()); err != nil {
			t.Fatalf("complete: %v", err)
		}
		found, err = repo.FindCompletedByIdempotencyKey(ctx, "key-1", since)
		if err != nil {
			t.Fatalf("find after completion: %v", err)
		}
		if found == nil || found.ID != tx.ID {
			t.Fatalf("expected the completed transaction, got %+v", found)
		}

		// Outside the window the key is free again.
		found, err = repo.FindCompletedByIdempotencyKey(ctx, "key-1", time.Now().UTC().Add(time.Hour))
		if err != nil {
			t.Fatalf("find outside window: %v", err)
		}
		if found != nil {
			t.Fatalf("expected no match outside the window, got %+v", found)
		}
	})

	t.Run("partial unique index rejects concurrent duplicates", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if err := repo.CreateTransaction(ctx, makeTransaction("key-race")); err != nil {
			t.Fatalf("first insert: %v", err)
		}
		// Even a still-processing holder of the key wins the race.
		if err := repo.CreateTransaction(ctx, makeTransaction("key-race")); err != domain.ErrDuplicateTransaction {
			t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
		}

		// A failed transaction releases its key.
		failed := makeTransaction("key-retry")
		if err := repo.CreateTransaction(ctx, failed); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := repo.MarkTransactionFailed(ctx, failed.ID, time.Now().UTC()); err != nil {
			t.Fatalf("fail: %v", err)
		}
		if err := repo.CreateTransaction(ctx, makeTransaction("key-retry")); err != nil {
			t.Fatalf("expected retry after failure to insert, got %v", err)
		}
	})

	t.Run("status guards reject double settlement", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		tx := makeTransaction("key-settle")
		if err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := repo.MarkTransactionCompleted(ctx, tx.ID, time.Now().UTC()); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if err := repo.MarkTransactionCompleted(ctx, tx.ID, time.Now().UTC()); err != domain.ErrTransactionNotPending {
			t.Fatalf("expected ErrTransactionNotPending, got %v", err)
		}
		if err := repo.MarkTransactionFailed(ctx, tx.ID, time.Now().UTC()); err != domain.ErrTransactionNotPending {
			t.Fatalf("expected ErrTransactionNotPending, got %v", err)
		}
	})

	t.Run("account balance round trip", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		accountID := testutil.InsertAccount(t, ctx, pool, orgID, "Payer", decimal.NewFromInt(100))

		a, err := repo.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !a.Balance.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("expected balance 100, got %s", a.Balance)
		}

		if err := repo.UpdateAccountBalance(ctx, accountID, decimal.NewFromInt(60)); err != nil {
			t.Fatalf("update: %v", err)
		}
		if got := testutil.AccountBalance(t, ctx, pool, accountID); !got.Equal(decimal.NewFromInt(60)) {
			t.Fatalf("expected balance 60, got %s", got)
		}

		if _, err := repo.GetAccountForUpdate(ctx, uuid.NewString()); err != domain.ErrAccountNotFound {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("audit record is unique per transaction", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		tx := makeTransaction("key-audit")
		if err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}

		audit := domain.AuditRecord{
			ID:            uuid.NewString(),
			TransactionID: tx.ID,
			Actor:         "user-1",
			CreatedAt:     time.Now().UTC(),
		}
		if err := repo.CreateAuditRecord(ctx, audit); err != nil {
			t.Fatalf("first audit: %v", err)
		}

		dup := audit
		dup.ID = uuid.NewString()
		err := repo.CreateAuditRecord(ctx, dup)
		if err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Fatalf("expected duplicate audit rejection, got %v", err)
		}
	})

	t.Run("audit records are immutable", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		tx := makeTransaction("key-immutable")
		if err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}
		audit := domain.AuditRecord{
			ID:            uuid.NewString(),
			TransactionID: tx.ID,
			CreatedAt:     time.Now().UTC(),
		}
		if err := repo.CreateAuditRecord(ctx, audit); err != nil {
			t.Fatalf("audit: %v", err)
		}

		if _, err := pool.Exec(ctx, `UPDATE audit_records SET actor = 'tamper' WHERE id = $1`, audit.ID); err == nil {
			t.Fatalf("expected update to be rejected")
		}
		if _, err := pool.Exec(ctx, `DELETE FROM audit_records WHERE id = $1`, audit.ID); err == nil {
			t.Fatalf("expected delete to be rejected")
		}
	})

	t.Run("gateway ref lookup", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		tx := makeTransaction("key-gw")
		tx.GatewayRef = "gw-ref-1"
		if err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}

		got, err := repo.GetTransactionByGatewayRef(ctx, "gw-ref-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.ID != tx.ID {
			t.Fatalf("expected %s, got %s", tx.ID, got.ID)
		}
		if _, err := repo.GetTransactionByGatewayRef(ctx, "missing"); err != domain.ErrTransactionNotFound {
			t.Fatalf("expected ErrTransactionNotFound, got %v", err)
		}
	})

	t.Run("refund bookkeeping on the original", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		tx := makeTransaction("key-refund")
		if err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := repo.MarkTransactionCompleted(ctx, tx.ID, time.Now().UTC()); err != nil {
			t.Fatalf("complete: %v", err)
		}

		if err := repo.SetTransactionRefund(ctx, tx.ID, domain.TxPartialRefund, decimal.NewFromInt(15)); err != nil {
			t.Fatalf("set refund: %v", err)
		}
		got, err := repo.GetTransactionForUpdate(ctx, tx.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != domain.TxPartialRefund || !got.RefundedAmount.Equal(decimal.NewFromInt(15)) {
			t.Fatalf("unexpected refund state: %+v", got)
		}
	})
}
