package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nvila/courtbook/internal/domain"
)

type ReconcileRepository struct {
	pool *pgxpool.Pool
}

func NewReconcileRepository(pool *pgxpool.Pool) *ReconcileRepository {
	return &ReconcileRepository{pool: pool}
}

func (r *ReconcileRepository) ListTransactionsByDate(ctx context.Context, date time.Time) ([]domain.Transaction, error) {
	query := `
SELECT ` + transactionColumns + `
FROM transactions
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, date, date.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list transactions by date: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *ReconcileRepository) ListRevenueByTransactionID(ctx context.Context, transactionID string) ([]domain.RevenueEntry, error) {
	const query = `
SELECT id, transaction_id, amount, concept, entry_date, created_at
FROM revenue_entries
WHERE transaction_id = $1
ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list revenue entries: %w", err)
	}
	defer rows.Close()

	var out []domain.RevenueEntry
	for rows.Next() {
		var e domain.RevenueEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.Amount, &e.Concept, &e.EntryDate, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revenue entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ReconcileRepository) ReservationExists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reservations WHERE id::text = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("reservation exists: %w", err)
	}
	return exists, nil
}

func (r *ReconcileRepository) CreateRevenueEntry(ctx context.Context, e domain.RevenueEntry) error {
	const stmt = `
INSERT INTO revenue_entries (id, transaction_id, amount, concept, entry_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.pool.Exec(ctx, stmt, e.ID, e.TransactionID, e.Amount, e.Concept, e.EntryDate, e.CreatedAt); err != nil {
		return fmt.Errorf("create revenue entry: %w", err)
	}
	return nil
}
