package storage

import (
	"context"
	"fmt"

	"invoiceflow/internal/models"
)

// SummaryRepo stores the per-batch supplier aggregates derived from invoice
// header rows. The set is replaced wholesale in one transaction so readers
// never observe a half-built summary.
type SummaryRepo struct {
	db *DB
}

func NewSummaryRepo(db *DB) *SummaryRepo {
	return &SummaryRepo{db: db}
}

func (r *SummaryRepo) ReplaceBatchSummary(ctx context.Context, batchID string, totals []models.SupplierTotal) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx replace summary: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM supplier_totals WHERE batch_id=$1::uuid`, batchID); err != nil {
		return fmt.Errorf("clear batch summary: %w", err)
	}
	for _, t := range totals {
		_, err := tx.Exec(ctx, `
INSERT INTO supplier_totals (batch_id, supplier, display_name, invoice_count, total_value)
VALUES ($1::uuid, $2, $3, $4, $5)`,
			batchID, t.Supplier, t.DisplayName, t.InvoiceCount, t.TotalValue)
		if err != nil {
			return fmt.Errorf("insert supplier total %s: %w", t.Supplier, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit summary tx: %w", err)
	}
	return nil
}

func (r *SummaryRepo) GetBatchSummary(ctx context.Context, batchID string) ([]models.SupplierTotal, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT batch_id::text, supplier, display_name, invoice_count, total_value
FROM supplier_totals
WHERE batch_id=$1::uuid
ORDER BY total_value DESC, supplier ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("get batch summary: %w", err)
	}
	defer rows.Close()

	out := make([]models.SupplierTotal, 0)
	for rows.Next() {
		var t models.SupplierTotal
		if err := rows.Scan(&t.BatchID, &t.Supplier, &t.DisplayName, &t.InvoiceCount, &t.TotalValue); err != nil {
			return nil, fmt.Errorf("scan supplier total: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate supplier totals: %w", err)
	}
	return out, nil
}
