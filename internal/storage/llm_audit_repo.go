package storage

import (
	"context"
	"fmt"
	"time"
)

// LLMCallRecord is one audited provider call: who served it, for which batch
// and source, how long it took, and how it ended. Failed calls carry the
// classifier's error type so quota burn is visible per key alias.
type LLMCallRecord struct {
	CallID       string    `json:"call_id"`
	Operation    string    `json:"operation"`
	BatchID      string    `json:"batch_id,omitempty"`
	SourceID     string    `json:"source_id,omitempty"`
	ProviderName string    `json:"provider_name"`
	Model        string    `json:"model,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	Status       string    `json:"status"`
	ErrorType    string    `json:"error_type,omitempty"`
	LatencyMS    int64     `json:"latency_ms,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(call_id, operation, batch_id, source_id, provider_name, model, request_id, status, error_type, latency_ms)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, NULLIF($3,'')::uuid, NULLIF($4,''), $5, $6, $7, $8, NULLIF($9,''), NULLIF($10,0))`,
		rec.CallID, rec.Operation, rec.BatchID, rec.SourceID, rec.ProviderName, rec.Model, rec.RequestID, rec.Status, rec.ErrorType, rec.LatencyMS)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

// RecentCalls lists the newest audited calls for a batch, or across all
// batches when batchID is empty.
func (r *LLMAuditRepo) RecentCalls(ctx context.Context, batchID string, limit int) ([]LLMCallRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT call_id::text, operation, COALESCE(batch_id::text,''), COALESCE(source_id,''), COALESCE(provider_name,''),
       COALESCE(model,''), COALESCE(request_id,''), COALESCE(status,''), COALESCE(error_type,''), COALESCE(latency_ms,0), created_at
FROM llm_calls
WHERE ($1 = '' OR batch_id = NULLIF($1,'')::uuid)
ORDER BY created_at DESC
LIMIT $2`, batchID, limit)
	if err != nil {
		return nil, fmt.Errorf("list llm calls: %w", err)
	}
	defer rows.Close()

	out := make([]LLMCallRecord, 0, limit)
	for rows.Next() {
		var rec LLMCallRecord
		if err := rows.Scan(&rec.CallID, &rec.Operation, &rec.BatchID, &rec.SourceID, &rec.ProviderName,
			&rec.Model, &rec.RequestID, &rec.Status, &rec.ErrorType, &rec.LatencyMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan llm call: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate llm calls: %w", err)
	}
	return out, nil
}
