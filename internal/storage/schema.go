package storage

import (
	"context"
	"fmt"
)

// EnsureSchema creates the pgvector extension and every table the service
// uses. Statements are idempotent so api and worker can both run it at
// startup. embedDim fixes the vector column width; changing it requires a
// wholesale rebuild of the passages table.
func EnsureSchema(ctx context.Context, db *DB, embedDim int) error {
	if embedDim <= 0 {
		embedDim = 768
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS batches (
			batch_id uuid PRIMARY KEY,
			name text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS sources (
			source_id text PRIMARY KEY,
			batch_id uuid NOT NULL REFERENCES batches(batch_id) ON DELETE CASCADE,
			filename text NOT NULL,
			kind text NOT NULL,
			row_count integer,
			status text NOT NULL DEFAULT 'pending',
			fail_reason text,
			created_at timestamptz NOT NULL DEFAULT NOW(),
			updated_at timestamptz NOT NULL DEFAULT NOW()
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS passages (
			passage_id text PRIMARY KEY,
			source_id text NOT NULL REFERENCES sources(source_id) ON DELETE CASCADE,
			batch_id uuid NOT NULL,
			passage_index integer NOT NULL,
			kind text NOT NULL,
			ref_number text,
			text text NOT NULL,
			metadata jsonb,
			embedding vector(%d),
			embedding_version text NOT NULL DEFAULT '',
			created_at timestamptz NOT NULL DEFAULT NOW()
		)`, embedDim),
		`CREATE INDEX IF NOT EXISTS passages_batch_idx ON passages (batch_id)`,
		`CREATE INDEX IF NOT EXISTS passages_source_idx ON passages (source_id)`,
		`CREATE INDEX IF NOT EXISTS passages_ref_idx ON passages (batch_id, ref_number)`,
		`CREATE INDEX IF NOT EXISTS passages_embedding_idx ON passages USING hnsw (embedding vector_cosine_ops)`,

		`CREATE TABLE IF NOT EXISTS report_runs (
			report_run_id uuid PRIMARY KEY,
			batch_id uuid NOT NULL,
			title text NOT NULL,
			questions jsonb NOT NULL DEFAULT '[]'::jsonb,
			status text NOT NULL DEFAULT 'queued',
			out_path text,
			created_at timestamptz NOT NULL DEFAULT NOW(),
			updated_at timestamptz NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS supplier_totals (
			batch_id uuid NOT NULL,
			supplier text NOT NULL,
			display_name text NOT NULL,
			invoice_count integer NOT NULL,
			total_value numeric(14,2) NOT NULL,
			PRIMARY KEY (batch_id, supplier)
		)`,

		`CREATE TABLE IF NOT EXISTS llm_calls (
			call_id uuid PRIMARY KEY,
			operation text NOT NULL,
			batch_id uuid,
			source_id text,
			provider_name text,
			model text,
			request_id text,
			status text,
			error_type text,
			latency_ms bigint,
			created_at timestamptz NOT NULL DEFAULT NOW()
		)`,
		`ALTER TABLE llm_calls ADD COLUMN IF NOT EXISTS latency_ms bigint`,
		`CREATE INDEX IF NOT EXISTS llm_calls_batch_idx ON llm_calls (batch_id, created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
