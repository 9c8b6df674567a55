package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"invoiceflow/internal/models"
	"invoiceflow/internal/util"
)

type ReportRepo struct {
	db *DB
}

func NewReportRepo(db *DB) *ReportRepo {
	return &ReportRepo{db: db}
}

func (r *ReportRepo) CreateRun(ctx context.Context, reportRunID, batchID, title string, questions []string) error {
	questionJSON, _ := json.Marshal(questions)
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO report_runs (report_run_id, batch_id, title, questions, status)
VALUES ($1, $2::uuid, $3, $4::jsonb, 'queued')`, reportRunID, batchID, title, string(questionJSON))
	if err != nil {
		return fmt.Errorf("create report run: %w", err)
	}
	return nil
}

func (r *ReportRepo) UpdateRunStatus(ctx context.Context, reportRunID, status, outPath string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE report_runs SET status=$2, out_path=NULLIF($3,''), updated_at=NOW() WHERE report_run_id=$1`, reportRunID, status, outPath)
	if err != nil {
		return fmt.Errorf("update report run: %w", err)
	}
	return nil
}

func (r *ReportRepo) GetRunPath(ctx context.Context, reportRunID string) (string, string, error) {
	var outPath string
	var status string
	err := r.db.Pool.QueryRow(ctx, `SELECT COALESCE(out_path,''), status FROM report_runs WHERE report_run_id=$1`, reportRunID).Scan(&outPath, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", fmt.Errorf("report run %s: %w", reportRunID, util.ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("get report run: %w", err)
	}
	return outPath, status, nil
}

func (r *ReportRepo) GetRun(ctx context.Context, reportRunID string) (models.ReportRun, error) {
	var run models.ReportRun
	var questionsRaw []byte
	err := r.db.Pool.QueryRow(ctx, `
SELECT report_run_id::text, batch_id::text, title, questions, status, COALESCE(out_path,''), created_at, updated_at
FROM report_runs
WHERE report_run_id=$1`, reportRunID).
		Scan(&run.ReportRunID, &run.BatchID, &run.Title, &questionsRaw, &run.Status, &run.OutPath, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ReportRun{}, fmt.Errorf("report run %s: %w", reportRunID, util.ErrNotFound)
	}
	if err != nil {
		return models.ReportRun{}, fmt.Errorf("get report run: %w", err)
	}
	if len(questionsRaw) > 0 {
		_ = json.Unmarshal(questionsRaw, &run.Questions)
	}
	return run, nil
}
