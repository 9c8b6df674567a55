package workflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"invoiceflow/internal/activities"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

func TestBatchIngestWorkflowRebuildsStaleEmptyBatch(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BatchIngestWorkflow)
	registerActivityName(env, "CheckIndexStateActivity", func(context.Context, activities.CheckIndexStateInput) (activities.CheckIndexStateOutput, error) {
		return activities.CheckIndexStateOutput{}, nil
	})
	registerActivityName(env, "DeleteBatchPassagesActivity", func(context.Context, activities.DeleteBatchPassagesInput) (activities.DeleteBatchPassagesOutput, error) {
		return activities.DeleteBatchPassagesOutput{}, nil
	})
	registerActivityName(env, "ListBatchFilesActivity", func(context.Context, activities.ListBatchFilesInput) (activities.ListBatchFilesOutput, error) {
		return activities.ListBatchFilesOutput{}, nil
	})
	registerActivityName(env, "ComputeBatchSummaryActivity", func(context.Context, activities.ComputeBatchSummaryInput) (activities.ComputeBatchSummaryOutput, error) {
		return activities.ComputeBatchSummaryOutput{}, nil
	})
	registerActivityName(env, "UpsertBatchSummaryActivity", func(context.Context, activities.UpsertBatchSummaryInput) error { return nil })
	registerActivityName(env, "WriteIngestSummaryActivity", func(context.Context, activities.WriteIngestSummaryInput) error { return nil })

	env.OnActivity("CheckIndexStateActivity", mock.Anything, mock.Anything).Return(activities.CheckIndexStateOutput{Total: 5, Current: 0, Embedded: 0, Stale: true}, nil)
	env.OnActivity("DeleteBatchPassagesActivity", mock.Anything, activities.DeleteBatchPassagesInput{BatchID: "b"}).Return(activities.DeleteBatchPassagesOutput{Deleted: 5}, nil)
	env.OnActivity("ListBatchFilesActivity", mock.Anything, mock.Anything).Return(activities.ListBatchFilesOutput{}, nil)
	env.OnActivity("ComputeBatchSummaryActivity", mock.Anything, mock.Anything).Return(activities.ComputeBatchSummaryOutput{}, nil)
	env.OnActivity("UpsertBatchSummaryActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteIngestSummaryActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(BatchIngestWorkflow, BatchIngestInput{BatchID: "b", InputDir: "/tmp/in"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)
}

func TestBatchIngestWorkflowFreshIndexSkipsWipe(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BatchIngestWorkflow)
	env.RegisterWorkflow(SourceProcessWorkflow)
	// DeleteBatchPassagesActivity stays unregistered: a call would fail the
	// workflow, which is exactly what a current index must not do.
	registerActivityName(env, "CheckIndexStateActivity", func(context.Context, activities.CheckIndexStateInput) (activities.CheckIndexStateOutput, error) {
		return activities.CheckIndexStateOutput{}, nil
	})
	registerActivityName(env, "ListBatchFilesActivity", func(context.Context, activities.ListBatchFilesInput) (activities.ListBatchFilesOutput, error) {
		return activities.ListBatchFilesOutput{}, nil
	})
	registerActivityName(env, "ComputeBatchSummaryActivity", func(context.Context, activities.ComputeBatchSummaryInput) (activities.ComputeBatchSummaryOutput, error) {
		return activities.ComputeBatchSummaryOutput{}, nil
	})
	registerActivityName(env, "UpsertBatchSummaryActivity", func(context.Context, activities.UpsertBatchSummaryInput) error { return nil })
	registerActivityName(env, "WriteIngestSummaryActivity", func(context.Context, activities.WriteIngestSummaryInput) error { return nil })

	env.OnActivity("CheckIndexStateActivity", mock.Anything, mock.Anything).Return(activities.CheckIndexStateOutput{Total: 3, Current: 3, Embedded: 3, Stale: false}, nil)
	env.OnActivity("ListBatchFilesActivity", mock.Anything, mock.Anything).Return(activities.ListBatchFilesOutput{
		CSVPaths: []string{"/tmp/in/b/202401_NFs_Cabecalho.csv"},
	}, nil)
	env.OnWorkflow(SourceProcessWorkflow, mock.Anything, mock.Anything).Return("processed", nil)
	env.OnActivity("ComputeBatchSummaryActivity", mock.Anything, mock.Anything).Return(activities.ComputeBatchSummaryOutput{}, nil)
	env.OnActivity("UpsertBatchSummaryActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteIngestSummaryActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(BatchIngestWorkflow, BatchIngestInput{BatchID: "b", InputDir: "/tmp/in/b"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	qr, err := env.QueryWorkflow(QueryGetProgress)
	require.NoError(t, err)
	var prog BatchIngestProgress
	require.NoError(t, qr.Get(&prog))
	require.False(t, prog.Rebuilt)
	require.Equal(t, 1, prog.Done)
	require.Equal(t, 0, prog.Failed)
}

func TestBatchIngestWorkflowCountsFailedChildrenOnce(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BatchIngestWorkflow)
	env.RegisterWorkflow(SourceProcessWorkflow)
	registerActivityName(env, "CheckIndexStateActivity", func(context.Context, activities.CheckIndexStateInput) (activities.CheckIndexStateOutput, error) {
		return activities.CheckIndexStateOutput{}, nil
	})
	registerActivityName(env, "ListBatchFilesActivity", func(context.Context, activities.ListBatchFilesInput) (activities.ListBatchFilesOutput, error) {
		return activities.ListBatchFilesOutput{}, nil
	})
	registerActivityName(env, "ComputeBatchSummaryActivity", func(context.Context, activities.ComputeBatchSummaryInput) (activities.ComputeBatchSummaryOutput, error) {
		return activities.ComputeBatchSummaryOutput{}, nil
	})
	registerActivityName(env, "UpsertBatchSummaryActivity", func(context.Context, activities.UpsertBatchSummaryInput) error { return nil })
	registerActivityName(env, "WriteIngestSummaryActivity", func(context.Context, activities.WriteIngestSummaryInput) error { return nil })

	env.OnActivity("CheckIndexStateActivity", mock.Anything, mock.Anything).Return(activities.CheckIndexStateOutput{Total: 2, Current: 2, Embedded: 2, Stale: false}, nil)
	env.OnActivity("ListBatchFilesActivity", mock.Anything, mock.Anything).Return(activities.ListBatchFilesOutput{
		CSVPaths: []string{"/tmp/in/b/202401_NFs_Cabecalho.csv"},
		PDFPaths: []string{"/tmp/in/b/nota_ilegivel.pdf"},
	}, nil)
	env.OnWorkflow(SourceProcessWorkflow, mock.Anything, mock.MatchedBy(func(in SourceProcessInput) bool {
		return strings.HasSuffix(in.Path, ".csv")
	})).Return("processed", nil)
	env.OnWorkflow(SourceProcessWorkflow, mock.Anything, mock.MatchedBy(func(in SourceProcessInput) bool {
		return strings.HasSuffix(in.Path, ".pdf")
	})).Return("failed", nil)
	env.OnActivity("ComputeBatchSummaryActivity", mock.Anything, mock.Anything).Return(activities.ComputeBatchSummaryOutput{}, nil)
	env.OnActivity("UpsertBatchSummaryActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteIngestSummaryActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(BatchIngestWorkflow, BatchIngestInput{BatchID: "b", InputDir: "/tmp/in/b"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	qr, err := env.QueryWorkflow(QueryGetProgress)
	require.NoError(t, err)
	var prog BatchIngestProgress
	require.NoError(t, qr.Get(&prog))
	require.Equal(t, 2, prog.Total)
	require.Equal(t, 1, prog.Done)
	require.Equal(t, 1, prog.Failed)
	require.Equal(t, "failed", prog.PerSource["/tmp/in/b/nota_ilegivel.pdf"])
}

func TestReportBuildWorkflowFallsBackToKeywordSearch(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ReportBuildWorkflow)
	registerActivityName(env, "UpdateReportRunActivity", func(context.Context, activities.UpdateReportRunInput) error { return nil })
	registerActivityName(env, "EmbedQueryActivity", func(context.Context, activities.EmbedQueryInput) (activities.EmbedQueryOutput, error) {
		return activities.EmbedQueryOutput{}, nil
	})
	registerActivityName(env, "KeywordSearchActivity", func(context.Context, activities.KeywordSearchInput) (activities.KeywordSearchOutput, error) {
		return activities.KeywordSearchOutput{}, nil
	})
	registerActivityName(env, "LLMGenerateActivity", func(context.Context, activities.LLMGenerateInput) (activities.LLMGenerateOutput, error) {
		return activities.LLMGenerateOutput{}, nil
	})
	registerActivityName(env, "LogLLMCallActivity", func(context.Context, activities.LogLLMCallInput) error { return nil })
	registerActivityName(env, "GetBatchSummaryActivity", func(context.Context, activities.GetBatchSummaryInput) (activities.GetBatchSummaryOutput, error) {
		return activities.GetBatchSummaryOutput{}, nil
	})
	registerActivityName(env, "WriteReportDocumentActivity", func(context.Context, activities.WriteReportDocumentInput) (activities.WriteReportDocumentOutput, error) {
		return activities.WriteReportDocumentOutput{}, nil
	})

	env.OnActivity("UpdateReportRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("EmbedQueryActivity", mock.Anything, mock.Anything).Return(activities.EmbedQueryOutput{}, errors.New("insufficient_quota: embeddings disabled"))
	env.OnActivity("KeywordSearchActivity", mock.Anything, mock.Anything).Return(activities.KeywordSearchOutput{Results: []activities.PassageHit{{
		SourceID: "s1", Filename: "202401_NFs_Cabecalho.csv", PassageID: "p1", Kind: "csv_header", RefNumber: "123", Snippet: "Nota fiscal 123", Score: 2, Text: "Nota fiscal 123 fornecedor ACME valor 100",
	}}}, nil)
	env.OnActivity("LLMGenerateActivity", mock.Anything, mock.MatchedBy(func(in activities.LLMGenerateInput) bool {
		return in.Operation == "report_section"
	})).Return(activities.LLMGenerateOutput{Text: "A nota 123 foi emitida pela ACME.", ProviderName: "mock", Model: "mock"}, nil)
	env.OnActivity("LLMGenerateActivity", mock.Anything, mock.MatchedBy(func(in activities.LLMGenerateInput) bool {
		return in.Operation == "report_summary"
	})).Return(activities.LLMGenerateOutput{Text: `{"resumo":"Lote com uma nota da ACME.","destaques":["NF 123 emitida pela ACME"]}`, ProviderName: "mock", Model: "mock"}, nil)
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("GetBatchSummaryActivity", mock.Anything, mock.Anything).Return(activities.GetBatchSummaryOutput{}, nil)
	env.OnActivity("WriteReportDocumentActivity", mock.Anything, mock.MatchedBy(func(in activities.WriteReportDocumentInput) bool {
		return in.ReportRunID == "run1"
	})).Return(activities.WriteReportDocumentOutput{OutPath: "/tmp/out/b/reports/run1/report.md"}, nil)

	env.ExecuteWorkflow(ReportBuildWorkflow, ReportBuildInput{
		ReportRunID:    "run1",
		BatchID:        "b",
		Questions:      []string{"Qual fornecedor emitiu a nota 123?"},
		EmbedProviders: 1,
		LLMProviders:   1,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "/tmp/out/b/reports/run1/report.md", out)
}

func TestReportBuildWorkflowSendsPinnedProviderRef(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ReportBuildWorkflow)
	registerActivityName(env, "UpdateReportRunActivity", func(context.Context, activities.UpdateReportRunInput) error { return nil })
	registerActivityName(env, "EmbedQueryActivity", func(context.Context, activities.EmbedQueryInput) (activities.EmbedQueryOutput, error) {
		return activities.EmbedQueryOutput{}, nil
	})
	registerActivityName(env, "KeywordSearchActivity", func(context.Context, activities.KeywordSearchInput) (activities.KeywordSearchOutput, error) {
		return activities.KeywordSearchOutput{}, nil
	})
	registerActivityName(env, "LLMGenerateActivity", func(context.Context, activities.LLMGenerateInput) (activities.LLMGenerateOutput, error) {
		return activities.LLMGenerateOutput{}, nil
	})
	registerActivityName(env, "LogLLMCallActivity", func(context.Context, activities.LogLLMCallInput) error { return nil })
	registerActivityName(env, "GetBatchSummaryActivity", func(context.Context, activities.GetBatchSummaryInput) (activities.GetBatchSummaryOutput, error) {
		return activities.GetBatchSummaryOutput{}, nil
	})
	registerActivityName(env, "WriteReportDocumentActivity", func(context.Context, activities.WriteReportDocumentInput) (activities.WriteReportDocumentOutput, error) {
		return activities.WriteReportDocumentOutput{}, nil
	})

	env.OnActivity("UpdateReportRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("EmbedQueryActivity", mock.Anything, mock.Anything).Return(activities.EmbedQueryOutput{}, errors.New("insufficient_quota: embeddings disabled"))
	env.OnActivity("KeywordSearchActivity", mock.Anything, mock.Anything).Return(activities.KeywordSearchOutput{}, nil)
	// Only generate calls carrying the pinned ref are expected; a call without
	// it would match nothing and fail the workflow.
	env.OnActivity("LLMGenerateActivity", mock.Anything, mock.MatchedBy(func(in activities.LLMGenerateInput) bool {
		return in.ProviderRef == "groq:paid"
	})).Return(activities.LLMGenerateOutput{Text: "Sem dados para responder.", ProviderName: "groq", Model: "llama-3.3-70b-versatile"}, nil)
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("GetBatchSummaryActivity", mock.Anything, mock.Anything).Return(activities.GetBatchSummaryOutput{}, nil)
	env.OnActivity("WriteReportDocumentActivity", mock.Anything, mock.Anything).Return(activities.WriteReportDocumentOutput{OutPath: "/tmp/out/b/reports/run2/report.md"}, nil)

	env.ExecuteWorkflow(ReportBuildWorkflow, ReportBuildInput{
		ReportRunID:     "run2",
		BatchID:         "b",
		Questions:       []string{"Qual o valor total do lote?"},
		EmbedProviders:  1,
		LLMProviders:    2,
		LLMProviderRefs: []string{"groq:paid"},
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "/tmp/out/b/reports/run2/report.md", out)
}

func TestBackfillWorkflowReembedAllWipesPassages(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BackfillWorkflow)
	env.RegisterWorkflow(SourceProcessWorkflow)
	registerActivityName(env, "ListBatchSourcesActivity", func(context.Context, activities.ListBatchSourcesInput) (activities.ListBatchSourcesOutput, error) {
		return activities.ListBatchSourcesOutput{}, nil
	})
	registerActivityName(env, "DeleteBatchPassagesActivity", func(context.Context, activities.DeleteBatchPassagesInput) (activities.DeleteBatchPassagesOutput, error) {
		return activities.DeleteBatchPassagesOutput{}, nil
	})
	registerActivityName(env, "WriteRunManifestActivity", func(context.Context, activities.WriteRunManifestInput) (activities.WriteRunManifestOutput, error) {
		return activities.WriteRunManifestOutput{}, nil
	})

	env.OnActivity("ListBatchSourcesActivity", mock.Anything, activities.ListBatchSourcesInput{BatchID: "b"}).Return(activities.ListBatchSourcesOutput{
		Sources: []activities.BatchSource{{SourceID: "s1", Filename: "nota.pdf", Kind: "pdf", Status: "processed"}},
	}, nil)
	env.OnActivity("DeleteBatchPassagesActivity", mock.Anything, activities.DeleteBatchPassagesInput{BatchID: "b"}).Return(activities.DeleteBatchPassagesOutput{Deleted: 7}, nil).Times(1)
	env.OnWorkflow(SourceProcessWorkflow, mock.Anything, mock.Anything).Return("processed", nil)
	env.OnActivity("WriteRunManifestActivity", mock.Anything, mock.MatchedBy(func(in activities.WriteRunManifestInput) bool {
		deleted, ok := in.Manifest["deleted_passages"]
		return ok && fmt.Sprintf("%v", deleted) == "7"
	})).Return(activities.WriteRunManifestOutput{Path: "/tmp/out/b/runs/r1/manifest.json"}, nil)

	env.ExecuteWorkflow(BackfillWorkflow, BackfillInput{BatchID: "b", Mode: "REEMBED_ALL", DataInRoot: "/tmp/in"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestBackfillWorkflowRejectsUnknownMode(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BackfillWorkflow)

	env.ExecuteWorkflow(BackfillWorkflow, BackfillInput{BatchID: "b", Mode: "REPAINT_EVERYTHING"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
