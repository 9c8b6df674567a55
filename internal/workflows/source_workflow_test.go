package workflows

import (
	"context"
	"errors"
	"testing"

	"invoiceflow/internal/activities"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func TestSourceProcessWorkflowPDFSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SourceProcessWorkflow)
	registerActivityName(env, "ComputeSourceIDActivity", func(context.Context, activities.ComputeSourceIDInput) (activities.ComputeSourceIDOutput, error) {
		return activities.ComputeSourceIDOutput{}, nil
	})
	registerActivityName(env, "UpdateSourceStatusActivity", func(context.Context, activities.UpdateSourceStatusInput) error { return nil })
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})
	registerActivityName(env, "ChunkPassagesActivity", func(context.Context, activities.ChunkPassagesInput) (activities.ChunkPassagesOutput, error) {
		return activities.ChunkPassagesOutput{}, nil
	})
	registerActivityName(env, "EmbedPassagesActivity", func(context.Context, activities.EmbedPassagesInput) (activities.EmbedPassagesOutput, error) {
		return activities.EmbedPassagesOutput{}, nil
	})
	registerActivityName(env, "UpsertPassagesActivity", func(context.Context, activities.UpsertPassagesInput) error { return nil })
	registerActivityName(env, "WriteSourceArtifactsActivity", func(context.Context, activities.WriteSourceArtifactsInput) error { return nil })
	registerActivityName(env, "LogLLMCallActivity", func(context.Context, activities.LogLLMCallInput) error { return nil })

	env.OnActivity("ComputeSourceIDActivity", mock.Anything, activities.ComputeSourceIDInput{Path: "/tmp/nf.pdf"}).Return(activities.ComputeSourceIDOutput{SourceID: "source123"}, nil)
	env.OnActivity("UpdateSourceStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, activities.ExtractTextInput{Path: "/tmp/nf.pdf"}).Return(activities.ExtractTextOutput{Text: "--- Página 1 ---\nNOTA FISCAL 123", PageCount: 1}, nil)
	env.OnActivity("ChunkPassagesActivity", mock.Anything, mock.Anything).Return(activities.ChunkPassagesOutput{Passages: []activities.PassageItem{{PassageID: "p1", SourceID: "source123", BatchID: "b", PassageIndex: 0, Kind: "pdf_text", Text: "NOTA FISCAL 123"}}}, nil)
	env.OnActivity("EmbedPassagesActivity", mock.Anything, mock.Anything).Return(activities.EmbedPassagesOutput{Vectors: [][]float32{{0.1, 0.2}}, ProviderName: "mock", Model: "mock"}, nil)
	env.OnActivity("UpsertPassagesActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteSourceArtifactsActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(SourceProcessWorkflow, SourceProcessInput{BatchID: "b", Path: "/tmp/nf.pdf", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out)
}

func TestSourceProcessWorkflowNoTextFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SourceProcessWorkflow)
	registerActivityName(env, "ComputeSourceIDActivity", func(context.Context, activities.ComputeSourceIDInput) (activities.ComputeSourceIDOutput, error) {
		return activities.ComputeSourceIDOutput{}, nil
	})
	registerActivityName(env, "UpdateSourceStatusActivity", func(context.Context, activities.UpdateSourceStatusInput) error { return nil })
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})

	env.OnActivity("ComputeSourceIDActivity", mock.Anything, mock.Anything).Return(activities.ComputeSourceIDOutput{SourceID: "source123"}, nil)
	env.OnActivity("UpdateSourceStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(activities.ExtractTextOutput{}, errors.New("no extractable text found in PDF"))

	env.ExecuteWorkflow(SourceProcessWorkflow, SourceProcessInput{BatchID: "b", Path: "/tmp/nf.pdf", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}

func TestSourceProcessWorkflowEmptyCSVCompletes(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SourceProcessWorkflow)
	registerActivityName(env, "ComputeSourceIDActivity", func(context.Context, activities.ComputeSourceIDInput) (activities.ComputeSourceIDOutput, error) {
		return activities.ComputeSourceIDOutput{}, nil
	})
	registerActivityName(env, "UpdateSourceStatusActivity", func(context.Context, activities.UpdateSourceStatusInput) error { return nil })
	registerActivityName(env, "IngestCSVActivity", func(context.Context, activities.IngestCSVInput) (activities.IngestCSVOutput, error) {
		return activities.IngestCSVOutput{}, nil
	})

	env.OnActivity("ComputeSourceIDActivity", mock.Anything, mock.Anything).Return(activities.ComputeSourceIDOutput{SourceID: "source123"}, nil)
	env.OnActivity("UpdateSourceStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("IngestCSVActivity", mock.Anything, mock.Anything).Return(activities.IngestCSVOutput{Passages: nil, RowCount: 0, Kind: "csv_header"}, nil)

	// The missing-file case ends here: no embed or upsert activities are
	// registered, so reaching them would fail the workflow.
	env.ExecuteWorkflow(SourceProcessWorkflow, SourceProcessInput{BatchID: "b", Path: "/tmp/202401_NFs_Cabecalho.csv", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out)
}

func TestSourceProcessWorkflowEmbedExhaustedKeepsPassages(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SourceProcessWorkflow)
	registerActivityName(env, "ComputeSourceIDActivity", func(context.Context, activities.ComputeSourceIDInput) (activities.ComputeSourceIDOutput, error) {
		return activities.ComputeSourceIDOutput{}, nil
	})
	registerActivityName(env, "UpdateSourceStatusActivity", func(context.Context, activities.UpdateSourceStatusInput) error { return nil })
	registerActivityName(env, "IngestCSVActivity", func(context.Context, activities.IngestCSVInput) (activities.IngestCSVOutput, error) {
		return activities.IngestCSVOutput{}, nil
	})
	registerActivityName(env, "EmbedPassagesActivity", func(context.Context, activities.EmbedPassagesInput) (activities.EmbedPassagesOutput, error) {
		return activities.EmbedPassagesOutput{}, nil
	})
	registerActivityName(env, "UpsertPassagesActivity", func(context.Context, activities.UpsertPassagesInput) error { return nil })
	registerActivityName(env, "WriteSourceArtifactsActivity", func(context.Context, activities.WriteSourceArtifactsInput) error { return nil })
	registerActivityName(env, "LogLLMCallActivity", func(context.Context, activities.LogLLMCallInput) error { return nil })

	env.OnActivity("ComputeSourceIDActivity", mock.Anything, mock.Anything).Return(activities.ComputeSourceIDOutput{SourceID: "source123"}, nil)
	env.OnActivity("UpdateSourceStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("IngestCSVActivity", mock.Anything, mock.Anything).Return(activities.IngestCSVOutput{
		Passages: []activities.PassageItem{{PassageID: "p1", SourceID: "source123", BatchID: "b", Kind: "csv_header", RefNumber: "123", Text: "Nota fiscal 123"}},
		RowCount: 1,
		Kind:     "csv_header",
	}, nil)
	env.OnActivity("EmbedPassagesActivity", mock.Anything, mock.Anything).Return(activities.EmbedPassagesOutput{}, errors.New("insufficient_quota: provider quota exhausted"))
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("UpsertPassagesActivity", mock.Anything, mock.MatchedBy(func(in activities.UpsertPassagesInput) bool {
		return in.EmbeddingVersion == "" && len(in.Vectors) == 0 && len(in.Passages) == 1
	})).Return(nil)
	env.OnActivity("WriteSourceArtifactsActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(SourceProcessWorkflow, SourceProcessInput{BatchID: "b", Path: "/tmp/202401_NFs_Cabecalho.csv", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out)
}
