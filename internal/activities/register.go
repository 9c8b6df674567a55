package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListBatchFilesActivity)
	w.RegisterActivity(a.ComputeSourceIDActivity)
	w.RegisterActivity(a.ExtractTextActivity)
	w.RegisterActivity(a.ChunkPassagesActivity)
	w.RegisterActivity(a.IngestCSVActivity)
	w.RegisterActivity(a.UpsertPassagesActivity)
	w.RegisterActivity(a.DeleteBatchPassagesActivity)
	w.RegisterActivity(a.CheckIndexStateActivity)
	w.RegisterActivity(a.EmbedPassagesActivity)
	w.RegisterActivity(a.EmbedQueryActivity)
	w.RegisterActivity(a.SearchPassagesActivity)
	w.RegisterActivity(a.KeywordSearchActivity)
	w.RegisterActivity(a.LLMGenerateActivity)
	w.RegisterActivity(a.UpdateSourceStatusActivity)
	w.RegisterActivity(a.ListBatchSourcesActivity)
	w.RegisterActivity(a.ListFailedSourcesActivity)
	w.RegisterActivity(a.WriteSourceArtifactsActivity)
	w.RegisterActivity(a.WriteIngestSummaryActivity)
	w.RegisterActivity(a.WriteRunManifestActivity)
	w.RegisterActivity(a.ComputeBatchSummaryActivity)
	w.RegisterActivity(a.UpsertBatchSummaryActivity)
	w.RegisterActivity(a.GetBatchSummaryActivity)
	w.RegisterActivity(a.WriteReportDocumentActivity)
	w.RegisterActivity(a.UpdateReportRunActivity)
	w.RegisterActivity(a.LogLLMCallActivity)
}
