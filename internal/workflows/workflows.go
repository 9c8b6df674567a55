package workflows

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"invoiceflow/internal/activities"
	"invoiceflow/internal/ingest"
	"invoiceflow/internal/models"
	"invoiceflow/internal/providers"
	"invoiceflow/internal/qa"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetSourceStatus   = "GetSourceStatus"
	QueryGetProgress       = "GetProgress"
	QueryGetReportProgress = "GetReportProgress"
)

type providerState struct {
	disabledUntil map[int]time.Time
	retries       map[string]int
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}, retries: map[string]int{}}
}

func BatchIngestWorkflow(ctx workflow.Context, input BatchIngestInput) (string, error) {
	progress := BatchIngestProgress{
		BatchID:       input.BatchID,
		PerSource:     map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (BatchIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	embedVersion := defaultEmbedVersion(input.EmbedVersion)
	var indexState activities.CheckIndexStateOutput
	if err := workflow.ExecuteActivity(ctx, "CheckIndexStateActivity", activities.CheckIndexStateInput{BatchID: input.BatchID, EmbedVersion: embedVersion}).Get(ctx, &indexState); err != nil {
		return "", err
	}
	if indexState.Stale {
		logger.Info("stored passages are at an older version; rebuilding batch", "total", indexState.Total, "current", indexState.Current)
		var deleted activities.DeleteBatchPassagesOutput
		if err := workflow.ExecuteActivity(ctx, "DeleteBatchPassagesActivity", activities.DeleteBatchPassagesInput{BatchID: input.BatchID}).Get(ctx, &deleted); err != nil {
			return "", err
		}
		progress.Rebuilt = true
	}

	var listOut activities.ListBatchFilesOutput
	if err := workflow.ExecuteActivity(ctx, "ListBatchFilesActivity", activities.ListBatchFilesInput{InputDir: input.InputDir}).Get(ctx, &listOut); err != nil {
		return "", err
	}
	// CSVs first so the structured invoice rows land before the slower PDFs.
	paths := append(append([]string{}, listOut.CSVPaths...), listOut.PDFPaths...)
	progress.Total = len(paths)
	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	for i := 0; i < len(paths); i += maxChildren {
		end := i + maxChildren
		if end > len(paths) {
			end = len(paths)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		childPaths := make([]string, 0, end-i)
		for _, path := range paths[i:end] {
			progress.PerSource[path] = "processing"
			workflowID := "source-" + sanitizeID(input.BatchID) + "-" + sanitizeID(filepathBase(path))
			cwo := workflow.ChildWorkflowOptions{WorkflowID: workflowID}
			childCtx := workflow.WithChildOptions(ctx, cwo)
			f := workflow.ExecuteChildWorkflow(childCtx, SourceProcessWorkflow, SourceProcessInput{
				BatchID:         input.BatchID,
				Path:            path,
				ChunkVersion:    defaultChunkVersion(input.ChunkVersion),
				EmbedVersion:    embedVersion,
				EmbedProviders:  input.EmbedProviders,
				CooldownSeconds: input.CooldownSeconds,
			})
			futures = append(futures, f)
			childPaths = append(childPaths, path)
			progress.ChildWorkflow[path] = workflowID
		}

		for idx, f := range futures {
			var childStatus string
			err := f.Get(ctx, &childStatus)
			path := childPaths[idx]
			if err != nil {
				progress.Failed++
				progress.PerSource[path] = "failed"
				continue
			}
			if childStatus == "failed" {
				progress.Failed++
			} else {
				progress.Done++
			}
			progress.PerSource[path] = childStatus
		}
	}

	// Refresh per-supplier totals from whatever header rows made it in.
	var totalsOut activities.ComputeBatchSummaryOutput
	if err := workflow.ExecuteActivity(ctx, "ComputeBatchSummaryActivity", activities.ComputeBatchSummaryInput{BatchID: input.BatchID}).Get(ctx, &totalsOut); err == nil {
		_ = workflow.ExecuteActivity(ctx, "UpsertBatchSummaryActivity", activities.UpsertBatchSummaryInput{BatchID: input.BatchID, Totals: totalsOut.Totals}).Get(ctx, nil)
	}

	_ = workflow.ExecuteActivity(ctx, "WriteIngestSummaryActivity", activities.WriteIngestSummaryInput{
		BatchID: input.BatchID,
		Summary: map[string]any{
			"batch_id":          input.BatchID,
			"total":             progress.Total,
			"done":              progress.Done,
			"failed":            progress.Failed,
			"rebuilt":           progress.Rebuilt,
			"per_source_status": progress.PerSource,
			"generated_at":      workflow.Now(ctx),
		},
	}).Get(ctx, nil)

	return "completed", nil
}

func SourceProcessWorkflow(ctx workflow.Context, input SourceProcessInput) (string, error) {
	status := SourceStatus{
		Path:        input.Path,
		Kind:        input.Kind,
		CurrentStep: "init",
		Status:      "processing",
		RetryCounts: map[string]int{},
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetSourceStatus, func() (SourceStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)
	filename := filepath.Base(input.Path)
	if status.Kind == "" {
		status.Kind = ingest.ClassifyFilename(input.Path)
	}
	cooldown := durationOrDefault(input.CooldownSeconds, 900)
	providerCount := input.EmbedProviders
	if providerCount <= 0 {
		providerCount = 1
	}
	state := newProviderState()

	status.CurrentStep = "compute_source_id"
	status.Steps[status.CurrentStep] = "processing"
	var computeOut activities.ComputeSourceIDOutput
	if err := workflow.ExecuteActivity(ctx, "ComputeSourceIDActivity", activities.ComputeSourceIDInput{Path: input.Path}).Get(ctx, &computeOut); err != nil {
		return "", err
	}
	status.SourceID = computeOut.SourceID
	status.Steps[status.CurrentStep] = "done"

	_ = workflow.ExecuteActivity(ctx, "UpdateSourceStatusActivity", activities.UpdateSourceStatusInput{SourceID: computeOut.SourceID, BatchID: input.BatchID, Filename: filename, Kind: status.Kind, Status: "processing"})

	var passages []activities.PassageItem
	rowCount := 0

	if status.Kind == models.SourcePDF {
		status.CurrentStep = "extract_text"
		status.Steps[status.CurrentStep] = "processing"
		var textOut activities.ExtractTextOutput
		if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{Path: input.Path}).Get(ctx, &textOut); err != nil {
			if isNoTextError(err) {
				status.Status = "failed"
				status.FailReason = "no extractable text found (scanned image or empty PDF)"
				status.Steps[status.CurrentStep] = "failed"
				_ = workflow.ExecuteActivity(ctx, "UpdateSourceStatusActivity", activities.UpdateSourceStatusInput{SourceID: computeOut.SourceID, BatchID: input.BatchID, Filename: filename, Kind: status.Kind, Status: "failed", FailReason: status.FailReason}).Get(ctx, nil)
				logger.Warn("pdf skipped: no extractable text", "filename", filename)
				return status.Status, nil
			}
			return "", err
		}
		status.Steps[status.CurrentStep] = "done"

		status.CurrentStep = "chunk_passages"
		status.Steps[status.CurrentStep] = "processing"
		var chunkOut activities.ChunkPassagesOutput
		if err := workflow.ExecuteActivity(ctx, "ChunkPassagesActivity", activities.ChunkPassagesInput{SourceID: computeOut.SourceID, BatchID: input.BatchID, Text: textOut.Text, ChunkSize: input.ChunkSize, ChunkOverlap: input.ChunkOverlap, Version: defaultChunkVersion(input.ChunkVersion)}).Get(ctx, &chunkOut); err != nil {
			return "", err
		}
		passages = chunkOut.Passages
		status.Steps[status.CurrentStep] = "done"
	} else {
		status.CurrentStep = "ingest_rows"
		status.Steps[status.CurrentStep] = "processing"
		var csvOut activities.IngestCSVOutput
		if err := workflow.ExecuteActivity(ctx, "IngestCSVActivity", activities.IngestCSVInput{SourceID: computeOut.SourceID, BatchID: input.BatchID, Path: input.Path, Kind: input.Kind, Version: defaultChunkVersion(input.ChunkVersion)}).Get(ctx, &csvOut); err != nil {
			return "", err
		}
		passages = csvOut.Passages
		rowCount = csvOut.RowCount
		if csvOut.Kind != "" {
			status.Kind = csvOut.Kind
		}
		status.RowCount = rowCount
		status.Steps[status.CurrentStep] = "done"
	}

	if len(passages) == 0 {
		logger.Warn("source produced no passages", "filename", filename)
		status.CurrentStep = "done"
		status.Status = "processed"
		if err := workflow.ExecuteActivity(ctx, "UpdateSourceStatusActivity", activities.UpdateSourceStatusInput{SourceID: computeOut.SourceID, BatchID: input.BatchID, Filename: filename, Kind: status.Kind, RowCount: rowCount, Status: "processed"}).Get(ctx, nil); err != nil {
			return "", err
		}
		return status.Status, nil
	}

	status.CurrentStep = "embed_passages"
	status.Steps[status.CurrentStep] = "processing"
	embedVersion := defaultEmbedVersion(input.EmbedVersion)
	var vectors [][]float32
	embedOut, err := callEmbedWithFailover(ctx, &state, providerCount, cooldown, activities.EmbedPassagesInput{
		Operation: "embed_passages",
		BatchID:   input.BatchID,
		SourceID:  computeOut.SourceID,
		Input:     passages,
	}, status.RetryCounts, input.PreferredEmbedProviderIndex, input.StrictEmbedProvider)
	if err != nil {
		// Keyword retrieval works without vectors: store the passages and
		// leave the embedding version empty so vector search skips them.
		logger.Warn("embedding providers exhausted; storing passages without vectors", "filename", filename)
		status.Steps[status.CurrentStep] = "skipped"
		embedVersion = ""
		vectors = nil
	} else {
		vectors = embedOut.Vectors
		status.Providers = append(status.Providers, embedOut.ProviderName)
		status.Steps[status.CurrentStep] = "done"
	}

	status.CurrentStep = "upsert_passages"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpsertPassagesActivity", activities.UpsertPassagesInput{Passages: passages, Vectors: vectors, EmbeddingVersion: embedVersion}).Get(ctx, nil); err != nil {
		if isInvalidTextEncodingError(err) {
			status.Status = "failed"
			status.FailReason = "source contains invalid text encoding after extraction"
			status.Steps[status.CurrentStep] = "failed"
			_ = workflow.ExecuteActivity(ctx, "UpdateSourceStatusActivity", activities.UpdateSourceStatusInput{
				SourceID:   computeOut.SourceID,
				BatchID:    input.BatchID,
				Filename:   filename,
				Kind:       status.Kind,
				Status:     "failed",
				FailReason: status.FailReason,
			}).Get(ctx, nil)
			return status.Status, nil
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "write_artifacts"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "WriteSourceArtifactsActivity", activities.WriteSourceArtifactsInput{
		BatchID:  input.BatchID,
		SourceID: computeOut.SourceID,
		Metadata: map[string]any{
			"source_id":     computeOut.SourceID,
			"filename":      filename,
			"kind":          status.Kind,
			"row_count":     rowCount,
			"passage_count": len(passages),
		},
		Passages:      passages,
		ProcessingLog: map[string]any{"status": "processed", "steps": status.Steps, "generated_at": workflow.Now(ctx)},
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "mark_processed"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpdateSourceStatusActivity", activities.UpdateSourceStatusInput{SourceID: computeOut.SourceID, BatchID: input.BatchID, Filename: filename, Kind: status.Kind, RowCount: rowCount, Status: "processed"}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"
	status.CurrentStep = "done"
	status.Status = "processed"
	return status.Status, nil
}

func ReportBuildWorkflow(ctx workflow.Context, input ReportBuildInput) (string, error) {
	progress := ReportProgress{ReportRunID: input.ReportRunID, BatchID: input.BatchID, Status: "running", TotalQuestions: len(input.Questions), QuestionStatus: map[string]string{}}
	if err := workflow.SetQueryHandler(ctx, QueryGetReportProgress, func() (ReportProgress, error) { return progress, nil }); err != nil {
		return "", err
	}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	_ = workflow.ExecuteActivity(ctx, "UpdateReportRunActivity", activities.UpdateReportRunInput{ReportRunID: input.ReportRunID, Status: "running"}).Get(ctx, nil)

	embedProviders := defaultCount(input.EmbedProviders)
	llmProviders := defaultCount(input.LLMProviders)
	cooldown := durationOrDefault(input.CooldownSeconds, 900)
	embedState := newProviderState()
	llmState := newProviderState()
	topK := input.RetrievalTopK
	if topK <= 0 {
		topK = 8
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Relatório de Notas Fiscais"
	}
	batchLabel := strings.TrimSpace(input.BatchName)
	if batchLabel == "" {
		batchLabel = input.BatchID
	}

	sections := make([]string, 0, len(input.Questions))
	body := strings.Builder{}

	for _, question := range input.Questions {
		progress.QuestionStatus[question] = "retrieving"
		hits := retrieveForReport(ctx, &embedState, embedProviders, cooldown, input, topK, question)
		progress.QuestionStatus[question] = "drafting"

		contexts := toDocumentContext(hits)
		gen, errType, genErr := callLLMWithFailover(ctx, &llmState, llmProviders, input.LLMProviderRefs, cooldown, activities.LLMGenerateInput{
			Operation: "report_section",
			BatchID:   input.BatchID,
			Prompt:    qa.ReportSectionPrompt(question, contexts),
		}, nil)
		if genErr != nil && errType == string(providers.ErrorContext) && len(contexts) > 3 {
			gen, _, genErr = callLLMWithFailover(ctx, &llmState, llmProviders, input.LLMProviderRefs, cooldown, activities.LLMGenerateInput{
				Operation: "report_section",
				BatchID:   input.BatchID,
				Prompt:    qa.ReportSectionPrompt(question, contexts[:3]),
			}, nil)
		}

		body.WriteString("## " + question + "\n\n")
		if genErr != nil {
			body.WriteString(qa.ErrorAnswer(genErr) + "\n\n")
		} else {
			section := qa.CleanAnswer(gen.Text)
			body.WriteString(section + "\n\n")
			sections = append(sections, section)
		}
		if len(hits) > 0 {
			body.WriteString("Fontes:\n")
			for _, h := range hits {
				label := h.Filename
				if h.RefNumber != "" {
					label += " (NF " + h.RefNumber + ")"
				}
				body.WriteString("- " + label + " score=" + formatScore(h.Score) + "\n")
			}
			body.WriteString("\n")
		}
		progress.QuestionStatus[question] = "done"
		progress.DoneQuestions++
	}

	supplierBlock := ""
	var summaryOut activities.GetBatchSummaryOutput
	if err := workflow.ExecuteActivity(ctx, "GetBatchSummaryActivity", activities.GetBatchSummaryInput{BatchID: input.BatchID}).Get(ctx, &summaryOut); err == nil && len(summaryOut.Totals) > 0 {
		suppliers := strings.Builder{}
		suppliers.WriteString("## Principais fornecedores\n\n")
		suppliers.WriteString("| Fornecedor | Notas | Valor total (R$) |\n")
		suppliers.WriteString("|---|---:|---:|\n")
		for _, t := range summaryOut.Totals {
			suppliers.WriteString(fmt.Sprintf("| %s | %d | %.2f |\n", t.DisplayName, t.InvoiceCount, t.TotalValue))
		}
		supplierBlock = suppliers.String() + "\n"
	}

	resumoBlock := ""
	if len(sections) > 0 {
		sum, _, sumErr := callLLMWithFailover(ctx, &llmState, llmProviders, input.LLMProviderRefs, cooldown, activities.LLMGenerateInput{
			Operation: "report_summary",
			BatchID:   input.BatchID,
			Prompt:    qa.ReportSummaryPrompt(batchLabel, sections),
		}, nil)
		if sumErr == nil {
			if parsed, ok := qa.ParseReportSummary(sum.Text); ok && strings.TrimSpace(parsed.Resumo) != "" {
				b := strings.Builder{}
				b.WriteString("## Resumo\n\n")
				b.WriteString(strings.TrimSpace(parsed.Resumo) + "\n")
				if len(parsed.Destaques) > 0 {
					b.WriteString("\n")
					for _, d := range parsed.Destaques {
						b.WriteString("- " + d + "\n")
					}
				}
				resumoBlock = b.String() + "\n"
			}
		}
	}

	doc := strings.Builder{}
	doc.WriteString("# " + title + "\n\n")
	doc.WriteString("Lote: `" + input.BatchID + "`\n\n")
	doc.WriteString(resumoBlock)
	doc.WriteString(supplierBlock)
	doc.WriteString(body.String())

	var reportOut activities.WriteReportDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "WriteReportDocumentActivity", activities.WriteReportDocumentInput{BatchID: input.BatchID, ReportRunID: input.ReportRunID, Document: doc.String()}).Get(ctx, &reportOut); err != nil {
		return "", err
	}
	progress.Status = "completed"
	_ = workflow.ExecuteActivity(ctx, "UpdateReportRunActivity", activities.UpdateReportRunInput{ReportRunID: input.ReportRunID, Status: "completed", OutPath: reportOut.OutPath}).Get(ctx, nil)
	return reportOut.OutPath, nil
}

// retrieveForReport tries vector retrieval first and falls back to the
// keyword ranker when embeddings are unavailable or return nothing.
func retrieveForReport(ctx workflow.Context, embedState *providerState, embedProviders int, cooldown time.Duration, input ReportBuildInput, topK int, question string) []activities.PassageHit {
	eq, err := callEmbedQueryWithFailover(ctx, embedState, embedProviders, cooldown, activities.EmbedQueryInput{Operation: "report_query_embed", Text: question}, nil)
	if err == nil {
		var retrieved activities.SearchPassagesOutput
		if err := workflow.ExecuteActivity(ctx, "SearchPassagesActivity", activities.SearchPassagesInput{
			BatchID:          input.BatchID,
			QueryVec:         eq.Vector,
			TopK:             topK,
			EmbeddingVersion: defaultEmbedVersion(input.EmbedVersion),
		}).Get(ctx, &retrieved); err == nil && len(retrieved.Results) > 0 {
			return retrieved.Results
		}
	}
	var kw activities.KeywordSearchOutput
	if err := workflow.ExecuteActivity(ctx, "KeywordSearchActivity", activities.KeywordSearchInput{BatchID: input.BatchID, Question: question, TopK: topK}).Get(ctx, &kw); err != nil {
		return nil
	}
	return kw.Results
}

func BackfillWorkflow(ctx workflow.Context, input BackfillInput) (string, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	info := workflow.GetInfo(ctx)
	runID := info.WorkflowExecution.RunID
	manifest := map[string]any{
		"run_id":     runID,
		"mode":       input.Mode,
		"batch_id":   input.BatchID,
		"versions":   map[string]any{"chunk": defaultChunkVersion(input.ChunkVersion), "embed": defaultEmbedVersion(input.EmbedVersion), "report_prompt": "v1"},
		"started_at": workflow.Now(ctx),
	}

	switch strings.ToUpper(strings.TrimSpace(input.Mode)) {
	case "RETRY_FAILED_SOURCES":
		var failed activities.ListFailedSourcesOutput
		if err := workflow.ExecuteActivity(ctx, "ListFailedSourcesActivity", activities.ListFailedSourcesInput{BatchID: input.BatchID}).Get(ctx, &failed); err != nil {
			return "", err
		}
		retried := 0
		for _, src := range failed.Sources {
			path := pathForBackfill(input, src.Filename)
			var out string
			if err := workflow.ExecuteChildWorkflow(ctx, SourceProcessWorkflow, SourceProcessInput{
				BatchID:                     input.BatchID,
				Path:                        path,
				Kind:                        src.Kind,
				ChunkVersion:                defaultChunkVersion(input.ChunkVersion),
				EmbedVersion:                defaultEmbedVersion(input.EmbedVersion),
				EmbedProviders:              defaultCount(input.EmbedProviders),
				PreferredEmbedProviderIndex: input.PreferredEmbedProviderIndex,
				StrictEmbedProvider:         input.StrictEmbedProvider,
				CooldownSeconds:             defaultSeconds(input.CooldownSeconds, 900),
			}).Get(ctx, &out); err == nil {
				retried++
			}
		}
		manifest["retried_failed_sources"] = retried
	case "REEMBED_ALL":
		var all activities.ListBatchSourcesOutput
		if err := workflow.ExecuteActivity(ctx, "ListBatchSourcesActivity", activities.ListBatchSourcesInput{BatchID: input.BatchID}).Get(ctx, &all); err != nil {
			return "", err
		}
		// Wipe before re-processing so rows under the old embedding version,
		// or under source keys that no longer exist, cannot linger.
		var deleted activities.DeleteBatchPassagesOutput
		if err := workflow.ExecuteActivity(ctx, "DeleteBatchPassagesActivity", activities.DeleteBatchPassagesInput{BatchID: input.BatchID}).Get(ctx, &deleted); err != nil {
			return "", err
		}
		manifest["deleted_passages"] = deleted.Deleted
		processed := 0
		for _, src := range all.Sources {
			if strings.TrimSpace(src.Filename) == "" {
				continue
			}
			path := pathForBackfill(input, src.Filename)
			var out string
			if err := workflow.ExecuteChildWorkflow(ctx, SourceProcessWorkflow, SourceProcessInput{
				BatchID:                     input.BatchID,
				Path:                        path,
				Kind:                        src.Kind,
				ChunkVersion:                defaultChunkVersion(input.ChunkVersion),
				EmbedVersion:                defaultEmbedVersion(input.EmbedVersion),
				EmbedProviders:              defaultCount(input.EmbedProviders),
				PreferredEmbedProviderIndex: input.PreferredEmbedProviderIndex,
				StrictEmbedProvider:         input.StrictEmbedProvider,
				CooldownSeconds:             defaultSeconds(input.CooldownSeconds, 900),
			}).Get(ctx, &out); err == nil {
				processed++
			}
		}
		manifest["reembedded_sources"] = processed
		manifest["total_sources_seen"] = len(all.Sources)
	case "REGENERATE_REPORT":
		run := input.ReportRunID
		if strings.TrimSpace(run) == "" {
			run = sanitizeID(fmt.Sprintf("%s-%d", input.BatchID, workflow.Now(ctx).Unix()))
		}
		var outPath string
		if err := workflow.ExecuteChildWorkflow(ctx, ReportBuildWorkflow, ReportBuildInput{
			ReportRunID:     run,
			BatchID:         input.BatchID,
			Title:           input.Title,
			Questions:       input.Questions,
			EmbedProviders:  defaultCount(input.EmbedProviders),
			LLMProviders:    defaultCount(input.LLMProviders),
			LLMProviderRefs: input.LLMProviderRefs,
			CooldownSeconds: defaultSeconds(input.CooldownSeconds, 900),
			EmbedVersion:    defaultEmbedVersion(input.EmbedVersion),
		}).Get(ctx, &outPath); err != nil {
			return "", err
		}
		manifest["regenerated_report_run_id"] = run
		manifest["report_path"] = outPath
	default:
		return "", fmt.Errorf("unsupported backfill mode: %s", input.Mode)
	}

	var out activities.WriteRunManifestOutput
	if err := workflow.ExecuteActivity(ctx, "WriteRunManifestActivity", activities.WriteRunManifestInput{
		BatchID:  input.BatchID,
		RunID:    runID,
		Manifest: manifest,
	}).Get(ctx, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}

func callEmbedWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.EmbedPassagesInput, retryCounts map[string]int, preferredIdx int, strict bool) (activities.EmbedPassagesOutput, error) {
	if retryCounts == nil {
		retryCounts = map[string]int{}
	}
	var lastErr error
	maxAttempts := providerCount * 4
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	if strict && preferredIdx >= 0 {
		maxAttempts = 4
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		idx := 0
		if strict && preferredIdx >= 0 {
			idx = preferredIdx
		} else if preferredIdx >= 0 {
			idx = (preferredIdx + attempt) % providerCount
		} else {
			idx = attempt % providerCount
		}
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.EmbedPassagesOutput
		err := workflow.ExecuteActivity(ctx, "EmbedPassagesActivity", input).Get(ctx, &out)
		if err == nil {
			_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{Operation: input.Operation, BatchID: input.BatchID, SourceID: input.SourceID, ProviderName: out.ProviderName, Model: out.Model, RequestID: fmt.Sprintf("%s-%d", input.Operation, attempt), Status: "ok", LatencyMS: out.LatencyMS}).Get(ctx, nil)
			return out, nil
		}
		lastErr = err
		errType := providers.ClassifyError(err)
		_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{Operation: input.Operation, BatchID: input.BatchID, SourceID: input.SourceID, ProviderName: fmt.Sprintf("provider-%d", idx), RequestID: fmt.Sprintf("%s-%d", input.Operation, attempt), Status: "failed", ErrorType: string(errType)}).Get(ctx, nil)
		key := fmt.Sprintf("embed-%d", idx)
		retryCounts[key]++
		switch errType {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key]*2)*time.Second)
				if !strict {
					attempt--
				}
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key])*time.Second)
				if !strict {
					attempt--
				}
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
		if strict {
			continue
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embed providers exhausted")
	}
	return activities.EmbedPassagesOutput{}, lastErr
}

func callEmbedQueryWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.EmbedQueryInput, retryCounts map[string]int) (activities.EmbedQueryOutput, error) {
	if retryCounts == nil {
		retryCounts = map[string]int{}
	}
	var lastErr error
	for attempt := 0; attempt < providerCount*4; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.EmbedQueryOutput
		err := workflow.ExecuteActivity(ctx, "EmbedQueryActivity", input).Get(ctx, &out)
		if err == nil {
			return out, nil
		}
		lastErr = err
		errType := providers.ClassifyError(err)
		key := fmt.Sprintf("eq-%d", idx)
		retryCounts[key]++
		switch errType {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate, providers.ErrorTransient:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key])*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embed query providers exhausted")
	}
	return activities.EmbedQueryOutput{}, lastErr
}

func callLLMWithFailover(ctx workflow.Context, state *providerState, providerCount int, refs []string, cooldown time.Duration, input activities.LLMGenerateInput, retryCounts map[string]int) (activities.LLMGenerateOutput, string, error) {
	if retryCounts == nil {
		retryCounts = map[string]int{}
	}
	// Pinned refs replace the index rotation: each slot carries a ref name and
	// the activity resolves it against the worker's configured provider list.
	slots := providerCount
	if len(refs) > 0 {
		slots = len(refs)
	}
	var lastErr error
	for attempt := 0; attempt < slots*4; attempt++ {
		idx := attempt % slots
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		input.ProviderRef = ""
		if len(refs) > 0 {
			input.ProviderRef = refs[idx]
		}
		var out activities.LLMGenerateOutput
		err := workflow.ExecuteActivity(ctx, "LLMGenerateActivity", input).Get(ctx, &out)
		if err == nil {
			_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{Operation: input.Operation, BatchID: input.BatchID, SourceID: input.SourceID, ProviderName: out.ProviderName, Model: out.Model, RequestID: fmt.Sprintf("%s-%d", input.Operation, attempt), Status: "ok", LatencyMS: out.LatencyMS}).Get(ctx, nil)
			return out, "", nil
		}
		lastErr = err
		errType := providers.ClassifyError(err)
		failedName := fmt.Sprintf("provider-%d", idx)
		if len(refs) > 0 {
			failedName = refs[idx]
		}
		_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{Operation: input.Operation, BatchID: input.BatchID, SourceID: input.SourceID, ProviderName: failedName, RequestID: fmt.Sprintf("%s-%d", input.Operation, attempt), Status: "failed", ErrorType: string(errType)}).Get(ctx, nil)
		key := fmt.Sprintf("llm-%s-%d", input.Operation, idx)
		retryCounts[key]++
		switch errType {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key])*time.Second)
				attempt--
			}
		case providers.ErrorContext:
			return activities.LLMGenerateOutput{}, string(providers.ErrorContext), err
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all llm providers exhausted")
	}
	return activities.LLMGenerateOutput{}, string(providers.ClassifyError(lastErr)), lastErr
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

func defaultChunkVersion(v string) string {
	if strings.TrimSpace(v) == "" {
		return "cv1"
	}
	return v
}

func defaultEmbedVersion(v string) string {
	if strings.TrimSpace(v) == "" {
		return "ev1"
	}
	return v
}

func isNoTextError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no extractable text")
}

func isInvalidTextEncodingError(err error) bool {
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "invalid byte sequence") || strings.Contains(e, "sqlstate 22021")
}

func filepathBase(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) == 0 {
		return path
	}
	return parts[len(parts)-1]
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	return s
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

func toDocumentContext(hits []activities.PassageHit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		label := h.Filename
		if h.RefNumber != "" {
			label += " | NF " + h.RefNumber
		}
		out = append(out, fmt.Sprintf("[%s] %s", label, h.Text))
	}
	return out
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

func defaultCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func defaultSeconds(n int, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}

func pathForBackfill(input BackfillInput, filename string) string {
	base := strings.TrimSpace(input.DataInRoot)
	if base == "" {
		base = "./data/in"
	}
	return filepath.Join(base, input.BatchID, filename)
}
