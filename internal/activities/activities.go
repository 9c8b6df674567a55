package activities

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"invoiceflow/internal/config"
	"invoiceflow/internal/ingest"
	"invoiceflow/internal/models"
	"invoiceflow/internal/providers"
	"invoiceflow/internal/retrieval"
	"invoiceflow/internal/storage"
	"invoiceflow/internal/util"
	"invoiceflow/internal/vector"

	"github.com/ledongthuc/pdf"
)

type Activities struct {
	cfg          config.Config
	batchRepo    *storage.BatchRepo
	sourceRepo   *storage.SourceRepo
	passageRepo  *storage.PassageRepo
	reportRepo   *storage.ReportRepo
	summaryRepo  *storage.SummaryRepo
	llmAuditRepo *storage.LLMAuditRepo
	searcher     *vector.Searcher
	providers    *providers.Manager
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return &Activities{
		cfg:          cfg,
		batchRepo:    storage.NewBatchRepo(db),
		sourceRepo:   storage.NewSourceRepo(db),
		passageRepo:  storage.NewPassageRepo(db),
		reportRepo:   storage.NewReportRepo(db),
		summaryRepo:  storage.NewSummaryRepo(db),
		llmAuditRepo: storage.NewLLMAuditRepo(db),
		searcher:     vector.NewSearcher(db.Pool),
		providers:    pm,
	}, nil
}

// ListBatchFilesActivity lists the invoice files waiting under a batch's
// input dir. A batch with no uploads yet yields empty lists, not an error.
func (a *Activities) ListBatchFilesActivity(ctx context.Context, in ListBatchFilesInput) (ListBatchFilesOutput, error) {
	_ = ctx
	pdfs, err := util.ListByExt(in.InputDir, ".pdf")
	if err != nil {
		return ListBatchFilesOutput{}, err
	}
	csvs, err := util.ListByExt(in.InputDir, ".csv")
	if err != nil {
		return ListBatchFilesOutput{}, err
	}
	return ListBatchFilesOutput{PDFPaths: pdfs, CSVPaths: csvs}, nil
}

func (a *Activities) ComputeSourceIDActivity(ctx context.Context, in ComputeSourceIDInput) (ComputeSourceIDOutput, error) {
	_ = ctx
	id, err := util.SHA256HexFile(in.Path)
	if err != nil {
		return ComputeSourceIDOutput{}, fmt.Errorf("hash source file: %w", err)
	}
	return ComputeSourceIDOutput{SourceID: id}, nil
}

// ExtractTextActivity pulls plain text out of a PDF page by page, keeping a
// page marker in front of each page so answers can point at one.
func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	_ = ctx
	f, r, err := pdf.Open(in.Path)
	if err != nil {
		return ExtractTextOutput{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	buf := new(strings.Builder)
	pages := 0
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			// Unreadable page: keep going, the rest may extract fine.
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		fmt.Fprintf(buf, "--- Página %d ---\n%s\n", i, content)
		pages++
	}
	text := util.SanitizeText(strings.TrimSpace(buf.String()))
	if text == "" {
		return ExtractTextOutput{}, util.ErrNoExtractableText
	}
	return ExtractTextOutput{Text: text, PageCount: pages}, nil
}

func (a *Activities) ChunkPassagesActivity(ctx context.Context, in ChunkPassagesInput) (ChunkPassagesOutput, error) {
	_ = ctx
	if in.ChunkSize <= 0 {
		in.ChunkSize = a.cfg.ChunkSize
		// Callers that leave the size unset get the configured overlap too;
		// 0 only means "no overlap" when a size was requested explicitly.
		if in.ChunkOverlap == 0 {
			in.ChunkOverlap = a.cfg.ChunkOverlap
		}
	}
	if in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize {
		in.ChunkOverlap = a.cfg.ChunkOverlap
	}

	rawChunks := util.ChunkText(in.Text, in.ChunkSize, in.ChunkOverlap)
	passages := make([]PassageItem, 0, len(rawChunks))
	for idx, part := range rawChunks {
		part = util.SanitizeText(part)
		if part == "" {
			continue
		}
		partHash := util.SHA256Hex([]byte(part))
		passageID := util.SHA256Hex([]byte(fmt.Sprintf("%s:%d:%s:%s", in.SourceID, idx, partHash, in.Version)))
		passages = append(passages, PassageItem{
			PassageID:    passageID,
			SourceID:     in.SourceID,
			BatchID:      in.BatchID,
			PassageIndex: idx,
			Kind:         models.PassagePDFText,
			Text:         part,
		})
	}
	return ChunkPassagesOutput{Passages: passages}, nil
}

// IngestCSVActivity turns one invoice CSV into passages: each row rendered as
// a Portuguese sentence, the raw columns preserved as metadata. A missing
// file yields zero rows rather than an error.
func (a *Activities) IngestCSVActivity(ctx context.Context, in IngestCSVInput) (IngestCSVOutput, error) {
	_ = ctx
	kind := strings.TrimSpace(in.Kind)
	if kind == "" || kind == models.SourcePDF {
		detected, err := ingest.DetectCSVKind(in.Path)
		if err == nil && detected != "" {
			kind = detected
		} else {
			kind = ingest.ClassifyFilename(in.Path)
		}
	}
	tbl, err := ingest.ReadTable(in.Path)
	if err != nil {
		return IngestCSVOutput{}, err
	}
	rendered := ingest.RenderTable(kind, tbl)
	passages := make([]PassageItem, 0, len(rendered))
	for idx, row := range rendered {
		text := util.SanitizeText(row.Text)
		if text == "" {
			continue
		}
		rowHash := util.SHA256Hex([]byte(text))
		passageID := util.SHA256Hex([]byte(fmt.Sprintf("%s:%d:%s:%s", in.SourceID, idx, rowHash, in.Version)))
		passages = append(passages, PassageItem{
			PassageID:    passageID,
			SourceID:     in.SourceID,
			BatchID:      in.BatchID,
			PassageIndex: idx,
			Kind:         row.Kind,
			RefNumber:    row.RefNumber,
			Text:         text,
			Metadata:     row.Metadata,
		})
	}
	return IngestCSVOutput{Passages: passages, RowCount: len(tbl.Rows), Kind: kind}, nil
}

func (a *Activities) UpsertPassagesActivity(ctx context.Context, in UpsertPassagesInput) error {
	records := make([]storage.PassageRecord, 0, len(in.Passages))
	for i, p := range in.Passages {
		var embedding *string
		if i < len(in.Vectors) && len(in.Vectors[i]) > 0 {
			lit := vector.ToLiteral(in.Vectors[i])
			embedding = &lit
		}
		records = append(records, storage.PassageRecord{
			PassageID:        p.PassageID,
			SourceID:         p.SourceID,
			BatchID:          p.BatchID,
			PassageIndex:     p.PassageIndex,
			Kind:             p.Kind,
			RefNumber:        p.RefNumber,
			Text:             util.SanitizeText(p.Text),
			Metadata:         p.Metadata,
			EmbeddingVersion: in.EmbeddingVersion,
			EmbeddingVector:  embedding,
		})
	}
	return a.passageRepo.UpsertPassages(ctx, records)
}

func (a *Activities) DeleteBatchPassagesActivity(ctx context.Context, in DeleteBatchPassagesInput) (DeleteBatchPassagesOutput, error) {
	n, err := a.passageRepo.DeleteByBatch(ctx, in.BatchID)
	if err != nil {
		return DeleteBatchPassagesOutput{}, err
	}
	return DeleteBatchPassagesOutput{Deleted: n}, nil
}

// CheckIndexStateActivity reports whether the batch's stored passages match
// the requested embedding version. Any passage at another version marks the
// whole batch stale and the ingest workflow rebuilds it from the files.
func (a *Activities) CheckIndexStateActivity(ctx context.Context, in CheckIndexStateInput) (CheckIndexStateOutput, error) {
	counts, err := a.passageRepo.CountByVersion(ctx, in.BatchID)
	if err != nil {
		return CheckIndexStateOutput{}, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	current := counts[in.EmbedVersion]
	embedded, err := a.passageRepo.CountEmbedded(ctx, in.BatchID, in.EmbedVersion)
	if err != nil {
		return CheckIndexStateOutput{}, err
	}
	return CheckIndexStateOutput{
		Total:    total,
		Current:  current,
		Embedded: embedded,
		Stale:    total > 0 && current < total,
	}, nil
}

func (a *Activities) EmbedPassagesActivity(ctx context.Context, in EmbedPassagesInput) (EmbedPassagesOutput, error) {
	inputs := make([]string, 0, len(in.Input))
	for _, p := range in.Input {
		inputs = append(inputs, p.Text)
	}
	provider, _ := a.providers.EmbedProviderByIndex(in.ProviderIndex)
	start := time.Now()
	vectors, info, err := provider.Embed(ctx, providers.EmbedRequest{
		Operation: in.Operation,
		Inputs:    inputs,
		Dimension: a.cfg.EmbedDim,
	})
	if err != nil {
		return EmbedPassagesOutput{}, err
	}
	return EmbedPassagesOutput{
		Vectors:      vectors,
		ProviderName: info.Name,
		Model:        info.Model,
		LatencyMS:    time.Since(start).Milliseconds(),
	}, nil
}

func (a *Activities) EmbedQueryActivity(ctx context.Context, in EmbedQueryInput) (EmbedQueryOutput, error) {
	provider, _ := a.providers.EmbedProviderByIndex(in.ProviderIndex)
	start := time.Now()
	vectors, info, err := provider.Embed(ctx, providers.EmbedRequest{
		Operation: in.Operation,
		Inputs:    []string{in.Text},
		Dimension: a.cfg.EmbedDim,
	})
	if err != nil {
		return EmbedQueryOutput{}, err
	}
	if len(vectors) == 0 {
		return EmbedQueryOutput{}, fmt.Errorf("embedding provider returned empty vectors")
	}
	return EmbedQueryOutput{Vector: vectors[0], ProviderName: info.Name, Model: info.Model, LatencyMS: time.Since(start).Milliseconds()}, nil
}

func (a *Activities) SearchPassagesActivity(ctx context.Context, in SearchPassagesInput) (SearchPassagesOutput, error) {
	results, err := a.searcher.SearchPassages(ctx, in.BatchID, in.QueryVec, in.TopK, vector.SearchFilters{
		Kinds:            in.Kinds,
		RefNumber:        in.RefNumber,
		EmbeddingVersion: in.EmbeddingVersion,
	})
	if err != nil {
		return SearchPassagesOutput{}, err
	}
	return SearchPassagesOutput{Results: toPassageHits(results)}, nil
}

// KeywordSearchActivity is the lexical fallback: it ranks every passage of
// the batch by token and number overlap with the question, no vectors needed.
func (a *Activities) KeywordSearchActivity(ctx context.Context, in KeywordSearchInput) (KeywordSearchOutput, error) {
	passages, err := a.passageRepo.ListPassagesByBatch(ctx, in.BatchID)
	if err != nil {
		return KeywordSearchOutput{}, err
	}
	sources, err := a.sourceRepo.ListSourcesByBatch(ctx, in.BatchID)
	if err != nil {
		return KeywordSearchOutput{}, err
	}
	filenames := make(map[string]string, len(sources))
	for _, s := range sources {
		filenames[s.SourceID] = s.Filename
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	ranked := retrieval.RankKeyword(in.Question, texts, in.TopK)
	hits := make([]PassageHit, 0, len(ranked))
	for _, r := range ranked {
		p := passages[r.Index]
		hits = append(hits, PassageHit{
			SourceID:  p.SourceID,
			Filename:  filenames[p.SourceID],
			PassageID: p.PassageID,
			Kind:      p.Kind,
			RefNumber: p.RefNumber,
			Snippet:   util.DisplaySnippet(p.Text, 420),
			Score:     r.Score,
			Text:      p.Text,
			Metadata:  p.Metadata,
		})
	}
	return KeywordSearchOutput{Results: hits}, nil
}

func (a *Activities) LLMGenerateActivity(ctx context.Context, in LLMGenerateInput) (LLMGenerateOutput, error) {
	if in.ProviderRef != "" {
		if idx := a.providers.FindLLMProviderIndex(in.ProviderRef); idx >= 0 {
			in.ProviderIndex = idx
		} else {
			return LLMGenerateOutput{}, fmt.Errorf("llm provider ref not configured in worker: %s", in.ProviderRef)
		}
	}
	provider, ref := a.providers.LLMProviderByIndex(in.ProviderIndex)
	start := time.Now()
	resp, info, err := provider.Generate(ctx, providers.GenerateRequest{
		Operation: in.Operation,
		Prompt:    in.Prompt,
		Context:   in.Context,
	})
	if err != nil {
		return LLMGenerateOutput{}, fmt.Errorf("llm generate via %s failed: %w", ref.Raw, err)
	}
	return LLMGenerateOutput{
		Text:         resp.Text,
		ProviderName: info.Name,
		Model:        info.Model,
		LatencyMS:    time.Since(start).Milliseconds(),
	}, nil
}

func (a *Activities) UpdateSourceStatusActivity(ctx context.Context, in UpdateSourceStatusInput) error {
	return a.sourceRepo.UpsertSource(ctx, models.Source{
		SourceID:   in.SourceID,
		BatchID:    in.BatchID,
		Filename:   in.Filename,
		Kind:       in.Kind,
		RowCount:   in.RowCount,
		Status:     in.Status,
		FailReason: in.FailReason,
	})
}

func (a *Activities) ListBatchSourcesActivity(ctx context.Context, in ListBatchSourcesInput) (ListBatchSourcesOutput, error) {
	sources, err := a.sourceRepo.ListSourcesByBatch(ctx, in.BatchID)
	if err != nil {
		return ListBatchSourcesOutput{}, err
	}
	out := ListBatchSourcesOutput{Sources: make([]BatchSource, 0, len(sources))}
	for _, s := range sources {
		out.Sources = append(out.Sources, BatchSource{
			SourceID:   s.SourceID,
			Filename:   s.Filename,
			Kind:       s.Kind,
			RowCount:   s.RowCount,
			Status:     s.Status,
			FailReason: s.FailReason,
		})
	}
	return out, nil
}

func (a *Activities) ListFailedSourcesActivity(ctx context.Context, in ListFailedSourcesInput) (ListFailedSourcesOutput, error) {
	sources, err := a.sourceRepo.ListFailedSources(ctx, in.BatchID)
	if err != nil {
		return ListFailedSourcesOutput{}, err
	}
	out := ListFailedSourcesOutput{Sources: make([]FailedSource, 0, len(sources))}
	for _, s := range sources {
		out.Sources = append(out.Sources, FailedSource{SourceID: s.SourceID, Filename: s.Filename, Kind: s.Kind})
	}
	return out, nil
}

func (a *Activities) WriteSourceArtifactsActivity(ctx context.Context, in WriteSourceArtifactsInput) error {
	_ = ctx
	base := filepath.Join(a.cfg.DataOutRoot, in.BatchID, "sources", in.SourceID)
	if err := util.EnsureDir(base); err != nil {
		return err
	}
	if err := util.WriteJSONAtomic(filepath.Join(base, "metadata.json"), in.Metadata); err != nil {
		return err
	}
	rows := make([]any, 0, len(in.Passages))
	for _, p := range in.Passages {
		rows = append(rows, p)
	}
	if err := util.WriteJSONLinesAtomic(filepath.Join(base, "passages.jsonl"), rows); err != nil {
		return err
	}
	return util.WriteJSONAtomic(filepath.Join(base, "processing_log.json"), in.ProcessingLog)
}

func (a *Activities) WriteIngestSummaryActivity(ctx context.Context, in WriteIngestSummaryInput) error {
	_ = ctx
	outPath := filepath.Join(a.cfg.DataOutRoot, in.BatchID, "ingest_summary.json")
	return util.WriteJSONAtomic(outPath, in.Summary)
}

func (a *Activities) WriteRunManifestActivity(ctx context.Context, in WriteRunManifestInput) (WriteRunManifestOutput, error) {
	_ = ctx
	path := filepath.Join(a.cfg.DataOutRoot, in.BatchID, "runs", in.RunID, "manifest.json")
	if err := util.WriteJSONAtomic(path, in.Manifest); err != nil {
		return WriteRunManifestOutput{}, err
	}
	return WriteRunManifestOutput{Path: path}, nil
}

// ComputeBatchSummaryActivity folds the invoice header passages of a batch
// into per-supplier totals, using the raw columns kept in passage metadata.
func (a *Activities) ComputeBatchSummaryActivity(ctx context.Context, in ComputeBatchSummaryInput) (ComputeBatchSummaryOutput, error) {
	passages, err := a.passageRepo.ListPassagesByBatch(ctx, in.BatchID)
	if err != nil {
		return ComputeBatchSummaryOutput{}, err
	}
	rows := make([]map[string]string, 0, len(passages))
	for _, p := range passages {
		if p.Kind != models.PassageInvoiceHeader || len(p.Metadata) == 0 {
			continue
		}
		rows = append(rows, p.Metadata)
	}
	totals := ingest.SupplierTotals(rows)
	out := ComputeBatchSummaryOutput{Totals: make([]SupplierTotalItem, 0, len(totals))}
	for _, t := range totals {
		out.Totals = append(out.Totals, SupplierTotalItem{
			Supplier:     t.Supplier,
			DisplayName:  t.DisplayName,
			InvoiceCount: t.InvoiceCount,
			TotalValue:   t.TotalValue,
		})
	}
	return out, nil
}

func (a *Activities) UpsertBatchSummaryActivity(ctx context.Context, in UpsertBatchSummaryInput) error {
	totals := make([]models.SupplierTotal, 0, len(in.Totals))
	for _, t := range in.Totals {
		totals = append(totals, models.SupplierTotal{
			BatchID:      in.BatchID,
			Supplier:     t.Supplier,
			DisplayName:  t.DisplayName,
			InvoiceCount: t.InvoiceCount,
			TotalValue:   t.TotalValue,
		})
	}
	return a.summaryRepo.ReplaceBatchSummary(ctx, in.BatchID, totals)
}

func (a *Activities) GetBatchSummaryActivity(ctx context.Context, in GetBatchSummaryInput) (GetBatchSummaryOutput, error) {
	totals, err := a.summaryRepo.GetBatchSummary(ctx, in.BatchID)
	if err != nil {
		return GetBatchSummaryOutput{}, err
	}
	out := GetBatchSummaryOutput{Totals: make([]SupplierTotalItem, 0, len(totals))}
	for _, t := range totals {
		out.Totals = append(out.Totals, SupplierTotalItem{
			Supplier:     t.Supplier,
			DisplayName:  t.DisplayName,
			InvoiceCount: t.InvoiceCount,
			TotalValue:   t.TotalValue,
		})
	}
	return out, nil
}

func (a *Activities) WriteReportDocumentActivity(ctx context.Context, in WriteReportDocumentInput) (WriteReportDocumentOutput, error) {
	_ = ctx
	outPath := filepath.Join(a.cfg.DataOutRoot, in.BatchID, "reports", in.ReportRunID, "report.md")
	if err := util.WriteTextAtomic(outPath, in.Document); err != nil {
		return WriteReportDocumentOutput{}, err
	}
	return WriteReportDocumentOutput{OutPath: outPath}, nil
}

func (a *Activities) UpdateReportRunActivity(ctx context.Context, in UpdateReportRunInput) error {
	return a.reportRepo.UpdateRunStatus(ctx, in.ReportRunID, in.Status, in.OutPath)
}

func (a *Activities) LogLLMCallActivity(ctx context.Context, in LogLLMCallInput) error {
	return a.llmAuditRepo.Insert(ctx, storage.LLMCallRecord{
		CallID:       in.CallID,
		Operation:    in.Operation,
		BatchID:      in.BatchID,
		SourceID:     in.SourceID,
		ProviderName: in.ProviderName,
		Model:        in.Model,
		RequestID:    in.RequestID,
		Status:       in.Status,
		ErrorType:    in.ErrorType,
		LatencyMS:    in.LatencyMS,
	})
}

func toPassageHits(results []models.PassageResult) []PassageHit {
	out := make([]PassageHit, 0, len(results))
	for _, r := range results {
		out = append(out, PassageHit{
			SourceID:  r.SourceID,
			Filename:  r.Filename,
			PassageID: r.PassageID,
			Kind:      r.Kind,
			RefNumber: r.RefNumber,
			Snippet:   r.Snippet,
			Score:     r.Score,
			Text:      r.PassageText,
			Metadata:  r.Metadata,
		})
	}
	return out
}
