package api

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"invoiceflow/internal/config"
	"invoiceflow/internal/ingest"
	"invoiceflow/internal/models"
	"invoiceflow/internal/providers"
	"invoiceflow/internal/qa"
	"invoiceflow/internal/retrieval"
	"invoiceflow/internal/storage"
	"invoiceflow/internal/util"
	"invoiceflow/internal/vector"
	"invoiceflow/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg          config.Config
	db           *storage.DB
	batchRepo    *storage.BatchRepo
	sourceRepo   *storage.SourceRepo
	passageRepo  *storage.PassageRepo
	reportRepo   *storage.ReportRepo
	summaryRepo  *storage.SummaryRepo
	llmAuditRepo *storage.LLMAuditRepo
	searcher     *vector.Searcher
	providers    *providers.Manager
	temporal     tclient.Client
}

type askCitation struct {
	RefID     string  `json:"ref_id"`
	SourceID  string  `json:"source_id"`
	Filename  string  `json:"filename"`
	FileURL   string  `json:"file_url,omitempty"`
	PassageID string  `json:"passage_id"`
	Kind      string  `json:"kind"`
	RefNumber string  `json:"ref_number,omitempty"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	if err := storage.EnsureSchema(ctx, db, cfg.EmbedDim); err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	return &Server{
		cfg:          cfg,
		db:           db,
		batchRepo:    storage.NewBatchRepo(db),
		sourceRepo:   storage.NewSourceRepo(db),
		passageRepo:  storage.NewPassageRepo(db),
		reportRepo:   storage.NewReportRepo(db),
		summaryRepo:  storage.NewSummaryRepo(db),
		llmAuditRepo: storage.NewLLMAuditRepo(db),
		searcher:     vector.NewSearcher(db.Pool),
		providers:    pm,
		temporal:     tc,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/batches", s.handleBatches)
	mux.HandleFunc("/batches/", s.handleBatchesScoped)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/ask", s.handleAsk)
	mux.HandleFunc("/reports", s.handleReports)
	mux.HandleFunc("/reports/", s.handleReportsScoped)
	mux.HandleFunc("/backfill", s.handleBackfill)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		batches, err := s.batchRepo.ListBatches(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("name is required"))
			return
		}

		batchID := uuid.NewString()
		batch := models.Batch{BatchID: batchID, Name: req.Name}
		if err := s.batchRepo.CreateBatch(r.Context(), batch); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}

		if err := util.EnsureDir(filepath.Join(s.cfg.DataInRoot, batchID)); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if err := util.EnsureDir(filepath.Join(s.cfg.DataOutRoot, batchID)); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{"batch_id": batchID, "name": req.Name})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleBatchesScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/batches/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	batchID := parts[0]

	if len(parts) == 2 && parts[1] == "upload" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleUpload(w, r, batchID)
		return
	}

	if len(parts) == 2 && parts[1] == "sources" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		sources, err := s.sourceRepo.ListSourcesByBatch(r.Context(), batchID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
		return
	}
	if len(parts) == 4 && parts[1] == "sources" && parts[3] == "file" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		sourceID := parts[2]
		src, err := s.sourceRepo.GetSourceByID(r.Context(), batchID, sourceID)
		if err != nil {
			writeErr(w, lookupStatus(err), err)
			return
		}
		path := util.SafeJoin(filepath.Join(s.cfg.DataInRoot, batchID), src.Filename)
		http.ServeFile(w, r, path)
		return
	}
	if len(parts) == 2 && parts[1] == "ingest" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		wfID := "ingest-" + batchID
		we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
			ID:                                       wfID,
			TaskQueue:                                s.cfg.TemporalTaskQueue,
			WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
			WorkflowExecutionErrorWhenAlreadyStarted: true,
		}, workflows.BatchIngestWorkflow, workflows.BatchIngestInput{
			BatchID:               batchID,
			InputDir:              filepath.Join(s.cfg.DataInRoot, batchID),
			MaxConcurrentChildren: s.cfg.IngestMaxChildren,
			EmbedProviders:        s.providers.EmbedCount(),
			CooldownSeconds:       s.cfg.ProviderCooldownSecs,
			ChunkVersion:          s.cfg.ChunkVersion,
			EmbedVersion:          s.cfg.EmbedVersion,
		})
		if err != nil {
			writeErr(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
		return
	}
	if len(parts) == 2 && parts[1] == "progress" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var prog workflows.BatchIngestProgress
		resp, err := s.temporal.QueryWorkflow(r.Context(), "ingest-"+batchID, "", workflows.QueryGetProgress)
		if err != nil {
			// Fallback to DB-derived progress when no active workflow query is available.
			sources, sErr := s.sourceRepo.ListSourcesByBatch(r.Context(), batchID)
			if sErr != nil {
				writeErr(w, http.StatusInternalServerError, sErr)
				return
			}
			per := make(map[string]string, len(sources))
			done := 0
			failed := 0
			for _, src := range sources {
				per[src.Filename] = src.Status
				if src.Status == "processed" {
					done++
				}
				if src.Status == "failed" {
					failed++
				}
			}
			writeJSON(w, http.StatusOK, workflows.BatchIngestProgress{
				BatchID:   batchID,
				Total:     len(sources),
				Done:      done,
				Failed:    failed,
				PerSource: per,
			})
			return
		}
		if err := resp.Get(&prog); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, prog)
		return
	}
	if len(parts) == 2 && parts[1] == "summary" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		totals, err := s.summaryRepo.GetBatchSummary(r.Context(), batchID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if totals == nil {
			totals = []models.SupplierTotal{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"batch_id": batchID, "suppliers": totals})
		return
	}
	if len(parts) == 2 && parts[1] == "llm-calls" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		calls, err := s.llmAuditRepo.RecentCalls(r.Context(), batchID, limit)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"batch_id": batchID, "calls": calls})
		return
	}

	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, batchID string) {
	if err := r.ParseMultipartForm(128 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		if single, ok := firstSingleFile(r.MultipartForm.File); ok {
			files = append(files, single)
		}
	}
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}

	inDir := filepath.Join(s.cfg.DataInRoot, batchID)
	if err := util.EnsureDir(inDir); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	type uploadResult struct {
		Filename string `json:"filename"`
		SourceID string `json:"source_id"`
		Kind     string `json:"kind"`
	}
	out := make([]uploadResult, 0, len(files))

	for _, fh := range files {
		kind := ingest.ClassifyFilename(fh.Filename)
		if kind == "" {
			continue
		}
		sourceID, savedPath, err := saveUploadedFile(inDir, fh)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if err := s.sourceRepo.UpsertSource(r.Context(), models.Source{
			SourceID: sourceID,
			BatchID:  batchID,
			Filename: filepath.Base(savedPath),
			Kind:     kind,
			Status:   "pending",
		}); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, uploadResult{Filename: filepath.Base(savedPath), SourceID: sourceID, Kind: kind})
	}

	writeJSON(w, http.StatusOK, map[string]any{"uploaded": out})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		BatchID   string   `json:"batch_id"`
		Query     string   `json:"query"`
		TopK      int      `json:"top_k"`
		Mode      string   `json:"mode"`
		Kinds     []string `json:"kinds"`
		RefNumber string   `json:"ref_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.BatchID = strings.TrimSpace(req.BatchID)
	req.Query = strings.TrimSpace(req.Query)
	if req.BatchID == "" || req.Query == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("batch_id and query are required"))
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.AskTopK
	}

	results, mode, _, err := s.retrieve(r.Context(), req.BatchID, req.Query, req.TopK, req.Mode, vector.SearchFilters{Kinds: req.Kinds, RefNumber: strings.TrimSpace(req.RefNumber)})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id": req.BatchID,
		"mode":     mode,
		"results":  results,
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		BatchID  string `json:"batch_id"`
		Question string `json:"question"`
		TopK     int    `json:"top_k"`
		Mode     string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.BatchID = strings.TrimSpace(req.BatchID)
	req.Question = strings.TrimSpace(req.Question)
	if req.BatchID == "" || req.Question == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("batch_id and question are required"))
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.AskTopK
	}

	results, mode, embedInfo, err := s.retrieve(r.Context(), req.BatchID, req.Question, req.TopK, req.Mode, vector.SearchFilters{})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	citations := make([]askCitation, 0, len(results))
	contexts := make([]string, 0, len(results))
	for i, res := range results {
		refID := fmt.Sprintf("D%d", i+1)
		label := res.Filename
		if res.RefNumber != "" {
			label += " (NF " + res.RefNumber + ")"
		}
		snippet := util.DisplayEvidenceSnippet(res.PassageText, req.Question, 420)
		if snippet == "" {
			snippet = util.DisplaySnippet(res.Snippet, 420)
		}
		citations = append(citations, askCitation{
			RefID:     refID,
			SourceID:  res.SourceID,
			Filename:  res.Filename,
			FileURL:   fmt.Sprintf("/batches/%s/sources/%s/file", req.BatchID, res.SourceID),
			PassageID: res.PassageID,
			Kind:      res.Kind,
			RefNumber: res.RefNumber,
			Snippet:   snippet,
			Score:     res.Score,
		})
		contexts = append(contexts, fmt.Sprintf("%s: %s", label, util.DisplaySnippet(res.PassageText, 1200)))
	}

	prompt := qa.AnswerPrompt(req.Question, contexts)
	start := time.Now()
	llmResp, llmInfo, llmErr := s.generate(r.Context(), "ask_answer", prompt)
	s.auditAskCall(r.Context(), req.BatchID, llmInfo, time.Since(start), llmErr)
	if llmErr != nil {
		// Provider failures become part of the answer, not an HTTP error:
		// the caller still gets the citations that were retrieved.
		writeJSON(w, http.StatusOK, map[string]any{
			"answer":          qa.ErrorAnswer(llmErr),
			"answer_is_error": true,
			"mode":            mode,
			"citations":       citations,
			"embed_provider":  embedInfo.Name,
			"embed_model":     embedInfo.Model,
			"retrieved_count": len(citations),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"answer":          qa.CleanAnswer(llmResp.Text),
		"answer_is_error": false,
		"mode":            mode,
		"citations":       citations,
		"embed_provider":  embedInfo.Name,
		"embed_model":     embedInfo.Model,
		"llm_provider":    llmInfo.Name,
		"llm_model":       llmInfo.Model,
		"retrieved_count": len(citations),
	})
}

// retrieve runs the effective retrieval mode for a query. Vector-dependent
// modes degrade to keyword when the batch has no embedded passages or every
// embedding provider fails, so only storage errors surface to the caller.
func (s *Server) retrieve(ctx context.Context, batchID, query string, topK int, requestedMode string, filters vector.SearchFilters) ([]models.PassageResult, string, providers.ProviderInfo, error) {
	requested := strings.TrimSpace(requestedMode)
	if requested == "" {
		requested = s.cfg.RetrievalMode
	}
	vectorReady := false
	if s.providers.EmbedCount() > 0 {
		if n, err := s.passageRepo.CountEmbedded(ctx, batchID, s.cfg.EmbedVersion); err == nil && n > 0 {
			vectorReady = true
		}
	}
	mode := retrieval.ResolveMode(requested, vectorReady)

	var embedInfo providers.ProviderInfo
	var vecResults []models.PassageResult
	if mode == retrieval.ModeVector || mode == retrieval.ModeHybrid {
		queryVec, info, embedErr := s.embedQuery(ctx, query)
		if embedErr != nil {
			mode = retrieval.ModeKeyword
		} else {
			embedInfo = info
			filters.EmbeddingVersion = s.cfg.EmbedVersion
			res, err := s.searcher.SearchPassages(ctx, batchID, queryVec, topK, filters)
			if err != nil {
				return nil, "", embedInfo, err
			}
			vecResults = res
		}
	}
	if mode == retrieval.ModeVector {
		return vecResults, mode, embedInfo, nil
	}

	kwResults, err := s.keywordSearch(ctx, batchID, query, topK, filters)
	if err != nil {
		return nil, "", embedInfo, err
	}
	if mode == retrieval.ModeKeyword {
		return kwResults, mode, embedInfo, nil
	}

	// Hybrid: fuse the two rankings by passage ID.
	byID := make(map[string]models.PassageResult, len(vecResults)+len(kwResults))
	a := make([]retrieval.Ranked, 0, len(vecResults))
	for _, res := range vecResults {
		byID[res.PassageID] = res
		a = append(a, retrieval.Ranked{ID: res.PassageID, Score: res.Score})
	}
	b := make([]retrieval.Ranked, 0, len(kwResults))
	for _, res := range kwResults {
		if _, ok := byID[res.PassageID]; !ok {
			byID[res.PassageID] = res
		}
		b = append(b, retrieval.Ranked{ID: res.PassageID, Score: res.Score})
	}
	fused := retrieval.MergeRRF(a, b, topK)
	out := make([]models.PassageResult, 0, len(fused))
	for _, f := range fused {
		res := byID[f.ID]
		res.Score = f.Score
		out = append(out, res)
	}
	return out, mode, embedInfo, nil
}

func (s *Server) embedQuery(ctx context.Context, query string) ([]float32, providers.ProviderInfo, error) {
	var (
		info providers.ProviderInfo
		err  error
	)
	for _, idx := range s.providers.PreferredEmbedOrder() {
		p, _ := s.providers.EmbedProviderByIndex(idx)
		var vectors [][]float32
		vectors, info, err = p.Embed(ctx, providers.EmbedRequest{
			Operation: "ask_query_embed",
			Inputs:    []string{query},
			Dimension: s.cfg.EmbedDim,
		})
		if err == nil && len(vectors) > 0 {
			return vectors[0], info, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("no embedding providers configured")
	}
	return nil, info, err
}

func (s *Server) keywordSearch(ctx context.Context, batchID, query string, topK int, filters vector.SearchFilters) ([]models.PassageResult, error) {
	passages, err := s.passageRepo.ListPassagesByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	sources, err := s.sourceRepo.ListSourcesByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(sources))
	for _, src := range sources {
		names[src.SourceID] = src.Filename
	}

	filtered := passages[:0:0]
	for _, p := range passages {
		if len(filters.Kinds) > 0 && !containsString(filters.Kinds, p.Kind) {
			continue
		}
		if filters.RefNumber != "" && p.RefNumber != filters.RefNumber {
			continue
		}
		filtered = append(filtered, p)
	}
	texts := make([]string, len(filtered))
	for i, p := range filtered {
		texts[i] = p.Text
	}
	ranked := retrieval.RankKeyword(query, texts, topK)
	out := make([]models.PassageResult, 0, len(ranked))
	for _, sc := range ranked {
		p := filtered[sc.Index]
		out = append(out, models.PassageResult{
			SourceID:    p.SourceID,
			Filename:    names[p.SourceID],
			PassageID:   p.PassageID,
			Kind:        p.Kind,
			RefNumber:   p.RefNumber,
			Snippet:     util.DisplaySnippet(p.Text, 420),
			Score:       sc.Score,
			PassageText: p.Text,
			Metadata:    p.Metadata,
		})
	}
	return out, nil
}

// auditAskCall records the interactive answer call in the same llm_calls
// table the workers feed, so quota burn across /ask and the pipelines shows
// up in one place. Audit failures never affect the response.
func (s *Server) auditAskCall(ctx context.Context, batchID string, info providers.ProviderInfo, elapsed time.Duration, callErr error) {
	rec := storage.LLMCallRecord{
		Operation:    "ask_answer",
		BatchID:      batchID,
		ProviderName: info.Name,
		Model:        info.Model,
		Status:       "ok",
		LatencyMS:    elapsed.Milliseconds(),
	}
	if callErr != nil {
		rec.Status = "failed"
		rec.ErrorType = string(providers.ClassifyError(callErr))
	}
	_ = s.llmAuditRepo.Insert(ctx, rec)
}

// generate prefers the groq provider when one is configured and otherwise
// walks the preferred LLM order until a provider answers.
func (s *Server) generate(ctx context.Context, op, prompt string) (providers.GenerateResponse, providers.ProviderInfo, error) {
	if groqProvider, groqRef, ok := s.providers.FindLLMProviderByName("groq"); ok {
		resp, info, err := groqProvider.Generate(ctx, providers.GenerateRequest{
			Operation: op,
			Prompt:    prompt,
		})
		info.Name = groqRef.Name
		return resp, info, err
	}
	var (
		resp providers.GenerateResponse
		info providers.ProviderInfo
		err  error
	)
	for _, idx := range s.providers.PreferredLLMOrder() {
		p, _ := s.providers.LLMProviderByIndex(idx)
		resp, info, err = p.Generate(ctx, providers.GenerateRequest{
			Operation: op,
			Prompt:    prompt,
		})
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			return resp, info, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("no llm providers configured")
	}
	return resp, info, err
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		BatchID   string   `json:"batch_id"`
		Title     string   `json:"title"`
		Questions []string `json:"questions"`
		TopK      int      `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.BatchID) == "" || len(req.Questions) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("batch_id and at least one question are required"))
		return
	}
	batchName := ""
	if batch, err := s.batchRepo.GetBatch(r.Context(), req.BatchID); err == nil {
		batchName = batch.Name
	}
	runID := uuid.NewString()
	if err := s.reportRepo.CreateRun(r.Context(), runID, req.BatchID, req.Title, req.Questions); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:        "report-" + runID,
		TaskQueue: s.cfg.TemporalTaskQueue,
	}, workflows.ReportBuildWorkflow, workflows.ReportBuildInput{
		ReportRunID:     runID,
		BatchID:         req.BatchID,
		BatchName:       batchName,
		Title:           req.Title,
		Questions:       req.Questions,
		RetrievalTopK:   req.TopK,
		EmbedProviders:  s.providers.EmbedCount(),
		LLMProviders:    s.providers.LLMCount(),
		CooldownSeconds: s.cfg.ProviderCooldownSecs,
		EmbedVersion:    s.cfg.EmbedVersion,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"report_run_id": runID, "workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleReportsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/reports/"), "/"), "/")
	if len(parts) < 2 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	runID := parts[0]
	switch parts[1] {
	case "progress":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var prog workflows.ReportProgress
		resp, err := s.temporal.QueryWorkflow(r.Context(), "report-"+runID, "", workflows.QueryGetReportProgress)
		if err != nil {
			// Closed or evicted runs no longer answer queries; report what
			// the DB knows about the run instead.
			run, dbErr := s.reportRepo.GetRun(r.Context(), runID)
			if dbErr != nil {
				writeErr(w, lookupStatus(dbErr), dbErr)
				return
			}
			prog = workflows.ReportProgress{
				ReportRunID:    run.ReportRunID,
				BatchID:        run.BatchID,
				Status:         run.Status,
				TotalQuestions: len(run.Questions),
				QuestionStatus: map[string]string{},
			}
			if run.Status == "completed" {
				prog.DoneQuestions = len(run.Questions)
				for _, q := range run.Questions {
					prog.QuestionStatus[q] = "done"
				}
			}
			writeJSON(w, http.StatusOK, prog)
			return
		}
		if err := resp.Get(&prog); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, prog)
	case "document":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		outPath, status, err := s.reportRepo.GetRunPath(r.Context(), runID)
		if err != nil {
			writeErr(w, lookupStatus(err), err)
			return
		}
		if outPath == "" {
			writeJSON(w, http.StatusOK, map[string]any{"status": status, "report_markdown": ""})
			return
		}
		b, err := os.ReadFile(outPath)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": status, "report_markdown": string(b), "path": outPath})
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		BatchID             string   `json:"batch_id"`
		Mode                string   `json:"mode"`
		ReportRunID         string   `json:"report_run_id"`
		Title               string   `json:"title"`
		Questions           []string `json:"questions"`
		EmbedProvider       string   `json:"embed_provider"`
		StrictEmbedProvider bool     `json:"strict_embed_provider"`
		LLMProviderRefs     []string `json:"llm_provider_refs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.BatchID) == "" || strings.TrimSpace(req.Mode) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("batch_id and mode are required"))
		return
	}
	preferredEmbed := -1
	if strings.TrimSpace(req.EmbedProvider) != "" {
		preferredEmbed = s.providers.FindEmbedProviderIndex(req.EmbedProvider)
		if preferredEmbed < 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown embed provider: %s", req.EmbedProvider))
			return
		}
	}
	wfID := "backfill-" + req.BatchID
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       wfID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.BackfillWorkflow, workflows.BackfillInput{
		BatchID:                     req.BatchID,
		Mode:                        req.Mode,
		ReportRunID:                 req.ReportRunID,
		Title:                       req.Title,
		Questions:                   req.Questions,
		DataInRoot:                  s.cfg.DataInRoot,
		ChunkVersion:                s.cfg.ChunkVersion,
		EmbedVersion:                s.cfg.EmbedVersion,
		EmbedProviders:              s.providers.EmbedCount(),
		PreferredEmbedProviderIndex: preferredEmbed,
		StrictEmbedProvider:         req.StrictEmbedProvider,
		LLMProviders:                s.providers.LLMCount(),
		LLMProviderRefs:             req.LLMProviderRefs,
		CooldownSeconds:             s.cfg.ProviderCooldownSecs,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func saveUploadedFile(dstDir string, fh *multipart.FileHeader) (sourceID, path string, err error) {
	src, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, "upload-*.tmp")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), src); err != nil {
		return "", "", fmt.Errorf("write upload: %w", err)
	}

	sourceID = fmt.Sprintf("%x", h.Sum(nil))
	finalPath := util.SafeJoin(dstDir, fh.Filename)
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", "", fmt.Errorf("seek temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", err
	}
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", "", fmt.Errorf("atomic move upload: %w", err)
	}

	return sourceID, finalPath, nil
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// lookupStatus maps a repo lookup error to 404 for missing rows and 500 for
// everything else.
func lookupStatus(err error) int {
	if errors.Is(err, util.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "IF-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "IF-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "IF-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "IF-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "IF-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "IF-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "IF-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "IF-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusBadGateway:
		code = "IF-API-5020"
		msg = "Upstream provider unavailable. Retry shortly."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		low := strings.ToLower(err.Error())
		switch {
		case strings.Contains(low, "name is required"):
			msg = "Batch name is required."
		case strings.Contains(low, "batch_id and question are required"):
			msg = "Both batch and question are required."
		case strings.Contains(low, "batch_id and query are required"):
			msg = "Both batch and query are required."
		case strings.Contains(low, "batch_id and at least one question"):
			msg = "Batch and at least one question are required."
		case strings.Contains(low, "batch_id and mode are required"):
			msg = "Batch and backfill mode are required."
		case strings.Contains(low, "no files provided"):
			msg = "No PDF or CSV files were provided."
		case strings.Contains(low, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
