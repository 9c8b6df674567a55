package activities

type ListBatchFilesInput struct {
	InputDir string `json:"input_dir"`
}

type ListBatchFilesOutput struct {
	PDFPaths []string `json:"pdf_paths"`
	CSVPaths []string `json:"csv_paths"`
}

type ComputeSourceIDInput struct {
	Path string `json:"path"`
}

type ComputeSourceIDOutput struct {
	SourceID string `json:"source_id"`
}

type ExtractTextInput struct {
	Path string `json:"path"`
}

type ExtractTextOutput struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
}

type ChunkPassagesInput struct {
	SourceID     string `json:"source_id"`
	BatchID      string `json:"batch_id"`
	Text         string `json:"text"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	Version      string `json:"version"`
}

// PassageItem is the wire form of a passage between activities; vectors
// travel separately so the chunking output stays replay-friendly.
type PassageItem struct {
	PassageID    string            `json:"passage_id"`
	SourceID     string            `json:"source_id"`
	BatchID      string            `json:"batch_id"`
	PassageIndex int               `json:"passage_index"`
	Kind         string            `json:"kind"`
	RefNumber    string            `json:"ref_number,omitempty"`
	Text         string            `json:"text"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type ChunkPassagesOutput struct {
	Passages []PassageItem `json:"passages"`
}

type IngestCSVInput struct {
	SourceID string `json:"source_id"`
	BatchID  string `json:"batch_id"`
	Path     string `json:"path"`
	Kind     string `json:"kind,omitempty"`
	Version  string `json:"version"`
}

type IngestCSVOutput struct {
	Passages []PassageItem `json:"passages"`
	RowCount int           `json:"row_count"`
	Kind     string        `json:"kind"`
}

type UpsertPassagesInput struct {
	Passages         []PassageItem `json:"passages"`
	Vectors          [][]float32   `json:"vectors,omitempty"`
	EmbeddingVersion string        `json:"embedding_version"`
}

type DeleteBatchPassagesInput struct {
	BatchID string `json:"batch_id"`
}

type DeleteBatchPassagesOutput struct {
	Deleted int64 `json:"deleted"`
}

type CheckIndexStateInput struct {
	BatchID      string `json:"batch_id"`
	EmbedVersion string `json:"embed_version"`
}

type CheckIndexStateOutput struct {
	Total    int  `json:"total"`
	Current  int  `json:"current"`
	Embedded int  `json:"embedded"`
	Stale    bool `json:"stale"`
}

type EmbedPassagesInput struct {
	Operation     string        `json:"operation"`
	BatchID       string        `json:"batch_id"`
	SourceID      string        `json:"source_id"`
	ProviderIndex int           `json:"provider_index"`
	Input         []PassageItem `json:"input"`
}

type EmbedPassagesOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
	LatencyMS    int64       `json:"latency_ms,omitempty"`
}

type LLMGenerateInput struct {
	Operation     string   `json:"operation"`
	BatchID       string   `json:"batch_id"`
	SourceID      string   `json:"source_id"`
	Prompt        string   `json:"prompt"`
	Context       []string `json:"context"`
	ProviderIndex int      `json:"provider_index"`
	ProviderRef   string   `json:"provider_ref,omitempty"`
}

type LLMGenerateOutput struct {
	Text         string `json:"text"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
	LatencyMS    int64  `json:"latency_ms,omitempty"`
}

type UpdateSourceStatusInput struct {
	SourceID   string `json:"source_id"`
	BatchID    string `json:"batch_id"`
	Filename   string `json:"filename"`
	Kind       string `json:"kind"`
	RowCount   int    `json:"row_count"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason"`
}

type ListBatchSourcesInput struct {
	BatchID string `json:"batch_id"`
}

type BatchSource struct {
	SourceID   string `json:"source_id"`
	Filename   string `json:"filename"`
	Kind       string `json:"kind"`
	RowCount   int    `json:"row_count,omitempty"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
}

type ListBatchSourcesOutput struct {
	Sources []BatchSource `json:"sources"`
}

type ListFailedSourcesInput struct {
	BatchID string `json:"batch_id"`
}

type FailedSource struct {
	SourceID string `json:"source_id"`
	Filename string `json:"filename"`
	Kind     string `json:"kind"`
}

type ListFailedSourcesOutput struct {
	Sources []FailedSource `json:"sources"`
}

type WriteSourceArtifactsInput struct {
	BatchID       string         `json:"batch_id"`
	SourceID      string         `json:"source_id"`
	Metadata      map[string]any `json:"metadata"`
	Passages      []PassageItem  `json:"passages"`
	ProcessingLog map[string]any `json:"processing_log"`
}

type WriteIngestSummaryInput struct {
	BatchID string         `json:"batch_id"`
	Summary map[string]any `json:"summary"`
}

type WriteRunManifestInput struct {
	BatchID  string         `json:"batch_id"`
	RunID    string         `json:"run_id"`
	Manifest map[string]any `json:"manifest"`
}

type WriteRunManifestOutput struct {
	Path string `json:"path"`
}

type LogLLMCallInput struct {
	CallID       string `json:"call_id"`
	Operation    string `json:"operation"`
	BatchID      string `json:"batch_id"`
	SourceID     string `json:"source_id"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
	RequestID    string `json:"request_id"`
	Status       string `json:"status"`
	ErrorType    string `json:"error_type"`
	LatencyMS    int64  `json:"latency_ms,omitempty"`
}
