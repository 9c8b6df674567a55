package workflows

type BatchIngestInput struct {
	BatchID               string `json:"batch_id"`
	InputDir              string `json:"input_dir"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
	EmbedProviders        int    `json:"embed_providers"`
	CooldownSeconds       int    `json:"cooldown_seconds"`
	ChunkVersion          string `json:"chunk_version"`
	EmbedVersion          string `json:"embed_version"`
}

type SourceProcessInput struct {
	BatchID                     string `json:"batch_id"`
	Path                        string `json:"path"`
	Kind                        string `json:"kind,omitempty"`
	ChunkSize                   int    `json:"chunk_size"`
	ChunkOverlap                int    `json:"chunk_overlap"`
	ChunkVersion                string `json:"chunk_version"`
	EmbedVersion                string `json:"embed_version"`
	EmbedProviders              int    `json:"embed_providers"`
	PreferredEmbedProviderIndex int    `json:"preferred_embed_provider_index"`
	StrictEmbedProvider         bool   `json:"strict_embed_provider"`
	CooldownSeconds             int    `json:"cooldown_seconds"`
}

type ReportBuildInput struct {
	ReportRunID     string   `json:"report_run_id"`
	BatchID         string   `json:"batch_id"`
	BatchName       string   `json:"batch_name,omitempty"`
	Title           string   `json:"title,omitempty"`
	Questions       []string `json:"questions"`
	RetrievalTopK   int      `json:"retrieval_top_k,omitempty"`
	EmbedProviders  int      `json:"embed_providers"`
	LLMProviders    int      `json:"llm_providers"`
	LLMProviderRefs []string `json:"llm_provider_refs,omitempty"`
	CooldownSeconds int      `json:"cooldown_seconds"`
	EmbedVersion    string   `json:"embed_version"`
}

type BackfillInput struct {
	BatchID                     string   `json:"batch_id"`
	Mode                        string   `json:"mode"`
	ReportRunID                 string   `json:"report_run_id,omitempty"`
	Title                       string   `json:"title,omitempty"`
	Questions                   []string `json:"questions,omitempty"`
	DataInRoot                  string   `json:"data_in_root,omitempty"`
	ChunkVersion                string   `json:"chunk_version,omitempty"`
	EmbedVersion                string   `json:"embed_version,omitempty"`
	EmbedProviders              int      `json:"embed_providers,omitempty"`
	PreferredEmbedProviderIndex int      `json:"preferred_embed_provider_index,omitempty"`
	StrictEmbedProvider         bool     `json:"strict_embed_provider,omitempty"`
	LLMProviders                int      `json:"llm_providers,omitempty"`
	LLMProviderRefs             []string `json:"llm_provider_refs,omitempty"`
	CooldownSeconds             int      `json:"cooldown_seconds,omitempty"`
}

type SourceStatus struct {
	SourceID    string            `json:"source_id"`
	Path        string            `json:"path"`
	Kind        string            `json:"kind"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	RowCount    int               `json:"row_count,omitempty"`
	Providers   []string          `json:"providers_used"`
	RetryCounts map[string]int    `json:"retry_counts"`
	Steps       map[string]string `json:"steps"`
}

type BatchIngestProgress struct {
	BatchID       string            `json:"batch_id"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	Rebuilt       bool              `json:"rebuilt,omitempty"`
	PerSource     map[string]string `json:"per_source_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}

type ReportProgress struct {
	ReportRunID    string            `json:"report_run_id"`
	BatchID        string            `json:"batch_id"`
	Status         string            `json:"status"`
	TotalQuestions int               `json:"total_questions"`
	DoneQuestions  int               `json:"done_questions"`
	QuestionStatus map[string]string `json:"question_status"`
}
