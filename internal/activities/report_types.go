package activities

type EmbedQueryInput struct {
	Operation     string `json:"operation"`
	Text          string `json:"text"`
	ProviderIndex int    `json:"provider_index"`
}

type EmbedQueryOutput struct {
	Vector       []float32 `json:"vector"`
	ProviderName string    `json:"provider_name"`
	Model        string    `json:"model"`
	LatencyMS    int64     `json:"latency_ms,omitempty"`
}

type SearchPassagesInput struct {
	BatchID          string    `json:"batch_id"`
	QueryVec         []float32 `json:"query_vec"`
	TopK             int       `json:"top_k"`
	Kinds            []string  `json:"kinds,omitempty"`
	RefNumber        string    `json:"ref_number,omitempty"`
	EmbeddingVersion string    `json:"embedding_version,omitempty"`
}

type PassageHit struct {
	SourceID  string            `json:"source_id"`
	Filename  string            `json:"filename"`
	PassageID string            `json:"passage_id"`
	Kind      string            `json:"kind"`
	RefNumber string            `json:"ref_number,omitempty"`
	Snippet   string            `json:"snippet"`
	Score     float64           `json:"score"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type SearchPassagesOutput struct {
	Results []PassageHit `json:"results"`
}

type KeywordSearchInput struct {
	BatchID  string `json:"batch_id"`
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type KeywordSearchOutput struct {
	Results []PassageHit `json:"results"`
}

type ComputeBatchSummaryInput struct {
	BatchID string `json:"batch_id"`
}

type SupplierTotalItem struct {
	Supplier     string  `json:"supplier"`
	DisplayName  string  `json:"display_name"`
	InvoiceCount int     `json:"invoice_count"`
	TotalValue   float64 `json:"total_value"`
}

type ComputeBatchSummaryOutput struct {
	Totals []SupplierTotalItem `json:"totals"`
}

type UpsertBatchSummaryInput struct {
	BatchID string              `json:"batch_id"`
	Totals  []SupplierTotalItem `json:"totals"`
}

type GetBatchSummaryInput struct {
	BatchID string `json:"batch_id"`
}

type GetBatchSummaryOutput struct {
	Totals []SupplierTotalItem `json:"totals"`
}

type WriteReportDocumentInput struct {
	BatchID     string `json:"batch_id"`
	ReportRunID string `json:"report_run_id"`
	Document    string `json:"document"`
}

type WriteReportDocumentOutput struct {
	OutPath string `json:"out_path"`
}

type UpdateReportRunInput struct {
	ReportRunID string `json:"report_run_id"`
	Status      string `json:"status"`
	OutPath     string `json:"out_path"`
}
