package models

import "time"

type Batch struct {
	BatchID   string    `json:"batch_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Source kinds.
const (
	SourcePDF       = "pdf"
	SourceCSVHeader = "csv_header"
	SourceCSVItems  = "csv_items"
)

type Source struct {
	SourceID   string    `json:"source_id"`
	BatchID    string    `json:"batch_id"`
	Filename   string    `json:"filename"`
	Kind       string    `json:"kind"`
	RowCount   int       `json:"row_count,omitempty"`
	Status     string    `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Passage kinds.
const (
	PassageInvoiceHeader = "invoice_header"
	PassageInvoiceItem   = "invoice_item"
	PassagePDFText       = "pdf_text"
)

// Passage is the retrieval candidate: one invoice CSV row rendered as a
// sentence, or one chunk of a PDF's extracted text. Passages are immutable;
// re-ingestion replaces a source's passages wholesale.
type Passage struct {
	PassageID        string            `json:"passage_id"`
	SourceID         string            `json:"source_id"`
	BatchID          string            `json:"batch_id"`
	PassageIndex     int               `json:"passage_index"`
	Kind             string            `json:"kind"`
	RefNumber        string            `json:"ref_number,omitempty"`
	Text             string            `json:"text"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	EmbeddingVersion string            `json:"embedding_version"`
	CreatedAt        time.Time         `json:"created_at"`
}

type PassageResult struct {
	SourceID    string            `json:"source_id"`
	Filename    string            `json:"filename"`
	PassageID   string            `json:"passage_id"`
	Kind        string            `json:"kind"`
	RefNumber   string            `json:"ref_number,omitempty"`
	Snippet     string            `json:"snippet"`
	Score       float64           `json:"score"`
	PassageText string            `json:"passage_text,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type ReportRun struct {
	ReportRunID string    `json:"report_run_id"`
	BatchID     string    `json:"batch_id"`
	Title       string    `json:"title"`
	Questions   []string  `json:"questions"`
	Status      string    `json:"status"`
	OutPath     string    `json:"out_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SupplierTotal is a derived per-batch aggregate over invoice header rows.
// The set for a batch is rebuilt wholesale, never edited in place.
type SupplierTotal struct {
	BatchID      string  `json:"batch_id"`
	Supplier     string  `json:"supplier"`
	DisplayName  string  `json:"display_name"`
	InvoiceCount int     `json:"invoice_count"`
	TotalValue   float64 `json:"total_value"`
}
