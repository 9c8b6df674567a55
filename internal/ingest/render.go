package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"invoiceflow/internal/models"
)

// RenderedRow is one CSV row turned into a retrieval passage: the sentence
// plus the row's original columns as metadata.
type RenderedRow struct {
	Kind      string            `json:"kind"`
	RefNumber string            `json:"ref_number"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata"`
}

// RenderTable renders every row of a header or item table. sourceKind is the
// CSV source kind; rows from unknown kinds render as header rows.
func RenderTable(sourceKind string, tbl Table) []RenderedRow {
	out := make([]RenderedRow, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		var r RenderedRow
		if sourceKind == models.SourceCSVItems {
			r = RenderedRow{
				Kind:      models.PassageInvoiceItem,
				RefNumber: strings.TrimSpace(row[ColNumero]),
				Text:      RenderItemRow(row),
			}
		} else {
			r = RenderedRow{
				Kind:      models.PassageInvoiceHeader,
				RefNumber: strings.TrimSpace(row[ColNumero]),
				Text:      RenderHeaderRow(row),
			}
		}
		r.Metadata = copyRow(row)
		out = append(out, r)
	}
	return out
}

// RenderHeaderRow formats one invoice header row as a Portuguese sentence.
func RenderHeaderRow(row map[string]string) string {
	return fmt.Sprintf("Nota Fiscal: %s. Data de Emissão: %s. Emitente: %s. Destinatário: %s. Valor Total da Nota: R$ %s.",
		Field(row, ColNumero),
		Field(row, ColDataEmissao),
		Field(row, ColEmitente),
		Field(row, ColDestinatario),
		FormatValor(row[ColValorNota]),
	)
}

// RenderItemRow formats one invoice line-item row as a Portuguese sentence.
func RenderItemRow(row map[string]string) string {
	return fmt.Sprintf("Item da Nota Fiscal %s: Produto %s - %s. Quantidade: %s. Valor Total do Item: R$ %s.",
		Field(row, ColNumero),
		Field(row, ColNumeroProduto),
		Field(row, ColDescricaoProduto),
		Field(row, ColQuantidade),
		FormatValor(row[ColValorTotalItem]),
	)
}

// Field returns the trimmed cell value, or "N/A" when the column is absent or
// empty.
func Field(row map[string]string, col string) string {
	v := strings.TrimSpace(row[col])
	if v == "" {
		return "N/A"
	}
	return v
}

// ParseValor parses a monetary cell. The extract normally uses a dot decimal
// separator, but hand-edited files show up with Brazilian comma decimals and
// dot thousands.
func ParseValor(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatValor renders a monetary cell with two decimals, or the raw value
// unchanged when it does not parse (same fallback the N/A rule uses).
func FormatValor(raw string) string {
	v, ok := ParseValor(raw)
	if !ok {
		s := strings.TrimSpace(raw)
		if s == "" {
			return "N/A"
		}
		return s
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func copyRow(row map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
