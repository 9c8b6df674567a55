package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"invoiceflow/internal/models"
)

// Column names from the national invoice extract (header and item tables).
const (
	ColNumero           = "NÚMERO"
	ColDataEmissao      = "DATA EMISSÃO"
	ColEmitente         = "RAZÃO SOCIAL EMITENTE"
	ColDestinatario     = "NOME DESTINATÁRIO"
	ColValorNota        = "VALOR NOTA FISCAL"
	ColNumeroProduto    = "NÚMERO PRODUTO"
	ColDescricaoProduto = "DESCRIÇÃO DO PRODUTO/SERVIÇO"
	ColQuantidade       = "QUANTIDADE"
	ColValorTotalItem   = "VALOR TOTAL"
)

type Table struct {
	Columns []string
	Rows    []map[string]string
}

// ReadTable loads an invoice CSV into column-keyed rows. A missing file is not
// an error: ingestion degrades to whatever tables are present, so callers get
// an empty table and decide how loudly to warn.
func ReadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Table{}, nil
		}
		return Table{}, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close()
	t, err := ParseTable(f)
	if err != nil {
		return Table{}, fmt.Errorf("parse csv %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

func ParseTable(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, nil
		}
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	cols := make([]string, len(header))
	for i, c := range header {
		cols[i] = strings.TrimSpace(strings.TrimPrefix(c, "\uFEFF"))
	}

	rows := make([]map[string]string, 0, 64)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		row := make(map[string]string, len(cols))
		for i, c := range cols {
			if i < len(rec) {
				row[c] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return Table{Columns: cols, Rows: rows}, nil
}

// ClassifyFilename maps an uploaded filename to a source kind by extension,
// with the conventional extract suffixes deciding between the two CSV tables.
// DetectCSVKind refines ambiguous CSVs by sniffing the header row.
func ClassifyFilename(name string) string {
	low := strings.ToLower(filepath.Base(name))
	switch {
	case strings.HasSuffix(low, ".pdf"):
		return models.SourcePDF
	case strings.HasSuffix(low, "_cabecalho.csv"):
		return models.SourceCSVHeader
	case strings.HasSuffix(low, "_itens.csv"):
		return models.SourceCSVItems
	case strings.HasSuffix(low, ".csv"):
		return models.SourceCSVHeader
	default:
		return ""
	}
}

// DetectCSVKind sniffs the header row of a CSV on disk. The item table always
// carries product columns the header table lacks.
func DetectCSVKind(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	header, err := cr.Read()
	if err != nil {
		return "", fmt.Errorf("read csv header %s: %w", filepath.Base(path), err)
	}
	has := func(col string) bool {
		for _, c := range header {
			if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(c, "\uFEFF")), col) {
				return true
			}
		}
		return false
	}
	switch {
	case has(ColNumeroProduto) || has(ColDescricaoProduto):
		return models.SourceCSVItems, nil
	case has(ColValorNota) || has(ColEmitente):
		return models.SourceCSVHeader, nil
	default:
		return ClassifyFilename(path), nil
	}
}
