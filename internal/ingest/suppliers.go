package ingest

import (
	"regexp"
	"sort"
	"strings"

	"invoiceflow/internal/models"
)

var ws = regexp.MustCompile(`\s+`)

// NormalizeSupplier returns the canonical aggregation key for an issuer name,
// so "ACME  Ltda." and "acme ltda" fold into one supplier.
func NormalizeSupplier(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.Trim(s, ".,;")
	s = ws.ReplaceAllString(s, " ")
	return s
}

// SupplierTotals folds invoice header rows into per-supplier aggregates,
// ordered by total value descending. Rows without an issuer are skipped;
// unparseable values count the invoice but contribute zero.
func SupplierTotals(rows []map[string]string) []models.SupplierTotal {
	type agg struct {
		display string
		count   int
		total   float64
	}
	byKey := make(map[string]*agg)
	order := make([]string, 0, 16)
	for _, row := range rows {
		raw := strings.TrimSpace(row[ColEmitente])
		if raw == "" {
			continue
		}
		key := NormalizeSupplier(raw)
		a, ok := byKey[key]
		if !ok {
			a = &agg{display: raw}
			byKey[key] = a
			order = append(order, key)
		}
		a.count++
		if v, ok := ParseValor(row[ColValorNota]); ok {
			a.total += v
		}
	}

	out := make([]models.SupplierTotal, 0, len(byKey))
	for _, key := range order {
		a := byKey[key]
		out = append(out, models.SupplierTotal{
			Supplier:     key,
			DisplayName:  a.display,
			InvoiceCount: a.count,
			TotalValue:   a.total,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalValue == out[j].TotalValue {
			return out[i].Supplier < out[j].Supplier
		}
		return out[i].TotalValue > out[j].TotalValue
	})
	return out
}
