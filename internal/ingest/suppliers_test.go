package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSupplier(t *testing.T) {
	require.Equal(t, "acme comercio ltda", NormalizeSupplier("  ACME   Comercio LTDA. "))
	require.Equal(t, NormalizeSupplier("Beta SA"), NormalizeSupplier("BETA  SA"))
}

func TestSupplierTotals(t *testing.T) {
	rows := []map[string]string{
		{ColEmitente: "ACME LTDA", ColValorNota: "100.00"},
		{ColEmitente: "acme ltda ", ColValorNota: "50,50"},
		{ColEmitente: "BETA SA", ColValorNota: "999.99"},
		{ColEmitente: "", ColValorNota: "10.00"},
		{ColEmitente: "GAMA ME", ColValorNota: "não-numérico"},
	}
	totals := SupplierTotals(rows)
	require.Len(t, totals, 3)

	require.Equal(t, "beta sa", totals[0].Supplier)
	require.InDelta(t, 999.99, totals[0].TotalValue, 1e-9)

	require.Equal(t, "acme ltda", totals[1].Supplier)
	require.Equal(t, "ACME LTDA", totals[1].DisplayName)
	require.Equal(t, 2, totals[1].InvoiceCount)
	require.InDelta(t, 150.50, totals[1].TotalValue, 1e-9)

	require.Equal(t, "gama me", totals[2].Supplier)
	require.Equal(t, 1, totals[2].InvoiceCount)
	require.Zero(t, totals[2].TotalValue)
}
