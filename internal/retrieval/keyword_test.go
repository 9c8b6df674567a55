package retrieval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRankKeywordNumericBonus(t *testing.T) {
	texts := []string{
		"Nota Fiscal: 99999. Emitente: ACME. Valor Total da Nota: R$ 10.00.",
		"Nota Fiscal: 12345. Emitente: ACME. Valor Total da Nota: R$ 10.00.",
	}
	got := RankKeyword("Qual o valor da nota 12345?", texts, 5)
	require.NotEmpty(t, got)
	require.Equal(t, 1, got[0].Index, "exact numeric match must rank first")
	require.Greater(t, got[0].Score, got[len(got)-1].Score)
}

func TestRankKeywordShortTokensIgnored(t *testing.T) {
	// "de", "da", "o" are too short to count; only "valor" scores.
	got := RankKeyword("o valor de da", []string{"valor valor", "de de de de"}, 5)
	require.Len(t, got, 1)
	require.Equal(t, 0, got[0].Index)
	require.Equal(t, float64(2), got[0].Score)
}

func TestRankKeywordDropsZeroScores(t *testing.T) {
	got := RankKeyword("fornecedor principal", []string{"nada relacionado aqui"}, 5)
	require.Empty(t, got)
}

func TestRankKeywordTopKAndStableTies(t *testing.T) {
	texts := []string{
		"emitente acme",
		"emitente beta",
		"emitente gama",
	}
	got := RankKeyword("quem é o emitente?", texts, 2)
	require.Len(t, got, 2)
	// Equal scores keep input order.
	require.Equal(t, 0, got[0].Index)
	require.Equal(t, 1, got[1].Index)
}

func TestRankKeywordAccentedTokens(t *testing.T) {
	got := RankKeyword("data de emissão", []string{"Data de Emissão: 2024-01-15."}, 5)
	require.NotEmpty(t, got)
	// "data" and "emissão" both count once.
	require.Equal(t, float64(2), got[0].Score)
}

func TestRankKeywordDefaultTopK(t *testing.T) {
	texts := make([]string, 8)
	for i := range texts {
		texts[i] = "valor da nota"
	}
	got := RankKeyword("valor nota", texts, 0)
	require.Len(t, got, 5)
}
