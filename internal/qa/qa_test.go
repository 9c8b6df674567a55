package qa

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnswerPrompt(t *testing.T) {
	p := AnswerPrompt("Qual o valor da nota 12345?", []string{
		"Nota Fiscal: 12345. Valor Total da Nota: R$ 150.00.",
		"Item da Nota Fiscal 12345: Produto 1 - PAPEL.",
	})
	require.Contains(t, p, NoInformationAnswer)
	require.Contains(t, p, "DOCUMENTO 1:")
	require.Contains(t, p, "DOCUMENTO 2:")
	require.Contains(t, p, "Pergunta: Qual o valor da nota 12345?")
	require.True(t, len(p) > 0 && p[len(p)-1] == ':', "prompt must end at Resposta:")
}

func TestAnswerPromptNoContexts(t *testing.T) {
	p := AnswerPrompt("qualquer", nil)
	require.Contains(t, p, "nenhum documento recuperado")
}

func TestErrorAnswerNonThrowing(t *testing.T) {
	got := ErrorAnswer(errors.New("groq generate error 500: internal"))
	require.Contains(t, got, "Erro ao consultar a API")
	require.Contains(t, got, "500")
	require.Empty(t, ErrorAnswer(nil))
}

func TestCleanAnswer(t *testing.T) {
	require.Equal(t, "ok", CleanAnswer("  ok \n"))
	require.Equal(t, NoInformationAnswer, CleanAnswer("   "))
}

func TestParseReportSummaryFenced(t *testing.T) {
	raw := "```json\n{\"resumo\": \"Total de R$ 1.000,00 em 3 notas.\", \"destaques\": [\"ACME lidera\", \" \"]}\n```"
	sum, ok := ParseReportSummary(raw)
	require.True(t, ok)
	require.Equal(t, "Total de R$ 1.000,00 em 3 notas.", sum.Resumo)
	require.Equal(t, []string{"ACME lidera"}, sum.Destaques)
}

func TestParseReportSummaryEmbeddedInProse(t *testing.T) {
	raw := "Segue o resumo solicitado: {\"resumo\": \"ok\", \"destaques\": []} Espero ter ajudado."
	sum, ok := ParseReportSummary(raw)
	require.True(t, ok)
	require.Equal(t, "ok", sum.Resumo)
}

func TestExtractJSONObjectHandlesBracesInsideStrings(t *testing.T) {
	raw := `{"resumo": "chaves { e } no texto", "destaques": []}`
	obj, ok := ExtractJSONObject(raw)
	require.True(t, ok)
	require.Equal(t, raw, obj)
}

func TestExtractJSONObjectNoObject(t *testing.T) {
	_, ok := ExtractJSONObject("sem json aqui")
	require.False(t, ok)
}
