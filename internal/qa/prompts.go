// Package qa builds the Portuguese prompts sent to chat-completion providers
// and converts their failures into user-visible answers.
package qa

import (
	"fmt"
	"strings"
)

// NoInformationAnswer is the sentence the model is instructed to return when
// the retrieved documents do not cover the question.
const NoInformationAnswer = "Não encontrei informações sobre isso nos documentos fornecidos."

const answerPromptHeader = `Você é um assistente especializado em análise de Notas Fiscais.
Use APENAS as informações fornecidas nos documentos abaixo para responder.
Se a informação não estiver nos documentos, responda: "` + NoInformationAnswer + `"
Seja preciso com números e valores.

Documentos:
`

// AnswerPrompt assembles the single question prompt: instruction header,
// enumerated retrieved documents, then the question.
func AnswerPrompt(question string, contexts []string) string {
	b := strings.Builder{}
	b.WriteString(answerPromptHeader)
	for i, c := range contexts {
		fmt.Fprintf(&b, "\nDOCUMENTO %d:\n%s\n", i+1, c)
	}
	if len(contexts) == 0 {
		b.WriteString("\n(nenhum documento recuperado)\n")
	}
	b.WriteString("\nPergunta: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nResposta:")
	return b.String()
}

// ReportSectionPrompt asks one report question against the retrieved
// documents, in the same grounded style as AnswerPrompt but tuned for a
// written report section.
func ReportSectionPrompt(question string, contexts []string) string {
	b := strings.Builder{}
	b.WriteString(`Você é um analista de Notas Fiscais escrevendo uma seção de relatório.
Responda à pergunta abaixo usando APENAS os documentos fornecidos.
Escreva um ou dois parágrafos objetivos, citando números e valores exatos.
Se os documentos não cobrirem a pergunta, escreva: "` + NoInformationAnswer + `"

Documentos:
`)
	for i, c := range contexts {
		fmt.Fprintf(&b, "\nDOCUMENTO %d:\n%s\n", i+1, c)
	}
	b.WriteString("\nPergunta: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nSeção:")
	return b.String()
}

// ReportSummaryPrompt asks for a strict-JSON executive summary of the report
// sections, so the workflow can parse it instead of pasting raw model text.
func ReportSummaryPrompt(batchName string, sections []string) string {
	b := strings.Builder{}
	b.WriteString(`Você é um analista de Notas Fiscais. Resuma as seções de relatório abaixo.

Responda com JSON ESTRITO neste formato:
{
  "resumo": "dois ou três períodos com os totais e fatos principais",
  "destaques": ["fato curto 1", "fato curto 2"]
}

Regras:
- No máximo 5 destaques.
- Use apenas informações presentes nas seções.
- Se não houver informações, retorne {"resumo": "", "destaques": []}.

`)
	fmt.Fprintf(&b, "Lote: %s\n", strings.TrimSpace(batchName))
	for i, s := range sections {
		fmt.Fprintf(&b, "\nSEÇÃO %d:\n%s\n", i+1, s)
	}
	return b.String()
}
