package qa

import (
	"strings"

	"invoiceflow/internal/util"
)

// ErrorAnswer converts a provider failure into the user-visible answer
// string. On the ask path an API or network failure never becomes an HTTP
// error: the message takes the answer's place.
func ErrorAnswer(err error) string {
	if err == nil {
		return ""
	}
	detail := util.DisplaySnippet(err.Error(), 200)
	if detail == "" {
		detail = "falha desconhecida"
	}
	return "Erro ao consultar a API: " + detail
}

// CleanAnswer trims model output and substitutes the no-information sentence
// for empty responses.
func CleanAnswer(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return NoInformationAnswer
	}
	return t
}
