package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveGroqKeyFallback(t *testing.T) {
	t.Setenv("INVOICEFLOW_GROQ_KEY_ALIAS1", "")
	t.Setenv("GROQ_API_KEY", "fallback-key")
	require.Equal(t, "fallback-key", resolveGroqKey("alias1"))

	t.Setenv("INVOICEFLOW_GROQ_KEY_ALIAS1", "alias-key")
	require.Equal(t, "alias-key", resolveGroqKey("alias1"))
}

func TestGroqGenerateRequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"O valor total é R$ 100,00."}}]}`))
	}))
	defer srv.Close()

	t.Setenv("INVOICEFLOW_GROQ_BASE_URL", srv.URL)
	t.Setenv("GROQ_API_KEY", "test-key")
	t.Setenv("INVOICEFLOW_GROQ_MODEL", "llama-3.1-8b-instant")

	p := NewGroqProvider("")
	resp, info, err := p.Generate(context.Background(), GenerateRequest{Operation: "ask_answer", Prompt: "PERGUNTA: qual o valor?"})
	require.NoError(t, err)
	require.Equal(t, "O valor total é R$ 100,00.", resp.Text)
	require.Equal(t, "groq", info.Name)

	require.Equal(t, "llama-3.1-8b-instant", got["model"])
	require.EqualValues(t, 0, got["temperature"])
	require.EqualValues(t, 1000, got["max_tokens"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	first := msgs[0].(map[string]any)
	require.Equal(t, "user", first["role"])
}

func TestGroqGenerateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached"}}`))
	}))
	defer srv.Close()

	t.Setenv("INVOICEFLOW_GROQ_BASE_URL", srv.URL)
	t.Setenv("GROQ_API_KEY", "test-key")

	p := NewGroqProvider("")
	_, _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "pergunta"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
	require.Equal(t, ErrorRate, ClassifyError(err))
}

func TestGroqMissingKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	p := NewGroqProvider("")
	_, _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "pergunta"})
	require.Error(t, err)

	envVar, present := p.KeyRequirement()
	require.False(t, present)
	require.Equal(t, "GROQ_API_KEY", envVar)
}
