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

func TestResolveOllamaEmbedModel_Default(t *testing.T) {
	t.Setenv("INVOICEFLOW_OLLAMA_EMBED_MODEL", "")
	got := resolveOllamaEmbedModel("")
	if got != "nomic-embed-text" {
		t.Fatalf("expected default nomic-embed-text, got %q", got)
	}
}

func TestResolveOllamaEmbedModel_DirectModelAlias(t *testing.T) {
	t.Setenv("INVOICEFLOW_OLLAMA_EMBED_MODEL", "")
	got := resolveOllamaEmbedModel("nomic-embed-text")
	if got != "nomic-embed-text" {
		t.Fatalf("expected alias passthrough, got %q", got)
	}
}

func TestOllamaGenerateRequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"response":"Não encontrei informações sobre isso nos documentos fornecidos."}`))
	}))
	defer srv.Close()

	t.Setenv("INVOICEFLOW_OLLAMA_BASE_URL", srv.URL)
	t.Setenv("INVOICEFLOW_OLLAMA_MODEL", "llama3.1")

	p := NewOllamaProvider("")
	resp, info, err := p.Generate(context.Background(), GenerateRequest{Prompt: "PERGUNTA: qual o valor?"})
	require.NoError(t, err)
	require.Equal(t, "ollama", info.Name)
	require.Contains(t, resp.Text, "Não encontrei")

	require.Equal(t, "llama3.1", got["model"])
	require.Equal(t, false, got["stream"])
	opts, ok := got["options"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 0, opts["temperature"])
}

func TestMatchDimension(t *testing.T) {
	src := []float32{1, 2, 3}
	a := matchDimension(src, 2)
	if len(a) != 2 || a[0] != 1 || a[1] != 2 {
		t.Fatalf("truncate failed: %#v", a)
	}
	b := matchDimension(src, 5)
	if len(b) != 5 || b[0] != 1 || b[2] != 3 || b[3] != 0 || b[4] != 0 {
		t.Fatalf("pad failed: %#v", b)
	}
}
