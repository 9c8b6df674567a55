package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OllamaProvider talks to a local Ollama daemon and serves both sides of the
// failover chain: /api/embeddings for vectors and /api/generate for answers.
// No API key is involved, which makes it the free fallback when hosted
// providers are cooling down.
type OllamaProvider struct {
	alias      string
	baseURL    string
	embedModel string
	llmModel   string
	client     *http.Client
}

func NewOllamaProvider(alias string) *OllamaProvider {
	baseURL := strings.TrimSpace(os.Getenv("INVOICEFLOW_OLLAMA_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		alias:      alias,
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: resolveOllamaEmbedModel(alias),
		llmModel:   resolveOllamaLLMModel(),
		client:     &http.Client{Timeout: 120 * time.Second},
	}
}

// KeyRequirement reports no credential need; Ollama is a local service.
func (o *OllamaProvider) KeyRequirement() (string, bool) {
	return "", true
}

func (o *OllamaProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.embedModel, Key: o.alias}
	if len(req.Inputs) == 0 {
		return nil, info, fmt.Errorf("no embedding inputs")
	}
	out := make([][]float32, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		body, err := o.post(ctx, "/api/embeddings", map[string]any{
			"model":  o.embedModel,
			"prompt": text,
		})
		if err != nil {
			return nil, info, fmt.Errorf("ollama embedding: %w", err)
		}
		var parsed struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, info, fmt.Errorf("decode ollama embedding response: %w", err)
		}
		if len(parsed.Embedding) == 0 {
			return nil, info, fmt.Errorf("ollama returned empty embedding")
		}
		out = append(out, matchDimension(parsed.Embedding, req.Dimension))
	}
	return out, info, nil
}

func (o *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.llmModel, Key: o.alias}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt += "\n\nContexto:\n" + strings.Join(req.Context, "\n\n")
	}
	body, err := o.post(ctx, "/api/generate", map[string]any{
		"model":   o.llmModel,
		"prompt":  prompt,
		"stream":  false,
		"options": map[string]any{"temperature": 0},
	})
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("ollama generate: %w", err)
	}
	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode ollama generate response: %w", err)
	}
	if strings.TrimSpace(parsed.Response) == "" {
		return GenerateResponse{}, info, fmt.Errorf("ollama returned empty response")
	}
	return GenerateResponse{Text: parsed.Response}, info, nil
}

func (o *OllamaProvider) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	raw, _ := json.Marshal(payload)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(raw))
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func resolveOllamaEmbedModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		key := "INVOICEFLOW_OLLAMA_EMBED_MODEL_" + sanitizeEnvToken(alias)
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		switch strings.ToLower(alias) {
		case "nomic":
			return "nomic-embed-text"
		case "bge":
			return "bge-small-en-v1.5"
		}
		// Allow direct model in provider list, e.g. ollama:nomic-embed-text
		if strings.Contains(alias, "-") || strings.Contains(alias, "/") || strings.Contains(alias, ".") {
			return alias
		}
	}
	if v := strings.TrimSpace(os.Getenv("INVOICEFLOW_OLLAMA_EMBED_MODEL")); v != "" {
		return v
	}
	return "nomic-embed-text"
}

func ResolveOllamaEmbedModel(alias string) string {
	return resolveOllamaEmbedModel(alias)
}

func resolveOllamaLLMModel() string {
	if v := strings.TrimSpace(os.Getenv("INVOICEFLOW_OLLAMA_MODEL")); v != "" {
		return v
	}
	return "llama3.1"
}

func sanitizeEnvToken(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}

func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
