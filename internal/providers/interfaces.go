package providers

import "context"

// ProviderInfo identifies which backend and key alias served a call; it is
// recorded in the llm_calls audit table next to the outcome.
type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

// GenerateRequest carries one question or report prompt. Context holds the
// rendered DOCUMENTO blocks; providers append them to the prompt in the
// format their API expects.
type GenerateRequest struct {
	Operation string   `json:"operation"`
	Prompt    string   `json:"prompt"`
	Context   []string `json:"context"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

// EmbedRequest batches passage texts for one embedding call. Dimension asks
// the provider to match the pgvector column width where the API supports it;
// otherwise vectors are truncated or zero-padded client side.
type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}

// KeyedProvider is implemented by providers that need a credential from the
// environment. Preflight uses it to stop startup with instructions instead of
// failing on the first question.
type KeyedProvider interface {
	KeyRequirement() (envVar string, present bool)
}
