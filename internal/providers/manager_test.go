package providers

import (
	"testing"

	"invoiceflow/internal/config"

	"github.com/stretchr/testify/require"
)

func TestPreflightLLMMissingGroqKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("INVOICEFLOW_GROQ_KEY_DEFAULT", "")

	m, err := NewManager(config.Config{LLMProviders: "groq:default", EmbedProviders: "mock", EmbedDim: 8})
	require.NoError(t, err)

	err = m.PreflightLLM()
	require.Error(t, err)
	require.Contains(t, err.Error(), "GROQ_API_KEY")
	require.Contains(t, err.Error(), ".env")
}

func TestPreflightLLMOkWithKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "k")

	m, err := NewManager(config.Config{LLMProviders: "groq", EmbedProviders: "mock", EmbedDim: 8})
	require.NoError(t, err)
	require.NoError(t, m.PreflightLLM())
}

func TestPreflightEmbedSoftWarning(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	m, err := NewManager(config.Config{LLMProviders: "mock", EmbedProviders: "openai", EmbedDim: 8})
	require.NoError(t, err)

	missing := m.PreflightEmbed()
	require.Len(t, missing, 1)
	require.Contains(t, missing[0], "OPENAI_API_KEY")
}

func TestPreferredOrderPutsMockLast(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "k")
	m, err := NewManager(config.Config{LLMProviders: "mock|groq", EmbedProviders: "mock", EmbedDim: 8})
	require.NoError(t, err)

	order := m.PreferredLLMOrder()
	require.Equal(t, []int{1, 0}, order)
}

func TestEmptyConfigFallsBackToMock(t *testing.T) {
	m, err := NewManager(config.Config{EmbedDim: 8})
	require.NoError(t, err)

	require.Equal(t, 1, m.EmbedCount())
	require.Equal(t, 1, m.LLMCount())
	require.NotNil(t, m.FirstEmbedProvider())
	require.NotNil(t, m.FirstLLMProvider())

	refs := m.EmbedProviderRefs()
	require.Len(t, refs, 1)
	require.Equal(t, "mock", refs[0].Name)
}

func TestFindProviderIndexMatchesRawAndAlias(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "k")
	m, err := NewManager(config.Config{LLMProviders: "groq:paid|mock", EmbedProviders: "openai|mock", EmbedDim: 8})
	require.NoError(t, err)

	require.Equal(t, 0, m.FindLLMProviderIndex("groq:paid"))
	require.Equal(t, 0, m.FindLLMProviderIndex("groq"))
	require.Equal(t, 1, m.FindLLMProviderIndex("mock"))
	require.Equal(t, -1, m.FindLLMProviderIndex("ollama"))

	require.Equal(t, 0, m.FindEmbedProviderIndex("openai"))
	require.Equal(t, 1, m.FindEmbedProviderIndex("mock"))
	require.Equal(t, -1, m.FindEmbedProviderIndex(""))
}
