package activities

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"invoiceflow/internal/config"

	"github.com/stretchr/testify/require"
)

func tokenText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "tok%04d ", i)
	}
	return b.String()
}

func TestChunkPassagesUsesConfiguredOverlapWhenUnset(t *testing.T) {
	a := &Activities{cfg: config.Config{ChunkSize: 1200, ChunkOverlap: 200}}

	out, err := a.ChunkPassagesActivity(context.Background(), ChunkPassagesInput{
		SourceID: "src-1",
		BatchID:  "batch-1",
		Text:     tokenText(300),
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(out.Passages), 2)

	// With the default overlap applied the second chunk re-starts inside
	// the first chunk's tail.
	firstOfSecond := strings.Fields(out.Passages[1].Text)[0]
	require.Contains(t, out.Passages[0].Text, firstOfSecond)
}

func TestChunkPassagesExplicitZeroOverlap(t *testing.T) {
	a := &Activities{cfg: config.Config{ChunkSize: 1200, ChunkOverlap: 200}}

	out, err := a.ChunkPassagesActivity(context.Background(), ChunkPassagesInput{
		SourceID:  "src-1",
		BatchID:   "batch-1",
		Text:      tokenText(300),
		ChunkSize: 800,
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(out.Passages), 2)

	firstOfSecond := strings.Fields(out.Passages[1].Text)[0]
	require.NotContains(t, out.Passages[0].Text, firstOfSecond)
}
