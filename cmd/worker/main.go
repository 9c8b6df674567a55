package main

import (
	"context"
	"log"
	"strings"
	"time"

	"invoiceflow/internal/activities"
	"invoiceflow/internal/config"
	"invoiceflow/internal/providers"
	"invoiceflow/internal/storage"
	"invoiceflow/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	pm, err := providers.NewManager(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := pm.PreflightLLM(); err != nil {
		log.Fatalf("%v", err)
	}
	for _, warn := range pm.PreflightEmbed() {
		log.Printf("warning: embedding provider %s has no credential; passages will be stored for keyword-only retrieval", warn)
	}

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := storage.EnsureSchema(ctx, db, cfg.EmbedDim); err != nil {
		log.Fatal(err)
	}
	a, err := activities.New(cfg, db)
	if err != nil {
		log.Fatal(err)
	}
	activities.Register(w, a)

	// Log the resolved embed chain rather than the raw env string so the mock
	// fallback is visible when no provider is configured.
	embedRefs := make([]string, 0, pm.EmbedCount())
	for _, ref := range pm.EmbedProviderRefs() {
		embedRefs = append(embedRefs, ref.Raw)
	}
	log.Printf("invoiceflow worker listening on %s queue=%s llm_providers=%q embed_providers=%q", cfg.TemporalAddress, cfg.TemporalTaskQueue, cfg.LLMProviders, strings.Join(embedRefs, "|"))
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}
