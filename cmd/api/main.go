package main

import (
	"log"
	"net/http"

	"invoiceflow/internal/api"
	"invoiceflow/internal/config"
	"invoiceflow/internal/providers"

	"github.com/joho/godotenv"
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
		log.Printf("warning: embedding provider %s has no credential; retrieval degrades to keyword mode", warn)
	}
	h := api.NewServer(cfg)
	log.Printf("invoiceflow api listening on %s llm_providers=%q embed_providers=%q", cfg.APIAddr, cfg.LLMProviders, cfg.EmbedProviders)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
