// Package service implements the per-query hybrid memory assembler.
package service

import (
	"github.com/xiaot623/recall/config"
	"github.com/xiaot623/recall/llm"
	"github.com/xiaot623/recall/memory"
	"github.com/xiaot623/recall/personality"
	"github.com/xiaot623/recall/store"
)

// Service wires the ledger, the long-term retriever, the personality
// compiler and the LLM client into the per-request query path. It is
// constructed once at start-up and passed into handlers; request state
// never lives on the struct.
type Service struct {
	store         store.Store
	retriever     *memory.Retriever
	personalities *personality.Manager
	llmClient     llm.LLMClient
	config        *config.Config
}

// New creates a new service.
func New(st store.Store, retriever *memory.Retriever, personalities *personality.Manager, llmClient llm.LLMClient, cfg *config.Config) *Service {
	return &Service{
		store:         st,
		retriever:     retriever,
		personalities: personalities,
		llmClient:     llmClient,
		config:        cfg,
	}
}

// Personalities exposes the compiler for the personality endpoints.
func (s *Service) Personalities() *personality.Manager {
	return s.personalities
}

// Store exposes the ledger for the read-only endpoints.
func (s *Service) Store() store.Store {
	return s.store
}
