package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gwi.com/resume-screener/internal/prompts"
	"gwi.com/resume-screener/internal/store"
)

type RAGService struct {
	sessions *store.SessionStore
	embedder Embedder
	gen      TextGenerator
	prompt   *prompts.Template
	topK     int
	log      *zap.Logger
}

func NewRAGService(sessions *store.SessionStore, embedder Embedder, gen TextGenerator, prompt *prompts.Template, topK int, log *zap.Logger) *RAGService {
	return &RAGService{
		sessions: sessions,
		embedder: embedder,
		gen:      gen,
		prompt:   prompt,
		topK:     topK,
		log:      log,
	}
}

// Answer responds to question using only the resume chunks indexed for
// sessionID.
func (s *RAGService) Answer(ctx context.Context, sessionID, question string) (string, error) {
	idx, err := s.sessions.Lookup(sessionID)
	if err != nil {
		return "", err
	}

	relevant, err := s.retrieve(ctx, idx, question)
	if errors.Is(err, store.ErrSessionNotFound) {
		s.log.Info("Session evicted during chat", zap.String("session_id", sessionID))
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnswerGenerationFailed, err)
	}

	prompt, err := s.prompt.Render(map[string]string{
		"Context":  FormatContext(relevant),
		"Question": question,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnswerGenerationFailed, err)
	}

	answer, err := s.gen.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnswerGenerationFailed, err)
	}
	return strings.TrimSpace(answer), nil
}

func (s *RAGService) retrieve(ctx context.Context, idx store.VectorIndex, question string) ([]store.ScoredChunk, error) {
	if idx.Len() == 0 {
		s.log.Debug("Session index is empty")
		return nil, nil
	}

	queryEmbedding, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to get query embedding: %w", err)
	}

	relevant, err := idx.Search(ctx, queryEmbedding, s.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search session index: %w", err)
	}

	s.log.Debug("Retrieved resume chunks", zap.Int("count", len(relevant)))
	return relevant, nil
}

// FormatContext wraps each chunk in markers naming the candidate it came
// from.
func FormatContext(chunks []store.ScoredChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		name := c.Chunk.Citation()
		parts = append(parts, fmt.Sprintf("--- START OF RESUME: %s ---\n%s\n--- END OF RESUME: %s ---", name, c.Chunk.Text, name))
	}
	return strings.Join(parts, "\n\n")
}
