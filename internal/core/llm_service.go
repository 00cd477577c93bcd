package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"gwi.com/resume-screener/internal/config"
	"gwi.com/resume-screener/internal/logger"
)

const (
	generationTemperature = 0.1
	// Upper bound on requests per BatchEmbedContents call.
	maxEmbedBatch = 100
	logPreviewLen = 200
)

// TextGenerator produces model text for a fully rendered prompt.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	// GenerateJSON asks the model for a JSON response body.
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Embedder maps text to vectors. EmbedBatch returns one vector per input, in
// input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMService struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	llmTimeout     time.Duration
	embedTimeout   time.Duration
	log            *zap.Logger
}

func NewLLMService(ctx context.Context, cfg config.Config, log *zap.Logger) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &LLMService{
		client:         client,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		llmTimeout:     cfg.LLMTimeout,
		embedTimeout:   cfg.EmbedTimeout,
		log:            log,
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.Warn("Error closing GenAI client", zap.Error(err))
		} else {
			s.log.Debug("GenAI client closed")
		}
	}
}

func (s *LLMService) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return s.generate(ctx, prompt, "")
}

func (s *LLMService) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return s.generate(ctx, prompt, "application/json")
}

func (s *LLMService) generate(ctx context.Context, prompt, mimeType string) (string, error) {
	ctx, cancel := withTimeout(ctx, s.llmTimeout)
	defer cancel()

	model := s.client.GenerativeModel(s.chatModel)
	model.SetTemperature(generationTemperature)
	if mimeType != "" {
		model.ResponseMIMEType = mimeType
	}

	start := time.Now()
	fields := append([]zap.Field{zap.String("model", s.chatModel)}, logger.PromptFields(s.log, prompt, logPreviewLen)...)
	s.log.Debug("Sending prompt to Gemini", fields...)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini response was empty or had no valid candidates")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			s.log.Debug("Gemini response part was not text", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}
	if responseText.Len() == 0 {
		return "", errors.New("gemini response contained no text")
	}

	s.log.Debug("Gemini response received",
		zap.Duration("took", time.Since(start)),
		zap.String("response_preview", logger.TruncateForLog(responseText.String(), logPreviewLen)))
	return responseText.String(), nil
}

func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, s.embedTimeout)
	defer cancel()

	em := s.client.EmbeddingModel(s.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (s *LLMService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := withTimeout(ctx, s.embedTimeout)
	defer cancel()

	em := s.client.EmbeddingModel(s.embeddingModel)
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embedding request failed: %w", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(res.Embeddings), end-start)
		}
		for i, e := range res.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, fmt.Errorf("empty embedding for text %d", start+i)
			}
			vectors = append(vectors, e.Values)
		}
	}

	s.log.Debug("Embedded texts", zap.Int("count", len(vectors)))
	return vectors, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
