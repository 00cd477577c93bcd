package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gwi.com/resume-screener/internal/chunker"
	"gwi.com/resume-screener/internal/config"
	"gwi.com/resume-screener/internal/core"
	"gwi.com/resume-screener/internal/loader"
	"gwi.com/resume-screener/internal/logger"
	"gwi.com/resume-screener/internal/prompts"
	"gwi.com/resume-screener/internal/store"
)

// app holds the wired services shared by the serve and analyze commands.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	llm      *core.LLMService
	sqlite   *store.SQLiteStore
	sessions *store.SessionStore
	analysis *core.AnalysisService
	rag      *core.RAGService
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	if err := config.LoadConfig(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg := config.AppConfig
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.LogLevel = "DEBUG"
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		cfg.LogFormat = "json"
	}

	log, err := logger.New(cfg.LogFormat == "json", cfg.Debug())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	set, err := prompts.Load()
	if err != nil {
		return err
	}
	analysisPrompt, err := set.Get(prompts.Analysis)
	if err != nil {
		return err
	}
	answerPrompt, err := set.Get(prompts.Answer)
	if err != nil {
		return err
	}

	a.llm, err = core.NewLLMService(ctx, cfg, a.log.Named("llm"))
	if err != nil {
		return err
	}

	pdfLoader, err := loader.NewPDFLoader(ctx, cfg.LoadTimeout, a.log.Named("loader"))
	if err != nil {
		return err
	}
	extractor, err := core.NewExtractor(a.llm, analysisPrompt, cfg.ExtractionAttempts, a.log.Named("extractor"))
	if err != nil {
		return err
	}
	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return err
	}

	var builder store.IndexBuilder = store.MemoryIndexBuilder{}
	if cfg.VectorBackend == config.BackendSQLite {
		a.sqlite, err = store.NewSQLiteStore(cfg.SQLiteDSN, a.log.Named("sqlite"))
		if err != nil {
			return fmt.Errorf("failed to initialize vector store: %w", err)
		}
		builder = a.sqlite
	}

	a.sessions = store.NewSessionStore(store.SessionPolicy{
		Capacity: cfg.SessionCapacity,
		TTL:      cfg.SessionTTL,
	}, a.log.Named("sessions"))

	a.analysis = core.NewAnalysisService(pdfLoader, extractor, splitter, a.llm, builder, a.sessions,
		core.AnalysisOptions{UploadDir: cfg.UploadDir, Concurrency: cfg.AnalysisConcurrency},
		a.log.Named("analysis"))
	a.rag = core.NewRAGService(a.sessions, a.llm, a.llm, answerPrompt, cfg.RAGTopK, a.log.Named("rag"))

	a.log.Info("Services initialized",
		zap.String("chat_model", cfg.ChatModel),
		zap.String("embedding_model", cfg.EmbeddingModel),
		zap.String("vector_backend", cfg.VectorBackend),
		zap.String("analysis_prompt", analysisPrompt.Version),
		zap.String("answer_prompt", answerPrompt.Version))
	return nil
}

func (a *app) Close() {
	if a.llm != nil {
		a.llm.Close()
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.log.Warn("Error closing vector store", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
