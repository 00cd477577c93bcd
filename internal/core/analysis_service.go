package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gwi.com/resume-screener/internal/chunker"
	"gwi.com/resume-screener/internal/loader"
	"gwi.com/resume-screener/internal/store"
)

// DocumentLoader returns the pages of the file at path in page order, each
// tagged with source_file and page metadata.
type DocumentLoader interface {
	Load(ctx context.Context, path, filename string) ([]*schema.Document, error)
}

type Upload struct {
	Filename string
	Content  io.Reader
}

type AnalysisResult struct {
	SessionID string                 `json:"sessionId"`
	Results   []store.AnalysisRecord `json:"results"`
}

type AnalysisOptions struct {
	// UploadDir is the parent of the per-batch spool directories.
	UploadDir   string
	Concurrency int
}

type AnalysisService struct {
	loader    DocumentLoader
	extractor *Extractor
	splitter  *chunker.Splitter
	embedder  Embedder
	builder   store.IndexBuilder
	sessions  *store.SessionStore
	opts      AnalysisOptions
	log       *zap.Logger
}

func NewAnalysisService(
	docs DocumentLoader,
	extractor *Extractor,
	splitter *chunker.Splitter,
	embedder Embedder,
	builder store.IndexBuilder,
	sessions *store.SessionStore,
	opts AnalysisOptions,
	log *zap.Logger,
) *AnalysisService {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}
	return &AnalysisService{
		loader:    docs,
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		builder:   builder,
		sessions:  sessions,
		opts:      opts,
		log:       log,
	}
}

type fileOutcome struct {
	record store.AnalysisRecord
	pages  []*schema.Document
	err    error
}

// Analyze scores every upload against jobDescription and indexes the pages of
// the files that were analyzed into a new session. Files that cannot be
// loaded or analyzed are skipped. Results are ordered by match percentage,
// highest first, with ties kept in upload order.
func (s *AnalysisService) Analyze(ctx context.Context, jobDescription string, uploads []Upload) (*AnalysisResult, error) {
	start := time.Now()

	if err := os.MkdirAll(s.opts.UploadDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	dir, err := os.MkdirTemp(s.opts.UploadDir, "batch-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create batch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn("Failed to remove batch dir", zap.String("dir", dir), zap.Error(err))
		}
	}()

	outcomes := make([]fileOutcome, len(uploads))
	paths := make([]string, len(uploads))
	for i, u := range uploads {
		paths[i], outcomes[i].err = spool(dir, i, u)
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, u := range uploads {
		if outcomes[i].err != nil {
			continue
		}
		g.Go(func() error {
			outcomes[i] = s.processFile(ctx, jobDescription, paths[i], u.Filename)
			return nil
		})
	}
	_ = g.Wait()

	var (
		records  []store.AnalysisRecord
		pages    []*schema.Document
		failures []error
	)
	for _, o := range outcomes {
		if o.err != nil {
			failures = append(failures, o.err)
			continue
		}
		records = append(records, o.record)
		pages = append(pages, o.pages...)
	}

	if len(records) == 0 {
		s.log.Error("No resume in batch could be analyzed", zap.Int("files", len(uploads)), zap.Errors("failures", failures))
		return nil, errors.Join(append([]error{ErrAllAnalysesFailed}, failures...)...)
	}

	sessionID, err := s.buildSession(ctx, pages)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].MatchPercentage.Score() > records[j].MatchPercentage.Score()
	})

	s.log.Info("Batch analyzed",
		zap.String("session_id", sessionID),
		zap.Int("files", len(uploads)),
		zap.Int("analyzed", len(records)),
		zap.Int("skipped", len(failures)),
		zap.Duration("took", time.Since(start)))

	return &AnalysisResult{SessionID: sessionID, Results: records}, nil
}

func (s *AnalysisService) processFile(ctx context.Context, jobDescription, path, filename string) fileOutcome {
	pages, err := s.loader.Load(ctx, path, filename)
	if err == nil && len(pages) == 0 {
		err = errors.New("document has no pages")
	}
	if err != nil {
		s.log.Warn("Skipping unreadable resume", zap.String("filename", filename), zap.Error(err))
		return fileOutcome{err: newLoadError(filename, err)}
	}

	extraction, raw, err := s.extractor.Extract(ctx, jobDescription, loader.JoinPages(pages))
	if err != nil {
		s.log.Warn("Skipping resume after failed analysis", zap.String("filename", filename), zap.Error(err))
		return fileOutcome{err: newExtractionError(filename, raw, err)}
	}

	name := extraction.CandidateName
	if name == "" {
		name = filename
	}
	for _, p := range pages {
		if p.MetaData == nil {
			p.MetaData = map[string]any{store.MetaSourceFile: filename}
		}
		p.MetaData[store.MetaCandidateName] = name
	}

	return fileOutcome{
		record: store.AnalysisRecord{
			ID:              uuid.NewString(),
			Filename:        filename,
			CandidateName:   name,
			MatchPercentage: extraction.MatchPercentage,
			Strengths:       nonNil(extraction.Strengths),
			Weaknesses:      nonNil(extraction.Weaknesses),
			Summary:         extraction.Summary,
		},
		pages: pages,
	}
}

// buildSession chunks, embeds and indexes pages, and registers the index
// under a fresh session id once it is complete.
func (s *AnalysisService) buildSession(ctx context.Context, pages []*schema.Document) (string, error) {
	chunks := s.splitter.ChunkPages(pages)

	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		var err error
		vectors, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return "", fmt.Errorf("%w: embed chunks: %v", ErrIndexBuildFailed, err)
		}
		if len(vectors) != len(chunks) {
			return "", fmt.Errorf("%w: got %d vectors for %d chunks", ErrIndexBuildFailed, len(vectors), len(chunks))
		}
	}

	sessionID := uuid.NewString()
	idx, err := s.builder.BuildIndex(ctx, sessionID, chunks, vectors)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIndexBuildFailed, err)
	}
	if err := s.sessions.Register(sessionID, idx); err != nil {
		_ = idx.Close()
		return "", fmt.Errorf("%w: %v", ErrIndexBuildFailed, err)
	}

	s.log.Debug("Session index built", zap.String("session_id", sessionID), zap.Int("chunks", len(chunks)))
	return sessionID, nil
}

// spool copies one upload into dir. The index prefix keeps files with the
// same name apart.
func spool(dir string, i int, u Upload) (string, error) {
	name := filepath.Base(u.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload.pdf"
	}
	path := filepath.Join(dir, fmt.Sprintf("%03d_%s", i, name))
	if u.Content == nil {
		return "", newLoadError(u.Filename, errors.New("upload has no content"))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", newLoadError(u.Filename, err)
	}
	_, copyErr := io.Copy(f, u.Content)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return "", newLoadError(u.Filename, err)
	}
	return path, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
