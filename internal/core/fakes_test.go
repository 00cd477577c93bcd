package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gwi.com/resume-screener/internal/chunker"
	"gwi.com/resume-screener/internal/loader"
	"gwi.com/resume-screener/internal/prompts"
	"gwi.com/resume-screener/internal/store"
)

// fakeLoader reads the spooled file and treats form feeds as page breaks.
// Files whose content starts with "corrupt" are unreadable.
type fakeLoader struct {
	mu    sync.Mutex
	paths []string
}

func (l *fakeLoader) Load(_ context.Context, path, filename string) ([]*schema.Document, error) {
	l.mu.Lock()
	l.paths = append(l.paths, path)
	l.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", loader.ErrUnreadableDocument, err)
	}
	if strings.HasPrefix(string(data), "corrupt") {
		return nil, fmt.Errorf("%w: %s: bad xref table", loader.ErrUnreadableDocument, filename)
	}

	var pages []*schema.Document
	for i, text := range strings.Split(string(data), "\f") {
		pages = append(pages, &schema.Document{
			Content:  text,
			MetaData: map[string]any{store.MetaSourceFile: filename, store.MetaPage: i + 1},
		})
	}
	return pages, nil
}

func (l *fakeLoader) seenPaths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

// fakeGenerator answers JSON requests with the first response whose marker
// appears in the prompt.
type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	jsonErr   error
	answer    string
	answerErr error
	prompts   []string
}

func (g *fakeGenerator) GenerateJSON(_ context.Context, prompt string) (string, error) {
	g.record(prompt)
	if g.jsonErr != nil {
		return "", g.jsonErr
	}
	for marker, resp := range g.responses {
		if strings.Contains(prompt, marker) {
			return resp, nil
		}
	}
	return "I cannot help with that", nil
}

func (g *fakeGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	g.record(prompt)
	if g.answerErr != nil {
		return "", g.answerErr
	}
	return g.answer, nil
}

func (g *fakeGenerator) record(prompt string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

var vocabulary = []string{"go", "rust", "paint", "python", "sql"}

// fakeEmbedder counts vocabulary words, plus a constant dimension so no
// vector is all zeros.
type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	lower := strings.ToLower(text)
	v := make([]float32, len(vocabulary)+1)
	for i, w := range vocabulary {
		v[i] = float32(strings.Count(lower, w))
	}
	v[len(vocabulary)] = 0.01
	return v, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

var errModelDown = errors.New("model unavailable")

func analysisJSON(name string, pct any) string {
	b, _ := json.Marshal(map[string]any{
		"candidate_name":   name,
		"match_percentage": pct,
		"strengths":        []string{"relevant experience"},
		"weaknesses":       []string{"no cloud certification"},
		"summary":          "Summary for " + name,
	})
	return string(b)
}

type testEnv struct {
	analysis  *AnalysisService
	rag       *RAGService
	sessions  *store.SessionStore
	loader    *fakeLoader
	gen       *fakeGenerator
	embedder  *fakeEmbedder
	uploadDir string
}

func newTestEnv(t *testing.T, responses map[string]string) *testEnv {
	t.Helper()
	log := zap.NewNop()
	set := prompts.MustLoad()
	analysisPrompt, err := set.Get(prompts.Analysis)
	require.NoError(t, err)
	answerPrompt, err := set.Get(prompts.Answer)
	require.NoError(t, err)

	env := &testEnv{
		sessions:  store.NewSessionStore(store.SessionPolicy{}, log),
		loader:    &fakeLoader{},
		gen:       &fakeGenerator{responses: responses, answer: "Ada Lovelace knows Go."},
		embedder:  &fakeEmbedder{},
		uploadDir: t.TempDir(),
	}

	extractor, err := NewExtractor(env.gen, analysisPrompt, 1, log)
	require.NoError(t, err)
	splitter, err := chunker.New(1000, 100)
	require.NoError(t, err)

	env.analysis = NewAnalysisService(env.loader, extractor, splitter, env.embedder, store.MemoryIndexBuilder{},
		env.sessions, AnalysisOptions{UploadDir: env.uploadDir, Concurrency: 3}, log)
	env.rag = NewRAGService(env.sessions, env.embedder, env.gen, answerPrompt, 1, log)
	return env
}

func upload(name, content string) Upload {
	return Upload{Filename: name, Content: strings.NewReader(content)}
}

// sessionSources returns the distinct source files indexed for a session.
func sessionSources(t *testing.T, sessions *store.SessionStore, sessionID string) []string {
	t.Helper()
	idx, err := sessions.Lookup(sessionID)
	require.NoError(t, err)
	hits, err := idx.Search(context.Background(), []float32{1, 1, 1, 1, 1, 1}, idx.Len())
	require.NoError(t, err)

	seen := map[string]bool{}
	var out []string
	for _, h := range hits {
		if !seen[h.Chunk.SourceFile] {
			seen[h.Chunk.SourceFile] = true
			out = append(out, h.Chunk.SourceFile)
		}
	}
	return out
}
