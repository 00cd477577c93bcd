// Package loader turns uploaded resume files into per-page documents.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"gwi.com/resume-screener/internal/store"
)

// ErrUnreadableDocument is returned for any file that cannot be opened,
// validated or parsed as a PDF.
var ErrUnreadableDocument = errors.New("unreadable document")

// decodeFunc turns raw PDF bytes into per-page documents.
type decodeFunc func(ctx context.Context, data []byte, filename string) ([]*schema.Document, error)

type PDFLoader struct {
	parser  *pdf.PDFParser
	decode  decodeFunc
	timeout time.Duration
	log     *zap.Logger
}

func NewPDFLoader(ctx context.Context, timeout time.Duration, log *zap.Logger) (*PDFLoader, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf parser: %w", err)
	}
	l := &PDFLoader{parser: p, timeout: timeout, log: log}
	l.decode = l.validateAndParse
	return l, nil
}

// Load reads the PDF at path and returns one document per page, in page
// order. filename is the name the file was uploaded with and is recorded as
// source_file metadata on every page.
func (l *PDFLoader) Load(ctx context.Context, path, filename string) ([]*schema.Document, error) {
	start := time.Now()
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, filename, err)
	}

	docs, err := l.decodeWithDeadline(ctx, data, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, filename, err)
	}

	pages := make([]*schema.Document, 0, len(docs))
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		meta := make(map[string]any, len(doc.MetaData)+2)
		for k, v := range doc.MetaData {
			meta[k] = v
		}
		meta[store.MetaSourceFile] = filename
		meta[store.MetaPage] = i + 1
		pages = append(pages, &schema.Document{
			ID:       fmt.Sprintf("%s#%d", filename, i+1),
			Content:  doc.Content,
			MetaData: meta,
		})
	}

	l.log.Debug("Loaded document",
		zap.String("filename", filename),
		zap.Int("pages", len(pages)),
		zap.Duration("took", time.Since(start)))
	return pages, nil
}

type decodeResult struct {
	docs []*schema.Document
	err  error
}

// decodeWithDeadline stops waiting once ctx is done. Neither pdfcpu nor the
// eino parser observe the context, so a stuck decode is abandoned rather than
// cancelled; its goroutine exits when decoding eventually returns.
func (l *PDFLoader) decodeWithDeadline(ctx context.Context, data []byte, filename string) ([]*schema.Document, error) {
	done := make(chan decodeResult, 1)
	go func() {
		docs, err := l.decode(ctx, data, filename)
		done <- decodeResult{docs: docs, err: err}
	}()

	select {
	case res := <-done:
		return res.docs, res.err
	case <-ctx.Done():
		l.log.Warn("Gave up on slow document", zap.String("filename", filename), zap.Error(ctx.Err()))
		return nil, ctx.Err()
	}
}

func (l *PDFLoader) validateAndParse(ctx context.Context, data []byte, filename string) ([]*schema.Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return nil, fmt.Errorf("invalid pdf: %w", err)
	}
	return l.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(filename),
		einoParser.WithExtraMeta(map[string]any{store.MetaSourceFile: filename}),
	)
}

// JoinPages concatenates page text with single spaces, which is the form the
// analysis prompt receives.
func JoinPages(pages []*schema.Document) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Content)
	}
	return strings.Join(parts, " ")
}
