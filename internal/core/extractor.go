package core

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"gwi.com/resume-screener/internal/logger"
	"gwi.com/resume-screener/internal/prompts"
	"gwi.com/resume-screener/internal/store"
)

//go:embed extraction_schema.json
var extractionSchemaJSON string

// Extractor turns a resume and a job description into a structured
// assessment using the model in JSON mode.
type Extractor struct {
	gen      TextGenerator
	prompt   *prompts.Template
	schema   *gojsonschema.Schema
	attempts int
	log      *zap.Logger
}

func NewExtractor(gen TextGenerator, prompt *prompts.Template, attempts int, log *zap.Logger) (*Extractor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(extractionSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction schema: %w", err)
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Extractor{gen: gen, prompt: prompt, schema: schema, attempts: attempts, log: log}, nil
}

// Extract returns the parsed assessment and the last raw model output. Every
// failure, including generator errors, wraps ErrExtractionFailed.
func (e *Extractor) Extract(ctx context.Context, jobDescription, resumeText string) (store.Extraction, string, error) {
	prompt, err := e.prompt.Render(map[string]string{
		"JobDescription": jobDescription,
		"ResumeText":     resumeText,
	})
	if err != nil {
		return store.Extraction{}, "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	var raw string
	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return store.Extraction{}, raw, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}

		raw, err = e.gen.GenerateJSON(ctx, prompt)
		if err != nil {
			lastErr = fmt.Errorf("generate: %w", err)
		} else {
			var out store.Extraction
			if out, err = e.parse(raw); err == nil {
				return out, raw, nil
			}
			lastErr = err
		}

		e.log.Warn("Extraction attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.attempts),
			zap.Error(lastErr),
			zap.String("raw_preview", logger.TruncateForLog(raw, logPreviewLen)))
	}
	return store.Extraction{}, raw, fmt.Errorf("%w: %v", ErrExtractionFailed, lastErr)
}

func (e *Extractor) parse(raw string) (store.Extraction, error) {
	doc, err := extractJSONObject(cleanJSONBlock(raw))
	if err != nil {
		return store.Extraction{}, err
	}
	doc = normalizeEscapes(doc)

	result, err := e.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return store.Extraction{}, fmt.Errorf("decode model output: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return store.Extraction{}, fmt.Errorf("model output does not match schema: %s", strings.Join(msgs, "; "))
	}

	var out store.Extraction
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return store.Extraction{}, fmt.Errorf("decode model output: %w", err)
	}
	out.CandidateName = strings.TrimSpace(out.CandidateName)
	return out, nil
}

func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 && !strings.Contains(text[:idx], "{") {
		text = text[idx+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// extractJSONObject returns the text from the first '{' to the last '}'.
func extractJSONObject(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in model output")
	}
	return text[start : end+1], nil
}

// normalizeEscapes drops every backslash that does not begin a valid JSON
// escape sequence, so `\_` becomes `_`. Escaped backslashes are kept.
func normalizeEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			sb.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			break
		}
		next := s[i+1]
		switch {
		case strings.IndexByte(`"\/bfnrt`, next) >= 0:
			sb.WriteByte('\\')
			sb.WriteByte(next)
			i++
		case next == 'u' && i+5 < len(s) && isHex4(s[i+2:i+6]):
			sb.WriteString(s[i : i+6])
			i += 5
		}
	}
	return sb.String()
}

func isHex4(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return len(s) == 4
}
