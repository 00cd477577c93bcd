// Package chunker splits page text into overlapping, bounded-size chunks for
// retrieval.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/schema"

	"gwi.com/resume-screener/internal/store"
)

// Splitter measures sizes in runes. Each window is cut at the latest
// paragraph break, line break, sentence end or whitespace found in its second
// half, falling back to a hard cut.
type Splitter struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap*2 >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", (size+1)/2, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// ChunkPages splits every page independently and copies its source file,
// candidate name and page number onto the chunks. Positions number the
// chunks across all pages in input order.
func (s *Splitter) ChunkPages(pages []*schema.Document) []store.PageChunk {
	var chunks []store.PageChunk
	for _, page := range pages {
		if page == nil {
			continue
		}
		source := metaString(page.MetaData, store.MetaSourceFile)
		name := metaString(page.MetaData, store.MetaCandidateName)
		pageNo := metaInt(page.MetaData, store.MetaPage)

		for _, text := range s.Split(page.Content) {
			chunks = append(chunks, store.PageChunk{
				Text:          text,
				SourceFile:    source,
				CandidateName: name,
				Page:          pageNo,
				Position:      len(chunks),
			})
		}
	}
	return chunks
}

// Split returns the trimmed, non-empty chunks of text. Consecutive chunks
// share at most overlap runes.
func (s *Splitter) Split(text string) []string {
	r := []rune(text)
	n := len(r)

	var out []string
	start := 0
	for start < n {
		end := n
		if start+s.size < n {
			end = s.breakpoint(r, start)
		}

		if piece := strings.TrimSpace(string(r[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == n {
			break
		}

		next := end - s.overlap
		for next < end && next > 0 && !unicode.IsSpace(r[next-1]) {
			next++
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func (s *Splitter) breakpoint(r []rune, start int) int {
	limit := start + s.size
	lowest := start + s.size/2
	if lowest <= start {
		lowest = start + 1
	}

	matchers := []func(i int) bool{
		func(i int) bool { return i-start >= 2 && r[i-1] == '\n' && r[i-2] == '\n' },
		func(i int) bool { return r[i-1] == '\n' },
		func(i int) bool { return i-start >= 2 && unicode.IsSpace(r[i-1]) && strings.ContainsRune(".!?", r[i-2]) },
		func(i int) bool { return unicode.IsSpace(r[i-1]) },
	}
	for _, match := range matchers {
		for i := limit; i >= lowest; i-- {
			if match(i) {
				return i
			}
		}
	}
	return limit
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
