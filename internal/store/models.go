package store

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Metadata keys carried on page documents between the loader, the
// orchestrator and the chunker.
const (
	MetaSourceFile    = "source_file"
	MetaCandidateName = "candidate_name"
	MetaPage          = "page"
)

// AnalysisRecord is the ranked assessment of one resume.
type AnalysisRecord struct {
	ID              string          `json:"id"`
	Filename        string          `json:"filename"`
	CandidateName   string          `json:"candidate_name"`
	MatchPercentage MatchPercentage `json:"match_percentage"`
	Strengths       []string        `json:"strengths"`
	Weaknesses      []string        `json:"weaknesses"`
	Summary         string          `json:"summary"`
}

// Extraction is what the model returns for one resume, before the
// orchestrator assigns an id and filename.
type Extraction struct {
	CandidateName   string          `json:"candidate_name"`
	MatchPercentage MatchPercentage `json:"match_percentage"`
	Strengths       []string        `json:"strengths"`
	Weaknesses      []string        `json:"weaknesses"`
	Summary         string          `json:"summary"`
}

// MatchPercentage keeps the value exactly as the model produced it. Score
// coerces it for ranking.
type MatchPercentage struct {
	raw json.RawMessage
}

func NewMatchPercentage(v int) MatchPercentage {
	return MatchPercentage{raw: json.RawMessage(strconv.Itoa(v))}
}

func (p MatchPercentage) MarshalJSON() ([]byte, error) {
	if len(p.raw) == 0 {
		return []byte("null"), nil
	}
	return p.raw, nil
}

func (p *MatchPercentage) UnmarshalJSON(data []byte) error {
	p.raw = append(p.raw[:0], data...)
	return nil
}

// Raw returns the JSON text of the value, empty when it was never set.
func (p MatchPercentage) Raw() string {
	return string(p.raw)
}

// Score returns the percentage as an integer in [0,100]. Numbers are
// truncated, numeric strings (with an optional trailing %) are parsed, and
// anything else counts as 0.
func (p MatchPercentage) Score() int {
	raw := bytes.TrimSpace(p.raw)
	if len(raw) == 0 {
		return 0
	}

	var f float64
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = v
	default:
		if err := json.Unmarshal(raw, &f); err != nil {
			return 0
		}
	}

	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 100 {
		return 100
	}
	return int(f)
}

// PageChunk is one retrieval unit of a session index.
type PageChunk struct {
	Text          string `json:"text"`
	SourceFile    string `json:"source_file"`
	CandidateName string `json:"candidate_name"`
	Page          int    `json:"page"`
	Position      int    `json:"position"`
}

// Citation names whose resume the chunk came from.
func (c PageChunk) Citation() string {
	if name := strings.TrimSpace(c.CandidateName); name != "" {
		return name
	}
	return c.SourceFile
}

type ScoredChunk struct {
	Chunk      PageChunk
	Similarity float32
}
