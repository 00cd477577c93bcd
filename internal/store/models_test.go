package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchPercentageScore(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`80`, 80},
		{`80.9`, 80},
		{`"75"`, 75},
		{`" 64 % "`, 64},
		{`150`, 100},
		{`-3`, 0},
		{`"high"`, 0},
		{`null`, 0},
		{`true`, 0},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			var p MatchPercentage
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &p))
			assert.Equal(t, tc.want, p.Score())
		})
	}

	var unset MatchPercentage
	assert.Equal(t, 0, unset.Score())
}

func TestMatchPercentagePreservesRawValue(t *testing.T) {
	var rec AnalysisRecord
	require.NoError(t, json.Unmarshal([]byte(`{"match_percentage": "about 70"}`), &rec))

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"match_percentage":"about 70"`)
	assert.Equal(t, 0, rec.MatchPercentage.Score())

	out, err = json.Marshal(AnalysisRecord{})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"match_percentage":null`)

	assert.Equal(t, "42", NewMatchPercentage(42).Raw())
}

func TestPageChunkCitation(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", PageChunk{CandidateName: "Ada Lovelace", SourceFile: "ada.pdf"}.Citation())
	assert.Equal(t, "ada.pdf", PageChunk{CandidateName: "  ", SourceFile: "ada.pdf"}.Citation())
}
