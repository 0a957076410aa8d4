package cohere

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/docchat/internal/api"
)

func TestFilterResults(t *testing.T) {
	docs := []*api.ScoredDocument{
		{Content: "alpha", Score: 0.9, Title: "a.txt"},
		{Content: "beta", Score: 0.8, Title: "b.txt"},
		{Content: "gamma", Score: 0.7, Title: "c.txt"},
	}
	scores := []indexScore{
		{index: 2, score: 0.95},
		{index: 0, score: 0.51},
		{index: 1, score: 0.2},
		{index: 7, score: 0.99},
	}

	out := filterResults(docs, scores, api.RerankScoreThreshold)
	require.Len(t, out, 2)

	assert.Equal(t, "gamma", out[0].Content)
	assert.Equal(t, 0.95, out[0].Score)
	assert.Equal(t, "c.txt", out[0].Title)
	assert.Equal(t, "alpha", out[1].Content)

	// inputs are not modified
	assert.Equal(t, 0.7, docs[2].Score)
}

func TestFilterResultsZeroThresholdKeepsAll(t *testing.T) {
	docs := []*api.ScoredDocument{{Content: "x"}, {Content: "y"}}
	out := filterResults(docs, []indexScore{{1, 0.01}, {0, 0}}, 0)
	assert.Len(t, out, 2)
}
