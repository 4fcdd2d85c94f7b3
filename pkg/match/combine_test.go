package match

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCombineResultsHigherConfidenceWins(t *testing.T) {
	results := []LayerResult{
		{Layer: LayerExact, Fields: map[string]Field{"processes": {Value: true, Confidence: 0.9}}},
		{Layer: LayerHeuristic, Fields: map[string]Field{"processes": {Value: true, Confidence: 0.95}}},
	}
	c := CombineResults(results, nil, nil, 0)
	require.Equal(t, 0.95, c.Fields["processes"].Confidence)
	require.Equal(t, "heuristic", c.MatchType)
}

func TestCombineResultsTieBreakPrefersEarlierLayer(t *testing.T) {
	results := []LayerResult{
		{Layer: LayerNLP, Fields: map[string]Field{"processes": {Value: true, Confidence: 0.8}}},
		{Layer: LayerExact, Fields: map[string]Field{"processes": {Value: true, Confidence: 0.8}}},
	}
	c := CombineResults(results, nil, nil, 0)
	require.Equal(t, "exact", c.MatchType)
}

func TestCombineResultsMixedWhenMultipleLayersWin(t *testing.T) {
	results := []LayerResult{
		{Layer: LayerExact, Fields: map[string]Field{"processes": {Confidence: 0.9}}},
		{Layer: LayerNLP, Fields: map[string]Field{"free_text_similarity": {Confidence: 0.7}}},
	}
	c := CombineResults(results, nil, nil, 0)
	require.Equal(t, "mixed", c.MatchType)
}

func TestCombineResultsNoSignalFieldPenalised(t *testing.T) {
	results := []LayerResult{
		{Layer: LayerExact, Fields: map[string]Field{"processes": {Confidence: 1.0}}},
	}
	c := CombineResults(results, []string{"materials"}, nil, 0.1)
	// (1.0*1 + 0*0.1) / (1 + 0.1)
	require.InDelta(t, 1.0/1.1, c.Confidence, 1e-9)
}

func TestCombineResultsEmptyYieldsUnknown(t *testing.T) {
	c := CombineResults(nil, nil, nil, 0)
	require.Equal(t, "unknown", c.MatchType)
	require.Equal(t, 0.0, c.Confidence)
}
