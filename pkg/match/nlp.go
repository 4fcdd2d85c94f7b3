package match

import (
	"context"
	"math"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/facility"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/ports"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/requirement"
)

// NLPMatcher scores semantic similarity between a component's free-text
// requirements and a facility's capability blurb using an injected
// embedding service (spec.md §4.3: network I/O, 0.5-0.8 confidence range).
type NLPMatcher struct {
	Embeddings ports.EmbeddingService
}

func NewNLPMatcher(embeddings ports.EmbeddingService) *NLPMatcher {
	return &NLPMatcher{Embeddings: embeddings}
}

func (m *NLPMatcher) Layer() Layer { return LayerNLP }

func (m *NLPMatcher) ConfidenceThreshold() float64 { return 0.5 }
func (m *NLPMatcher) ConfidenceCeiling() float64   { return 0.8 }

func (m *NLPMatcher) Process(ctx context.Context, c *requirement.Component, f facility.Facility) LayerResult {
	if ctxCancelled(ctx) {
		return cancelled(m.Layer())
	}
	if c.FreeText == "" || f.FreeText == "" {
		return LayerResult{Layer: m.Layer()}
	}

	vectors, err := m.Embeddings.Embed(ctx, []string{c.FreeText, f.FreeText})
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(m.Layer())
		}
		return LayerResult{Layer: m.Layer(), Errors: []string{err.Error()}}
	}
	if len(vectors) != 2 {
		return LayerResult{Layer: m.Layer(), Errors: []string{"embedding service returned unexpected vector count"}}
	}

	sim := cosineSimilarity(vectors[0], vectors[1])
	confidence := sim * 0.8 // scaled into this layer's declared ceiling

	return LayerResult{
		Layer: m.Layer(),
		Fields: map[string]Field{
			"free_text_similarity": {
				Value:      sim,
				Confidence: confidence,
				Method:     "embedding_cosine_similarity",
				RawSource:  "component.free_text,facility.free_text",
			},
		},
	}
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
