// Package match implements the Layer Matchers (C3): Exact, Heuristic, NLP,
// and LLM, each scoring one (component, facility) pair against a shared
// LayerResult contract, per spec.md §4.3.
package match

import (
	"context"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/facility"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/requirement"
)

// Field is one attribute's contribution from a single layer.
type Field struct {
	Value      any
	Confidence float64
	Method     string
	RawSource  string
}

// LayerResult is a matcher's scored output for one (component, facility)
// pair (spec.md §4.3).
type LayerResult struct {
	Layer  Layer
	Fields map[string]Field
	Errors []string
	Log    []string
}

// Layer names a matcher in the fixed precedence order Exact < Heuristic <
// NLP < LLM, used for tie-breaks (spec.md §4.3) and match_type stamping.
type Layer string

const (
	LayerExact     Layer = "exact"
	LayerHeuristic Layer = "heuristic"
	LayerNLP       Layer = "nlp"
	LayerLLM       Layer = "llm"
)

// layerOrder gives each Layer its tie-break rank; lower wins ties.
var layerOrder = map[Layer]int{
	LayerExact:     0,
	LayerHeuristic: 1,
	LayerNLP:       2,
	LayerLLM:       3,
}

// Matcher is the common contract every layer implements (spec.md §4.3):
// process(component, facility, context) -> LayerResult.
type Matcher interface {
	Layer() Layer
	// ConfidenceThreshold is the floor below which this layer's fields are
	// considered uninformative.
	ConfidenceThreshold() float64
	// ConfidenceCeiling is the level above which later layers add no value
	// for this layer's domain.
	ConfidenceCeiling() float64
	Process(ctx context.Context, component *requirement.Component, fac facility.Facility) LayerResult
}

// cancelled builds the partial result a Matcher must return when ctx is
// done, per spec.md §4.3's cancellation rule.
func cancelled(layer Layer) LayerResult {
	return LayerResult{Layer: layer, Errors: []string{"cancelled"}}
}

func ctxCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
