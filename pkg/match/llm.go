package match

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/facility"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/ports"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/requirement"
)

// RateLimiter guards the LLM layer's call budget; *ratelimit.Limiter
// satisfies this, and tests substitute a fake.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// llmResponseSchema constrains the structured reply expected back from the
// LLMService: a per-attribute confidence plus a short rationale, so this
// layer never has to free-text-parse a model's prose.
var llmResponseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"can_fulfill": map[string]any{"type": "boolean"},
		"confidence":  map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"rationale":   map[string]any{"type": "string"},
	},
	"required": []string{"can_fulfill", "confidence"},
}

// compiledLLMResponseSchema validates a reply before any field of it is
// trusted, the same way the teacher's firewall validates tool-call params
// against a compiled schema before dispatch.
var compiledLLMResponseSchema = mustCompileSchema(llmResponseSchema)

func mustCompileSchema(schema map[string]any) *jsonschema.Schema {
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	const schemaURL = "https://matchctl.local/schema/llm_response.schema.json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(string(raw))); err != nil {
		panic(err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		panic(err)
	}
	return compiled
}

// LLMMatcher handles ambiguous or structurally-missing data via prompted
// reasoning (spec.md §4.3: network I/O, cost, 0.3-0.9 confidence range). It
// is excluded from the default enabled_layers set (spec.md §4.7).
type LLMMatcher struct {
	LLM ports.LLMService

	// Limiter is optional; when set, a facility that would exceed the
	// configured LLM call budget is skipped rather than charged.
	Limiter RateLimiter
}

func NewLLMMatcher(llm ports.LLMService) *LLMMatcher {
	return &LLMMatcher{LLM: llm}
}

// WithLimiter attaches a rate limiter, returning the matcher for chaining.
func (m *LLMMatcher) WithLimiter(l RateLimiter) *LLMMatcher {
	m.Limiter = l
	return m
}

func (m *LLMMatcher) Layer() Layer { return LayerLLM }

func (m *LLMMatcher) ConfidenceThreshold() float64 { return 0.3 }
func (m *LLMMatcher) ConfidenceCeiling() float64   { return 0.9 }

func (m *LLMMatcher) Process(ctx context.Context, c *requirement.Component, f facility.Facility) LayerResult {
	if ctxCancelled(ctx) {
		return cancelled(m.Layer())
	}

	var limiterWarning string
	if m.Limiter != nil {
		allowed, err := m.Limiter.Allow(ctx, f.ID)
		if err != nil {
			limiterWarning = err.Error() // fails open: proceed, but note it
		} else if !allowed {
			return LayerResult{Layer: m.Layer(), Errors: []string{"rate_limited"}}
		}
	}

	prompt := fmt.Sprintf(
		"Component %q requires processes %v and materials %v (free text: %q). "+
			"Facility %q offers processes %v and materials %v (free text: %q). "+
			"Can the facility fulfill the component? Respond with can_fulfill, confidence, and rationale.",
		c.Name, c.RequiredProcesses, c.RequiredMaterials, c.FreeText,
		f.Name, f.Processes, f.Materials, f.FreeText,
	)

	resp, err := m.LLM.Chat(ctx, ports.LLMRequest{Prompt: prompt, Schema: llmResponseSchema})
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(m.Layer())
		}
		return LayerResult{Layer: m.Layer(), Errors: []string{err.Error()}}
	}
	if err := compiledLLMResponseSchema.Validate(resp); err != nil {
		return LayerResult{Layer: m.Layer(), Errors: []string{"malformed_llm_response: " + err.Error()}}
	}

	canFulfill, _ := resp["can_fulfill"].(bool)
	confidence, _ := resp["confidence"].(float64)
	rationale, _ := resp["rationale"].(string)

	if !canFulfill {
		confidence = 0
	}

	var log []string
	if rationale != "" {
		log = append(log, rationale)
	}
	if limiterWarning != "" {
		log = append(log, "rate_limiter_warning: "+limiterWarning)
	}

	return LayerResult{
		Layer: m.Layer(),
		Fields: map[string]Field{
			"llm_assessment": {
				Value:      canFulfill,
				Confidence: confidence,
				Method:     "prompted_reasoning",
				RawSource:  "component,facility",
			},
		},
		Log: log,
	}
}
