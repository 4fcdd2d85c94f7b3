package match

import (
	"context"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/facility"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/requirement"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/taxonomy"
)

// ExactMatcher checks process-set membership (via the taxonomy), material
// token equality, batch-range containment, and access-type compatibility —
// no fuzziness, no network I/O (spec.md §4.3).
type ExactMatcher struct {
	Taxonomy *taxonomy.Taxonomy
}

func NewExactMatcher(tax *taxonomy.Taxonomy) *ExactMatcher {
	return &ExactMatcher{Taxonomy: tax}
}

func (m *ExactMatcher) Layer() Layer { return LayerExact }

func (m *ExactMatcher) ConfidenceThreshold() float64 { return 0.8 }
func (m *ExactMatcher) ConfidenceCeiling() float64   { return 1.0 }

func (m *ExactMatcher) Process(ctx context.Context, c *requirement.Component, f facility.Facility) LayerResult {
	if ctxCancelled(ctx) {
		return cancelled(m.Layer())
	}

	fields := map[string]Field{}

	fields["processes"] = m.matchProcesses(c, f)
	fields["materials"] = m.matchMaterials(c, f)
	fields["batch_range"] = Field{
		Value:      f.BatchRange.Contains(c.Quantity),
		Confidence: boolConfidence(f.BatchRange.Contains(c.Quantity), 1.0),
		Method:     "batch_range_containment",
	}

	if access, ok := c.Constraints["access_type"].(string); ok {
		fields["access_type"] = Field{
			Value:      access == f.AccessType,
			Confidence: boolConfidence(access == f.AccessType, 1.0),
			Method:     "access_type_equality",
		}
	}

	return LayerResult{Layer: m.Layer(), Fields: fields}
}

func (m *ExactMatcher) matchProcesses(c *requirement.Component, f facility.Facility) Field {
	if len(c.RequiredProcesses) == 0 {
		return Field{Value: true, Confidence: 1.0, Method: "process_set_intersection"}
	}
	allSatisfied := true
	for _, req := range c.RequiredProcesses {
		offered := false
		for _, p := range f.Processes {
			if m.Taxonomy.Matches(req, p) {
				offered = true
				break
			}
		}
		if !offered {
			for _, eq := range f.Equipment {
				if m.Taxonomy.Matches(req, eq.Process) {
					offered = true
					break
				}
			}
		}
		if !offered {
			allSatisfied = false
			break
		}
	}
	return Field{
		Value:      allSatisfied,
		Confidence: boolConfidence(allSatisfied, 1.0),
		Method:     "process_set_intersection",
	}
}

func (m *ExactMatcher) matchMaterials(c *requirement.Component, f facility.Facility) Field {
	if len(c.RequiredMaterials) == 0 {
		return Field{Value: true, Confidence: 1.0, Method: "material_token_equality"}
	}
	allPresent := true
	for _, token := range c.RequiredMaterials {
		if !f.HasMaterial(token) {
			allPresent = false
			break
		}
	}
	return Field{
		Value:      allPresent,
		Confidence: boolConfidence(allPresent, 0.9),
		Method:     "material_token_equality",
	}
}

// boolConfidence reports hi when satisfied and 0 otherwise — the Exact
// layer expresses no partial credit, only pass/fail at its declared
// confidence (spec.md §4.3's 0.8-1.0 range).
func boolConfidence(satisfied bool, hi float64) float64 {
	if satisfied {
		return hi
	}
	return 0
}
