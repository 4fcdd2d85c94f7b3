package match

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/facility"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/requirement"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/taxonomy"
)

// Rule is one configurable heuristic rule: a CEL boolean expression
// evaluated against the `component` and `facility` variable maps (see
// componentVars and facilityVars) plus a confidence to assign when it's satisfied. Rules are evaluated in
// the order given; the first to produce a non-zero confidence per field
// wins, keeping evaluation deterministic.
type Rule struct {
	Field      string
	Expression string
	Confidence float64
}

// HeuristicMatcher applies rule-based fallbacks: process-hierarchy fallback
// (parent offers child), material-substitution whitelist, fuzzy text match
// on equipment, and certification subsets (spec.md §4.3). Rules beyond the
// four built-ins are supplied by the caller as CEL expressions so operators
// can tune matching without a redeploy.
type HeuristicMatcher struct {
	Taxonomy           *taxonomy.Taxonomy
	MaterialWhitelist  map[string][]string // required token -> acceptable substitutes
	Rules              []Rule
	env                *cel.Env
}

func NewHeuristicMatcher(tax *taxonomy.Taxonomy, whitelist map[string][]string, rules []Rule) (*HeuristicMatcher, error) {
	env, err := cel.NewEnv(
		cel.Variable("component", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("facility", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("heuristic matcher: building CEL env: %w", err)
	}
	return &HeuristicMatcher{Taxonomy: tax, MaterialWhitelist: whitelist, Rules: rules, env: env}, nil
}

func (m *HeuristicMatcher) Layer() Layer { return LayerHeuristic }

func (m *HeuristicMatcher) ConfidenceThreshold() float64 { return 0.6 }
func (m *HeuristicMatcher) ConfidenceCeiling() float64   { return 0.9 }

func (m *HeuristicMatcher) Process(ctx context.Context, c *requirement.Component, f facility.Facility) LayerResult {
	if ctxCancelled(ctx) {
		return cancelled(m.Layer())
	}

	fields := map[string]Field{}
	var log []string

	fields["process_hierarchy"] = m.processHierarchyFallback(c, f)
	fields["material_substitution"] = m.materialSubstitution(c, f)
	fields["equipment_fuzzy"] = m.equipmentFuzzyMatch(c, f)
	fields["certification_subset"] = m.certificationSubset(c, f)

	ruleSet := map[string]bool{}
	for _, rule := range m.Rules {
		if ruleSet[rule.Field] {
			continue
		}
		val, err := m.evalRule(rule, c, f)
		if err != nil {
			log = append(log, fmt.Sprintf("rule %q: %v", rule.Field, err))
			continue
		}
		if val && rule.Confidence > 0 {
			fields[rule.Field] = Field{Value: true, Confidence: rule.Confidence, Method: "cel_rule:" + rule.Field}
			ruleSet[rule.Field] = true
		}
	}

	return LayerResult{Layer: m.Layer(), Fields: fields, Log: log}
}

func (m *HeuristicMatcher) processHierarchyFallback(c *requirement.Component, f facility.Facility) Field {
	if len(c.RequiredProcesses) == 0 {
		return Field{Value: true, Confidence: 0.9, Method: "process_hierarchy_fallback"}
	}
	satisfied := 0
	for _, req := range c.RequiredProcesses {
		for _, offered := range f.Processes {
			if m.Taxonomy.Matches(req, offered) {
				satisfied++
				break
			}
		}
	}
	ratio := float64(satisfied) / float64(len(c.RequiredProcesses))
	return Field{Value: ratio == 1, Confidence: ratio * 0.9, Method: "process_hierarchy_fallback"}
}

func (m *HeuristicMatcher) materialSubstitution(c *requirement.Component, f facility.Facility) Field {
	if len(c.RequiredMaterials) == 0 {
		return Field{Value: true, Confidence: 0.8, Method: "material_substitution_whitelist"}
	}
	matched := 0
	for _, token := range c.RequiredMaterials {
		if f.HasMaterial(token) {
			matched++
			continue
		}
		for _, sub := range m.MaterialWhitelist[token] {
			if f.HasMaterial(sub) {
				matched++
				break
			}
		}
	}
	ratio := float64(matched) / float64(len(c.RequiredMaterials))
	return Field{Value: ratio == 1, Confidence: ratio * 0.8, Method: "material_substitution_whitelist"}
}

func (m *HeuristicMatcher) equipmentFuzzyMatch(c *requirement.Component, f facility.Facility) Field {
	if c.FreeText == "" || len(f.Equipment) == 0 {
		return Field{Value: false, Confidence: 0, Method: "equipment_fuzzy_text"}
	}
	needle := strings.ToLower(c.FreeText)
	best := 0.0
	for _, eq := range f.Equipment {
		score := tokenOverlap(needle, strings.ToLower(eq.Name+" "+eq.Specification))
		if score > best {
			best = score
		}
	}
	return Field{Value: best > 0, Confidence: best * 0.75, Method: "equipment_fuzzy_text"}
}

func (m *HeuristicMatcher) certificationSubset(c *requirement.Component, f facility.Facility) Field {
	required, ok := c.Constraints["certifications"].([]string)
	if !ok || len(required) == 0 {
		return Field{Value: true, Confidence: 0.7, Method: "certification_subset"}
	}
	for _, cert := range required {
		if !f.HasCertification(cert) {
			return Field{Value: false, Confidence: 0, Method: "certification_subset"}
		}
	}
	return Field{Value: true, Confidence: 0.85, Method: "certification_subset"}
}

func (m *HeuristicMatcher) evalRule(rule Rule, c *requirement.Component, f facility.Facility) (bool, error) {
	ast, issues := m.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return false, issues.Err()
	}
	prg, err := m.env.Program(ast)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"component": componentVars(c),
		"facility":  facilityVars(f),
	})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule did not evaluate to bool, got %T", out.Value())
	}
	return b, nil
}

func componentVars(c *requirement.Component) map[string]any {
	return map[string]any{
		"id":       c.ID,
		"name":     c.Name,
		"quantity": c.Quantity,
		"unit":     c.Unit,
	}
}

func facilityVars(f facility.Facility) map[string]any {
	return map[string]any{
		"id":          f.ID,
		"name":        f.Name,
		"access_type": f.AccessType,
		"status":      f.Status,
		"location":    f.Location,
	}
}

// tokenOverlap is a crude Jaccard similarity over whitespace tokens — good
// enough to rank equipment names against free text without an embedding
// service, which is reserved for the NLP layer.
func tokenOverlap(a, b string) float64 {
	aTokens := uniqueTokens(a)
	bTokens := uniqueTokens(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}
	shared := 0
	for t := range aTokens {
		if bTokens[t] {
			shared++
		}
	}
	union := len(aTokens) + len(bTokens) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

func uniqueTokens(s string) map[string]bool {
	out := map[string]bool{}
	for _, t := range strings.Fields(s) {
		out[t] = true
	}
	return out
}

// sortedFieldNames is used by callers that need deterministic iteration
// over a LayerResult's Fields map.
func sortedFieldNames(fields map[string]Field) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
