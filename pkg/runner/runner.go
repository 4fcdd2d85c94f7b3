// Package runner implements the Match Runner (C4): for one ComponentMatch,
// runs the enabled layer matchers against every candidate facility with
// bounded parallelism, stopping each facility's pipeline early once its
// accumulated confidence clears target_confidence or a layer's ceiling,
// and emits the resulting SupplyTrees, per spec.md §4.4.
package runner

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/bom"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/facility"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/match"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/supplytree"
)

// DefaultWorkerPoolSize bounds the number of facilities processed
// concurrently when the caller does not override it.
const DefaultWorkerPoolSize = 8

// Options controls one Run invocation.
type Options struct {
	TargetConfidence float64
	MinConfidence    float64 // per spec.md §4.7: drops matches below this after combination
	EnabledLayers    []match.Layer
	KnownFields      []string
	Weights          match.Weights
	PenaltyWeight    float64
	WorkerPoolSize   int
}

func (o Options) poolSize() int {
	if o.WorkerPoolSize > 0 {
		return o.WorkerPoolSize
	}
	return DefaultWorkerPoolSize
}

func (o Options) layerEnabled(l match.Layer) bool {
	if len(o.EnabledLayers) == 0 {
		// spec.md §4.7 default: exact, heuristic, nlp (llm excluded).
		return l != match.LayerLLM
	}
	for _, e := range o.EnabledLayers {
		if e == l {
			return true
		}
	}
	return false
}

// facilityResult is what one worker produces for one facility.
type facilityResult struct {
	facilityIndex int
	tree          *supplytree.SupplyTree
}

// Run implements the C4 contract: run(component_match, facilities,
// target_confidence, enabled_layers) -> sequence of SupplyTree.
func Run(ctx context.Context, cm *bom.ComponentMatch, facilities []facility.Facility, matchers []match.Matcher, opts Options) []*supplytree.SupplyTree {
	if len(facilities) == 0 {
		return nil
	}

	enabled := make([]match.Matcher, 0, len(matchers))
	for _, m := range matchers {
		if opts.layerEnabled(m.Layer()) {
			enabled = append(enabled, m)
		}
	}

	results := make(chan facilityResult, len(facilities))
	sem := make(chan struct{}, opts.poolSize())
	var wg sync.WaitGroup

	for i, fac := range facilities {
		wg.Add(1)
		go func(idx int, f facility.Facility) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			tree := runFacility(ctx, cm, f, enabled, opts)
			results <- facilityResult{facilityIndex: idx, tree: tree}
		}(i, fac)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]facilityResult, 0, len(facilities))
	for r := range results {
		if r.tree != nil {
			collected = append(collected, r)
		}
	}

	// Stable by facility iteration order first (spec.md §4.4 determinism
	// clause), then by tree id so ties resolve deterministically too.
	sort.SliceStable(collected, func(i, j int) bool {
		if collected[i].facilityIndex != collected[j].facilityIndex {
			return collected[i].facilityIndex < collected[j].facilityIndex
		}
		return collected[i].tree.ID < collected[j].tree.ID
	})

	trees := make([]*supplytree.SupplyTree, 0, len(collected))
	for _, r := range collected {
		trees = append(trees, r.tree)
	}
	return trees
}

// runFacility executes the enabled layers in order for one facility,
// stopping early per spec.md §4.4, and returns nil when no layer produced
// signal above its threshold (the facility is dropped, no tree emitted).
func runFacility(ctx context.Context, cm *bom.ComponentMatch, f facility.Facility, matchers []match.Matcher, opts Options) *supplytree.SupplyTree {
	var layerResults []match.LayerResult
	anySignal := false

	for _, m := range matchers {
		result := m.Process(ctx, cm.Component, f)
		layerResults = append(layerResults, result)

		for _, field := range result.Fields {
			if field.Confidence >= m.ConfidenceThreshold() {
				anySignal = true
			}
		}

		combined := match.CombineResults(layerResults, opts.KnownFields, opts.Weights, opts.PenaltyWeight)
		if opts.TargetConfidence > 0 && combined.Confidence >= opts.TargetConfidence {
			break
		}
		if combined.Confidence >= m.ConfidenceCeiling() {
			break
		}
	}

	if !anySignal {
		return nil
	}

	combined := match.CombineResults(layerResults, opts.KnownFields, opts.Weights, opts.PenaltyWeight)
	if combined.Confidence < opts.MinConfidence {
		return nil
	}

	return &supplytree.SupplyTree{
		ID:                uuid.NewString(),
		ComponentID:       cm.Component.ID,
		ComponentName:     cm.Component.Name,
		ComponentQuantity: cm.Component.Quantity,
		ComponentUnit:     cm.Component.Unit,
		ComponentPath:     cm.Path,
		FacilityID:        f.ID,
		FacilityName:      f.Name,
		Depth:             cm.Depth,
		ProductionStage:   productionStage(cm.Depth),
		Confidence:        combined.Confidence,
		MatchType:         supplytree.MatchType(combined.MatchType),
		MaterialsRequired: cm.Component.RequiredMaterials,
		Metadata:          map[string]any{"component_id": cm.Component.ID},
	}
}

func productionStage(depth int) supplytree.ProductionStage {
	if depth == 0 {
		return supplytree.StageFinal
	}
	return supplytree.StageComponent
}
