package supplytree

import (
	"time"

	"github.com/google/uuid"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/bom"
)

// AssembleOptions controls one Assemble invocation (spec.md §4.5/§4.7).
type AssembleOptions struct {
	Mode    MatchingMode
	TTLDays int
	Tags    []string
}

// Assemble builds a SupplyTreeSolution from a leaves-first sequence of
// ComponentMatches, each already carrying its per-facility SupplyTrees
// (populated by pkg/runner), per spec.md §4.5.
//
// Parent/child linkage: for each tree whose ComponentMatch has a
// ParentComponentID, the parent component's tree on the SAME facility is
// preferred; when no such tree exists, the parent's lowest-confidence tree
// is used as a deterministic fallback so every non-root tree still links
// to exactly one parent.
func Assemble(matches []*bom.ComponentMatch, opts AssembleOptions) (*SupplyTreeSolution, error) {
	now := time.Now()

	sol := &SupplyTreeSolution{
		ID:               uuid.NewString(),
		AllTrees:         map[string]*SupplyTree{},
		ComponentMapping: map[string][]string{},
		DependencyGraph:  map[string][]string{},
		MatchingMode:     opts.Mode,
		IsNested:         opts.Mode == ModeNested,
		Metadata:         map[string]any{},
		CreatedAt:        now,
		UpdatedAt:        now,
		TTLDays:          opts.TTLDays,
		Tags:             opts.Tags,
	}

	treesByComponent := map[string][]*SupplyTree{}
	componentIDByTreeID := map[string]string{}

	for _, cm := range matches {
		componentID := cm.Component.ID
		for _, t := range cm.Trees {
			sol.AllTrees[t.ID] = t
			sol.ComponentMapping[componentID] = append(sol.ComponentMapping[componentID], t.ID)
			treesByComponent[componentID] = append(treesByComponent[componentID], t)
			componentIDByTreeID[t.ID] = componentID
			if t.Depth == 0 {
				sol.RootTrees = append(sol.RootTrees, t.ID)
			}
		}
		if len(cm.Trees) == 0 {
			sol.Validation.UnmatchedComponents = append(sol.Validation.UnmatchedComponents, componentID)
		}
	}

	for _, cm := range matches {
		if cm.ParentComponentID == "" {
			continue
		}
		parentTrees := treesByComponent[cm.ParentComponentID]
		if len(parentTrees) == 0 {
			continue
		}
		for _, t := range cm.Trees {
			parent := selectParentTree(parentTrees, t.FacilityID)
			linkParentChild(parent, t)
		}
	}

	for id, t := range sol.AllTrees {
		sol.DependencyGraph[id] = dedupeStrings(t.DependsOn)
	}

	sol.Validation.IsValid = len(sol.Validation.UnmatchedComponents) == 0

	return sol, nil
}

// selectParentTree prefers a parent tree on the same facility; otherwise it
// falls back to the parent's lowest-confidence tree (ties broken by tree id
// for determinism).
func selectParentTree(candidates []*SupplyTree, facilityID string) *SupplyTree {
	for _, c := range candidates {
		if c.FacilityID == facilityID {
			return c
		}
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence < best.Confidence || (c.Confidence == best.Confidence && c.ID < best.ID) {
			best = c
		}
	}
	return best
}

func linkParentChild(parent, child *SupplyTree) {
	child.ParentTreeID = parent.ID
	parent.ChildTreeIDs = appendUnique(parent.ChildTreeIDs, child.ID)
	parent.DependsOn = appendUnique(parent.DependsOn, child.ID)
	child.RequiredBy = appendUnique(child.RequiredBy, parent.ID)
}

func appendUnique(ss []string, v string) []string {
	for _, s := range ss {
		if s == v {
			return ss
		}
	}
	return append(ss, v)
}

func dedupeStrings(ss []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
