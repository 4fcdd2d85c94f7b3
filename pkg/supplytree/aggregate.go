package supplytree

import (
	"fmt"
	"time"
)

// Aggregate computes total_estimated_cost, critical_path_time, and score
// per spec.md §4.5, mutating sol in place.
func Aggregate(sol *SupplyTreeSolution) {
	aggregateCost(sol)
	aggregateCriticalPath(sol)
	aggregateScore(sol)
}

func aggregateCost(sol *SupplyTreeSolution) {
	var total float64
	var any bool
	var missing int
	for _, t := range sol.AllTrees {
		if t.EstimatedCost != nil {
			total += *t.EstimatedCost
			any = true
		} else {
			missing++
		}
	}
	if any {
		sol.TotalEstimatedCost = &total
	}
	if missing > 0 {
		sol.Validation.Warnings = append(sol.Validation.Warnings, fmt.Sprintf("cost_missing: %d tree(s)", missing))
	}
}

// aggregateCriticalPath computes the longest path through the dependency
// graph weighted by each tree's estimated time (zero when absent), via a
// single DP pass over the already-computed production sequence (each
// stage only depends on earlier stages, so this is a valid topological
// order). When no tree has a time, it reports the stage count instead.
func aggregateCriticalPath(sol *SupplyTreeSolution) {
	anyTime := false
	for _, t := range sol.AllTrees {
		if t.EstimatedTime != nil {
			anyTime = true
			break
		}
	}
	if !anyTime {
		stages := len(sol.ProductionSequence)
		sol.Metadata["critical_path_stage_count"] = stages
		return
	}

	longest := map[string]time.Duration{}
	var maxPath time.Duration

	for _, stage := range sol.ProductionSequence {
		for _, id := range stage {
			t := sol.AllTrees[id]
			own := time.Duration(0)
			if t.EstimatedTime != nil {
				own = *t.EstimatedTime
			}

			best := time.Duration(0)
			for _, dep := range t.DependsOn {
				if d, ok := longest[dep]; ok && d > best {
					best = d
				}
			}

			total := best + own
			longest[id] = total
			if total > maxPath {
				maxPath = total
			}
		}
	}

	sol.CriticalPathTime = &maxPath
}

// aggregateScore implements spec.md's score rule: mean confidence across
// all_trees, or, in single-level mode, the max (the solution is one of
// many single-facility options).
func aggregateScore(sol *SupplyTreeSolution) {
	if len(sol.AllTrees) == 0 {
		sol.Score = 0
		return
	}

	if sol.MatchingMode == ModeSingleLevel {
		max := 0.0
		for _, t := range sol.AllTrees {
			if t.Confidence > max {
				max = t.Confidence
			}
		}
		sol.Score = max
		return
	}

	var sum float64
	for _, t := range sol.AllTrees {
		sum += t.Confidence
	}
	sol.Score = sum / float64(len(sol.AllTrees))
}
