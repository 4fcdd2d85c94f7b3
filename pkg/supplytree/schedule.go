package supplytree

import (
	"sort"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/errs"
)

// Schedule computes the production sequence by Kahn's algorithm (spec.md
// §4.5): in-degree 0 trees (no unmet dependencies) form the first stage;
// each stage is emitted as a parallel group, then successors' in-degrees
// are decremented and newly-zero trees form the next stage. If the sum of
// stage sizes does not equal the number of trees, a cycle remains.
func Schedule(allTrees map[string]*SupplyTree, graph map[string][]string) ([][]string, error) {
	inDegree := make(map[string]int, len(allTrees))
	for id := range allTrees {
		inDegree[id] = len(graph[id])
	}

	var stages [][]string
	remaining := len(allTrees)
	processed := map[string]bool{}

	for remaining > 0 {
		var stage []string
		for id := range allTrees {
			if !processed[id] && inDegree[id] == 0 {
				stage = append(stage, id)
			}
		}
		if len(stage) == 0 {
			break // cycle remains
		}
		sort.Strings(stage)

		for _, id := range stage {
			processed[id] = true
		}
		remaining -= len(stage)
		stages = append(stages, stage)

		for _, stageID := range stage {
			for otherID, deps := range graph {
				if processed[otherID] {
					continue
				}
				for _, dep := range deps {
					if dep == stageID {
						inDegree[otherID]--
					}
				}
			}
		}
	}

	if remaining > 0 {
		return nil, errs.CircularDependency(unprocessedIDs(allTrees, processed))
	}
	return stages, nil
}

func unprocessedIDs(allTrees map[string]*SupplyTree, processed map[string]bool) []string {
	var out []string
	for id := range allTrees {
		if !processed[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
