package supplytree

import (
	"sort"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/errs"
)

type colour int

const (
	white colour = iota // unvisited
	grey                // on the current DFS stack
	black               // fully explored
)

// DetectCycles runs a three-colour depth-first search over the dependency
// graph (spec.md §4.5). On the first cycle found it returns the tree_id
// sequence from the re-encountered grey node, plus a CircularDependency
// error; the caller fails assembly.
func DetectCycles(graph map[string][]string) ([]string, error) {
	colours := make(map[string]colour, len(graph))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colours[id] = grey
		stack = append(stack, id)

		for _, next := range graph[id] {
			switch colours[next] {
			case white:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			case grey:
				return cycleFrom(stack, next)
			case black:
				// already fully explored, no cycle through here
			}
		}

		stack = stack[:len(stack)-1]
		colours[id] = black
		return nil
	}

	// Deterministic iteration: callers pass maps built from AllTrees, whose
	// iteration order Go randomises, so sort ids before visiting.
	for _, id := range sortedKeys(graph) {
		if colours[id] == white {
			if cycle := visit(id); cycle != nil {
				return cycle, errs.CircularDependency(cycle)
			}
		}
	}
	return nil, nil
}

// cycleFrom extracts the tree_id sequence from the re-encountered grey
// node to the top of the stack.
func cycleFrom(stack []string, reentered string) []string {
	for i, id := range stack {
		if id == reentered {
			cycle := append([]string{}, stack[i:]...)
			return append(cycle, reentered)
		}
	}
	return stack
}

func sortedKeys(graph map[string][]string) []string {
	keys := make([]string, 0, len(graph))
	for k := range graph {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
