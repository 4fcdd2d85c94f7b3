package supplytree

import "fmt"

// Validate runs the structural checks of spec.md §4.5: parent linkage is
// bidirectional, every depends_on id is present in AllTrees, and every
// component appears in ComponentMapping. It mutates sol.Validation in
// place and also runs cycle detection + scheduling, which is required for
// IsValid to hold.
func Validate(sol *SupplyTreeSolution) error {
	for id, t := range sol.AllTrees {
		if t.ParentTreeID != "" {
			parent, ok := sol.AllTrees[t.ParentTreeID]
			if !ok {
				sol.Validation.Errors = append(sol.Validation.Errors,
					fmt.Sprintf("tree %s: parent_tree_id %s not found", id, t.ParentTreeID))
			} else if !containsString(parent.ChildTreeIDs, id) {
				sol.Validation.Errors = append(sol.Validation.Errors,
					fmt.Sprintf("tree %s: not present in parent %s's child_tree_ids", id, t.ParentTreeID))
			}
		}

		for _, dep := range t.DependsOn {
			if _, ok := sol.AllTrees[dep]; !ok {
				sol.Validation.MissingDependencies = append(sol.Validation.MissingDependencies, dep)
				sol.Validation.Warnings = append(sol.Validation.Warnings,
					fmt.Sprintf("tree %s depends on missing tree %s", id, dep))
			}
		}
	}

	componentsSeen := map[string]bool{}
	for componentID, treeIDs := range sol.ComponentMapping {
		if len(treeIDs) > 0 {
			componentsSeen[componentID] = true
		}
	}
	for id, t := range sol.AllTrees {
		if !componentsSeen[t.ComponentID] {
			sol.Validation.Warnings = append(sol.Validation.Warnings,
				fmt.Sprintf("tree %s: component %s missing from component_mapping", id, t.ComponentID))
		}
	}

	if cycle, err := DetectCycles(sol.DependencyGraph); err != nil {
		sol.Validation.CircularDependencies = append(sol.Validation.CircularDependencies, cycle)
		sol.Validation.Errors = append(sol.Validation.Errors, err.Error())
		sol.Validation.IsValid = false
		return err
	}

	stages, err := Schedule(sol.AllTrees, sol.DependencyGraph)
	if err != nil {
		sol.Validation.Errors = append(sol.Validation.Errors, err.Error())
		sol.Validation.IsValid = false
		return err
	}
	sol.ProductionSequence = stages

	sol.Validation.IsValid = len(sol.Validation.Errors) == 0 && len(sol.Validation.UnmatchedComponents) == 0

	return nil
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
