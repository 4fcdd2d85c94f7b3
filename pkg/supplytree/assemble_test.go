package supplytree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/bom"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/requirement"
)

func leafTree(id, componentID, facilityID string, confidence float64) *SupplyTree {
	return &SupplyTree{
		ID:          id,
		ComponentID: componentID,
		FacilityID:  facilityID,
		Depth:       1,
		Confidence:  confidence,
	}
}

func rootTree(id, componentID, facilityID string, confidence float64) *SupplyTree {
	return &SupplyTree{
		ID:          id,
		ComponentID: componentID,
		FacilityID:  facilityID,
		Depth:       0,
		Confidence:  confidence,
	}
}

func TestAssembleLinksParentSameFacility(t *testing.T) {
	childComponent := &requirement.Component{ID: "c1"}
	parentComponent := &requirement.Component{ID: "root"}

	matches := []*bom.ComponentMatch{
		{Component: childComponent, Depth: 1, ParentComponentID: "root", Trees: []*SupplyTree{leafTree("t-child", "c1", "fac-1", 0.9)}},
		{Component: parentComponent, Depth: 0, Trees: []*SupplyTree{rootTree("t-root", "root", "fac-1", 0.8)}},
	}

	sol, err := Assemble(matches, AssembleOptions{Mode: ModeNested})
	require.NoError(t, err)

	child := sol.AllTrees["t-child"]
	root := sol.AllTrees["t-root"]
	require.Equal(t, "t-root", child.ParentTreeID)
	require.Contains(t, root.ChildTreeIDs, "t-child")
	require.Contains(t, root.DependsOn, "t-child")
	require.Contains(t, child.RequiredBy, "t-root")
}

func TestAssembleFallsBackToLowestConfidenceParent(t *testing.T) {
	childComponent := &requirement.Component{ID: "c1"}
	parentComponent := &requirement.Component{ID: "root"}

	matches := []*bom.ComponentMatch{
		{Component: childComponent, Depth: 1, ParentComponentID: "root", Trees: []*SupplyTree{leafTree("t-child", "c1", "fac-9", 0.9)}},
		{Component: parentComponent, Depth: 0, Trees: []*SupplyTree{
			rootTree("t-root-a", "root", "fac-1", 0.7),
			rootTree("t-root-b", "root", "fac-2", 0.4),
		}},
	}

	sol, err := Assemble(matches, AssembleOptions{Mode: ModeNested})
	require.NoError(t, err)

	child := sol.AllTrees["t-child"]
	require.Equal(t, "t-root-b", child.ParentTreeID) // lowest confidence fallback
}

func TestAssembleRecordsUnmatchedComponents(t *testing.T) {
	matches := []*bom.ComponentMatch{
		{Component: &requirement.Component{ID: "c1"}, Depth: 0, Trees: nil},
	}
	sol, err := Assemble(matches, AssembleOptions{Mode: ModeNested})
	require.NoError(t, err)
	require.Contains(t, sol.Validation.UnmatchedComponents, "c1")
	require.False(t, sol.Validation.IsValid)
}

func TestValidateAndScheduleEndToEnd(t *testing.T) {
	childComponent := &requirement.Component{ID: "c1"}
	parentComponent := &requirement.Component{ID: "root"}

	matches := []*bom.ComponentMatch{
		{Component: childComponent, Depth: 1, ParentComponentID: "root", Trees: []*SupplyTree{leafTree("t-child", "c1", "fac-1", 0.9)}},
		{Component: parentComponent, Depth: 0, Trees: []*SupplyTree{rootTree("t-root", "root", "fac-1", 0.8)}},
	}

	sol, err := Assemble(matches, AssembleOptions{Mode: ModeNested})
	require.NoError(t, err)

	err = Validate(sol)
	require.NoError(t, err)
	require.True(t, sol.Validation.IsValid)
	require.Len(t, sol.ProductionSequence, 2)
	require.Equal(t, []string{"t-child"}, sol.ProductionSequence[0])
	require.Equal(t, []string{"t-root"}, sol.ProductionSequence[1])
}

func TestAggregateScoreNestedIsMean(t *testing.T) {
	sol := &SupplyTreeSolution{
		MatchingMode: ModeNested,
		AllTrees: map[string]*SupplyTree{
			"a": {ID: "a", Confidence: 0.8},
			"b": {ID: "b", Confidence: 0.6},
		},
		Metadata: map[string]any{},
	}
	Aggregate(sol)
	require.InDelta(t, 0.7, sol.Score, 1e-9)
}

func TestAggregateScoreSingleLevelIsMax(t *testing.T) {
	sol := &SupplyTreeSolution{
		MatchingMode: ModeSingleLevel,
		AllTrees: map[string]*SupplyTree{
			"a": {ID: "a", Confidence: 0.8},
			"b": {ID: "b", Confidence: 0.6},
		},
		Metadata: map[string]any{},
	}
	Aggregate(sol)
	require.Equal(t, 0.8, sol.Score)
}

func TestAggregateCostSumsAndWarnsOnMissing(t *testing.T) {
	cost := 12.5
	sol := &SupplyTreeSolution{
		AllTrees: map[string]*SupplyTree{
			"a": {ID: "a", EstimatedCost: &cost},
			"b": {ID: "b"},
		},
		Metadata: map[string]any{},
	}
	Aggregate(sol)
	require.NotNil(t, sol.TotalEstimatedCost)
	require.Equal(t, 12.5, *sol.TotalEstimatedCost)
	require.Contains(t, sol.Validation.Warnings, "cost_missing: 1 tree(s)")
}

func TestAggregateCriticalPathWeightsByTime(t *testing.T) {
	tA := 2 * time.Hour
	tB := 3 * time.Hour
	sol := &SupplyTreeSolution{
		AllTrees: map[string]*SupplyTree{
			"a": {ID: "a", EstimatedTime: &tA},
			"b": {ID: "b", EstimatedTime: &tB, DependsOn: []string{"a"}},
		},
		ProductionSequence: [][]string{{"a"}, {"b"}},
		Metadata:           map[string]any{},
	}
	Aggregate(sol)
	require.NotNil(t, sol.CriticalPathTime)
	require.Equal(t, 5*time.Hour, *sol.CriticalPathTime)
}
