package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/facility"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/requirement"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/taxonomy"
)

func newTestTaxonomy() *taxonomy.Taxonomy {
	tax := taxonomy.New()
	tax.Reload([]taxonomy.Entry{
		{URI: "urn:process:machining", Aliases: []string{"machining"}},
		{URI: "urn:process:machining:cnc-milling", Aliases: []string{"cnc milling"}, Parent: "urn:process:machining"},
	})
	return tax
}

func TestExactMatcherAllSatisfied(t *testing.T) {
	tax := newTestTaxonomy()
	m := NewExactMatcher(tax)

	milling, _ := tax.Normalise("cnc milling")
	c := &requirement.Component{
		Quantity:          5,
		RequiredProcesses: []taxonomy.ProcessID{milling},
		RequiredMaterials: []string{"steel"},
	}
	f := facility.Facility{
		Processes:  []taxonomy.ProcessID{milling},
		Materials:  []string{"steel"},
		BatchRange: facility.BatchRange{Min: 1, Max: 10},
	}

	result := m.Process(context.Background(), c, f)
	require.Equal(t, LayerExact, result.Layer)
	require.True(t, result.Fields["processes"].Value.(bool))
	require.Equal(t, 1.0, result.Fields["processes"].Confidence)
	require.True(t, result.Fields["batch_range"].Value.(bool))
}

func TestExactMatcherProcessHierarchySatisfiesParent(t *testing.T) {
	tax := newTestTaxonomy()
	m := NewExactMatcher(tax)

	general, _ := tax.Normalise("machining")
	specific, _ := tax.Normalise("cnc milling")

	c := &requirement.Component{RequiredProcesses: []taxonomy.ProcessID{general}}
	f := facility.Facility{Processes: []taxonomy.ProcessID{specific}}

	result := m.Process(context.Background(), c, f)
	require.True(t, result.Fields["processes"].Value.(bool))
}

func TestExactMatcherUnsatisfiedProcess(t *testing.T) {
	tax := newTestTaxonomy()
	m := NewExactMatcher(tax)

	c := &requirement.Component{RequiredProcesses: []taxonomy.ProcessID{{URI: "urn:process:injection-molding"}}}
	f := facility.Facility{}

	result := m.Process(context.Background(), c, f)
	require.False(t, result.Fields["processes"].Value.(bool))
	require.Equal(t, 0.0, result.Fields["processes"].Confidence)
}

func TestExactMatcherCancellation(t *testing.T) {
	tax := newTestTaxonomy()
	m := NewExactMatcher(tax)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := m.Process(ctx, &requirement.Component{}, facility.Facility{})
	require.Equal(t, []string{"cancelled"}, result.Errors)
}
