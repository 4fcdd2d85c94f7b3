package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/errs"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/facility"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/match"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/ports"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/requirement"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/store"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/taxonomy"
)

type fakeLoader struct {
	manifests map[string]*ports.RawManifest
}

func (f *fakeLoader) LoadManifest(_ context.Context, idOrPath string) (*ports.RawManifest, error) {
	m, ok := f.manifests[idOrPath]
	if !ok {
		return nil, errs.BomFileNotFound(idOrPath)
	}
	return m, nil
}

// alwaysMatcher stubs out C3 with a single field pinned above threshold, so
// coordinator tests exercise C4/C5/C6 wiring without depending on the real
// layer implementations.
type alwaysMatcher struct {
	confidence float64
}

func (a alwaysMatcher) Layer() match.Layer               { return match.LayerExact }
func (a alwaysMatcher) ConfidenceThreshold() float64      { return 0.5 }
func (a alwaysMatcher) ConfidenceCeiling() float64        { return 1.0 }
func (a alwaysMatcher) Process(_ context.Context, _ *requirement.Component, _ facility.Facility) match.LayerResult {
	return match.LayerResult{
		Layer:  match.LayerExact,
		Fields: map[string]match.Field{"processes": {Value: true, Confidence: a.confidence, Method: "exact"}},
	}
}

func testFacilities() []facility.Facility {
	return []facility.Facility{{ID: "fac-1", Name: "Fac One"}}
}

func TestMatchSingleLevelProducesOneTreePerFacility(t *testing.T) {
	loader := &fakeLoader{manifests: map[string]*ports.RawManifest{
		"m1": {ID: "m1", ContentType: "application/json", Data: []byte(`{"id":"m1","title":"Widget"}`)},
	}}
	co := New(loader, taxonomy.New(), []match.Matcher{alwaysMatcher{confidence: 0.9}}, nil)

	sol, err := co.Match(context.Background(), "m1", testFacilities(), Options{
		MaxDepth:         0,
		TargetConfidence: 0.8,
		MinConfidence:    0.1,
	})
	require.NoError(t, err)
	require.Equal(t, "single-level", string(sol.MatchingMode))
	require.Len(t, sol.AllTrees, 1)
	for _, deps := range sol.DependencyGraph {
		require.Empty(t, deps)
	}
}

func TestMatchNestedLinksParentChildAndSchedules(t *testing.T) {
	loader := &fakeLoader{manifests: map[string]*ports.RawManifest{
		"m1": {ID: "m1", ContentType: "application/json", Data: []byte(`{
			"id": "m1", "title": "Assembly",
			"parts": [{"id": "c1", "name": "Bracket", "quantity": 2,
				"sub_parts": [{"id": "c1a", "name": "Bolt"}]}]
		}`)},
	}}
	co := New(loader, taxonomy.New(), []match.Matcher{alwaysMatcher{confidence: 0.9}}, nil)

	sol, err := co.Match(context.Background(), "m1", testFacilities(), Options{
		MaxDepth:         5,
		TargetConfidence: 0.8,
		MinConfidence:    0.1,
	})
	require.NoError(t, err)
	require.Equal(t, "nested", string(sol.MatchingMode))
	require.True(t, sol.Validation.IsValid)
	require.Len(t, sol.ProductionSequence, 2)
}

func TestMatchUnknownManifestReturnsNotFound(t *testing.T) {
	loader := &fakeLoader{manifests: map[string]*ports.RawManifest{}}
	co := New(loader, taxonomy.New(), []match.Matcher{alwaysMatcher{confidence: 0.9}}, nil)

	_, err := co.Match(context.Background(), "missing", testFacilities(), Options{})
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeBomFileNotFound, code)
}

func TestMatchSavesSolutionWhenRequested(t *testing.T) {
	loader := &fakeLoader{manifests: map[string]*ports.RawManifest{
		"m1": {ID: "m1", ContentType: "application/json", Data: []byte(`{"id":"m1","title":"Widget"}`)},
	}}
	blobs, err := store.NewFileObjectStore(t.TempDir())
	require.NoError(t, err)
	solutionLog := store.NewSolutionStore(blobs, nil)

	co := New(loader, taxonomy.New(), []match.Matcher{alwaysMatcher{confidence: 0.9}}, solutionLog)

	sol, err := co.Match(context.Background(), "m1", testFacilities(), Options{
		TargetConfidence: 0.8,
		MinConfidence:    0.1,
		SaveSolution:     true,
		TTLDays:          7,
	})
	require.NoError(t, err)
	require.NotEmpty(t, sol.ID)

	loaded, err := solutionLog.Load(context.Background(), sol.ID)
	require.NoError(t, err)
	require.Equal(t, sol.ID, loaded.ID)
}

func TestResolveFacilitiesNormalisesProcessAliases(t *testing.T) {
	tax := taxonomy.New()
	tax.Reload([]taxonomy.Entry{{URI: "urn:process:cnc-milling", Aliases: []string{"CNC Milling"}}})

	records := []ports.FacilityRecord{{ID: "fac-1", Name: "Fac One", ProcessAliases: []string{"cnc milling", "unknown-process"}}}
	out := ResolveFacilities(tax, records)

	require.Len(t, out, 1)
	require.Len(t, out[0].Processes, 1)
	require.Equal(t, "urn:process:cnc-milling", out[0].Processes[0].URI)
}
