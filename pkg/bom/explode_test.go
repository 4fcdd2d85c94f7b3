package bom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/errs"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/ports"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/requirement"
)

// fakeLoader resolves references by id from an in-memory map, grounded on
// the in-memory fixture pattern used throughout the teacher's tests.
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

func mustResolve(t *testing.T, raw *ports.RawManifest) *requirement.Requirement {
	t.Helper()
	req, err := Resolve(raw)
	require.NoError(t, err)
	return req
}

func TestExplodeEmptyBOMYieldsSingleRoot(t *testing.T) {
	raw := &ports.RawManifest{ID: "m1", ContentType: "application/json", Data: []byte(`{"id":"m1","title":"Widget"}`)}
	req := mustResolve(t, raw)

	matches, err := Explode(context.Background(), req, &fakeLoader{}, ExplodeOptions{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, 0, matches[0].Depth)
}

func TestExplodeSortsLeavesFirst(t *testing.T) {
	raw := &ports.RawManifest{
		ID:          "m1",
		ContentType: "application/json",
		Data: []byte(`{
			"id": "m1",
			"parts": [
				{"id": "c1", "name": "Assembly", "sub_parts": [
					{"id": "c1a", "name": "Leaf"}
				]}
			]
		}`),
	}
	req := mustResolve(t, raw)

	matches, err := Explode(context.Background(), req, &fakeLoader{}, ExplodeOptions{MaxDepth: 5})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	// Depth descending: the leaf (depth 1) precedes the assembly (depth 0).
	require.Equal(t, 1, matches[0].Depth)
	require.Equal(t, "c1a", matches[0].Component.ID)
	require.Equal(t, 0, matches[1].Depth)
	require.Equal(t, "c1", matches[1].Component.ID)
}

func TestExplodeMaxDepthZeroIsSingleLevel(t *testing.T) {
	raw := &ports.RawManifest{
		ID:          "m1",
		ContentType: "application/json",
		Data: []byte(`{
			"id": "m1",
			"title": "Widget",
			"parts": [
				{"id": "c1", "name": "Assembly", "sub_parts": [
					{"id": "c1a", "name": "Leaf"}
				]}
			]
		}`),
	}
	req := mustResolve(t, raw)

	matches, err := Explode(context.Background(), req, &fakeLoader{}, ExplodeOptions{MaxDepth: 0})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, 0, matches[0].Depth)
	require.Equal(t, "m1", matches[0].Component.ID)
	require.Equal(t, "Widget", matches[0].Component.Name)
}

func TestExplodeMaxDepthTooSmallForNestedTreeFails(t *testing.T) {
	raw := &ports.RawManifest{
		ID:          "m1",
		ContentType: "application/json",
		Data: []byte(`{
			"id": "m1",
			"parts": [
				{"id": "c1", "name": "Assembly", "sub_parts": [
					{"id": "c1a", "name": "Leaf", "sub_parts": [
						{"id": "c1a1", "name": "SubLeaf"}
					]}
				]}
			]
		}`),
	}
	req := mustResolve(t, raw)

	_, err := Explode(context.Background(), req, &fakeLoader{}, ExplodeOptions{MaxDepth: 1})
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeMaxDepthExceeded, code)
}

func TestExplodeAutoDetectDepthLiftsZero(t *testing.T) {
	raw := &ports.RawManifest{
		ID:          "m1",
		ContentType: "application/json",
		Data: []byte(`{
			"id": "m1",
			"parts": [
				{"id": "c1", "name": "Assembly", "sub_parts": [
					{"id": "c1a", "name": "Leaf"}
				]}
			]
		}`),
	}
	req := mustResolve(t, raw)

	matches, err := Explode(context.Background(), req, &fakeLoader{}, ExplodeOptions{MaxDepth: 0, AutoDetectDepth: true})
	require.NoError(t, err)
	require.Len(t, matches, 2)
}

func TestExplodeReferenceGraftsSubTree(t *testing.T) {
	sub := &ports.RawManifest{
		ID:          "sub-assembly",
		ContentType: "application/json",
		Data:        []byte(`{"id":"sub-assembly","parts":[{"id":"s1","name":"Gasket"}]}`),
	}
	loader := &fakeLoader{manifests: map[string]*ports.RawManifest{"sub-assembly": sub}}

	raw := &ports.RawManifest{
		ID:          "m1",
		ContentType: "application/json",
		Data: []byte(`{
			"id": "m1",
			"parts": [
				{"id": "c1", "name": "Assembly", "reference": "sub-assembly", "sub_parts": [
					{"id": "discarded", "name": "ShouldBeDropped"}
				]}
			]
		}`),
	}
	req := mustResolve(t, raw)

	matches, err := Explode(context.Background(), req, loader, ExplodeOptions{MaxDepth: 5})
	require.NoError(t, err)

	var ids []string
	for _, m := range matches {
		ids = append(ids, m.Component.ID)
	}
	require.Contains(t, ids, "s1")
	require.NotContains(t, ids, "discarded")
}

func TestExplodeCircularReferenceFails(t *testing.T) {
	loader := &fakeLoader{manifests: map[string]*ports.RawManifest{}}
	loader.manifests["a"] = &ports.RawManifest{
		ID:          "a",
		ContentType: "application/json",
		Data:        []byte(`{"id":"a","parts":[{"id":"c1","name":"C1","reference":"b"}]}`),
	}
	loader.manifests["b"] = &ports.RawManifest{
		ID:          "b",
		ContentType: "application/json",
		Data:        []byte(`{"id":"b","parts":[{"id":"c2","name":"C2","reference":"a"}]}`),
	}

	raw := loader.manifests["a"]
	req := mustResolve(t, raw)

	_, err := Explode(context.Background(), req, loader, ExplodeOptions{MaxDepth: 10})
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeCircularReference, code)
}

func TestExplodeReferenceVersionConstraintSatisfied(t *testing.T) {
	sub := &ports.RawManifest{
		ID:          "sub-assembly",
		ContentType: "application/json",
		Data:        []byte(`{"id":"sub-assembly","version":"1.4.0","parts":[{"id":"s1","name":"Gasket"}]}`),
	}
	loader := &fakeLoader{manifests: map[string]*ports.RawManifest{"sub-assembly": sub}}

	raw := &ports.RawManifest{
		ID:          "m1",
		ContentType: "application/json",
		Data: []byte(`{
			"id": "m1",
			"parts": [
				{"id": "c1", "name": "Assembly", "reference": "sub-assembly@^1.0.0"}
			]
		}`),
	}
	req := mustResolve(t, raw)

	matches, err := Explode(context.Background(), req, loader, ExplodeOptions{MaxDepth: 5})
	require.NoError(t, err)

	var ids []string
	for _, m := range matches {
		ids = append(ids, m.Component.ID)
	}
	require.Contains(t, ids, "s1")
}

func TestExplodeReferenceVersionConstraintUnsatisfiedFails(t *testing.T) {
	sub := &ports.RawManifest{
		ID:          "sub-assembly",
		ContentType: "application/json",
		Data:        []byte(`{"id":"sub-assembly","version":"2.0.0","parts":[{"id":"s1","name":"Gasket"}]}`),
	}
	loader := &fakeLoader{manifests: map[string]*ports.RawManifest{"sub-assembly": sub}}

	raw := &ports.RawManifest{
		ID:          "m1",
		ContentType: "application/json",
		Data: []byte(`{
			"id": "m1",
			"parts": [
				{"id": "c1", "name": "Assembly", "reference": "sub-assembly@^1.0.0"}
			]
		}`),
	}
	req := mustResolve(t, raw)

	_, err := Explode(context.Background(), req, loader, ExplodeOptions{MaxDepth: 5})
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeComponentReference, code)
}
