package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/errs"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/ports"
)

func TestLoadManifestReadsRelativeFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.json"), []byte(`{"id":"widget","title":"Widget"}`), 0o600))

	c := New(dir)
	raw, err := c.LoadManifest(context.Background(), "widget.json")
	require.NoError(t, err)
	require.Equal(t, "application/json", raw.ContentType)
	require.Contains(t, string(raw.Data), "Widget")
}

func TestLoadManifestMissingReturnsBomFileNotFound(t *testing.T) {
	c := New(t.TempDir())
	_, err := c.LoadManifest(context.Background(), "missing.json")
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeBomFileNotFound, code)
}

func TestListFacilitiesFiltersByStatus(t *testing.T) {
	dir := t.TempDir()
	doc := `{"facilities":[
		{"id":"fac-1","status":"active"},
		{"id":"fac-2","status":"inactive"}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "facilities.json"), []byte(doc), 0o600))

	c := New(dir)
	out, err := c.ListFacilities(context.Background(), ports.FacilityFilter{Status: []string{"active"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "fac-1", out[0].ID)
}

func TestLoadTaxonomyEntriesParsesYAML(t *testing.T) {
	dir := t.TempDir()
	doc := "processes:\n  - uri: urn:process:cnc-milling\n    aliases: [\"CNC Milling\"]\n"
	path := filepath.Join(dir, "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	entries, err := LoadTaxonomyEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "urn:process:cnc-milling", entries[0].URI)
}
