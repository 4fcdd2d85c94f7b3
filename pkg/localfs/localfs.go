// Package localfs provides filesystem-backed adapters for the collaborator
// contracts of spec.md §6.1 — RequirementLoader, FacilityProvider, and
// BlobReader — so the CLI and local development can drive the kernel
// without a real OKH/OKW backend.
package localfs

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/errs"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/ports"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/taxonomy"
)

// Collaborators reads OKH manifests, OKW facility listings, and referenced
// blob files from a single base directory.
type Collaborators struct {
	baseDir string
}

func New(baseDir string) *Collaborators {
	return &Collaborators{baseDir: baseDir}
}

// LoadManifest implements ports.RequirementLoader: idOrPath is resolved
// relative to the base directory.
func (c *Collaborators) LoadManifest(_ context.Context, idOrPath string) (*ports.RawManifest, error) {
	full := c.resolve(idOrPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, errs.BomFileNotFound(full)
	}
	return &ports.RawManifest{
		ID:          strings.TrimSuffix(filepath.Base(idOrPath), filepath.Ext(idOrPath)),
		Origin:      idOrPath,
		ContentType: contentTypeOf(idOrPath),
		Data:        data,
	}, nil
}

// Read implements ports.BlobReader for BOM-referenced external files.
func (c *Collaborators) Read(_ context.Context, path string) ([]byte, string, error) {
	full := c.resolve(path)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, "", errs.BomFileNotFound(full)
	}
	return data, contentTypeOf(path), nil
}

// facilityFile is the on-disk JSON shape for a facility listing.
type facilityFile struct {
	Facilities []ports.FacilityRecord `json:"facilities"`
}

// ListFacilities implements ports.FacilityProvider, reading a single
// "facilities.json" under the base directory and applying filter.Status /
// filter.AccessType as simple allow-lists.
func (c *Collaborators) ListFacilities(_ context.Context, filter ports.FacilityFilter) ([]ports.FacilityRecord, error) {
	data, err := os.ReadFile(filepath.Join(c.baseDir, "facilities.json"))
	if err != nil {
		return nil, fmt.Errorf("read facilities.json: %w", err)
	}
	var doc facilityFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse facilities.json: %w", err)
	}

	out := doc.Facilities[:0:0]
	for _, f := range doc.Facilities {
		if len(filter.Status) > 0 && !contains(filter.Status, f.Status) {
			continue
		}
		if len(filter.AccessType) > 0 && !contains(filter.AccessType, f.AccessType) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func (c *Collaborators) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

func contentTypeOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "application/yaml"
	case ".md", ".markdown":
		return "text/markdown"
	default:
		t := mime.TypeByExtension(filepath.Ext(path))
		if t != "" {
			return t
		}
		return "application/json"
	}
}

// taxonomyFile is the on-disk YAML shape of the process taxonomy table.
type taxonomyFile struct {
	Processes []struct {
		URI     string   `yaml:"uri"`
		Aliases []string `yaml:"aliases"`
		Parent  string   `yaml:"parent"`
	} `yaml:"processes"`
}

// LoadTaxonomyEntries parses a YAML taxonomy file into taxonomy.Entry
// records, ready for Taxonomy.Reload.
func LoadTaxonomyEntries(path string) ([]taxonomy.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy file %s: %w", path, err)
	}
	var doc taxonomyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse taxonomy file %s: %w", path, err)
	}
	entries := make([]taxonomy.Entry, 0, len(doc.Processes))
	for _, p := range doc.Processes {
		entries = append(entries, taxonomy.Entry{URI: p.URI, Aliases: p.Aliases, Parent: p.Parent})
	}
	return entries, nil
}
