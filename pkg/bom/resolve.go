// Package bom implements the BOM Resolver (C2): BOM-type detection,
// external-file loading across JSON/YAML/Markdown, component-reference
// resolution, and depth-bounded explosion into a flat, leaves-first
// sequence of ComponentMatch records, per spec.md §4.2.
package bom

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/errs"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/ports"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/requirement"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/taxonomy"
)

// manifestDoc is the wire shape parsed from JSON/YAML/Markdown before being
// lifted into requirement.Requirement. Kept separate from requirement.BOM so
// parsing stays format-agnostic and oblivious to taxonomy normalisation,
// which callers apply afterwards via taxonomy.Taxonomy.Normalise.
type manifestDoc struct {
	ID        string         `json:"id" yaml:"id"`
	Title     string         `json:"title" yaml:"title"`
	Version   string         `json:"version" yaml:"version"`
	License   string         `json:"license" yaml:"license"`
	Processes []string       `json:"processes" yaml:"processes"`
	Materials []string       `json:"materials" yaml:"materials"`
	BOM       interface{}    `json:"bom" yaml:"bom"`
	Parts     []componentDoc `json:"parts" yaml:"parts"`
	SubParts  []componentDoc `json:"sub_parts" yaml:"sub_parts"`
}

type componentDoc struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Quantity    float64        `json:"quantity" yaml:"quantity"`
	Unit        string         `json:"unit" yaml:"unit"`
	Processes   []string       `json:"processes" yaml:"processes"`
	Materials   []string       `json:"materials" yaml:"materials"`
	Reference   string         `json:"reference" yaml:"reference"`
	FreeText    string         `json:"description" yaml:"description"`
	SubParts    []componentDoc `json:"sub_parts" yaml:"sub_parts"`
	Constraints map[string]any `json:"constraints" yaml:"constraints"`
}

// Resolve parses a raw manifest into a Requirement and classifies its BOM
// per spec.md §4.2's detection rules. It does not recurse into references
// or sub-components — that is Explode's job.
func Resolve(raw *ports.RawManifest) (*requirement.Requirement, error) {
	doc, err := parseManifest(raw.ContentType, raw.Data)
	if err != nil {
		return nil, errs.BomParseError(fmt.Sprintf("manifest %s", raw.ID), err)
	}

	req := &requirement.Requirement{
		ID:      firstNonEmpty(doc.ID, raw.ID),
		Title:   doc.Title,
		Version: doc.Version,
		License: doc.License,
		Origin:  raw.Origin,
	}
	for _, p := range doc.Processes {
		req.Processes = append(req.Processes, rawProcess(p))
	}
	req.Materials = doc.Materials

	req.BOM = classifyBOM(doc)
	return req, nil
}

// rawProcess wraps a raw string as an unresolved process reference; the
// caller is expected to run it through taxonomy.Taxonomy.Normalise. We keep
// the raw string in URI so "unknown" processes are preserved verbatim for
// diagnostics, matching the taxonomy's contract.
func rawProcess(raw string) taxonomy.ProcessID {
	return taxonomy.ProcessID{URI: raw}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// classifyBOM implements the detection rules of spec.md §4.2:
//
//  1. external_file string/object -> external
//  2. non-empty parts/sub_parts -> embedded
//  3. otherwise -> empty
func classifyBOM(doc manifestDoc) requirement.BOM {
	if s, ok := doc.BOM.(string); ok && s != "" {
		return requirement.BOM{Kind: requirement.BOMExternal, ExternalPath: s}
	}
	if m, ok := doc.BOM.(map[string]interface{}); ok {
		if ef, ok := m["external_file"].(string); ok && ef != "" {
			return requirement.BOM{Kind: requirement.BOMExternal, ExternalPath: ef}
		}
	}
	if len(doc.Parts) > 0 || len(doc.SubParts) > 0 {
		return requirement.BOM{
			Kind:     requirement.BOMEmbedded,
			Parts:    toComponents(doc.Parts),
			SubParts: toComponents(doc.SubParts),
		}
	}
	return requirement.BOM{Kind: requirement.BOMEmpty}
}

func toComponents(docs []componentDoc) []*requirement.Component {
	out := make([]*requirement.Component, 0, len(docs))
	for _, d := range docs {
		ref, versionSpec := splitReference(d.Reference)
		c := &requirement.Component{
			ID:                d.ID,
			Name:              d.Name,
			Quantity:          d.Quantity,
			Unit:              d.Unit,
			Reference:         ref,
			VersionSpec:       versionSpec,
			FreeText:          d.FreeText,
			RequiredMaterials: d.Materials,
			Constraints:       requirement.Constraints(d.Constraints),
		}
		for _, p := range d.Processes {
			c.RequiredProcesses = append(c.RequiredProcesses, rawProcess(p))
		}
		c.SubComponents = toComponents(d.SubParts)
		out = append(out, c)
	}
	return out
}

// splitReference parses a "ref@constraint" component reference into its
// path/id and an optional semver constraint, e.g. "parts/bolt.json@^1.2.0".
// A bare reference with no "@" carries no version constraint.
func splitReference(raw string) (ref, versionSpec string) {
	if i := strings.LastIndex(raw, "@"); i > 0 {
		return raw[:i], raw[i+1:]
	}
	return raw, ""
}

func parseManifest(contentType string, data []byte) (manifestDoc, error) {
	switch {
	case strings.Contains(contentType, "yaml"):
		return parseYAML(data)
	case strings.Contains(contentType, "markdown"):
		return parseMarkdownTable(data)
	default:
		return parseJSON(data)
	}
}

// ResolveExternal loads the external BOM file referenced by req.BOM via the
// injected BlobReader, resolving the path relative to req.Origin, and
// returns the embedded component list it describes.
func ResolveExternal(ctx context.Context, req *requirement.Requirement, reader ports.BlobReader) ([]*requirement.Component, error) {
	if req.BOM.Kind != requirement.BOMExternal {
		return nil, nil
	}

	resolvedPath := resolveRelative(req.Origin, req.BOM.ExternalPath)
	data, contentType, err := reader.Read(ctx, resolvedPath)
	if err != nil {
		return nil, errs.BomFileNotFound(resolvedPath)
	}

	doc, err := parseManifest(contentType, data)
	if err != nil {
		return nil, errs.BomParseError(resolvedPath, err)
	}

	parts := doc.Parts
	if len(parts) == 0 {
		parts = doc.SubParts
	}
	return toComponents(parts), nil
}

func resolveRelative(origin, p string) string {
	if path.IsAbs(p) || origin == "" {
		return p
	}
	return path.Join(path.Dir(origin), p)
}

func parseJSON(data []byte) (manifestDoc, error) {
	var doc manifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return manifestDoc{}, err
	}
	return doc, nil
}

func parseYAML(data []byte) (manifestDoc, error) {
	var doc manifestDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return manifestDoc{}, err
	}
	return doc, nil
}
