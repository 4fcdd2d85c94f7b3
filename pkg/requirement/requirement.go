// Package requirement holds the OKH-side data model: Requirement and its
// Component tree, per spec.md §3.1.
package requirement

import "github.com/helpfulengineering/supply-graph-ai-sub004/pkg/taxonomy"

// BOMKind classifies how a Requirement's bill of materials is carried.
type BOMKind string

const (
	BOMExternal BOMKind = "external"
	BOMEmbedded BOMKind = "embedded"
	BOMEmpty    BOMKind = "empty"
)

// BOM describes where a Requirement's bill of materials lives, before it
// has been resolved by pkg/bom.
type BOM struct {
	Kind BOMKind

	// ExternalPath is set when Kind == BOMExternal: the (possibly relative)
	// path or "external_file" field value.
	ExternalPath string

	// Parts/SubParts are set when Kind == BOMEmbedded: the inline component
	// list, named after the two manifest fields spec.md §4.2 recognises.
	Parts    []*Component
	SubParts []*Component
}

// Requirement is the OKH side of the match: a product's design requirements.
type Requirement struct {
	ID      string
	Title   string
	Version string
	License string

	Processes []taxonomy.ProcessID
	Materials []string

	BOM BOM

	// Components is not filled by pkg/bom: bom.Explode returns the exploded
	// components as []*bom.ComponentMatch and leaves this field empty.
	Components []*Component

	// Origin is the base path/URI that bom.ResolveExternal resolves
	// BOM.ExternalPath against. Component.Reference values are passed to the
	// loader as written, not resolved against Origin.
	Origin string
}

// Constraints is a heterogeneous, free-form requirement bag. Matchers
// type-witness the keys they understand and ignore the rest, per
// spec.md §9 ("dynamic typing... retained as a heterogeneous key-value map").
type Constraints map[string]any

// Component is one node of a Requirement's bill of materials.
type Component struct {
	ID       string
	Name     string
	Quantity float64
	Unit     string

	RequiredProcesses []taxonomy.ProcessID
	RequiredMaterials []string
	Constraints       Constraints

	// Reference optionally points at another Requirement by id or path.
	Reference string

	// VersionSpec is an optional semver constraint (e.g. "^1.2.0") the
	// referenced Requirement's Version must satisfy; empty means any
	// version is acceptable. Parsed from a "ref@constraint" Reference.
	VersionSpec string

	// SubComponents is the inline child list before reference resolution
	// may graft in a different sub-tree (§4.2 rule 3).
	SubComponents []*Component

	// FreeText is consumed by the NLP layer (description/capability blurb).
	FreeText string
}
