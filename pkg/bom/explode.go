package bom

import (
	"context"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/errs"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/ports"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/requirement"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/supplytree"
)

// ComponentMatch is one node of an exploded BOM, ready for C4/C5 (spec.md
// §3.1). ParentComponentID refers to another ComponentMatch in the same
// explosion with Depth-1.
type ComponentMatch struct {
	Component         *requirement.Component
	Depth             int
	ParentComponentID string
	Path              []string
	ResolvedManifest  *requirement.Requirement
	Matched           bool
	Trees             []*supplytree.SupplyTree
}

// DefaultAutoDetectDepth is the depth auto_detect_depth lifts max_depth to
// when the manifest has any nesting but the caller passed max_depth = 0.
const DefaultAutoDetectDepth = 5

// ExplodeOptions controls Explode's traversal per spec.md §4.2/§4.7.
type ExplodeOptions struct {
	MaxDepth        int
	AutoDetectDepth bool
}

// resolvedDepth applies the auto_detect_depth lift: max_depth = 0 means
// single-level unless the manifest has nesting and auto-detect is set.
func (o ExplodeOptions) resolvedDepth(hasNesting bool) int {
	if o.MaxDepth == 0 && o.AutoDetectDepth && hasNesting {
		return DefaultAutoDetectDepth
	}
	return o.MaxDepth
}

// EffectiveMaxDepth reports the max depth Explode will actually use for req
// once opts.AutoDetectDepth's lift is applied, so callers that need to know
// the resolved matching mode (single-level vs. nested) ahead of assembly
// don't have to re-derive resolvedDepth's logic themselves.
func EffectiveMaxDepth(req *requirement.Requirement, opts ExplodeOptions) int {
	roots := req.BOM.Parts
	if len(roots) == 0 {
		roots = req.BOM.SubParts
	}
	return opts.resolvedDepth(len(roots) > 0)
}

// Explode performs the depth-first explosion described in spec.md §4.2,
// returning matches sorted by depth descending (leaves before interior
// nodes) so C4/C5 can process bottom-up.
func Explode(ctx context.Context, req *requirement.Requirement, loader ports.RequirementLoader, opts ExplodeOptions) ([]*ComponentMatch, error) {
	roots := req.BOM.Parts
	if len(roots) == 0 {
		roots = req.BOM.SubParts
	}

	hasNesting := len(roots) > 0
	maxDepth := opts.resolvedDepth(hasNesting)

	if !hasNesting || maxDepth == 0 {
		// Empty BOM, or single-level mode (max_depth = 0 with no
		// auto-detect lift): match only the root manifest and ignore any
		// nested components entirely (spec.md §4.2/§4.7) — this is the
		// documented single-level boundary, not a MaxDepthExceeded error.
		root := &requirement.Component{
			ID:                req.ID,
			Name:              req.Title,
			RequiredProcesses: req.Processes,
			RequiredMaterials: req.Materials,
		}
		return []*ComponentMatch{{Component: root, Depth: 0, Path: []string{root.Name}}}, nil
	}

	e := &exploder{ctx: ctx, loader: loader, maxDepth: maxDepth, visiting: map[string]bool{}}
	var out []*ComponentMatch
	for _, c := range roots {
		matches, err := e.walk(c, 0, "", nil)
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Depth > out[j].Depth
	})
	return out, nil
}

type exploder struct {
	ctx      context.Context
	loader   ports.RequirementLoader
	maxDepth int
	visiting map[string]bool // reference chain currently on the stack, for CircularReference
}

func (e *exploder) walk(c *requirement.Component, depth int, parentID string, path []string) ([]*ComponentMatch, error) {
	nodePath := append(append([]string{}, path...), c.Name)

	match := &ComponentMatch{
		Component:         c,
		Depth:             depth,
		ParentComponentID: parentID,
		Path:              nodePath,
	}
	out := []*ComponentMatch{match}

	children := c.SubComponents

	if c.Reference != "" {
		if e.visiting[c.Reference] {
			return nil, errs.CircularReference(append(append([]string{}, nodePath...), c.Reference))
		}
		if len(c.SubComponents) > 0 {
			// Reference's sub-tree grafts in place of inline sub-components;
			// the inline ones are discarded with a warning (spec.md §4.2.3).
			match.Component = &requirement.Component{
				ID:                c.ID,
				Name:              c.Name,
				Quantity:          c.Quantity,
				Unit:              c.Unit,
				RequiredProcesses: c.RequiredProcesses,
				RequiredMaterials: c.RequiredMaterials,
				Constraints:       c.Constraints,
				Reference:         c.Reference,
				FreeText:          fmt.Sprintf("%s (inline sub-components discarded in favour of reference %q)", c.FreeText, c.Reference),
			}
		}

		resolved, err := e.loader.LoadManifest(e.ctx, c.Reference)
		if err != nil {
			return nil, errs.ComponentReferenceError(c.ID, c.Reference, err)
		}
		refReq, err := Resolve(resolved)
		if err != nil {
			return nil, err
		}
		if c.VersionSpec != "" {
			if err := checkVersionConstraint(c.ID, c.Reference, refReq.Version, c.VersionSpec); err != nil {
				return nil, err
			}
		}
		match.ResolvedManifest = refReq

		refChildren := refReq.BOM.Parts
		if len(refChildren) == 0 {
			refChildren = refReq.BOM.SubParts
		}
		children = refChildren

		e.visiting[c.Reference] = true
		defer delete(e.visiting, c.Reference)
	}

	if len(children) == 0 {
		return out, nil
	}

	if depth+1 > e.maxDepth {
		return nil, errs.MaxDepthExceeded(depth+1, e.maxDepth)
	}

	for _, child := range children {
		childMatches, err := e.walk(child, depth+1, c.ID, nodePath)
		if err != nil {
			return nil, err
		}
		out = append(out, childMatches...)
	}
	return out, nil
}

// checkVersionConstraint verifies a referenced manifest's version satisfies
// the constraint carried on the referencing component (spec.md §4.2
// supplement: "ref@constraint" component references).
func checkVersionConstraint(componentID, reference, resolvedVersion, constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return errs.ComponentReferenceError(componentID, reference, fmt.Errorf("invalid version constraint %q: %w", constraint, err))
	}
	v, err := semver.NewVersion(resolvedVersion)
	if err != nil {
		return errs.ComponentReferenceError(componentID, reference, fmt.Errorf("resolved manifest has unparsable version %q: %w", resolvedVersion, err))
	}
	if !c.Check(v) {
		return errs.ComponentReferenceError(componentID, reference, fmt.Errorf("resolved version %s does not satisfy constraint %q", v, constraint))
	}
	return nil
}
