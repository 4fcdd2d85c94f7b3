// Package coordinator implements the Match Coordinator (C7): the single
// top-level entry point that drives C2 (BOM resolution) into C4 (the match
// runner, which fans out to C3's layer matchers) into C5 (supply-tree
// assembly, validation, aggregation), and optionally C6 (persistence),
// per spec.md §4.7.
package coordinator

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/bom"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/errs"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/facility"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/match"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/ports"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/runner"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/store"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/supplytree"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/taxonomy"
)

// Options is the match(...) contract's option bag (spec.md §4.7).
type Options struct {
	MaxDepth         int
	AutoDetectDepth  bool
	MinConfidence    float64
	TargetConfidence float64
	EnabledLayers    []match.Layer
	Domain           string
	SaveSolution     bool
	Tags             []string
	TTLDays          int

	KnownFields    []string
	Weights        match.Weights
	PenaltyWeight  float64
	WorkerPoolSize int
}

// Coordinator wires together the kernel's components behind the single
// match(...) entry point.
type Coordinator struct {
	Loader      ports.RequirementLoader
	Taxonomy    *taxonomy.Taxonomy
	Matchers    []match.Matcher
	SolutionLog *store.SolutionStore // optional; nil disables persistence

	Logger *slog.Logger
}

// New builds a Coordinator from its collaborators. SolutionLog may be nil
// when the caller never sets save_solution.
func New(loader ports.RequirementLoader, tax *taxonomy.Taxonomy, matchers []match.Matcher, solutionLog *store.SolutionStore) *Coordinator {
	return &Coordinator{
		Loader:      loader,
		Taxonomy:    tax,
		Matchers:    matchers,
		SolutionLog: solutionLog,
		Logger:      slog.Default().With("component", "coordinator"),
	}
}

// Match implements spec.md §4.7's control flow: resolve BOM (C2), order
// leaves-first, run C4 over the facility set per component, assemble and
// validate via C5, optionally persist via C6.
func (c *Coordinator) Match(ctx context.Context, manifestIDOrPath string, facilities []facility.Facility, opts Options) (*supplytree.SupplyTreeSolution, error) {
	raw, err := c.Loader.LoadManifest(ctx, manifestIDOrPath)
	if err != nil {
		return nil, errs.BomFileNotFound(manifestIDOrPath)
	}

	req, err := bom.Resolve(raw)
	if err != nil {
		return nil, err
	}

	explodeOpts := bom.ExplodeOptions{
		MaxDepth:        opts.MaxDepth,
		AutoDetectDepth: opts.AutoDetectDepth,
	}
	effectiveDepth := bom.EffectiveMaxDepth(req, explodeOpts)

	matches, err := bom.Explode(ctx, req, c.Loader, explodeOpts)
	if err != nil {
		c.Logger.Error("bom explosion failed", "manifest", manifestIDOrPath, "error", err)
		return nil, err
	}

	runnerOpts := runner.Options{
		TargetConfidence: opts.TargetConfidence,
		MinConfidence:    opts.MinConfidence,
		EnabledLayers:    opts.EnabledLayers,
		KnownFields:      opts.KnownFields,
		Weights:          opts.Weights,
		PenaltyWeight:    opts.PenaltyWeight,
		WorkerPoolSize:   poolSize(opts.WorkerPoolSize, len(facilities)),
	}

	for _, cm := range matches {
		select {
		case <-ctx.Done():
			return nil, errs.LayerCancelled("coordinator")
		default:
		}
		for i, p := range cm.Component.RequiredProcesses {
			if np, ok := c.Taxonomy.Normalise(p.URI); ok {
				cm.Component.RequiredProcesses[i] = np
			}
		}
		cm.Trees = runner.Run(ctx, cm, facilities, c.Matchers, runnerOpts)
	}

	mode := supplytree.ModeNested
	if effectiveDepth == 0 {
		mode = supplytree.ModeSingleLevel
	}

	sol, err := supplytree.Assemble(matches, supplytree.AssembleOptions{
		Mode:    mode,
		TTLDays: ttlOrDefault(opts.TTLDays),
		Tags:    opts.Tags,
	})
	if err != nil {
		return nil, err
	}

	if err := supplytree.Validate(sol); err != nil {
		c.Logger.Warn("solution failed validation", "manifest", manifestIDOrPath, "error", err)
		return nil, err
	}
	supplytree.Aggregate(sol)

	if opts.SaveSolution {
		if c.SolutionLog == nil {
			return nil, errs.StoreUnavailable("save_solution requested but no solution store configured", nil)
		}
		id, err := c.SolutionLog.Save(ctx, sol, "", opts.Tags, ttlOrDefault(opts.TTLDays))
		if err != nil {
			return nil, err
		}
		sol.ID = id
	}

	return sol, nil
}

func poolSize(requested, facilityCount int) int {
	if requested > 0 {
		return requested
	}
	max := facilityCount
	if cpuBound := runtime.NumCPU() * 2; cpuBound < max {
		max = cpuBound
	}
	if max <= 0 {
		max = 1
	}
	return max
}

func ttlOrDefault(days int) int {
	if days > 0 {
		return days
	}
	return store.DefaultTTLDays
}

// ResolveFacilities converts the FacilityProvider's wire records into the
// domain facility.Facility values C3/C4 operate on, resolving each process
// alias through the shared taxonomy.
func ResolveFacilities(tax *taxonomy.Taxonomy, records []ports.FacilityRecord) []facility.Facility {
	out := make([]facility.Facility, 0, len(records))
	for _, r := range records {
		out = append(out, facilityFromRecord(tax, r))
	}
	return out
}

func facilityFromRecord(tax *taxonomy.Taxonomy, r ports.FacilityRecord) facility.Facility {
	f := facility.Facility{
		ID:             r.ID,
		Name:           r.Name,
		Materials:      r.Materials,
		BatchRange:     facility.BatchRange{Min: r.BatchMin, Max: r.BatchMax},
		AccessType:     r.AccessType,
		Status:         r.Status,
		Location:       r.Location,
		Certifications: r.Certifications,
		FreeText:       r.FreeText,
	}
	for _, alias := range r.ProcessAliases {
		if p, ok := tax.Normalise(alias); ok {
			f.Processes = append(f.Processes, p)
		}
	}
	for _, eq := range r.Equipment {
		equipment := facility.Equipment{Name: eq.Name, Specification: eq.Specification}
		if p, ok := tax.Normalise(eq.ProcessAlias); ok {
			equipment.Process = p
		}
		f.Equipment = append(f.Equipment, equipment)
	}
	return f
}
