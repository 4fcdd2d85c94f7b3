// Package supplytree implements the Supply-Tree Assembler (C5): the
// hierarchy of per-component match records, their parent/child and
// dependency edges, the topological production schedule, cycle detection,
// and cost/time aggregation, per spec.md §3.1 and §4.5.
package supplytree

import "time"

// MatchType names which layer (or combination) produced a tree's score.
type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchHeuristic MatchType = "heuristic"
	MatchNLP       MatchType = "nlp"
	MatchLLM       MatchType = "llm"
	MatchMixed     MatchType = "mixed"
	MatchUnknown   MatchType = "unknown"
)

// ProductionStage classifies a tree's place in the build sequence.
type ProductionStage string

const (
	StageComponent   ProductionStage = "component"
	StageSubAssembly ProductionStage = "sub-assembly"
	StageFinal       ProductionStage = "final"
)

// SupplyTree is a single scored assignment of one component to one
// facility, embedded in a hierarchy (spec.md §3.1).
type SupplyTree struct {
	// Identity
	ID                string
	ComponentID       string
	ComponentName     string
	ComponentQuantity float64
	ComponentUnit     string
	ComponentPath     []string

	// Placement
	FacilityID      string
	FacilityName    string
	Depth           int
	ProductionStage ProductionStage

	// Scoring
	Confidence float64
	MatchType  MatchType

	// Estimates
	EstimatedCost *float64
	EstimatedTime *time.Duration

	// Materials/capabilities
	MaterialsRequired []string
	CapabilitiesUsed  []string

	// Relations
	ParentTreeID string // "" if root
	ChildTreeIDs []string
	DependsOn    []string
	RequiredBy   []string

	// Provenance
	CreatedAt time.Time
	Metadata  map[string]any
}

// ValidationResult carries the outcome of assembly validation (§3.1).
type ValidationResult struct {
	IsValid              bool
	Errors               []string
	Warnings             []string
	UnmatchedComponents  []string
	CircularDependencies [][]string
	MissingDependencies  []string
}

// MatchingMode distinguishes single-level from nested resolution (§4.7).
type MatchingMode string

const (
	ModeSingleLevel MatchingMode = "single-level"
	ModeNested      MatchingMode = "nested"
)

// SupplyTreeSolution is the complete, validated output of one match run
// (spec.md §3.1).
type SupplyTreeSolution struct {
	ID string

	AllTrees           map[string]*SupplyTree // tree id -> tree
	RootTrees          []string               // tree ids with Depth == 0
	ComponentMapping   map[string][]string    // component id -> tree ids
	DependencyGraph    map[string][]string    // tree id -> set of tree ids it depends on
	ProductionSequence [][]string             // ordered parallel stages of tree ids

	Validation ValidationResult

	TotalEstimatedCost *float64
	CriticalPathTime   *time.Duration

	Score float64

	MatchingMode MatchingMode
	IsNested     bool

	Metadata map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
	TTLDays   int
	Tags      []string
}

// SolutionMetadata is the C6 side-file projection of a solution (§3.1/§4.6).
type SolutionMetadata struct {
	ID             string
	Score          float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
	TTLDays        int
	Tags           []string
	OKHID          string
	OKHTitle       string
	MatchingMode   MatchingMode
	FacilityCount  int
	ComponentCount int
	TreeCount      int
}
