// Package ports declares the contracts for every external collaborator
// named in spec.md §6.1. This kernel never implements OKH/OKW persistence,
// object-store drivers beyond the two reference adapters in pkg/store,
// embedding services, or LLM services — it only depends on these
// interfaces, so a caller can inject fakes, HTTP clients, or anything else
// that satisfies the contract.
package ports

import "context"

// RequirementLoader loads the raw manifest of a Requirement (the OKH side)
// by id or path; pkg/bom parses it into a requirement.Requirement.
type RequirementLoader interface {
	LoadManifest(ctx context.Context, idOrPath string) (*RawManifest, error)
}

// RawManifest is the loader's return shape: bytes plus enough metadata for
// pkg/bom to detect format and resolve relative paths. The matching kernel
// parses this into a requirement.Requirement; the loader itself owns
// fetching and caching.
type RawManifest struct {
	ID          string
	Origin      string // base path/URI other relative references resolve against
	ContentType string // "application/json", "application/yaml", "text/markdown"
	Data        []byte
}

// FacilityFilter is a free-form filter passed to FacilityProvider.ListFacilities; it
// supports at minimum status and access-type subsetting per spec.md §6.1.
type FacilityFilter struct {
	Status     []string
	AccessType []string
	Extra      map[string]string
}

// FacilityProvider supplies the population of candidate facilities (the OKW
// side) to match against.
type FacilityProvider interface {
	ListFacilities(ctx context.Context, filter FacilityFilter) ([]FacilityRecord, error)
}

// FacilityRecord is the wire shape returned by a FacilityProvider;
// coordinator.ResolveFacilities converts it to facility.Facility.
type FacilityRecord struct {
	ID             string
	Name           string
	ProcessAliases []string
	Equipment      []EquipmentRecord
	Materials      []string
	BatchMin       int
	BatchMax       int
	AccessType     string
	Status         string
	Location       string
	Certifications []string
	FreeText       string // description/capability blurb consumed by the NLP layer
}

// EquipmentRecord describes one piece of offered equipment.
type EquipmentRecord struct {
	Name          string
	ProcessAlias  string
	Specification string
}

// BlobReader fetches BOM files and external manifest references by path.
type BlobReader interface {
	// Read returns the bytes and content type at path, or a NotFound error
	// distinct from other failures (callers check errs.CodeOf(err) against
	// errs.CodeBomFileNotFound).
	Read(ctx context.Context, path string) ([]byte, string, error)
}

// ObjectStore is the content-addressable backing store for C6. Keys are
// opaque strings; callers never interpret them.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// EmbeddingService computes embedding vectors for free text, consumed by
// the NLP layer matcher.
type EmbeddingService interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// LLMRequest is a prompted-reasoning request for the LLM layer matcher.
type LLMRequest struct {
	Prompt string
	Schema map[string]any // JSON Schema the structured response must satisfy
}

// LLMService performs prompted reasoning over ambiguous/missing structured
// data, consumed by the LLM layer matcher.
type LLMService interface {
	Chat(ctx context.Context, req LLMRequest) (map[string]any, error)
}
