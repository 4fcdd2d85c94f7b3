package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/canonicalize"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/errs"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/ports"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/supplytree"
)

// DefaultTTLDays is applied when Save is called without an explicit
// ttl_days (spec.md §4.6).
const DefaultTTLDays = 30

// blobKey/metaKey implement spec.md §4.6's logical key layout.
func blobKey(id string) string { return "solutions/" + id }
func metaKey(id string) string { return "solutions/metadata/" + id }

// Index is the subset of PostgresMetadataIndex the store depends on, so
// tests can substitute an in-memory fake.
type Index interface {
	Upsert(ctx context.Context, m Metadata) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, now time.Time, filter ListFilter, sortBy ListSort, paging Paging) ([]Metadata, error)
}

// SolutionStore implements the Solution Store (C6) contract of spec.md
// §4.6 over an injected ports.ObjectStore (blob) and Index (metadata).
type SolutionStore struct {
	blobs ports.ObjectStore
	index Index
	clock func() time.Time
}

func NewSolutionStore(blobs ports.ObjectStore, index Index) *SolutionStore {
	return &SolutionStore{blobs: blobs, index: index, clock: time.Now}
}

// WithClock overrides the store's time source, for deterministic staleness
// tests.
func (s *SolutionStore) WithClock(clock func() time.Time) *SolutionStore {
	s.clock = clock
	return s
}

// Save persists a solution blob then its metadata side-file, in that
// order (spec.md §4.6's write ordering), generating an id via canonical
// content hash when the caller doesn't supply one.
func (s *SolutionStore) Save(ctx context.Context, sol *supplytree.SupplyTreeSolution, id string, tags []string, ttlDays int) (string, error) {
	now := s.clock()

	if id == "" {
		hash, err := canonicalize.CanonicalHash(sol)
		if err != nil {
			return "", errs.StoreUnavailable("computing content id", err)
		}
		id = hash
	}
	sol.ID = id

	if ttlDays <= 0 {
		ttlDays = DefaultTTLDays
	}
	if sol.CreatedAt.IsZero() {
		sol.CreatedAt = now
	}
	sol.UpdatedAt = now
	sol.ExpiresAt = now.AddDate(0, 0, ttlDays)
	sol.TTLDays = ttlDays
	sol.Tags = tags

	data, err := json.Marshal(sol)
	if err != nil {
		return "", errs.BomParseError("marshal solution "+id, err)
	}

	if err := s.blobs.Put(ctx, blobKey(id), data); err != nil {
		return "", errs.StoreUnavailable("put blob "+id, err)
	}

	meta := metadataOf(sol)
	metaData, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata %s: %w", id, err)
	}
	if err := s.blobs.Put(ctx, metaKey(id), metaData); err != nil {
		return "", errs.StoreUnavailable("put metadata "+id, err)
	}

	if s.index != nil {
		if err := s.index.Upsert(ctx, metaToIndex(meta)); err != nil {
			return "", errs.StoreUnavailable("index upsert "+id, err)
		}
	}

	return id, nil
}

// Load returns the full solution blob.
func (s *SolutionStore) Load(ctx context.Context, id string) (*supplytree.SupplyTreeSolution, error) {
	data, err := s.blobs.Get(ctx, blobKey(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.StoreNotFound(id)
		}
		return nil, errs.StoreUnavailable("get blob "+id, err)
	}
	var sol supplytree.SupplyTreeSolution
	if err := json.Unmarshal(data, &sol); err != nil {
		return nil, fmt.Errorf("unmarshal solution %s: %w", id, err)
	}
	return &sol, nil
}

// FreshnessInfo reports the staleness check alongside a loaded solution.
type FreshnessInfo struct {
	Stale  bool
	Reason string
}

// LoadWithMetadata loads a solution and optionally validates freshness
// against its metadata side-file (spec.md §4.6).
func (s *SolutionStore) LoadWithMetadata(ctx context.Context, id string, validateFreshness bool) (*supplytree.SupplyTreeSolution, FreshnessInfo, error) {
	sol, err := s.Load(ctx, id)
	if err != nil {
		return nil, FreshnessInfo{}, err
	}
	if !validateFreshness {
		return sol, FreshnessInfo{}, nil
	}
	stale, reason := s.IsStale(ctx, id, 0)
	return sol, FreshnessInfo{Stale: stale, Reason: reason}, nil
}

// Delete removes both the blob and the metadata side-file.
func (s *SolutionStore) Delete(ctx context.Context, id string) (bool, error) {
	blobErr := s.blobs.Delete(ctx, blobKey(id))
	metaErr := s.blobs.Delete(ctx, metaKey(id))
	if s.index != nil {
		_ = s.index.Delete(ctx, id)
	}
	if blobErr != nil {
		return false, errs.StoreUnavailable("delete blob "+id, blobErr)
	}
	if metaErr != nil {
		return false, errs.StoreUnavailable("delete metadata "+id, metaErr)
	}
	return true, nil
}

// List implements spec.md §4.6's list(filter, sort, paging) contract. When
// an Index (e.g. PostgresMetadataIndex) is configured, it is queried
// directly. Otherwise List falls back to scanning the blob store's
// metadata side-files itself, so a file/S3-backed store with no side index
// still supports listing.
func (s *SolutionStore) List(ctx context.Context, filter ListFilter, sortBy ListSort, paging Paging) ([]Metadata, error) {
	now := s.clock()

	if s.index != nil {
		items, err := s.index.List(ctx, now, filter, sortBy, paging)
		if err != nil {
			return nil, errs.StoreUnavailable("list metadata", err)
		}
		return items, nil
	}

	keys, err := s.blobs.List(ctx, "solutions/metadata/")
	if err != nil {
		return nil, errs.StoreUnavailable("list metadata", err)
	}

	var items []Metadata
	for _, key := range keys {
		id := idFromMetaKey(key)
		if id == "" {
			continue
		}
		data, err := s.blobs.Get(ctx, key)
		if err != nil {
			continue
		}
		var meta solutionMetadataDoc
		if json.Unmarshal(data, &meta) != nil {
			continue
		}
		m := metaToIndex(meta)
		if matchesFilter(now, m, filter) {
			items = append(items, m)
		}
	}

	sortMetadata(items, sortBy)
	return pageMetadata(items, paging), nil
}

// matchesFilter mirrors PostgresMetadataIndex.List's WHERE clause, so the
// file-backed fallback filters identically to the Postgres-backed path.
func matchesFilter(now time.Time, m Metadata, filter ListFilter) bool {
	if filter.OKHID != "" && m.OKHID != filter.OKHID {
		return false
	}
	if filter.MatchingMode != "" && m.MatchingMode != filter.MatchingMode {
		return false
	}
	if filter.MinAgeDays > 0 && m.CreatedAt.After(now.AddDate(0, 0, -filter.MinAgeDays)) {
		return false
	}
	if filter.MaxAgeDays > 0 && m.CreatedAt.Before(now.AddDate(0, 0, -filter.MaxAgeDays)) {
		return false
	}
	if !filter.IncludeStale && !filter.OnlyStale && !m.ExpiresAt.After(now) {
		return false
	}
	if filter.OnlyStale && m.ExpiresAt.After(now) {
		return false
	}
	if filter.Tag != "" {
		found := false
		for _, t := range m.Tags {
			if t == filter.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// sortMetadata mirrors PostgresMetadataIndex.List's ORDER BY, including the
// age_days field's direction inversion (older records sort first under
// "descending age").
func sortMetadata(items []Metadata, sortBy ListSort) {
	field := sortBy.Field
	if field == "" {
		field = "created_at"
	}
	descending := sortBy.Descending
	if field == "age_days" {
		descending = !descending
	}

	keyTime := func(m Metadata) time.Time {
		switch field {
		case "updated_at":
			return m.UpdatedAt
		case "expires_at":
			return m.ExpiresAt
		default: // created_at, age_days
			return m.CreatedAt
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if field == "score" {
			if descending {
				return items[i].Score > items[j].Score
			}
			return items[i].Score < items[j].Score
		}
		a, b := keyTime(items[i]), keyTime(items[j])
		if descending {
			return a.After(b)
		}
		return a.Before(b)
	})
}

func pageMetadata(items []Metadata, paging Paging) []Metadata {
	if paging.Offset > 0 {
		if paging.Offset >= len(items) {
			return nil
		}
		items = items[paging.Offset:]
	}
	if paging.Limit > 0 && paging.Limit < len(items) {
		items = items[:paging.Limit]
	}
	return items
}

// IsStale implements spec.md §4.6's staleness policy: now > expires_at, OR
// (maxAge supplied AND age > maxAge), OR age > ttl_days. A present
// metadata row with a missing blob reports check_failed.
func (s *SolutionStore) IsStale(ctx context.Context, id string, maxAge time.Duration) (bool, string) {
	metaData, err := s.blobs.Get(ctx, metaKey(id))
	if err != nil {
		return true, "check_failed"
	}
	var meta solutionMetadataDoc
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return true, "check_failed"
	}
	if _, err := s.blobs.Get(ctx, blobKey(id)); err != nil {
		return true, "check_failed"
	}

	now := s.clock()
	if now.After(meta.ExpiresAt) {
		return true, "expired"
	}
	age := now.Sub(meta.CreatedAt)
	if maxAge > 0 && age > maxAge {
		return true, fmt.Sprintf("too_old_%d_days", int(maxAge.Hours()/24))
	}
	if age > time.Duration(meta.TTLDays)*24*time.Hour {
		return true, fmt.Sprintf("exceeded_ttl_%d_days", meta.TTLDays)
	}
	return false, ""
}

// ExtendTTL bumps expires_at/updated_at/ttl_days for an existing solution.
func (s *SolutionStore) ExtendTTL(ctx context.Context, id string, days int) (bool, error) {
	metaData, err := s.blobs.Get(ctx, metaKey(id))
	if err != nil {
		return false, errs.StoreNotFound(id)
	}
	var meta solutionMetadataDoc
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return false, fmt.Errorf("unmarshal metadata %s: %w", id, err)
	}

	now := s.clock()
	meta.TTLDays = days
	meta.UpdatedAt = now
	meta.ExpiresAt = now.AddDate(0, 0, days)

	updated, err := json.Marshal(meta)
	if err != nil {
		return false, fmt.Errorf("marshal metadata %s: %w", id, err)
	}
	if err := s.blobs.Put(ctx, metaKey(id), updated); err != nil {
		return false, errs.StoreUnavailable("put metadata "+id, err)
	}
	if s.index != nil {
		_ = s.index.Upsert(ctx, metaToIndex(meta))
	}
	return true, nil
}

// CleanupResult is returned by CleanupStale.
type CleanupResult struct {
	DeletedCount int
	FreedBytes   int64
	IDs          []string
}

// CleanupStale deletes every solution whose metadata reports stale,
// optionally as a dry run (spec.md §4.6). Idempotent: callers may invoke
// repeatedly, and a concurrent reader that observes a deletion mid-flight
// receives errs.StoreNotFound.
func (s *SolutionStore) CleanupStale(ctx context.Context, maxAge time.Duration, before time.Time, dryRun bool) (CleanupResult, error) {
	keys, err := s.blobs.List(ctx, "solutions/metadata/")
	if err != nil {
		return CleanupResult{}, errs.StoreUnavailable("list metadata", err)
	}

	var result CleanupResult
	for _, key := range keys {
		id := idFromMetaKey(key)
		if id == "" {
			continue
		}
		stale, _ := s.IsStale(ctx, id, maxAge)
		if !stale {
			continue
		}
		if !before.IsZero() {
			metaData, err := s.blobs.Get(ctx, key)
			if err != nil {
				continue
			}
			var meta solutionMetadataDoc
			if json.Unmarshal(metaData, &meta) == nil && !meta.CreatedAt.Before(before) {
				continue
			}
		}

		result.IDs = append(result.IDs, id)
		if !dryRun {
			if blobData, err := s.blobs.Get(ctx, blobKey(id)); err == nil {
				result.FreedBytes += int64(len(blobData))
			}
			_, _ = s.Delete(ctx, id)
		}
		result.DeletedCount++
	}
	return result, nil
}

// ArchiveResult is returned by ArchiveStale.
type ArchiveResult struct {
	MovedCount int
	IDs        []string
}

// ArchiveStale moves (copies then deletes) every stale solution's blob and
// metadata under archivePrefix, instead of deleting it outright.
func (s *SolutionStore) ArchiveStale(ctx context.Context, maxAge time.Duration, archivePrefix string) (ArchiveResult, error) {
	keys, err := s.blobs.List(ctx, "solutions/metadata/")
	if err != nil {
		return ArchiveResult{}, errs.StoreUnavailable("list metadata", err)
	}

	var result ArchiveResult
	for _, key := range keys {
		id := idFromMetaKey(key)
		if id == "" {
			continue
		}
		stale, _ := s.IsStale(ctx, id, maxAge)
		if !stale {
			continue
		}

		blobData, err := s.blobs.Get(ctx, blobKey(id))
		if err != nil {
			continue
		}
		metaData, err := s.blobs.Get(ctx, key)
		if err != nil {
			continue
		}

		if err := s.blobs.Put(ctx, archivePrefix+id, blobData); err != nil {
			continue
		}
		if err := s.blobs.Put(ctx, archivePrefix+"metadata/"+id, metaData); err != nil {
			continue
		}
		_, _ = s.Delete(ctx, id)

		result.IDs = append(result.IDs, id)
		result.MovedCount++
	}
	return result, nil
}

func idFromMetaKey(key string) string {
	const prefix = "solutions/metadata/"
	if len(key) <= len(prefix) {
		return ""
	}
	return key[len(prefix):]
}

// solutionMetadataDoc is the JSON wire shape of the metadata side-file.
type solutionMetadataDoc struct {
	ID             string    `json:"id"`
	Score          float64   `json:"score"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	TTLDays        int       `json:"ttl_days"`
	Tags           []string  `json:"tags"`
	OKHID          string    `json:"okh_id"`
	OKHTitle       string    `json:"okh_title"`
	MatchingMode   string    `json:"matching_mode"`
	FacilityCount  int       `json:"facility_count"`
	ComponentCount int       `json:"component_count"`
	TreeCount      int       `json:"tree_count"`
}

func metadataOf(sol *supplytree.SupplyTreeSolution) solutionMetadataDoc {
	facilities := map[string]bool{}
	for _, t := range sol.AllTrees {
		facilities[t.FacilityID] = true
	}
	return solutionMetadataDoc{
		ID:             sol.ID,
		Score:          sol.Score,
		CreatedAt:      sol.CreatedAt,
		UpdatedAt:      sol.UpdatedAt,
		ExpiresAt:      sol.ExpiresAt,
		TTLDays:        sol.TTLDays,
		Tags:           sol.Tags,
		MatchingMode:   string(sol.MatchingMode),
		FacilityCount:  len(facilities),
		ComponentCount: len(sol.ComponentMapping),
		TreeCount:      len(sol.AllTrees),
	}
}

func metaToIndex(m solutionMetadataDoc) Metadata {
	return Metadata{
		ID:             m.ID,
		Score:          m.Score,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		ExpiresAt:      m.ExpiresAt,
		TTLDays:        m.TTLDays,
		Tags:           m.Tags,
		OKHID:          m.OKHID,
		OKHTitle:       m.OKHTitle,
		MatchingMode:   m.MatchingMode,
		FacilityCount:  m.FacilityCount,
		ComponentCount: m.ComponentCount,
		TreeCount:      m.TreeCount,
	}
}
