package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresMetadataIndex is the side-file source of truth for listing and
// staleness (spec.md §4.6): it never stores solution blobs, only the
// SolutionMetadata projection, keeping list operations O(N) in metadata
// rows rather than O(N) full-blob reads.
type PostgresMetadataIndex struct {
	db *sql.DB
}

func NewPostgresMetadataIndex(db *sql.DB) *PostgresMetadataIndex {
	return &PostgresMetadataIndex{db: db}
}

const postgresIndexSchema = `
CREATE TABLE IF NOT EXISTS solution_metadata (
	id              TEXT PRIMARY KEY,
	score           DOUBLE PRECISION NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL,
	ttl_days        INT NOT NULL,
	tags            TEXT[] NOT NULL DEFAULT '{}',
	okh_id          TEXT NOT NULL DEFAULT '',
	okh_title       TEXT NOT NULL DEFAULT '',
	matching_mode   TEXT NOT NULL DEFAULT '',
	facility_count  INT NOT NULL DEFAULT 0,
	component_count INT NOT NULL DEFAULT 0,
	tree_count      INT NOT NULL DEFAULT 0
);
`

func (idx *PostgresMetadataIndex) Init(ctx context.Context) error {
	_, err := idx.db.ExecContext(ctx, postgresIndexSchema)
	return err
}

// Upsert inserts one solution's metadata row. For an id that already has a
// row it updates score, updated_at, expires_at, ttl_days and tags, and keeps
// the other columns as first written.
func (idx *PostgresMetadataIndex) Upsert(ctx context.Context, m Metadata) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO solution_metadata (
			id, score, created_at, updated_at, expires_at, ttl_days, tags,
			okh_id, okh_title, matching_mode, facility_count, component_count, tree_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			score = $2, updated_at = $4, expires_at = $5, ttl_days = $6, tags = $7
	`,
		m.ID, m.Score, m.CreatedAt, m.UpdatedAt, m.ExpiresAt, m.TTLDays, pq.Array(m.Tags),
		m.OKHID, m.OKHTitle, m.MatchingMode, m.FacilityCount, m.ComponentCount, m.TreeCount,
	)
	if err != nil {
		return fmt.Errorf("upsert metadata %s: %w", m.ID, err)
	}
	return nil
}

func (idx *PostgresMetadataIndex) Delete(ctx context.Context, id string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM solution_metadata WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete metadata %s: %w", id, err)
	}
	return nil
}

// ListFilter implements spec.md §4.6's listing filters.
type ListFilter struct {
	OKHID        string
	MatchingMode string
	MinAgeDays   int
	MaxAgeDays   int
	OnlyStale    bool
	IncludeStale bool
	Tag          string
}

// ListSort names the sortable fields and direction.
type ListSort struct {
	Field      string // created_at | updated_at | expires_at | score | age_days
	Descending bool
}

type Paging struct {
	Limit  int
	Offset int
}

func (idx *PostgresMetadataIndex) List(ctx context.Context, now time.Time, filter ListFilter, sortBy ListSort, paging Paging) ([]Metadata, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, score, created_at, updated_at, expires_at, ttl_days, tags,
		okh_id, okh_title, matching_mode, facility_count, component_count, tree_count
		FROM solution_metadata WHERE 1=1`)

	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.OKHID != "" {
		query.WriteString(" AND okh_id = " + arg(filter.OKHID))
	}
	if filter.MatchingMode != "" {
		query.WriteString(" AND matching_mode = " + arg(filter.MatchingMode))
	}
	if filter.MinAgeDays > 0 {
		query.WriteString(" AND created_at <= " + arg(now.AddDate(0, 0, -filter.MinAgeDays)))
	}
	if filter.MaxAgeDays > 0 {
		query.WriteString(" AND created_at >= " + arg(now.AddDate(0, 0, -filter.MaxAgeDays)))
	}
	if !filter.IncludeStale && !filter.OnlyStale {
		query.WriteString(" AND expires_at > " + arg(now))
	}
	if filter.OnlyStale {
		query.WriteString(" AND expires_at <= " + arg(now))
	}
	if filter.Tag != "" {
		query.WriteString(" AND " + arg(filter.Tag) + " = ANY(tags)")
	}

	orderField := map[string]string{
		"created_at": "created_at",
		"updated_at": "updated_at",
		"expires_at": "expires_at",
		"score":      "score",
		"age_days":   "created_at",
	}[sortBy.Field]
	if orderField == "" {
		orderField = "created_at"
	}
	direction := "ASC"
	if sortBy.Descending {
		direction = "DESC"
	}
	if sortBy.Field == "age_days" {
		// age_days grows as created_at shrinks, so invert the direction.
		if direction == "ASC" {
			direction = "DESC"
		} else {
			direction = "ASC"
		}
	}
	fmt.Fprintf(&query, " ORDER BY %s %s", orderField, direction)

	if paging.Limit > 0 {
		query.WriteString(" LIMIT " + arg(paging.Limit))
	}
	if paging.Offset > 0 {
		query.WriteString(" OFFSET " + arg(paging.Offset))
	}

	rows, err := idx.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		var tags pq.StringArray
		if err := rows.Scan(
			&m.ID, &m.Score, &m.CreatedAt, &m.UpdatedAt, &m.ExpiresAt, &m.TTLDays, &tags,
			&m.OKHID, &m.OKHTitle, &m.MatchingMode, &m.FacilityCount, &m.ComponentCount, &m.TreeCount,
		); err != nil {
			return nil, fmt.Errorf("scan metadata row: %w", err)
		}
		m.Tags = []string(tags)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Metadata mirrors supplytree.SolutionMetadata as the flat row that an Index
// backend stores and lists.
type Metadata struct {
	ID             string
	Score          float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
	TTLDays        int
	Tags           []string
	OKHID          string
	OKHTitle       string
	MatchingMode   string
	FacilityCount  int
	ComponentCount int
	TreeCount      int
}
