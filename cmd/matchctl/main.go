package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/config"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/coordinator"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/localfs"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/match"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/ports"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/store"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/supplytree"
	"github.com/helpfulengineering/supply-graph-ai-sub004/pkg/taxonomy"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the dispatcher entrypoint, separated from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 0
	}

	switch args[1] {
	case "match":
		return runMatchCmd(args[2:], stdout, stderr)
	case "store":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: matchctl store <save|load|list|delete|cleanup|archive> [flags]")
			return 2
		}
		return runStoreCmd(args[2], args[3:], stdout, stderr)
	case "doctor":
		return runDoctorCmd(stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "matchctl %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

const version = "0.1.0"

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Supply Graph Matching Kernel CLI")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  matchctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  match     Run a manifest against a facility set (C2-C5, optional C6)")
	fmt.Fprintln(w, "  store     Inspect and manage persisted solutions (C6)")
	fmt.Fprintln(w, "  doctor    Check configuration and backing-store connectivity")
	fmt.Fprintln(w, "  version   Show version information")
	fmt.Fprintln(w, "  help      Show this help")
}

func runMatchCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	fs.SetOutput(stderr)
	manifest := fs.String("manifest", "", "manifest id or path, relative to -data-dir")
	dataDir := fs.String("data-dir", ".", "base directory for manifests, facilities.json, and BOM references")
	maxDepth := fs.Int("max-depth", 0, "0 = single-level, >0 = nested to that depth")
	autoDetect := fs.Bool("auto-detect-depth", true, "lift max-depth to the default when the manifest shows nesting")
	minConfidence := fs.Float64("min-confidence", 0.5, "drop per-facility matches below this after combination")
	targetConfidence := fs.Float64("target-confidence", 0.85, "early-stop threshold passed to the match runner")
	layers := fs.String("enabled-layers", "exact,heuristic,nlp", "comma-separated subset of exact,heuristic,nlp,llm")
	save := fs.Bool("save", false, "persist the resulting solution via the configured solution store")
	tags := fs.String("tags", "", "comma-separated tags to attach when -save is set")
	ttlDays := fs.Int("ttl-days", 0, "TTL in days when -save is set (0 = default)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *manifest == "" {
		fmt.Fprintln(stderr, "match: -manifest is required")
		return 2
	}

	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	tax := taxonomy.New()
	if entries, err := localfs.LoadTaxonomyEntries(cfg.TaxonomyPath); err == nil {
		tax.Reload(entries)
	} else {
		logger.Warn("no taxonomy loaded, process matching will be alias-blind", "path", cfg.TaxonomyPath, "error", err)
	}

	collaborators := localfs.New(*dataDir)

	records, err := collaborators.ListFacilities(context.Background(), ports.FacilityFilter{})
	if err != nil {
		fmt.Fprintf(stderr, "list facilities: %v\n", err)
		return 1
	}
	facilities := coordinator.ResolveFacilities(tax, records)

	matchers := []match.Matcher{
		match.NewExactMatcher(tax),
	}
	if heuristic, err := match.NewHeuristicMatcher(tax, nil, nil); err == nil {
		matchers = append(matchers, heuristic)
	} else {
		logger.Warn("heuristic matcher disabled", "error", err)
	}

	var solutionLog *store.SolutionStore
	if *save {
		blobs, err := openObjectStore(cfg)
		if err != nil {
			fmt.Fprintf(stderr, "open object store: %v\n", err)
			return 1
		}
		solutionLog = store.NewSolutionStore(blobs, nil)
	}

	co := coordinator.New(collaborators, tax, matchers, solutionLog)
	co.Logger = logger.With("component", "coordinator")

	opts := coordinator.Options{
		MaxDepth:         *maxDepth,
		AutoDetectDepth:  *autoDetect,
		MinConfidence:    *minConfidence,
		TargetConfidence: *targetConfidence,
		EnabledLayers:    parseLayers(*layers),
		SaveSolution:     *save,
		Tags:             splitNonEmpty(*tags, ","),
		TTLDays:          *ttlDays,
	}

	sol, err := co.Match(context.Background(), *manifest, facilities, opts)
	if err != nil {
		fmt.Fprintf(stderr, "match: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sol); err != nil {
		fmt.Fprintf(stderr, "encode solution: %v\n", err)
		return 1
	}
	return 0
}

func runStoreCmd(sub string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("store "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.String("id", "", "solution id")
	file := fs.String("file", "", "path to a SupplyTreeSolution JSON document (save only; '-' or omitted reads stdin)")
	tags := fs.String("tags", "", "comma-separated tags (save only)")
	ttlDays := fs.Int("ttl-days", 0, "TTL in days (save only; 0 = default)")

	okhID := fs.String("okh-id", "", "filter: exact OKH manifest id (list only)")
	matchingMode := fs.String("matching-mode", "", "filter: single-level|nested (list only)")
	minAgeDays := fs.Int("min-age-days", 0, "filter: only solutions at least this old (list only)")
	maxAgeDays := fs.Int("max-age-days", 0, "filter: only solutions at most this old (list only)")
	onlyStale := fs.Bool("only-stale", false, "filter: only stale solutions (list only)")
	includeStale := fs.Bool("include-stale", false, "filter: include stale solutions (list only)")
	tag := fs.String("tag", "", "filter: exact tag match (list only)")
	sortField := fs.String("sort", "created_at", "sort field: created_at|updated_at|expires_at|score|age_days (list only)")
	sortDesc := fs.Bool("desc", false, "sort descending (list only)")
	limit := fs.Int("limit", 0, "page limit (list only)")
	offset := fs.Int("offset", 0, "page offset (list only)")

	maxAge := fs.Duration("max-age", 0, "staleness override duration (cleanup/archive only)")
	before := fs.String("before", "", "RFC3339 timestamp: only solutions created before this (cleanup only)")
	dryRun := fs.Bool("dry-run", false, "report what would be deleted without deleting (cleanup only)")
	archivePrefix := fs.String("prefix", "archive/", "destination key prefix (archive only)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	blobs, err := openObjectStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "open object store: %v\n", err)
		return 1
	}
	solutionLog := store.NewSolutionStore(blobs, nil)
	ctx := context.Background()

	switch sub {
	case "load":
		sol, err := solutionLog.Load(ctx, *id)
		if err != nil {
			fmt.Fprintf(stderr, "load: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return encodeOrFail(enc, sol, stderr)

	case "save":
		var data []byte
		var err error
		if *file == "" || *file == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(*file)
		}
		if err != nil {
			fmt.Fprintf(stderr, "save: read solution: %v\n", err)
			return 1
		}
		var sol supplytree.SupplyTreeSolution
		if err := json.Unmarshal(data, &sol); err != nil {
			fmt.Fprintf(stderr, "save: parse solution: %v\n", err)
			return 1
		}
		savedID, err := solutionLog.Save(ctx, &sol, *id, splitNonEmpty(*tags, ","), *ttlDays)
		if err != nil {
			fmt.Fprintf(stderr, "save: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, savedID)
		return 0

	case "delete":
		ok, err := solutionLog.Delete(ctx, *id)
		if err != nil {
			fmt.Fprintf(stderr, "delete: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "deleted: %v\n", ok)
		return 0

	case "list":
		filter := store.ListFilter{
			OKHID:        *okhID,
			MatchingMode: *matchingMode,
			MinAgeDays:   *minAgeDays,
			MaxAgeDays:   *maxAgeDays,
			OnlyStale:    *onlyStale,
			IncludeStale: *includeStale,
			Tag:          *tag,
		}
		items, err := solutionLog.List(ctx, filter, store.ListSort{Field: *sortField, Descending: *sortDesc}, store.Paging{Limit: *limit, Offset: *offset})
		if err != nil {
			fmt.Fprintf(stderr, "list: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return encodeOrFail(enc, items, stderr)

	case "cleanup":
		var beforeTime time.Time
		if *before != "" {
			t, err := time.Parse(time.RFC3339, *before)
			if err != nil {
				fmt.Fprintf(stderr, "cleanup: invalid -before: %v\n", err)
				return 2
			}
			beforeTime = t
		}
		result, err := solutionLog.CleanupStale(ctx, *maxAge, beforeTime, *dryRun)
		if err != nil {
			fmt.Fprintf(stderr, "cleanup: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return encodeOrFail(enc, result, stderr)

	case "archive":
		result, err := solutionLog.ArchiveStale(ctx, *maxAge, *archivePrefix)
		if err != nil {
			fmt.Fprintf(stderr, "archive: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return encodeOrFail(enc, result, stderr)

	default:
		fmt.Fprintf(stderr, "Unknown store subcommand: %s\n", sub)
		return 2
	}
}

func encodeOrFail(enc *json.Encoder, v any, stderr io.Writer) int {
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "encode: %v\n", err)
		return 1
	}
	return 0
}

func runDoctorCmd(stdout, stderr io.Writer) int {
	type checkResult struct {
		Name   string `json:"name"`
		Status string `json:"status"`
		Detail string `json:"detail,omitempty"`
	}

	var results []checkResult
	allOK := true

	results = append(results, checkResult{
		Name:   "go_runtime",
		Status: "ok",
		Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	cfg := config.Load()

	if cfg.ObjectStoreKind == config.ObjectStorePostgres {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil || db.Ping() != nil {
			results = append(results, checkResult{Name: "database", Status: "fail", Detail: fmt.Sprintf("%v", err)})
			allOK = false
		} else {
			results = append(results, checkResult{Name: "database", Status: "ok"})
		}
		if db != nil {
			_ = db.Close()
		}
	} else {
		results = append(results, checkResult{Name: "database", Status: "warn", Detail: "object store kind is not postgres, skipping"})
	}

	if _, err := os.Stat(cfg.TaxonomyPath); err != nil {
		results = append(results, checkResult{Name: "taxonomy_file", Status: "warn", Detail: err.Error()})
	} else {
		results = append(results, checkResult{Name: "taxonomy_file", Status: "ok"})
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(results)

	if !allOK {
		return 1
	}
	return 0
}

func openObjectStore(cfg *config.Config) (ports.ObjectStore, error) {
	switch cfg.ObjectStoreKind {
	case config.ObjectStoreS3:
		return store.NewS3ObjectStore(context.Background(), store.S3Config{
			Bucket: cfg.S3Bucket,
			Region: cfg.S3Region,
			Prefix: "",
		})
	default:
		return store.NewFileObjectStore(cfg.FileStoreDir)
	}
}

func parseLayers(csv string) []match.Layer {
	var out []match.Layer
	for _, s := range splitNonEmpty(csv, ",") {
		out = append(out, match.Layer(s))
	}
	return out
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
