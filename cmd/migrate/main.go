package main

import (
	"context"
	"crypto/sha256"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ledger-reconciler/internal/config"
	"github.com/dvloznov/ledger-reconciler/internal/logger"
	"google.golang.org/api/iterator"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// migrationPattern matches migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	cfg, err := config.ProcessEnvironmentVariables()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var (
		projectID = flag.String("project", cfg.ProjectID, "GCP project ID (or set GCP_PROJECT env)")
		datasetID = flag.String("dataset", cfg.Dataset, "BigQuery dataset ID (or set BQ_DATASET env)")
		appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		dryRun    = flag.Bool("dry-run", false, "Print pending migrations without applying them")
	)
	flag.Parse()

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	if *projectID == "" {
		log.Fatal().Msg("-project flag or GCP_PROJECT is required")
	}

	migrations, err := readMigrations(embedded, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	applied, err := getAppliedVersions(ctx, client, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get applied migrations")
	}

	pending := pendingMigrations(migrations, applied)
	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Dataset is up to date.")
		return
	}

	for _, m := range pending {
		mlog := log.With().Int("version", m.Version).Str("name", m.Name).Logger()
		if *dryRun {
			mlog.Info().Msg("Pending migration")
			continue
		}

		if err := runQuery(ctx, client.Query(m.SQL)); err != nil {
			mlog.Fatal().Err(err).Msg("Failed to execute migration")
		}
		if err := recordMigration(ctx, client, *projectID, *datasetID, *appliedBy, m); err != nil {
			mlog.Fatal().Err(err).Msg("Failed to record migration")
		}
		mlog.Info().Msg("Applied migration")
	}
}

// readMigrations reads the migration files of fsys in version order and
// fills in the project and dataset placeholders.
func readMigrations(fsys fs.FS, projectID, datasetID string) ([]Migration, error) {
	files, err := fs.Glob(fsys, "migrations/*")
	if err != nil {
		return nil, fmt.Errorf("readMigrations: listing: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, file := range files {
		base := strings.TrimPrefix(file, "migrations/")
		matches := migrationPattern.FindStringSubmatch(base)
		if matches == nil {
			return nil, fmt.Errorf("readMigrations: invalid migration file name %q", base)
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("readMigrations: %s: %w", base, err)
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("readMigrations: version %04d used by %s and %s", version, prev, base)
		}
		seen[version] = base

		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("readMigrations: reading %s: %w", base, err)
		}

		// The checksum covers the file as written, before placeholders are replaced.
		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: base,
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// pendingMigrations returns the migrations whose version is not applied.
func pendingMigrations(all []Migration, applied map[int]bool) []Migration {
	var pending []Migration
	for _, m := range all {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending
}

// getAppliedVersions retrieves the versions already recorded in schema_migrations.
// A missing table means nothing has been applied.
func getAppliedVersions(ctx context.Context, client *bigquery.Client, projectID, datasetID string) (map[int]bool, error) {
	q := client.Query(fmt.Sprintf("SELECT version FROM `%s.%s.schema_migrations`", projectID, datasetID))
	it, err := q.Read(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "Not found") {
			return map[int]bool{}, nil
		}
		return nil, fmt.Errorf("getAppliedVersions: reading: %w", err)
	}

	applied := make(map[int]bool)
	for {
		var row struct {
			Version int64 `bigquery:"version"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("getAppliedVersions: iterating: %w", err)
		}
		applied[int(row.Version)] = true
	}
	return applied, nil
}

// recordMigration records a successfully applied migration in schema_migrations.
func recordMigration(ctx context.Context, client *bigquery.Client, projectID, datasetID, appliedBy string, m Migration) error {
	q := client.Query(fmt.Sprintf(`
		INSERT INTO `+"`%s.%s.schema_migrations`"+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, projectID, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}
	return runQuery(ctx, q)
}

func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
