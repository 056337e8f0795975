package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/ledger-reconciler/internal/advisor"
	"github.com/dvloznov/ledger-reconciler/internal/config"
	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/dvloznov/ledger-reconciler/internal/gcs"
	"github.com/dvloznov/ledger-reconciler/internal/gcsuploader"
	"github.com/dvloznov/ledger-reconciler/internal/localfs"
	"github.com/dvloznov/ledger-reconciler/internal/logger"
	"github.com/dvloznov/ledger-reconciler/internal/pipeline"
	"github.com/dvloznov/ledger-reconciler/internal/report"
	"github.com/dvloznov/ledger-reconciler/internal/textextract"
	"github.com/rs/zerolog"
)

// exitViolation is returned when a run finishes with a consistency violation.
const exitViolation = 2

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.ProcessEnvironmentVariables()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	switch os.Args[1] {
	case "run":
		runLocal(cfg, log)
	case "run-storage":
		runStorage(cfg, log)
	case "extract":
		runExtract(log)
	case "upload":
		runUpload(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Ledger Reconciler CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  reconcile <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run          Reconcile documents from a local directory")
	fmt.Println("  run-storage  Reconcile documents from the GCS bucket")
	fmt.Println("  extract      Print the records extracted from one file")
	fmt.Println("  upload       Upload a source document to GCS")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nRun 'reconcile <command> -h' for more information on a command.")
}

// runOptions are the flags shared by run and run-storage.
type runOptions struct {
	profile   string
	out       string
	xlsx      string
	tolerance int
	workers   int
}

func (o *runOptions) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&o.profile, "profile", pipeline.ProfileExpenses, "Profile to run")
	fs.StringVar(&o.out, "out", "", "Write the text report to this file instead of stdout")
	fs.StringVar(&o.xlsx, "xlsx", "", "Write the workbook to this file")
	fs.IntVar(&o.tolerance, "tolerance", -1, "Date tolerance in days (defaults to the profile's)")
	fs.IntVar(&o.workers, "workers", cfg.Workers, "Concurrent document workers")
}

func runLocal(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var opts runOptions
	opts.register(fs, cfg)
	dir := fs.String("dir", "data", "Directory holding the source documents")
	fs.Parse(os.Args[2:])

	os.Exit(execute(cfg, log, localfs.NewStore(*dir), opts))
}

func runStorage(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("run-storage", flag.ExitOnError)
	var opts runOptions
	opts.register(fs, cfg)
	bucket := fs.String("bucket", cfg.Bucket, "GCS bucket name (or set GCS_BUCKET env)")
	fs.Parse(os.Args[2:])

	if *bucket == "" {
		log.Fatal().Msg("Error: -bucket or GCS_BUCKET is required")
	}

	storage, err := gcsuploader.NewGCSStorageService(context.Background(), *bucket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GCS client")
	}
	code := execute(cfg, log, storage, opts)
	storage.Close()
	os.Exit(code)
}

// execute runs one reconciliation and returns the process exit code.
func execute(cfg *config.Config, log zerolog.Logger, storage gcs.StorageService, opts runOptions) int {
	profiles, err := cfg.Profiles()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load profiles")
		return 1
	}
	profile, err := pipeline.LookupProfile(profiles, opts.profile)
	if err != nil {
		log.Error().Err(err).Msg("Invalid profile")
		return 1
	}
	if opts.tolerance >= 0 {
		profile.DateToleranceDays = opts.tolerance
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	out := io.Writer(os.Stdout)
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create report file")
			return 1
		}
		defer f.Close()
		out = f
	}

	runner := &pipeline.Runner{Storage: storage, Workers: opts.workers}
	if cfg.AdvisorEnabled {
		gen, err := advisor.NewGeminiGenerator(ctx, cfg.AdvisorModel)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create advisor")
			return 1
		}
		runner.Advisor = advisor.New(gen)
	}

	state, err := reconcileStorage(ctx, runner, profile, out)
	if err != nil {
		log.Error().Err(err).Msg("Reconciliation failed")
		return 1
	}

	if opts.xlsx != "" {
		if err := os.WriteFile(opts.xlsx, state.Workbook, 0o644); err != nil {
			log.Error().Err(err).Msg("Failed to write workbook")
			return 1
		}
		log.Info().Str("file", opts.xlsx).Msg("Workbook written")
	}

	if err := state.Violation(); err != nil {
		log.Error().Err(err).Msg("Report is inconsistent")
		return exitViolation
	}
	return 0
}

// reconcileStorage runs profile and writes the text report, followed by
// any advisory suggestions, to w.
func reconcileStorage(ctx context.Context, runner *pipeline.Runner, profile pipeline.Profile, w io.Writer) (*pipeline.PipelineState, error) {
	state, err := runner.Run(ctx, "", profile)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, state.Report.Text); err != nil {
		return nil, fmt.Errorf("reconcileStorage: writing report: %w", err)
	}
	for _, s := range state.Advisory {
		fmt.Fprintf(w, "Possible match (%.2f): %s\n%s\n%s\n", s.Confidence, s.Reason, report.Line(s.A), report.Line(s.B))
	}
	return state, nil
}

func runExtract(log zerolog.Logger) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	file := fs.String("file", "", "Path to the document")
	kind := fs.String("kind", string(domain.KindExpense), "Record kind: expense, statement, ledger or invoice")
	substring := fs.Bool("substring-keywords", false, "Match category and type keywords anywhere in a line")
	fs.Parse(os.Args[2:])

	if *file == "" {
		log.Fatal().Msg("Usage: reconcile extract -file PATH [-kind KIND]")
	}

	if err := extractFile(context.Background(), *file, domain.RecordKind(*kind), *substring, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}
}

// extractFile prints one line per record read from path.
func extractFile(ctx context.Context, path string, kind domain.RecordKind, substring bool, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("extractFile: reading: %w", err)
	}
	lines, err := textextract.Lines(path, data)
	if err != nil {
		return fmt.Errorf("extractFile: %w", err)
	}

	side := pipeline.Side{Kind: kind, SubstringKeywords: substring}
	doc := side.Document(filepath.Base(path), lines)
	records, err := pipeline.ExtractDocuments(ctx, []pipeline.Document{doc}, 1)
	if err != nil {
		return fmt.Errorf("extractFile: %w", err)
	}

	var buf bytes.Buffer
	for _, r := range records {
		if r.ParseFailed {
			fmt.Fprintf(&buf, "FAILED %s: %s\n", r.SourceID, r.FailureReason)
			continue
		}
		fmt.Fprintf(&buf, "%s", report.Line(r))
		if r.Category != "" {
			fmt.Fprintf(&buf, " [%s]", r.Category)
		}
		if r.Type != "" {
			fmt.Fprintf(&buf, " (%s)", r.Type)
		}
		buf.WriteByte('\n')
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func runUpload(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.Bucket, "GCS bucket name (or set GCS_BUCKET env)")
	objectName := fs.String("object", "", "GCS object name, e.g. expenses/jan.pdf (defaults to filename)")
	filePath := fs.String("file", "", "Path to local file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: reconcile upload -bucket NAME -file PATH [-object NAME]")
	}

	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	ctx := logger.WithContext(context.Background(), log)

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	if err := gcsuploader.UploadFile(ctx, *bucketName, *objectName, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to gs://%s/%s\n", *filePath, *bucketName, *objectName)
}
