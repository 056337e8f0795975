package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dvloznov/ledger-reconciler/internal/advisor"
	"github.com/dvloznov/ledger-reconciler/internal/pipeline"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Bucket    string
	ProjectID string
	Dataset   string

	Workers           int
	DateToleranceDays int

	AdvisorEnabled bool
	AdvisorModel   string

	LogLevel     string
	ProfilesFile string
}

func ProcessEnvironmentVariables() (*Config, error) {
	// Defaults match a local run without cloud services
	env := Config{
		Dataset:      "finance",
		Workers:      pipeline.DefaultWorkers,
		AdvisorModel: advisor.DefaultModelName,
		LogLevel:     "info",
	}

	envBucket := os.Getenv("GCS_BUCKET")
	envProject := os.Getenv("GCP_PROJECT")
	envDataset := os.Getenv("BQ_DATASET")
	envWorkers := os.Getenv("RECONCILE_WORKERS")
	envTolerance := os.Getenv("DATE_TOLERANCE_DAYS")
	envAdvisorEnabled := os.Getenv("ADVISOR_ENABLED")
	envAdvisorModel := os.Getenv("ADVISOR_MODEL")
	envLogLevel := os.Getenv("LOG_LEVEL")
	envProfilesFile := os.Getenv("PROFILES_FILE")

	if len(envBucket) != 0 {
		env.Bucket = envBucket
	}

	if len(envProject) != 0 {
		env.ProjectID = envProject
	}

	if len(envDataset) != 0 {
		env.Dataset = envDataset
	}

	if len(envWorkers) != 0 {
		n, err := strconv.Atoi(envWorkers)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("RECONCILE_WORKERS: expected a positive integer, got %q", envWorkers)
		}
		env.Workers = n
	}

	if len(envTolerance) != 0 {
		n, err := strconv.Atoi(envTolerance)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("DATE_TOLERANCE_DAYS: expected a non-negative integer, got %q", envTolerance)
		}
		env.DateToleranceDays = n
	}

	if len(envAdvisorEnabled) != 0 {
		b, err := strconv.ParseBool(envAdvisorEnabled)
		if err != nil {
			return nil, fmt.Errorf("ADVISOR_ENABLED: %w", err)
		}
		env.AdvisorEnabled = b
	}

	if len(envAdvisorModel) != 0 {
		env.AdvisorModel = envAdvisorModel
	}

	if len(envLogLevel) != 0 {
		env.LogLevel = envLogLevel
	}

	if len(envProfilesFile) != 0 {
		env.ProfilesFile = envProfilesFile
	}

	return &env, nil
}

// RunHistoryEnabled reports whether runs should be recorded in BigQuery.
func (c *Config) RunHistoryEnabled() bool {
	return c.ProjectID != "" && c.Dataset != ""
}

// profilesFile is the YAML layout of PROFILES_FILE.
type profilesFile struct {
	Profiles []pipeline.Profile `yaml:"profiles"`
}

// Profiles returns the built-in profiles with the configured date tolerance,
// overlaid by any profiles in ProfilesFile. A file profile replaces a
// built-in one of the same name.
func (c *Config) Profiles() (map[string]pipeline.Profile, error) {
	profiles := pipeline.BuiltinProfiles()
	for name, p := range profiles {
		p.DateToleranceDays = c.DateToleranceDays
		profiles[name] = p
	}
	if c.ProfilesFile == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(c.ProfilesFile)
	if err != nil {
		return nil, fmt.Errorf("Profiles: reading %s: %w", c.ProfilesFile, err)
	}
	loaded, err := ParseProfiles(data)
	if err != nil {
		return nil, fmt.Errorf("Profiles: %s: %w", c.ProfilesFile, err)
	}
	for _, p := range loaded {
		profiles[p.Name] = p
	}
	return profiles, nil
}

// ParseProfiles decodes and validates a profiles document.
func ParseProfiles(data []byte) ([]pipeline.Profile, error) {
	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ParseProfiles: decoding yaml: %w", err)
	}
	seen := make(map[string]bool, len(f.Profiles))
	for _, p := range f.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("ParseProfiles: %w", err)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("ParseProfiles: duplicate profile %q", p.Name)
		}
		seen[p.Name] = true
	}
	return f.Profiles, nil
}
