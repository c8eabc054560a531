package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the optional repo-local configuration file.
const FileName = ".sizedeltas.yml"

// Config is the effective sizedeltas configuration.
type Config struct {
	// Repository is the owner/name the reports belong to.
	Repository string `yaml:"repository"`
	// Source is either a regular expression over workflow artifact names
	// (sweep mode) or a filesystem directory of report files (local mode).
	Source string `yaml:"source"`
	// Kind discriminates this report from other automated comments on the
	// same pull request.
	Kind string `yaml:"kind"`
	// Token is the GitHub access token. Never written to the config file.
	Token string `yaml:"-"`
	// ChangesOnly drops unchanged rows from the rendered tables.
	ChangesOnly bool `yaml:"changesOnly"`
	// Verbose enables debug output.
	Verbose bool `yaml:"verbose"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Kind: "memory-usage",
	}
}

// Load builds the effective config: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags; only set keys are applied. The
// returned warnings are deprecation notices for the caller to surface.
func Load(overrides map[string]string) (Config, []string, error) {
	cfg := Default()

	fileCfg, err := loadFile(FileName)
	if err != nil {
		return Config{}, nil, err
	}
	mergeFile(&cfg, fileCfg)
	warnings := mergeEnv(&cfg)
	mergeOverrides(&cfg, overrides)

	return cfg, warnings, nil
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func mergeFile(dst *Config, src Config) {
	if src.Repository != "" {
		dst.Repository = src.Repository
	}
	if src.Source != "" {
		dst.Source = src.Source
	}
	if src.Kind != "" {
		dst.Kind = src.Kind
	}
	dst.ChangesOnly = dst.ChangesOnly || src.ChangesOnly
	dst.Verbose = dst.Verbose || src.Verbose
}

func mergeEnv(cfg *Config) []string {
	var warnings []string

	if v := os.Getenv("GITHUB_REPOSITORY"); v != "" {
		cfg.Repository = v
	}
	// The action's original input name, kept for workflows that still use it.
	if v := os.Getenv("INPUT_SIZE-DELTAS-REPORTS-ARTIFACT-NAME"); v != "" {
		warnings = append(warnings,
			"the size-deltas-reports-artifact-name input is deprecated, use sketches-reports-source instead")
		cfg.Source = v
	}
	if v := os.Getenv("INPUT_SKETCHES-REPORTS-SOURCE"); v != "" {
		cfg.Source = v
	}
	if v := os.Getenv("INPUT_GITHUB-TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" && cfg.Token == "" {
		cfg.Token = v
	}
	return warnings
}

func mergeOverrides(cfg *Config, overrides map[string]string) {
	if overrides == nil {
		return
	}
	if v, ok := overrides["repository"]; ok && v != "" {
		cfg.Repository = v
	}
	if v, ok := overrides["source"]; ok && v != "" {
		cfg.Source = v
	}
	if v, ok := overrides["kind"]; ok && v != "" {
		cfg.Kind = v
	}
	if v, ok := overrides["token"]; ok && v != "" {
		cfg.Token = v
	}
	if v, ok := overrides["changes-only"]; ok {
		cfg.ChangesOnly = v == "true"
	}
	if v, ok := overrides["verbose"]; ok {
		cfg.Verbose = v == "true"
	}
}

// Validate checks the static configuration surface. Any error here aborts
// the run before network I/O.
func (c Config) Validate() error {
	if c.Repository == "" || !strings.Contains(c.Repository, "/") {
		return fmt.Errorf("repository must be in owner/name form (set GITHUB_REPOSITORY or --repository)")
	}
	if c.Source == "" {
		return fmt.Errorf("a reports source is required (set INPUT_SKETCHES-REPORTS-SOURCE or --source)")
	}
	if c.Token == "" {
		return fmt.Errorf("a GitHub token is required (set GITHUB_TOKEN or --token)")
	}
	if c.Kind == "" {
		return fmt.Errorf("the report kind must not be empty")
	}
	return nil
}

// SourcePattern compiles the source as an artifact-name pattern. An invalid
// expression is a configuration error.
func (c Config) SourcePattern() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.Source)
	if err != nil {
		return nil, fmt.Errorf("source %q is not a valid artifact-name pattern: %w", c.Source, err)
	}
	return re, nil
}
