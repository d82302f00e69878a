// Package config loads the epsync configuration file.
//
// A config is YAML (.yaml, .yml) or TOML (.toml), chosen by extension.
// ${VAR} references are expanded from the environment before parsing; a
// reference to an unset variable is an error. Unset keys keep the values
// from Default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the whole configuration file.
type Config struct {
	Log     LogConfig      `yaml:"log" toml:"log" json:"log"`
	Source  EndpointConfig `yaml:"source" toml:"source" json:"source"`
	Target  EndpointConfig `yaml:"target" toml:"target" json:"target"`
	Store   StoreConfig    `yaml:"store" toml:"store" json:"store"`
	Metrics MetricsConfig  `yaml:"metrics" toml:"metrics" json:"metrics"`
	Migrate MigrateConfig  `yaml:"migrate" toml:"migrate" json:"migrate"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

// EndpointConfig locates one catalog API.
type EndpointConfig struct {
	BaseURL    string `yaml:"base_url" toml:"base_url" json:"base_url"`
	Token      string `yaml:"token" toml:"token" json:"-"`
	APIVersion string `yaml:"api_version" toml:"api_version" json:"api_version"`
	RetryMax   int    `yaml:"retry_max" toml:"retry_max" json:"retry_max"`
	PageSize   int    `yaml:"page_size" toml:"page_size" json:"page_size"`
}

// StoreConfig locates the run ledger database. Empty disables persistence.
type StoreConfig struct {
	Path          string `yaml:"path" toml:"path" json:"path"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" toml:"busy_timeout_ms" json:"busy_timeout_ms"`
}

// MetricsConfig locates the Prometheus textfile. Empty disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" toml:"textfile" json:"textfile"`
}

// MigrateConfig drives a v1 to v2 migration.
type MigrateConfig struct {
	Mode          string         `yaml:"mode" toml:"mode" json:"mode"`
	RunState      string         `yaml:"run_state" toml:"run_state" json:"run_state"`
	FailurePolicy string         `yaml:"failure_policy" toml:"failure_policy" json:"failure_policy"`
	Prefix        string         `yaml:"prefix" toml:"prefix" json:"prefix"`
	Versions      VersionsConfig `yaml:"versions" toml:"versions" json:"versions"`
	Enums         EnumsConfig    `yaml:"enums" toml:"enums" json:"enums"`
}

// VersionsConfig controls the versions created on the target.
type VersionsConfig struct {
	InitialVersion string `yaml:"initial_version" toml:"initial_version" json:"initial_version"`
	Strategy       string `yaml:"strategy" toml:"strategy" json:"strategy"`
	State          string `yaml:"state" toml:"state" json:"state"`
}

// EnumsConfig names the shared domain that migrated enums land in.
type EnumsConfig struct {
	ApplicationDomainName string `yaml:"application_domain_name" toml:"application_domain_name" json:"application_domain_name"`
}

// Migrate option values.
const (
	ModeRelease = "release"
	ModeDryRun  = "dry_run"

	RunStatePresent = "present"
	RunStateAbsent  = "absent"

	PolicyContinueOnError = "continue_on_error"
	PolicyFailFast        = "fail_fast"

	StateDraft    = "draft"
	StateReleased = "released"
)

// Default returns the configuration used for keys the file leaves unset.
func Default() Config {
	return Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{BusyTimeoutMS: 5000},
		Source: EndpointConfig{
			APIVersion: "v1",
			RetryMax:   4,
			PageSize:   100,
		},
		Target: EndpointConfig{
			APIVersion: "v2",
			RetryMax:   4,
			PageSize:   100,
		},
		Migrate: MigrateConfig{
			Mode:          ModeRelease,
			RunState:      RunStatePresent,
			FailurePolicy: PolicyContinueOnError,
			Versions: VersionsConfig{
				InitialVersion: "1.0.0",
				Strategy:       "bump_patch",
				State:          StateReleased,
			},
			Enums: EnumsConfig{ApplicationDomainName: "Shared Enums"},
		},
	}
}

// Load reads, expands, decodes and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &FileError{Path: path, Err: err}
	}
	return Parse(data, path)
}

// Parse decodes data as if read from path; the extension picks the format.
func Parse(data []byte, path string) (Config, error) {
	expanded, err := expandEnv(string(data), path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := decodeYAML([]byte(expanded), &cfg); err != nil {
			return Config{}, &FileError{Path: path, Err: err}
		}
	case ".toml":
		if err := decodeTOML(expanded, &cfg); err != nil {
			return Config{}, &FileError{Path: path, Err: err}
		}
	default:
		return Config{}, &FileError{Path: path, Err: fmt.Errorf("unsupported config extension %q: use .yaml, .yml or .toml", ext)}
	}

	cfg.trim()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeTOML(data string, cfg *Config) error {
	meta, err := toml.Decode(data, cfg)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// expandEnv replaces ${VAR} and $VAR with environment values. Every
// unset variable is reported.
func expandEnv(s, path string) (string, error) {
	var missing []string
	out := os.Expand(s, func(name string) string {
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", &MissingEnvError{Path: path, Vars: missing}
	}
	return out, nil
}

func (c *Config) trim() {
	for _, s := range []*string{
		&c.Log.Level, &c.Log.Format,
		&c.Source.BaseURL, &c.Source.Token, &c.Source.APIVersion,
		&c.Target.BaseURL, &c.Target.Token, &c.Target.APIVersion,
		&c.Store.Path, &c.Metrics.Textfile,
		&c.Migrate.Mode, &c.Migrate.RunState, &c.Migrate.FailurePolicy,
		&c.Migrate.Versions.InitialVersion, &c.Migrate.Versions.Strategy, &c.Migrate.Versions.State,
	} {
		*s = strings.TrimSpace(*s)
	}
}

// DryRun reports whether migrate.mode is dry_run.
func (c Config) DryRun() bool {
	return c.Migrate.Mode == ModeDryRun
}

// FailFast reports whether migrate.failure_policy is fail_fast.
func (c Config) FailFast() bool {
	return c.Migrate.FailurePolicy == PolicyFailFast
}

// Absent reports whether migrate.run_state is absent.
func (c Config) Absent() bool {
	return c.Migrate.RunState == RunStateAbsent
}

// StateID maps migrate.versions.state to the catalog's stateId.
func (c Config) StateID() string {
	if c.Migrate.Versions.State == StateDraft {
		return "1"
	}
	return "2"
}
