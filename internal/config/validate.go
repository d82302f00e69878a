package config

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/hashicorp/go-version"

	"github.com/roach88/epsync/internal/logging"
)

// MinPrefixLen is the shortest prefix an absent run accepts.
const MinPrefixLen = 2

var (
	apiVersions     = []string{"v1", "v2"}
	modes           = []string{ModeRelease, ModeDryRun}
	runStates       = []string{RunStatePresent, RunStateAbsent}
	failurePolicies = []string{PolicyContinueOnError, PolicyFailFast}
	strategies      = []string{"exact", "bump_patch", "bump_minor"}
	versionStates   = []string{StateDraft, StateReleased}
)

// Validate checks every value and returns a *ValidationError listing all
// problems, or nil.
func (c Config) Validate() error {
	var v validator

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		v.add("log.level", err.Error())
	}
	v.oneOf("log.format", c.Log.Format, []string{logging.FormatText, logging.FormatJSON})

	c.Source.validate(&v, "source")
	c.Target.validate(&v, "target")
	if c.Store.BusyTimeoutMS < 0 {
		v.add("store.busy_timeout_ms", "must not be negative")
	}

	m := c.Migrate
	v.oneOf("migrate.mode", m.Mode, modes)
	v.oneOf("migrate.run_state", m.RunState, runStates)
	v.oneOf("migrate.failure_policy", m.FailurePolicy, failurePolicies)
	v.oneOf("migrate.versions.strategy", m.Versions.Strategy, strategies)
	v.oneOf("migrate.versions.state", m.Versions.State, versionStates)
	if _, err := version.NewSemver(m.Versions.InitialVersion); err != nil {
		v.add("migrate.versions.initial_version", fmt.Sprintf("invalid version %q", m.Versions.InitialVersion))
	}
	if m.RunState == RunStateAbsent && len(m.Prefix) < MinPrefixLen {
		v.add("migrate.prefix", fmt.Sprintf("run_state absent requires a prefix of at least %d characters", MinPrefixLen))
	}
	if m.Enums.ApplicationDomainName == "" {
		v.add("migrate.enums.application_domain_name", "must not be empty")
	}

	return v.err()
}

// RequireEndpoint checks that an endpoint is usable for remote calls.
func (c Config) RequireEndpoint(name string) error {
	var e EndpointConfig
	switch name {
	case "source":
		e = c.Source
	case "target":
		e = c.Target
	default:
		return fmt.Errorf("unknown endpoint %q", name)
	}

	var v validator
	if e.BaseURL == "" {
		v.add(name+".base_url", "is required")
	}
	if e.Token == "" {
		v.add(name+".token", "is required")
	}
	return v.err()
}

func (e EndpointConfig) validate(v *validator, name string) {
	if e.BaseURL != "" {
		u, err := url.Parse(e.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v.add(name+".base_url", fmt.Sprintf("invalid URL %q", e.BaseURL))
		}
	}
	v.oneOf(name+".api_version", e.APIVersion, apiVersions)
	if e.RetryMax < 0 {
		v.add(name+".retry_max", "must not be negative")
	}
	if e.PageSize < 1 {
		v.add(name+".page_size", "must be at least 1")
	}
}

type validator struct {
	fields []FieldError
}

func (v *validator) add(field, msg string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: msg})
}

func (v *validator) oneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.add(field, fmt.Sprintf("%q is not one of %v", value, allowed))
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
