// Package config loads and validates the pipeline parameter file
// (params.yaml) shared by the promotion job and the serving daemon.
//
// All promotion and registry keys are required — there are no silent
// defaults for thresholds or artifact paths. Server-only settings (port,
// registry timeout) have defaults and can be overridden via environment
// variables.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the promotion job and the server look for the
// parameter file unless MODELYARD_PARAMS points elsewhere.
const DefaultPath = "params.yaml"

const (
	defaultPort            = 8000
	defaultRegistryTimeout = 10 * time.Second
)

// Params is the parsed parameter file.
type Params struct {
	Promote  PromoteParams  `yaml:"promote"`
	Registry RegistryParams `yaml:"registry"`
	Server   ServerParams   `yaml:"server"`
}

// PromoteParams controls the threshold gate and artifact paths.
type PromoteParams struct {
	// MinAccuracy is the inclusive accuracy threshold: a model with
	// accuracy >= MinAccuracy passes the gate.
	MinAccuracy *float64 `yaml:"min_accuracy"`

	// StagingModel is the path of the most recently trained artifact.
	StagingModel string `yaml:"staging_model"`

	// ProductionModel is the authoritative local serving artifact path.
	ProductionModel string `yaml:"production_model"`
}

// RegistryParams locates the remote model registry.
type RegistryParams struct {
	TrackingURI string `yaml:"tracking_uri"`
	ModelName   string `yaml:"model_name"`

	// Timeout bounds every registry call so neither the promotion job
	// nor server startup can hang on an unreachable registry.
	Timeout Duration `yaml:"timeout"`
}

// Duration is a time.Duration that unmarshals from Go duration syntax
// ("10s", "1m30s") in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerParams configures the serving daemon.
type ServerParams struct {
	Port int `yaml:"port"`
}

// Error reports a missing or malformed configuration value. It is fatal
// wherever it occurs — configuration problems are never defaulted away.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Path returns the parameter file path, honoring MODELYARD_PARAMS.
func Path() string {
	return envStr("MODELYARD_PARAMS", DefaultPath)
}

// Load reads and validates the parameter file at path.
func Load(path string) (*Params, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var p Params
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.applyDefaults()
	return &p, nil
}

// Validate checks every required key. Server-only settings are exempt.
func (p *Params) Validate() error {
	if p.Promote.MinAccuracy == nil {
		return &Error{Key: "promote.min_accuracy", Reason: "missing"}
	}
	if *p.Promote.MinAccuracy < 0 || *p.Promote.MinAccuracy > 1 {
		return &Error{Key: "promote.min_accuracy", Reason: "must be in [0, 1]"}
	}
	if p.Promote.StagingModel == "" {
		return &Error{Key: "promote.staging_model", Reason: "missing"}
	}
	if p.Promote.ProductionModel == "" {
		return &Error{Key: "promote.production_model", Reason: "missing"}
	}
	if p.Registry.TrackingURI == "" {
		return &Error{Key: "registry.tracking_uri", Reason: "missing"}
	}
	if p.Registry.ModelName == "" {
		return &Error{Key: "registry.model_name", Reason: "missing"}
	}
	if p.Registry.Timeout < 0 {
		return &Error{Key: "registry.timeout", Reason: "must not be negative"}
	}
	return nil
}

func (p *Params) applyDefaults() {
	if p.Registry.Timeout == 0 {
		p.Registry.Timeout = Duration(defaultRegistryTimeout)
	}
	if p.Server.Port == 0 {
		p.Server.Port = envInt("MODELYARD_PORT", defaultPort)
	}
}

// MinAccuracy returns the validated threshold value.
func (p *Params) MinAccuracy() float64 {
	return *p.Promote.MinAccuracy
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
