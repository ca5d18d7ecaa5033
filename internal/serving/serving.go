// Package serving builds the server's model state at startup.
//
// Acquisition is an explicit, ordered list of strategies tried until one
// succeeds: registry first, local production artifact second. All failures
// degrade; initialization never crashes the process. The resulting State
// is written once, before the listener accepts traffic, and is read-only
// afterwards — concurrent request handlers share it without locking.
// There is no hot-reload path; adding one would need an atomically swapped
// reference so in-flight reads never see a half-updated model.
package serving

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/modelyard/modelyard/internal/config"
	"github.com/modelyard/modelyard/internal/model"
	"github.com/modelyard/modelyard/internal/registry"
)

// Status is the server's model availability.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusReady         Status = "ready"
	StatusUnavailable   Status = "unavailable"
)

// Source records where the active model was loaded from (provenance,
// attached to every prediction).
type Source string

const (
	SourceRegistry Source = "registry"
	SourceLocal    Source = "local"
	SourceNone     Source = "none"
)

// State is the server's model state. Built once by Initialize; handlers
// only read it.
type State struct {
	Status  Status
	Model   *model.Classifier
	Source  Source
	Version string
}

// Ready reports whether a model is loaded and serving.
func (s *State) Ready() bool { return s.Status == StatusReady }

// Strategy is one way to acquire a servable model. Load returns the
// decoded classifier and a version label for provenance.
type Strategy interface {
	Name() string
	Source() Source
	Load(ctx context.Context) (*model.Classifier, string, error)
}

// Initialize tries each strategy in order and returns the resulting state.
// It never returns an error: when every strategy fails the state is
// Unavailable and the caller decides what traffic to accept.
func Initialize(ctx context.Context, strategies ...Strategy) *State {
	for _, s := range strategies {
		m, version, err := s.Load(ctx)
		if err != nil {
			log.Warn().Err(err).Str("strategy", s.Name()).Msg("Model acquisition failed")
			continue
		}
		log.Info().
			Str("strategy", s.Name()).
			Str("version", version).
			Int("dim", m.Dim).
			Msg("Model loaded")
		return &State{
			Status:  StatusReady,
			Model:   m,
			Source:  s.Source(),
			Version: version,
		}
	}

	log.Error().Msg("No model available; serving in degraded mode")
	return &State{Status: StatusUnavailable, Source: SourceNone}
}

// RegistryStrategy downloads the current Production version from the
// remote registry.
type RegistryStrategy struct {
	Client    *registry.Client
	ModelName string

	// CacheDir receives the downloaded artifact; defaults to a temp dir.
	CacheDir string
}

func (s *RegistryStrategy) Name() string   { return "registry" }
func (s *RegistryStrategy) Source() Source { return SourceRegistry }

func (s *RegistryStrategy) Load(ctx context.Context) (*model.Classifier, string, error) {
	v, err := s.Client.ProductionVersion(ctx, s.ModelName)
	if err != nil {
		return nil, "", err
	}

	dir := s.CacheDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "modelyard-registry-")
		if err != nil {
			return nil, "", fmt.Errorf("serving: cache dir: %w", err)
		}
	}
	dst := filepath.Join(dir, "model.json")

	if err := s.Client.DownloadArtifact(ctx, s.ModelName, v.Version, dst); err != nil {
		return nil, "", err
	}

	m, err := model.Load(dst)
	if err != nil {
		return nil, "", err
	}
	return m, v.Version, nil
}

// LocalStrategy loads the production artifact from the local filesystem.
type LocalStrategy struct {
	Path string
}

func (s *LocalStrategy) Name() string   { return "local" }
func (s *LocalStrategy) Source() Source { return SourceLocal }

func (s *LocalStrategy) Load(ctx context.Context) (*model.Classifier, string, error) {
	m, err := model.Load(s.Path)
	if err != nil {
		return nil, "", err
	}
	version := m.Version
	if version == "" {
		version = "local"
	}
	return m, version, nil
}

// DefaultStrategies builds the standard acquisition order from the
// parameter file: registry first, local production artifact as fallback.
func DefaultStrategies(params *config.Params, client *registry.Client) []Strategy {
	return []Strategy{
		&RegistryStrategy{Client: client, ModelName: params.Registry.ModelName},
		&LocalStrategy{Path: params.Promote.ProductionModel},
	}
}
