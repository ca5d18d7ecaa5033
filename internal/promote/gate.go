// Package promote implements the accuracy threshold gate that moves a
// staging artifact into production.
//
// The gate's policy: the local artifact copy is authoritative, the remote
// registry transition is best-effort. A failed registry sync downgrades to
// a warning and never reverses a completed local promotion. A rejected
// model produces no side effects at all.
package promote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/modelyard/modelyard/internal/config"
	"github.com/modelyard/modelyard/internal/metrics"
	"github.com/modelyard/modelyard/internal/registry"
)

// ErrThresholdNotMet is the expected negative outcome: the model did not
// clear the gate. It is fatal to the invoking pipeline by design, so
// upstream orchestration halts instead of deploying a weak model.
var ErrThresholdNotMet = errors.New("promote: accuracy below threshold")

// Outcome is the gate's verdict.
type Outcome string

const (
	OutcomePromoted Outcome = "promoted"
	OutcomeRejected Outcome = "rejected"
)

// Decision records one gate run. It is emitted as a process result only,
// never persisted.
type Decision struct {
	RunID          string
	Accuracy       float64
	Threshold      float64
	Outcome        Outcome
	RegistrySynced bool
}

// RegistryClient is the slice of the registry API the gate needs.
type RegistryClient interface {
	LatestVersion(ctx context.Context, name string) (*registry.ModelVersion, error)
	TransitionStage(ctx context.Context, name, version string, target registry.Stage, archiveExisting bool) (*registry.ModelVersion, error)
}

// Gate promotes staging artifacts that clear the accuracy threshold.
type Gate struct {
	params   *config.Params
	registry RegistryClient
}

// NewGate creates a promotion gate. reg may be nil to skip registry sync
// entirely (tests, air-gapped runs).
func NewGate(params *config.Params, reg RegistryClient) *Gate {
	return &Gate{params: params, registry: reg}
}

// Promote compares the evaluation accuracy against the configured
// threshold (inclusive) and, on a pass, copies the staging artifact to the
// production path and requests the registry stage transition.
//
// On rejection it returns the Decision together with ErrThresholdNotMet
// and touches nothing.
func (g *Gate) Promote(ctx context.Context, eval *metrics.Evaluation) (*Decision, error) {
	d := &Decision{
		RunID:     uuid.New().String(),
		Accuracy:  eval.Accuracy,
		Threshold: g.params.MinAccuracy(),
	}

	log.Info().
		Str("run_id", d.RunID).
		Float64("accuracy", d.Accuracy).
		Float64("min_accuracy", d.Threshold).
		Msg("Evaluating promotion gate")

	if d.Accuracy < d.Threshold {
		d.Outcome = OutcomeRejected
		return d, fmt.Errorf("%w: %.4f < %.4f", ErrThresholdNotMet, d.Accuracy, d.Threshold)
	}

	// Two promotions racing on the same destination must not interleave
	// their copy+transition sequences.
	unlock, err := g.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := copyAtomic(g.params.Promote.StagingModel, g.params.Promote.ProductionModel); err != nil {
		return nil, err
	}
	log.Info().
		Str("run_id", d.RunID).
		Str("production_model", g.params.Promote.ProductionModel).
		Msg("Model promoted to production")

	d.Outcome = OutcomePromoted
	d.RegistrySynced = g.syncRegistry(ctx, d.RunID)
	return d, nil
}

// syncRegistry transitions the latest registry version to Production,
// archiving the previous holder. Best-effort: any failure is logged and
// the local promotion stands.
func (g *Gate) syncRegistry(ctx context.Context, runID string) bool {
	if g.registry == nil {
		return false
	}
	name := g.params.Registry.ModelName

	latest, err := g.registry.LatestVersion(ctx, name)
	if err != nil {
		log.Warn().Err(err).Str("run_id", runID).Str("model", name).
			Msg("Registry sync skipped: could not resolve latest version")
		return false
	}

	if _, err := g.registry.TransitionStage(ctx, name, latest.Version, registry.StageProduction, true); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Str("model", name).Str("version", latest.Version).
			Msg("Registry sync failed; local promotion stands")
		return false
	}

	log.Info().Str("run_id", runID).Str("model", name).Str("version", latest.Version).
		Msg("Registry version transitioned to Production")
	return true
}

func (g *Gate) lock() (func(), error) {
	lockPath := g.params.Promote.ProductionModel + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("promote: create production dir: %w", err)
	}

	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("promote: acquire lock %s: %w", lockPath, err)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			log.Warn().Err(err).Str("lock", lockPath).Msg("Failed to release promotion lock")
		}
	}, nil
}

// copyAtomic copies src to dst via a temp file in dst's directory followed
// by a rename, so a concurrent reader of dst never observes a partial
// write.
func copyAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("promote: open staging artifact: %w", err)
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("promote: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".promote-*")
	if err != nil {
		return fmt.Errorf("promote: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("promote: copy artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("promote: sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("promote: close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("promote: rename into place: %w", err)
	}
	return nil
}
