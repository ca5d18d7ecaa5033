package promote_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelyard/modelyard/internal/config"
	"github.com/modelyard/modelyard/internal/metrics"
	"github.com/modelyard/modelyard/internal/promote"
	"github.com/modelyard/modelyard/internal/registry"
)

// mockRegistry implements promote.RegistryClient.
type mockRegistry struct {
	latest      *registry.ModelVersion
	latestErr   error
	transitions []string // versions transitioned to Production
	transErr    error
}

func (m *mockRegistry) LatestVersion(ctx context.Context, name string) (*registry.ModelVersion, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	return m.latest, nil
}

func (m *mockRegistry) TransitionStage(ctx context.Context, name, version string, target registry.Stage, archiveExisting bool) (*registry.ModelVersion, error) {
	if m.transErr != nil {
		return nil, m.transErr
	}
	if !archiveExisting {
		return nil, errors.New("expected archiveExisting=true")
	}
	m.transitions = append(m.transitions, version)
	return &registry.ModelVersion{Name: name, Version: version, Stage: target}, nil
}

const stagingBytes = `{"fake": "artifact bytes"}`

func newTestParams(t *testing.T, minAccuracy float64) *config.Params {
	t.Helper()
	dir := t.TempDir()
	staging := filepath.Join(dir, "staging", "model.json")
	if err := os.MkdirAll(filepath.Dir(staging), 0o755); err != nil {
		t.Fatalf("mkdir staging: %v", err)
	}
	if err := os.WriteFile(staging, []byte(stagingBytes), 0o644); err != nil {
		t.Fatalf("write staging artifact: %v", err)
	}

	return &config.Params{
		Promote: config.PromoteParams{
			MinAccuracy:     &minAccuracy,
			StagingModel:    staging,
			ProductionModel: filepath.Join(dir, "production", "model.json"),
		},
		Registry: config.RegistryParams{
			TrackingURI: "http://localhost:5000",
			ModelName:   "iris",
		},
	}
}

func TestPromotePassingAccuracy(t *testing.T) {
	params := newTestParams(t, 0.90)
	reg := &mockRegistry{latest: &registry.ModelVersion{Name: "iris", Version: "4", Stage: registry.StageStaging}}
	gate := promote.NewGate(params, reg)

	d, err := gate.Promote(context.Background(), &metrics.Evaluation{Accuracy: 0.95})
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if d.Outcome != promote.OutcomePromoted {
		t.Errorf("Outcome = %q, want promoted", d.Outcome)
	}
	if !d.RegistrySynced {
		t.Error("RegistrySynced = false, want true")
	}
	if d.RunID == "" {
		t.Error("RunID is empty")
	}

	got, err := os.ReadFile(params.Promote.ProductionModel)
	if err != nil {
		t.Fatalf("read production artifact: %v", err)
	}
	if !bytes.Equal(got, []byte(stagingBytes)) {
		t.Errorf("production bytes = %q, want staging bytes", got)
	}

	if len(reg.transitions) != 1 || reg.transitions[0] != "4" {
		t.Errorf("transitions = %v, want [4]", reg.transitions)
	}
}

func TestPromoteRejectedBelowThreshold(t *testing.T) {
	params := newTestParams(t, 0.90)
	reg := &mockRegistry{latest: &registry.ModelVersion{Version: "4"}}
	gate := promote.NewGate(params, reg)

	d, err := gate.Promote(context.Background(), &metrics.Evaluation{Accuracy: 0.85})
	if !errors.Is(err, promote.ErrThresholdNotMet) {
		t.Fatalf("Promote() error = %v, want ErrThresholdNotMet", err)
	}
	if d.Outcome != promote.OutcomeRejected {
		t.Errorf("Outcome = %q, want rejected", d.Outcome)
	}

	// No side effects: production path untouched, no registry calls.
	if _, err := os.Stat(params.Promote.ProductionModel); !os.IsNotExist(err) {
		t.Errorf("production path exists after rejection (stat err = %v)", err)
	}
	if len(reg.transitions) != 0 {
		t.Errorf("registry transitions on rejection: %v", reg.transitions)
	}
}

func TestPromoteRejectionLeavesExistingArtifact(t *testing.T) {
	params := newTestParams(t, 0.90)
	prior := []byte(`{"prior": "production artifact"}`)
	if err := os.MkdirAll(filepath.Dir(params.Promote.ProductionModel), 0o755); err != nil {
		t.Fatalf("mkdir production: %v", err)
	}
	if err := os.WriteFile(params.Promote.ProductionModel, prior, 0o644); err != nil {
		t.Fatalf("write prior artifact: %v", err)
	}

	gate := promote.NewGate(params, nil)
	_, err := gate.Promote(context.Background(), &metrics.Evaluation{Accuracy: 0.5})
	if !errors.Is(err, promote.ErrThresholdNotMet) {
		t.Fatalf("Promote() error = %v, want ErrThresholdNotMet", err)
	}

	got, err := os.ReadFile(params.Promote.ProductionModel)
	if err != nil {
		t.Fatalf("read production artifact: %v", err)
	}
	if !bytes.Equal(got, prior) {
		t.Errorf("production artifact modified on rejection")
	}
}

func TestPromoteInclusiveThreshold(t *testing.T) {
	params := newTestParams(t, 0.90)
	gate := promote.NewGate(params, nil)

	// accuracy == min_accuracy passes.
	d, err := gate.Promote(context.Background(), &metrics.Evaluation{Accuracy: 0.90})
	if err != nil {
		t.Fatalf("Promote() at exact threshold: error = %v", err)
	}
	if d.Outcome != promote.OutcomePromoted {
		t.Errorf("Outcome = %q, want promoted at exact threshold", d.Outcome)
	}
}

func TestPromoteIdempotent(t *testing.T) {
	params := newTestParams(t, 0.90)
	gate := promote.NewGate(params, nil)
	eval := &metrics.Evaluation{Accuracy: 0.95}

	for i := 0; i < 2; i++ {
		if _, err := gate.Promote(context.Background(), eval); err != nil {
			t.Fatalf("Promote() run %d error = %v", i+1, err)
		}
	}

	got, err := os.ReadFile(params.Promote.ProductionModel)
	if err != nil {
		t.Fatalf("read production artifact: %v", err)
	}
	if !bytes.Equal(got, []byte(stagingBytes)) {
		t.Errorf("production bytes after re-promotion = %q", got)
	}
}

func TestPromoteRegistryUnavailable(t *testing.T) {
	params := newTestParams(t, 0.90)
	reg := &mockRegistry{latestErr: registry.ErrUnavailable}
	gate := promote.NewGate(params, reg)

	d, err := gate.Promote(context.Background(), &metrics.Evaluation{Accuracy: 0.95})
	if err != nil {
		t.Fatalf("Promote() with unreachable registry: error = %v", err)
	}
	if d.Outcome != promote.OutcomePromoted {
		t.Errorf("Outcome = %q, want promoted despite registry failure", d.Outcome)
	}
	if d.RegistrySynced {
		t.Error("RegistrySynced = true, want false")
	}

	if _, err := os.Stat(params.Promote.ProductionModel); err != nil {
		t.Errorf("production artifact missing: %v", err)
	}
}

func TestPromoteTransitionFailureIsBestEffort(t *testing.T) {
	params := newTestParams(t, 0.90)
	reg := &mockRegistry{
		latest:   &registry.ModelVersion{Version: "4"},
		transErr: registry.ErrUnavailable,
	}
	gate := promote.NewGate(params, reg)

	d, err := gate.Promote(context.Background(), &metrics.Evaluation{Accuracy: 0.95})
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if d.RegistrySynced {
		t.Error("RegistrySynced = true after failed transition")
	}
}

func TestPromoteMissingStagingArtifact(t *testing.T) {
	params := newTestParams(t, 0.90)
	if err := os.Remove(params.Promote.StagingModel); err != nil {
		t.Fatalf("remove staging artifact: %v", err)
	}
	gate := promote.NewGate(params, nil)

	_, err := gate.Promote(context.Background(), &metrics.Evaluation{Accuracy: 0.95})
	if err == nil {
		t.Fatal("Promote() with missing staging artifact: want error, got nil")
	}
	if errors.Is(err, promote.ErrThresholdNotMet) {
		t.Error("missing artifact must not be reported as threshold rejection")
	}
}
