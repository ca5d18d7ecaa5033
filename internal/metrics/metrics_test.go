package metrics_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelyard/modelyard/internal/metrics"
)

func writeRecord(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eval_metrics.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write record: %v", err)
	}
	return path
}

func TestLoadEvaluation(t *testing.T) {
	path := writeRecord(t, `{
		"accuracy": 0.95,
		"precision": 0.94,
		"recall": 0.93,
		"f1_score": 0.935,
		"confusion_matrix": [[10, 0], [1, 9]]
	}`)

	ev, err := metrics.LoadEvaluation(path)
	if err != nil {
		t.Fatalf("LoadEvaluation() error = %v", err)
	}
	if ev.Accuracy != 0.95 {
		t.Errorf("Accuracy = %v, want 0.95", ev.Accuracy)
	}
	if ev.F1 != 0.935 {
		t.Errorf("F1 = %v, want 0.935", ev.F1)
	}
	if len(ev.ConfusionMatrix) != 2 {
		t.Errorf("ConfusionMatrix rows = %d, want 2", len(ev.ConfusionMatrix))
	}
}

func TestLoadEvaluationMissing(t *testing.T) {
	_, err := metrics.LoadEvaluation(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, metrics.ErrUnavailable) {
		t.Fatalf("LoadEvaluation() error = %v, want ErrUnavailable", err)
	}
}

func TestLoadEvaluationMalformed(t *testing.T) {
	_, err := metrics.LoadEvaluation(writeRecord(t, `{"accuracy": "high"}`))
	if err == nil {
		t.Fatal("LoadEvaluation() with malformed JSON: want error, got nil")
	}
	if errors.Is(err, metrics.ErrUnavailable) {
		t.Error("malformed record should not be reported as unavailable")
	}
}

func TestLoadEvaluationAccuracyOutOfRange(t *testing.T) {
	_, err := metrics.LoadEvaluation(writeRecord(t, `{"accuracy": 1.2}`))
	if err == nil {
		t.Fatal("LoadEvaluation() with accuracy > 1: want error, got nil")
	}
}

func TestLoadTraining(t *testing.T) {
	path := writeRecord(t, `{
		"train_accuracy": 0.99,
		"test_accuracy": 0.95,
		"mlflow_run_id": "a1b2c3"
	}`)

	tr, err := metrics.LoadTraining(path)
	if err != nil {
		t.Fatalf("LoadTraining() error = %v", err)
	}
	if tr.RunID != "a1b2c3" {
		t.Errorf("RunID = %q, want a1b2c3", tr.RunID)
	}
	if tr.TestAccuracy != 0.95 {
		t.Errorf("TestAccuracy = %v, want 0.95", tr.TestAccuracy)
	}
}
