// Package metrics reads the evaluation and training records produced by
// the upstream training pipeline. Records are immutable once written; this
// package only loads and validates them.
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Default record locations written by the training pipeline.
const (
	DefaultEvaluationPath = "metrics/eval_metrics.json"
	DefaultTrainingPath   = "metrics/train_metrics.json"
)

// ErrUnavailable indicates the metrics record is missing. The promotion
// gate cannot run without one, so callers treat this as fatal.
var ErrUnavailable = errors.New("metrics: record unavailable")

// Evaluation is one evaluation run against the held-out split.
type Evaluation struct {
	Accuracy        float64     `json:"accuracy"`
	Precision       float64     `json:"precision"`
	Recall          float64     `json:"recall"`
	F1              float64     `json:"f1_score"`
	ConfusionMatrix [][]float64 `json:"confusion_matrix,omitempty"`
}

// Training is the record emitted by the training run. RunID ties post-hoc
// evaluation metrics back to the registry run that produced the artifact.
type Training struct {
	TrainAccuracy float64 `json:"train_accuracy"`
	TestAccuracy  float64 `json:"test_accuracy"`
	Precision     float64 `json:"precision"`
	Recall        float64 `json:"recall"`
	F1            float64 `json:"f1_score"`
	RunID         string  `json:"mlflow_run_id,omitempty"`
}

// LoadEvaluation reads an evaluation record from path.
func LoadEvaluation(path string) (*Evaluation, error) {
	var ev Evaluation
	if err := loadJSON(path, &ev); err != nil {
		return nil, err
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// LoadTraining reads a training record from path.
func LoadTraining(path string) (*Training, error) {
	var tr Training
	if err := loadJSON(path, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// Validate rejects records whose accuracy is not a valid proportion.
func (e *Evaluation) Validate() error {
	if e.Accuracy < 0 || e.Accuracy > 1 {
		return fmt.Errorf("metrics: accuracy %v outside [0, 1]", e.Accuracy)
	}
	return nil
}

func loadJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrUnavailable, path)
		}
		return fmt.Errorf("metrics: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("metrics: parse %s: %w", path, err)
	}
	return nil
}
