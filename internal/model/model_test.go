package model_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelyard/modelyard/internal/model"
)

// testArtifact is a 3-class classifier over 4 features. The weights are
// arranged so class membership is easy to force in tests.
const testArtifact = `{
	"schema": "modelyard/softmax-classifier/v1",
	"dim": 4,
	"classes": [0, 1, 2],
	"weights": [
		[ 2.0,  0.0,  0.0,  0.0],
		[ 0.0,  2.0,  0.0,  0.0],
		[ 0.0,  0.0,  2.0,  2.0]
	],
	"bias": [0.1, 0.0, -0.1],
	"version": "7"
}`

func testClassifier(t *testing.T) *model.Classifier {
	t.Helper()
	c, err := model.Decode(strings.NewReader(testArtifact))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return c
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(testArtifact), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	c, err := model.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Dim != 4 {
		t.Errorf("Dim = %d, want 4", c.Dim)
	}
	if c.Version != "7" {
		t.Errorf("Version = %q, want 7", c.Version)
	}
}

func TestDecodeRejectsBadArtifacts(t *testing.T) {
	tests := []struct {
		name     string
		artifact string
	}{
		{"wrong schema", `{"schema": "other/v9", "dim": 2, "classes": [0,1], "weights": [[1,1],[1,1]], "bias": [0,0]}`},
		{"zero dim", `{"schema": "modelyard/softmax-classifier/v1", "dim": 0, "classes": [0,1], "weights": [], "bias": []}`},
		{"one class", `{"schema": "modelyard/softmax-classifier/v1", "dim": 2, "classes": [0], "weights": [[1,1]], "bias": [0]}`},
		{"ragged weights", `{"schema": "modelyard/softmax-classifier/v1", "dim": 2, "classes": [0,1], "weights": [[1,1],[1]], "bias": [0,0]}`},
		{"bias mismatch", `{"schema": "modelyard/softmax-classifier/v1", "dim": 2, "classes": [0,1], "weights": [[1,1],[1,1]], "bias": [0]}`},
		{"not json", `weights = [[1]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := model.Decode(strings.NewReader(tt.artifact)); err == nil {
				t.Error("Decode() accepted a bad artifact")
			}
		})
	}
}

func TestPredict(t *testing.T) {
	c := testClassifier(t)

	tests := []struct {
		name      string
		features  []float64
		wantClass int
	}{
		{"class 0 dominant", []float64{5, 0, 0, 0}, 0},
		{"class 1 dominant", []float64{0, 5, 0, 0}, 1},
		{"class 2 dominant", []float64{0, 0, 3, 3}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := c.Predict(tt.features)
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			if p.Class != tt.wantClass {
				t.Errorf("Class = %d, want %d", p.Class, tt.wantClass)
			}

			if len(p.Probabilities) != len(c.Classes) {
				t.Fatalf("len(Probabilities) = %d, want %d", len(p.Probabilities), len(c.Classes))
			}
			var sum float64
			for _, pr := range p.Probabilities {
				if pr < 0 || pr > 1 {
					t.Errorf("probability %v outside [0, 1]", pr)
				}
				sum += pr
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("probabilities sum to %v, want 1", sum)
			}
		})
	}
}

func TestPredictDimensionMismatch(t *testing.T) {
	c := testClassifier(t)

	for _, features := range [][]float64{{}, {1, 2}, {1, 2, 3, 4, 5}} {
		_, err := c.Predict(features)
		if !errors.Is(err, model.ErrDimensionMismatch) {
			t.Errorf("Predict(%d features) error = %v, want ErrDimensionMismatch", len(features), err)
		}
	}
}

func TestPredictNonFiniteFeature(t *testing.T) {
	c := testClassifier(t)

	_, err := c.Predict([]float64{1, math.NaN(), 0, 0})
	if err == nil {
		t.Fatal("Predict() with NaN feature: want error, got nil")
	}
	if errors.Is(err, model.ErrDimensionMismatch) {
		t.Error("NaN feature should not report a dimension mismatch")
	}
}
