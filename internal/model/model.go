// Package model decodes serialized classifier artifacts and runs inference.
//
// An artifact is a JSON document exported by the training pipeline: a
// linear softmax classifier with one weight row per class. The decoded
// Classifier is immutable and safe to share across concurrent request
// handlers.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Schema identifies the artifact format this package understands.
const Schema = "modelyard/softmax-classifier/v1"

// ErrDimensionMismatch indicates a feature vector whose length does not
// match the model's input dimensionality. This is caller error, never a
// model failure.
var ErrDimensionMismatch = errors.New("model: feature dimension mismatch")

// Classifier is a decoded, ready-to-serve classifier artifact.
type Classifier struct {
	SchemaName string      `json:"schema"`
	Dim        int         `json:"dim"`
	Classes    []int       `json:"classes"`
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Version    string      `json:"version,omitempty"`
}

// Prediction is the result of a single inference call.
type Prediction struct {
	Class         int
	Probabilities []float64
}

// Load reads and decodes a classifier artifact from path.
func Load(path string) (*Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("model: open %s: %w", path, err)
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("model: decode %s: %w", path, err)
	}
	return c, nil
}

// Decode parses a classifier artifact from r and checks its shape.
func Decode(r io.Reader) (*Classifier, error) {
	var c Classifier
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Classifier) validate() error {
	if c.SchemaName != Schema {
		return fmt.Errorf("unsupported artifact schema %q", c.SchemaName)
	}
	if c.Dim <= 0 {
		return fmt.Errorf("invalid input dimension %d", c.Dim)
	}
	n := len(c.Classes)
	if n < 2 {
		return fmt.Errorf("classifier needs at least 2 classes, got %d", n)
	}
	if len(c.Weights) != n {
		return fmt.Errorf("weights rows = %d, want %d", len(c.Weights), n)
	}
	for i, row := range c.Weights {
		if len(row) != c.Dim {
			return fmt.Errorf("weights[%d] has %d columns, want %d", i, len(row), c.Dim)
		}
	}
	if len(c.Bias) != n {
		return fmt.Errorf("bias length = %d, want %d", len(c.Bias), n)
	}
	return nil
}

// Predict scores a feature vector and returns the argmax class together
// with the softmax probability distribution over all classes.
func (c *Classifier) Predict(features []float64) (Prediction, error) {
	if len(features) != c.Dim {
		return Prediction{}, fmt.Errorf("%w: got %d features, model expects %d",
			ErrDimensionMismatch, len(features), c.Dim)
	}
	for i, x := range features {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Prediction{}, fmt.Errorf("model: feature %d is not finite", i)
		}
	}

	scores := make([]float64, len(c.Classes))
	for k, row := range c.Weights {
		s := c.Bias[k]
		for j, x := range features {
			s += row[j] * x
		}
		scores[k] = s
	}

	probs := softmax(scores)

	best := 0
	for k := 1; k < len(probs); k++ {
		if probs[k] > probs[best] {
			best = k
		}
	}

	return Prediction{Class: c.Classes[best], Probabilities: probs}, nil
}

// softmax converts raw scores to a probability distribution. Scores are
// shifted by the max before exponentiation to avoid overflow.
func softmax(scores []float64) []float64 {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}

	probs := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		probs[i] = math.Exp(s - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
