// Package model loads the frozen scaler, classifier and feature schema.
//
// Artifacts are constructed once at startup and never mutated afterwards,
// so a single *Artifacts may be shared by every request without locking.
package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Schema is the ordered list of features the classifier was trained on.
type Schema []string

// Artifacts bundles the frozen model inputs.
type Artifacts struct {
	Version    string
	Schema     Schema
	Scaler     *StandardScaler
	Classifier Classifier
}

// artifactFile is the on-disk JSON layout of a model artifact.
type artifactFile struct {
	Version  string   `json:"version"`
	Features []string `json:"features"`
	Scaler   struct {
		Mean  []float64 `json:"mean"`
		Scale []float64 `json:"scale"`
	} `json:"scaler"`
	Classifier struct {
		Type      string    `json:"type"`
		Coef      []float64 `json:"coef"`
		Intercept float64   `json:"intercept"`
	} `json:"classifier"`
}

// Classifier types
const (
	TypeLogisticRegression = "logistic_regression"
)

// Unversioned is the version of an artifact that declares none.
const Unversioned = "unversioned"

// Load reads a model artifact from a JSON file.
func Load(path string) (*Artifacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	return Parse(data)
}

// Parse decodes a model artifact and validates that its parts agree.
func Parse(data []byte) (*Artifacts, error) {
	var f artifactFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}

	if len(f.Features) == 0 {
		return nil, fmt.Errorf("model artifact has no features")
	}
	seen := make(map[string]bool, len(f.Features))
	for _, name := range f.Features {
		if name == "" {
			return nil, fmt.Errorf("model artifact has an empty feature name")
		}
		if seen[name] {
			return nil, fmt.Errorf("model artifact has duplicate feature %q", name)
		}
		seen[name] = true
	}

	scaler, err := NewStandardScaler(f.Scaler.Mean, f.Scaler.Scale)
	if err != nil {
		return nil, err
	}
	if scaler.NumFeatures() != len(f.Features) {
		return nil, fmt.Errorf("scaler expects %d features, schema has %d", scaler.NumFeatures(), len(f.Features))
	}

	var clf Classifier
	switch f.Classifier.Type {
	case TypeLogisticRegression:
		clf, err = NewLogisticRegression(f.Classifier.Coef, f.Classifier.Intercept)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported classifier type: %q", f.Classifier.Type)
	}
	if clf.NumFeatures() != len(f.Features) {
		return nil, fmt.Errorf("classifier expects %d features, schema has %d", clf.NumFeatures(), len(f.Features))
	}

	version := f.Version
	if version == "" {
		version = Unversioned
	}

	return &Artifacts{
		Version:    version,
		Schema:     Schema(append([]string(nil), f.Features...)),
		Scaler:     scaler,
		Classifier: clf,
	}, nil
}
