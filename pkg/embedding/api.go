/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package embedding provides the pure comparison primitive for biometric
// embedding vectors. It performs no I/O so it can be unit-tested independently
// of the ledger and storage collaborators.
package embedding

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultMatchThreshold is the cosine-similarity threshold calibrated for the
// MediaPipe face-embedding family. It is a tunable configuration constant, not
// a protocol invariant.
const DefaultMatchThreshold = 0.90

var (
	// ErrDimensionMismatch is returned when the two vectors differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrZeroMagnitude is returned when either vector has zero magnitude and
	// cosine similarity is undefined.
	ErrZeroMagnitude = errors.New("embedding has zero magnitude")
)

// ComparisonResult holds the scalar similarity and the boolean decision
// against the configured threshold. Callers must not infer a match from
// closeness alone; only Match is the decision.
type ComparisonResult struct {
	Similarity float64
	Match      bool
}

// Marshal serializes an embedding vector as a JSON array of numbers, the
// format the extractor produces and the content store holds.
func Marshal(vector []float64) ([]byte, error) {
	if len(vector) == 0 {
		return nil, errors.New("empty embedding vector")
	}

	return json.Marshal(vector)
}

// Unmarshal deserializes an embedding vector.
func Unmarshal(data []byte) ([]float64, error) {
	var vector []float64
	if err := json.Unmarshal(data, &vector); err != nil {
		return nil, fmt.Errorf("decode embedding vector: %w", err)
	}

	if len(vector) == 0 {
		return nil, errors.New("empty embedding vector")
	}

	return vector, nil
}
