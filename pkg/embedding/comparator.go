/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package embedding

import (
	"fmt"
	"math"
)

// Comparator decides whether two embedding vectors belong to the same subject
// by cosine similarity against a fixed threshold.
type Comparator struct {
	threshold float64
}

// NewComparator creates a Comparator with the given match threshold. Pass
// DefaultMatchThreshold unless the embedding extractor has been recalibrated.
func NewComparator(threshold float64) *Comparator {
	return &Comparator{threshold: threshold}
}

// Threshold returns the configured match threshold.
func (c *Comparator) Threshold() float64 {
	return c.threshold
}

// Compare computes the cosine similarity of the two vectors and the match
// decision. It is deterministic and symmetric in its arguments.
func (c *Comparator) Compare(reference, captured []float64) (*ComparisonResult, error) {
	if len(reference) != len(captured) {
		return nil, fmt.Errorf("%w: reference=%d captured=%d",
			ErrDimensionMismatch, len(reference), len(captured))
	}

	if len(reference) == 0 {
		return nil, ErrZeroMagnitude
	}

	var dot, magRef, magCap float64

	for i := range reference {
		dot += reference[i] * captured[i]
		magRef += reference[i] * reference[i]
		magCap += captured[i] * captured[i]
	}

	if magRef == 0 || magCap == 0 {
		return nil, ErrZeroMagnitude
	}

	similarity := dot / (math.Sqrt(magRef) * math.Sqrt(magCap))

	return &ComparisonResult{
		Similarity: similarity,
		Match:      similarity >= c.threshold,
	}, nil
}
