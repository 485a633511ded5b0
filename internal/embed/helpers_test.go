package embed

import (
	"testing"

	"github.com/coder/hnsw"
	"github.com/stretchr/testify/assert"
)

// assertUnitLength checks that v was normalized, using the same kernel the
// stores rank with: a unit vector has cosine distance 0 to itself and a dot
// product of 1 with itself.
func assertUnitLength(t *testing.T, v []float32, msgAndArgs ...any) {
	t.Helper()
	var dot float32
	for _, f := range v {
		dot += f * f
	}
	assert.InDelta(t, 1.0, dot, 1e-4, msgAndArgs...)
	assert.InDelta(t, 0.0, hnsw.CosineDistance(v, v), 1e-5, msgAndArgs...)
}

// similarity scores two embeddings the way search results are scored.
func similarity(a, b []float32) float32 {
	return 1 - hnsw.CosineDistance(a, b)
}
