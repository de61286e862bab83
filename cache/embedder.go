package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// embeddingDim is the dimensionality of locally derived vectors.
const embeddingDim = 64

// HashEmbedder derives deterministic, unit-length vectors from text by
// expanding a SHA-256 digest. It carries no semantic signal; it exists so the
// memory embedding path is fully exercised without a remote embedding
// service. Swap in a real embedder for semantic retrieval.
type HashEmbedder struct{}

// NewHashEmbedder constructs a HashEmbedder.
func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{} }

// Embed implements core.Embedder.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDim)
	seed := sha256.Sum256([]byte(text))
	digest := seed[:]
	var norm float64
	for i := 0; i < embeddingDim; i++ {
		if i%8 == 0 && i > 0 {
			next := sha256.Sum256(digest)
			digest = next[:]
		}
		bits := binary.BigEndian.Uint32(digest[(i%8)*4 : (i%8)*4+4])
		v := float32(bits)/float32(math.MaxUint32)*2 - 1
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
