package chunking

import (
	"context"
	"hash/fnv"
	"math"

	"docsearch/internal/docmodel"
)

// Embedder turns chunks into embedded chunks. Implementations must preserve
// order and length: EmbedBatch(ctx, chunks) always returns one EmbeddedChunk
// per input Chunk, in the same order. Model inference itself is out of
// scope for this module; this interface is the seam a real embedding
// service is wired in behind.
type Embedder interface {
	EmbedBatch(ctx context.Context, chunks []docmodel.Chunk) ([]docmodel.EmbeddedChunk, error)
	Name() string
	Dimension() int
}

// DeterministicEmbedder produces stable, hash-derived vectors with no
// network calls. It exists for tests and local runs where a real embedding
// endpoint isn't available; it is not meant to produce vectors with any
// semantic quality.
type DeterministicEmbedder struct {
	dim       int
	normalize bool
}

func NewDeterministicEmbedder(dim int, normalize bool) *DeterministicEmbedder {
	if dim <= 0 {
		dim = 32
	}
	return &DeterministicEmbedder{dim: dim, normalize: normalize}
}

func (e *DeterministicEmbedder) Name() string   { return "deterministic" }
func (e *DeterministicEmbedder) Dimension() int { return e.dim }

func (e *DeterministicEmbedder) EmbedBatch(ctx context.Context, chunks []docmodel.Chunk) ([]docmodel.EmbeddedChunk, error) {
	out := make([]docmodel.EmbeddedChunk, len(chunks))
	for i, ch := range chunks {
		vec := e.embedText(ch.Content)
		var minis [][]float32
		for _, mt := range ch.MiniChunkTexts {
			minis = append(minis, e.embedText(mt))
		}
		out[i] = docmodel.EmbeddedChunk{
			Chunk:               ch,
			Embedding:           vec,
			MiniChunkEmbeddings: minis,
		}
		if ctx.Err() != nil {
			return out[:i+1], ctx.Err()
		}
	}
	return out, nil
}

// embedText hashes overlapping 3-grams of text into buckets, mirroring the
// deterministic test-double embedder used elsewhere in this codebase for
// vector-store tests where a real model would be overkill.
func (e *DeterministicEmbedder) embedText(text string) []float32 {
	vec := make([]float32, e.dim)
	if text == "" {
		return vec
	}
	runes := []rune(text)
	n := 3
	if len(runes) < n {
		n = len(runes)
	}
	for i := 0; i+n <= len(runes); i++ {
		gram := string(runes[i : i+n])
		h := fnv.New32a()
		_, _ = h.Write([]byte(gram))
		bucket := int(h.Sum32()) % e.dim
		if bucket < 0 {
			bucket += e.dim
		}
		vec[bucket]++
	}
	if e.normalize {
		normalizeVec(vec)
	}
	return vec
}

func normalizeVec(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
