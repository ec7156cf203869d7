package embedding

import (
	"context"
	"fmt"

	"docsearch/internal/config"
	"docsearch/internal/docmodel"
)

// ChunkEmbedder adapts the HTTP embedding client to chunking.Embedder,
// embedding each chunk's content plus any mini-chunk texts in one request
// per chunk (mini-chunks are batched alongside their parent so the whole
// chunk's embeddings come from a single round trip).
type ChunkEmbedder struct {
	cfg  config.EmbeddingConfig
	name string
}

func NewChunkEmbedder(cfg config.EmbeddingConfig) *ChunkEmbedder {
	name := cfg.Model
	if name == "" {
		name = "http-embedding"
	}
	return &ChunkEmbedder{cfg: cfg, name: name}
}

func (e *ChunkEmbedder) Name() string { return e.name }

func (e *ChunkEmbedder) Dimension() int { return 0 }

func (e *ChunkEmbedder) EmbedBatch(ctx context.Context, chunks []docmodel.Chunk) ([]docmodel.EmbeddedChunk, error) {
	out := make([]docmodel.EmbeddedChunk, len(chunks))
	for i, ch := range chunks {
		inputs := append([]string{ch.Content}, ch.MiniChunkTexts...)
		vecs, err := EmbedText(ctx, e.cfg, inputs)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d of document %s: %w", ch.ChunkID, ch.Source.ID, err)
		}
		out[i] = docmodel.EmbeddedChunk{
			Chunk:               ch,
			Embedding:           vecs[0],
			MiniChunkEmbeddings: vecs[1:],
		}
	}
	return out, nil
}
