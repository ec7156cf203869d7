package retrieval

import (
	"context"
	"fmt"

	"docsearch/internal/docindex"
	"docsearch/internal/docmodel"
)

// Searcher is the transport dependency a Retriever needs; docindex.Index
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, req docindex.SearchRequest) ([]docindex.RawHit, error)
}

// Retriever executes one of the four retrieval modes end to end: build the
// engine query, run it, decode the hits.
type Retriever struct {
	searcher Searcher
	builder  *QueryBuilder
	decoder  *Decoder
}

func NewRetriever(searcher Searcher, builder *QueryBuilder, decoder *Decoder) *Retriever {
	return &Retriever{searcher: searcher, builder: builder, decoder: decoder}
}

// Retrieve runs req under mode and returns the decoded hits.
func (r *Retriever) Retrieve(ctx context.Context, mode Mode, req QueryRequest) ([]docmodel.InferenceChunk, error) {
	searchReq := r.builder.Build(mode, req)
	hits, err := r.searcher.Search(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("retrieve (mode=%d): %w", mode, err)
	}
	return r.decoder.DecodeHits(hits), nil
}
