// Package indexing orchestrates the end-to-end document indexing pass:
// lock, upsert metadata, chunk, embed, decorate with access/doc-set
// metadata, and write to the search engine.
package indexing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"docsearch/internal/chunking"
	"docsearch/internal/docmodel"
	"docsearch/internal/observability"
	"docsearch/internal/recordstore"
)

// EngineWriter is the write-path dependency a Pipeline needs from the
// engine adapter.
type EngineWriter interface {
	Index(ctx context.Context, chunks []docmodel.MetadataAwareChunk) ([]docmodel.DocumentInsertionRecord, error)
}

// RecordStore is the record-of-truth dependency a Pipeline needs.
// *recordstore.Store satisfies it; tests substitute an in-memory fake.
type RecordStore interface {
	WithDocumentLocks(ctx context.Context, documentIDs []string, fn func(ctx context.Context, q recordstore.Querier) error) error
	UpsertDocumentMetadata(ctx context.Context, q recordstore.Querier, meta recordstore.DocumentMetadata) error
	AccessForDocuments(ctx context.Context, q recordstore.Querier, documentIDs []string) (map[string]recordstore.AccessInfo, error)
	DocumentSetsForDocuments(ctx context.Context, q recordstore.Querier, documentIDs []string) (map[string][]string, error)
}

// AttemptMetadata carries the connector/credential identifiers the
// record-of-truth store needs per document in this indexing pass.
type AttemptMetadata struct {
	ConnectorID  int
	CredentialID int
}

// Pipeline wires the chunker, embedder, record store, and engine adapter
// together into the one indexing operation documents go through.
type Pipeline struct {
	Chunker     chunking.Chunker
	Embedder    chunking.Embedder
	RecordStore RecordStore
	Engine      EngineWriter
	Log         zerolog.Logger
}

// Run indexes documents under attempt metadata and returns the number of
// documents that were newly added (as opposed to replaced) and the total
// chunk count written.
func (p *Pipeline) Run(ctx context.Context, documents []docmodel.Document, attempt AttemptMetadata) (newDocCount, chunkCount int, err error) {
	if len(documents) == 0 {
		return 0, 0, nil
	}

	documentIDs := make([]string, len(documents))
	for i, d := range documents {
		documentIDs[i] = d.ID
	}

	p.Log.Debug().Int("documents", len(documents)).Msg("indexing pass starting")

	var insertionRecords []docmodel.DocumentInsertionRecord

	runErr := p.RecordStore.WithDocumentLocks(ctx, documentIDs, func(ctx context.Context, q recordstore.Querier) error {
		for _, doc := range documents {
			meta := recordstore.DocumentMetadata{
				ConnectorID:     attempt.ConnectorID,
				CredentialID:    attempt.CredentialID,
				DocumentID:      doc.ID,
				SemanticIdent:   doc.SemanticIdentifier,
				FirstLink:       firstLink(doc),
				PrimaryOwners:   doc.PrimaryOwners,
				SecondaryOwners: doc.SecondaryOwners,
			}
			if err := p.RecordStore.UpsertDocumentMetadata(ctx, q, meta); err != nil {
				return err
			}
		}

		access, err := p.RecordStore.AccessForDocuments(ctx, q, documentIDs)
		if err != nil {
			return err
		}
		docSets, err := p.RecordStore.DocumentSetsForDocuments(ctx, q, documentIDs)
		if err != nil {
			return err
		}

		var allChunks []docmodel.Chunk
		chunksByDoc := map[string][]docmodel.Chunk{}
		for _, doc := range documents {
			chunks, err := p.Chunker.Chunk(doc)
			if err != nil {
				return fmt.Errorf("chunk document %s: %w", doc.ID, err)
			}
			chunksByDoc[doc.ID] = chunks
			allChunks = append(allChunks, chunks...)
		}

		embedded, err := p.Embedder.EmbedBatch(ctx, allChunks)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(embedded) != len(allChunks) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embedded), len(allChunks))
		}

		decorated := decorateChunks(documents, embedded, access, docSets)
		chunkCount = len(decorated)

		records, err := p.Engine.Index(ctx, decorated)
		if err != nil {
			return fmt.Errorf("write chunks to engine: %w", err)
		}
		insertionRecords = records
		return nil
	})
	if runErr != nil {
		return 0, 0, runErr
	}

	for _, r := range insertionRecords {
		if !r.AlreadyExisted {
			newDocCount++
		}
	}

	observability.LoggerWithTrace(ctx).Info().
		Int("documents", len(documents)).
		Int("new_documents", newDocCount).
		Int("chunks_written", chunkCount).
		Msg("indexing pass complete")

	return newDocCount, chunkCount, nil
}

func firstLink(doc docmodel.Document) string {
	for _, s := range doc.Sections {
		if s.Link != "" {
			return s.Link
		}
	}
	return ""
}

// decorateChunks attaches per-document access, document-set, and timestamp
// metadata to every embedded chunk, in document order.
func decorateChunks(documents []docmodel.Document, embedded []docmodel.EmbeddedChunk, access map[string]recordstore.AccessInfo, docSets map[string][]string) []docmodel.MetadataAwareChunk {
	byID := make(map[string]docmodel.Document, len(documents))
	for _, d := range documents {
		byID[d.ID] = d
	}

	out := make([]docmodel.MetadataAwareChunk, len(embedded))
	for i, ch := range embedded {
		doc := byID[ch.Source.ID]
		acc := access[doc.ID]

		out[i] = docmodel.MetadataAwareChunk{
			EmbeddedChunk:      ch,
			DocumentID:         doc.ID,
			SourceType:         doc.Source,
			SemanticIdentifier: doc.SemanticIdentifier,
			Title:              doc.SemanticIdentifier,
			Metadata:           doc.Metadata,
			AccessUsers:        acc.Users,
			AccessGroups:       acc.Groups,
			IsHidden:           false,
			DocumentSets:       docSets[doc.ID],
			Boost:              1,
			DocUpdatedAt:       doc.DocUpdatedAt,
		}
	}
	return out
}
