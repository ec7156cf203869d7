package indexing

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"docsearch/internal/chunking"
	"docsearch/internal/docmodel"
	"docsearch/internal/recordstore"
)

// fakeRecordStore is an in-memory stand-in for *recordstore.Store. It never
// touches a real transaction: WithDocumentLocks just serializes calls with
// a mutex, which is all the pipeline's own logic depends on.
type fakeRecordStore struct {
	mu       sync.Mutex
	metadata map[string]recordstore.DocumentMetadata
	access   map[string]recordstore.AccessInfo
	docSets  map[string][]string
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		metadata: map[string]recordstore.DocumentMetadata{},
		access:   map[string]recordstore.AccessInfo{},
		docSets:  map[string][]string{},
	}
}

func (f *fakeRecordStore) WithDocumentLocks(ctx context.Context, documentIDs []string, fn func(ctx context.Context, q recordstore.Querier) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx, nil)
}

func (f *fakeRecordStore) UpsertDocumentMetadata(ctx context.Context, q recordstore.Querier, meta recordstore.DocumentMetadata) error {
	f.metadata[meta.DocumentID] = meta
	return nil
}

func (f *fakeRecordStore) AccessForDocuments(ctx context.Context, q recordstore.Querier, documentIDs []string) (map[string]recordstore.AccessInfo, error) {
	out := make(map[string]recordstore.AccessInfo, len(documentIDs))
	for _, id := range documentIDs {
		out[id] = f.access[id]
	}
	return out, nil
}

func (f *fakeRecordStore) DocumentSetsForDocuments(ctx context.Context, q recordstore.Querier, documentIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(documentIDs))
	for _, id := range documentIDs {
		out[id] = f.docSets[id]
	}
	return out, nil
}

// fakeEngine records every Index call and simulates replace-not-append by
// tracking which documents it has already seen across calls.
type fakeEngine struct {
	mu       sync.Mutex
	seen     map[string]bool
	lastCall []docmodel.MetadataAwareChunk
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{seen: map[string]bool{}}
}

func (e *fakeEngine) Index(ctx context.Context, chunks []docmodel.MetadataAwareChunk) ([]docmodel.DocumentInsertionRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastCall = chunks

	byDoc := map[string]bool{}
	for _, c := range chunks {
		byDoc[c.DocumentID] = true
	}
	var records []docmodel.DocumentInsertionRecord
	for docID := range byDoc {
		records = append(records, docmodel.DocumentInsertionRecord{DocumentID: docID, AlreadyExisted: e.seen[docID]})
		e.seen[docID] = true
	}
	return records, nil
}

func newTestPipeline(rs RecordStore, engine EngineWriter) *Pipeline {
	tok := chunking.WhitespaceTokenizer{}
	return &Pipeline{
		Chunker:     chunking.NewDefaultChunker(tok, chunking.NewDefaultSentenceSplitter(tok), chunking.Config{ChunkTokens: 50, ChunkOverlapTokens: 5, BlurbTokens: 10, MiniChunkTokens: 1000}),
		Embedder:    chunking.NewDeterministicEmbedder(16, true),
		RecordStore: rs,
		Engine:      engine,
		Log:         zerolog.Nop(),
	}
}

func TestPipeline_FreshInsertReportsNewDocument(t *testing.T) {
	rs := newFakeRecordStore()
	engine := newFakeEngine()
	p := newTestPipeline(rs, engine)

	docs := []docmodel.Document{
		{ID: "doc-1", Sections: []docmodel.Section{{Text: "hello world", Link: "l1"}}},
	}

	newCount, chunkCount, err := p.Run(context.Background(), docs, AttemptMetadata{ConnectorID: 1, CredentialID: 1})
	require.NoError(t, err)
	require.Equal(t, 1, newCount)
	require.Greater(t, chunkCount, 0)
}

func TestPipeline_ReindexReportsAlreadyExisted(t *testing.T) {
	rs := newFakeRecordStore()
	engine := newFakeEngine()
	p := newTestPipeline(rs, engine)

	docs := []docmodel.Document{
		{ID: "doc-1", Sections: []docmodel.Section{{Text: "hello world", Link: "l1"}}},
	}

	_, _, err := p.Run(context.Background(), docs, AttemptMetadata{})
	require.NoError(t, err)

	newCount, _, err := p.Run(context.Background(), docs, AttemptMetadata{})
	require.NoError(t, err)
	require.Equal(t, 0, newCount, "re-indexing the same document should not count as new")
}

func TestPipeline_ReindexWithFewerSectionsShrinksChunkCount(t *testing.T) {
	rs := newFakeRecordStore()
	engine := newFakeEngine()
	p := newTestPipeline(rs, engine)

	bigDoc := docmodel.Document{
		ID: "doc-1",
		Sections: []docmodel.Section{
			{Text: strings.Repeat("alpha ", 30), Link: "l1"},
			{Text: strings.Repeat("beta ", 30), Link: "l2"},
			{Text: strings.Repeat("gamma ", 30), Link: "l3"},
		},
	}
	_, firstChunkCount, err := p.Run(context.Background(), []docmodel.Document{bigDoc}, AttemptMetadata{})
	require.NoError(t, err)

	smallDoc := bigDoc
	smallDoc.Sections = bigDoc.Sections[:1]
	_, secondChunkCount, err := p.Run(context.Background(), []docmodel.Document{smallDoc}, AttemptMetadata{})
	require.NoError(t, err)

	require.Less(t, secondChunkCount, firstChunkCount)
}
