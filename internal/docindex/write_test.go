package docindex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"docsearch/internal/config"
	"docsearch/internal/docmodel"
)

func newTestIndex(t *testing.T, handler http.HandlerFunc) (*Index, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	// Index resolves its base URL from host/port; pass a placeholder host
	// and port so the generated URL is unused, then overwrite baseURL
	// directly since httptest doesn't expose separate host/port fields to
	// populate EngineConfig with.
	idx := New(config.EngineConfig{Host: "unused", Port: 1, IndexName: "test_chunk"}, config.IndexingConfig{BatchSize: 128, NWorkers: 4}, ts.Client(), zerolog.Nop())
	idx.baseURL = ts.URL
	idx.tenantBaseURL = ts.URL
	return idx, ts
}

func TestChunkEngineID_IsDeterministic(t *testing.T) {
	a := chunkEngineID("doc-1", 0)
	b := chunkEngineID("doc-1", 0)
	c := chunkEngineID("doc-1", 1)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestIndex_ExistingDocumentDetection(t *testing.T) {
	var existsCalls int32
	idx, _ := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			atomic.AddInt32(&existsCalls, 1)
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			w.WriteHeader(http.StatusOK)
		}
	})

	chunks := []docmodel.MetadataAwareChunk{
		{DocumentID: "doc-1", EmbeddedChunk: docmodel.EmbeddedChunk{Chunk: docmodel.Chunk{ChunkID: 0, Content: "hello"}}},
		{DocumentID: "doc-1", EmbeddedChunk: docmodel.EmbeddedChunk{Chunk: docmodel.Chunk{ChunkID: 1, Content: "world"}}},
	}

	records, err := idx.Index(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "doc-1", records[0].DocumentID)
	require.False(t, records[0].AlreadyExisted)
	require.EqualValues(t, 1, atomic.LoadInt32(&existsCalls), "existence should be probed exactly once per document")
}

func TestIndex_RepairsUnicodeOn400(t *testing.T) {
	var puts int32
	idx, _ := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			n := atomic.AddInt32(&puts, 1)
			if n == 1 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	})

	chunks := []docmodel.MetadataAwareChunk{
		{DocumentID: "doc-1", EmbeddedChunk: docmodel.EmbeddedChunk{Chunk: docmodel.Chunk{ChunkID: 0, Content: "bad\xffbytes"}}},
	}

	_, err := idx.Index(context.Background(), chunks)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&puts), "expected exactly one repair-and-retry PUT after the 400")
}

func TestIndex_ReindexDeletesPreExistingChunksBeforeWriting(t *testing.T) {
	var deletes []string
	var putsBeforeFirstDelete int32
	var deleted int32

	idx, _ := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/search/"):
			if atomic.LoadInt32(&deleted) == 0 {
				w.Write([]byte(`{"root":{"children":[
					{"relevance":1,"fields":{"documentid":"id:default:test_chunk::doc-1__0"}},
					{"relevance":1,"fields":{"documentid":"id:default:test_chunk::doc-1__1"}}
				]}}`))
			} else {
				w.Write([]byte(`{"root":{"children":[]}}`))
			}
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusOK) // document probe: already exists
		case r.Method == http.MethodDelete:
			deletes = append(deletes, r.URL.Path)
			atomic.StoreInt32(&deleted, 1)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			if len(deletes) == 0 {
				atomic.AddInt32(&putsBeforeFirstDelete, 1)
			}
			w.WriteHeader(http.StatusOK)
		}
	})

	chunks := []docmodel.MetadataAwareChunk{
		{DocumentID: "doc-1", EmbeddedChunk: docmodel.EmbeddedChunk{Chunk: docmodel.Chunk{ChunkID: 0, Content: "hello"}}},
	}

	records, err := idx.Index(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].AlreadyExisted)
	require.Len(t, deletes, 2, "both pre-existing chunks should be deleted")
	require.EqualValues(t, 0, atomic.LoadInt32(&putsBeforeFirstDelete), "new chunk write must not race ahead of the pre-existing-chunk delete")
}

func TestIndex_DoesNotRetryOn403(t *testing.T) {
	var puts int32
	idx, _ := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			atomic.AddInt32(&puts, 1)
			w.WriteHeader(http.StatusForbidden)
		}
	})

	chunks := []docmodel.MetadataAwareChunk{
		{DocumentID: "doc-1", EmbeddedChunk: docmodel.EmbeddedChunk{Chunk: docmodel.Chunk{ChunkID: 0, Content: "hello"}}},
	}

	_, err := idx.Index(context.Background(), chunks)
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&puts))
}
