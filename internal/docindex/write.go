package docindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"docsearch/internal/docmodel"
	"docsearch/internal/observability"
)

// Index writes chunks to the engine, sub-batched and fanned out across a
// bounded worker pool. Returns one DocumentInsertionRecord per distinct
// document, reporting whether that document's chunk 0 was in the index
// prior to this call. A per-document mutex makes the existence probe and the
// deletion of the document's prior chunks one step per document: it runs
// once, and every chunk write of that document waits until it is done, so
// two chunks of the same document can't race each other into reporting
// inconsistent already-existed answers.
func (idx *Index) Index(ctx context.Context, chunks []docmodel.MetadataAwareChunk) ([]docmodel.DocumentInsertionRecord, error) {
	var docLocks sync.Map // documentID -> *sync.Mutex
	var docExisted sync.Map // documentID -> bool

	for start := 0; start < len(chunks); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := idx.indexBatch(ctx, chunks[start:end], &docLocks, &docExisted); err != nil {
			return nil, err
		}
	}

	var records []docmodel.DocumentInsertionRecord
	docExisted.Range(func(key, value any) bool {
		records = append(records, docmodel.DocumentInsertionRecord{
			DocumentID:     key.(string),
			AlreadyExisted: value.(bool),
		})
		return true
	})
	return records, nil
}

func (idx *Index) indexBatch(ctx context.Context, batch []docmodel.MetadataAwareChunk, docLocks, docExisted *sync.Map) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.nWorkers)

	for _, chunk := range batch {
		chunk := chunk
		g.Go(func() error {
			muAny, _ := docLocks.LoadOrStore(chunk.DocumentID, &sync.Mutex{})
			mu := muAny.(*sync.Mutex)

			mu.Lock()
			_, known := docExisted.Load(chunk.DocumentID)
			if !known {
				existed, err := idx.documentExists(gctx, chunk.DocumentID)
				if err != nil {
					mu.Unlock()
					return fmt.Errorf("check existence of document %s: %w", chunk.DocumentID, err)
				}
				if existed {
					if err := idx.deleteAllChunks(gctx, chunk.DocumentID); err != nil {
						mu.Unlock()
						return fmt.Errorf("failed to delete pre-existing chunks: %w", err)
					}
				}
				docExisted.Store(chunk.DocumentID, existed)
			}
			mu.Unlock()

			return idx.writeChunkWithRetry(gctx, chunk)
		})
	}

	return g.Wait()
}

// documentExists probes the engine for the document's first chunk. A 404
// means no prior chunk of this document was ever indexed.
func (idx *Index) documentExists(ctx context.Context, documentID string) (bool, error) {
	engineID := chunkEngineID(documentID, 0)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, idx.docPath(engineID), nil)
	if err != nil {
		return false, err
	}
	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %s probing document existence", resp.Status)
	}
}

// writeChunkWithRetry PUTs one chunk, retrying 5xx/network errors with
// exponential backoff. A 400 response is not retried through the backoff
// loop; it's handled once, by stripping invalid unicode from the chunk's
// text fields and resubmitting exactly once.
func (idx *Index) writeChunkWithRetry(ctx context.Context, chunk docmodel.MetadataAwareChunk) error {
	op := func() (struct{}, error) {
		status, body, err := idx.putChunk(ctx, chunk)
		if err != nil {
			return struct{}{}, err
		}
		switch {
		case status/100 == 2:
			return struct{}{}, nil
		case status == http.StatusBadRequest:
			repaired := repairUnicodeFields(chunk)
			rstatus, rbody, rerr := idx.putChunk(ctx, repaired)
			if rerr != nil {
				return struct{}{}, backoff.Permanent(rerr)
			}
			if rstatus/100 != 2 {
				return struct{}{}, backoff.Permanent(fmt.Errorf("index chunk %d of document %s: status %d after unicode repair: %s", chunk.ChunkID, chunk.DocumentID, rstatus, rbody))
			}
			return struct{}{}, nil
		case status/100 == 4:
			return struct{}{}, backoff.Permanent(fmt.Errorf("index chunk %d of document %s: status %d: %s", chunk.ChunkID, chunk.DocumentID, status, body))
		default:
			return struct{}{}, fmt.Errorf("index chunk %d of document %s: status %d: %s", chunk.ChunkID, chunk.DocumentID, status, body)
		}
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	return err
}

func (idx *Index) putChunk(ctx context.Context, chunk docmodel.MetadataAwareChunk) (int, string, error) {
	fields := toEngineFields(chunk)
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return 0, "", fmt.Errorf("marshal chunk fields: %w", err)
	}

	engineID := chunkEngineID(chunk.DocumentID, chunk.ChunkID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, idx.docPath(engineID), bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode/100 != 2 {
		idx.log.Debug().
			Int("status", resp.StatusCode).
			Str("document_id", chunk.DocumentID).
			Int("chunk_id", chunk.ChunkID).
			RawJSON("request_fields", observability.RedactJSON(payload)).
			Msg("engine write rejected")
	}
	return resp.StatusCode, string(body), nil
}

// repairUnicodeFields strips invalid codepoints from the text fields the
// engine complains about on a 400.
func repairUnicodeFields(chunk docmodel.MetadataAwareChunk) docmodel.MetadataAwareChunk {
	chunk.Blurb = stripInvalidUnicode(chunk.Blurb)
	chunk.SemanticIdentifier = stripInvalidUnicode(chunk.SemanticIdentifier)
	chunk.Content = stripInvalidUnicode(chunk.Content)
	return chunk
}

func toEngineFields(chunk docmodel.MetadataAwareChunk) map[string]any {
	sourceLinksJSON, _ := json.Marshal(sourceLinksToMap(chunk.SourceLinks))
	metadataJSON, _ := json.Marshal(chunk.Metadata)

	// Untimed documents are persisted with the sentinel -1, not null, so
	// the time-cutoff filter's "doc_updated_at = -1" grace clause can
	// match them directly rather than needing a separate null check.
	updatedAtSecs := int64(-1)
	if chunk.DocUpdatedAt != nil {
		updatedAtSecs = chunk.DocUpdatedAt.Unix()
	}

	acl := chunk.AccessUsers
	for _, g := range chunk.AccessGroups {
		acl = append(acl, "group:"+g)
	}

	return map[string]any{
		"document_id":          chunk.DocumentID,
		"chunk_id":             chunk.ChunkID,
		"blurb":                chunk.Blurb,
		"content":              chunk.Content,
		"content_summary":      chunk.Content,
		"source_links":         string(sourceLinksJSON),
		"semantic_identifier":  chunk.SemanticIdentifier,
		"section_continuation": chunk.SectionContinuation,
		"source_type":          chunk.SourceType,
		"title":                chunk.Title,
		"metadata":             string(metadataJSON),
		"access_control_list":  weightedSet(acl),
		"document_sets":        weightedSet(chunk.DocumentSets),
		"boost":                chunk.Boost,
		"hidden":               chunk.IsHidden,
		"doc_updated_at":       updatedAtSecs,
		"embeddings":           namedEmbeddings(chunk.Embedding, chunk.MiniChunkEmbeddings),
	}
}

func sourceLinksToMap(links []docmodel.SourceLink) map[string]string {
	m := make(map[string]string, len(links))
	for _, l := range links {
		m[fmt.Sprintf("%d", l.Offset)] = l.Link
	}
	return m
}

// weightedSet turns a list of entries into a Vespa weighted-set field, every
// entry carrying weight 1.
func weightedSet(entries []string) map[string]int {
	m := make(map[string]int, len(entries))
	for _, e := range entries {
		m[e] = 1
	}
	return m
}

// namedEmbeddings builds the named-vector map the engine's tensor field
// expects: the full-chunk embedding plus one entry per mini-chunk, keyed
// "mini_chunk_0", "mini_chunk_1", ...
func namedEmbeddings(full []float32, miniChunks [][]float32) map[string][]float32 {
	m := make(map[string][]float32, 1+len(miniChunks))
	m["full_chunk"] = full
	for i, v := range miniChunks {
		m[fmt.Sprintf("mini_chunk_%d", i)] = v
	}
	return m
}
