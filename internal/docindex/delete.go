package docindex

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const scanPageSize = 128

// scanEngineIDs lists every engine document id currently indexed for
// documentID, paginating in scanPageSize-sized pages.
func (idx *Index) scanEngineIDs(ctx context.Context, documentID string) ([]string, error) {
	scanCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var ids []string
	offset := 0
	for {
		hits, err := idx.Search(scanCtx, SearchRequest{
			YQL:    fmt.Sprintf(`select documentid from %s where document_id contains '%s'`, idx.indexName, documentID),
			Hits:   scanPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("scan chunks of document %s: %w", documentID, err)
		}
		for _, h := range hits {
			if id, ok := h.Fields["documentid"].(string); ok {
				ids = append(ids, engineIDFromVespaDocID(id))
			}
		}
		if len(hits) < scanPageSize {
			return ids, nil
		}
		offset += scanPageSize
	}
}

// Delete removes every indexed chunk for each document id.
func (idx *Index) Delete(ctx context.Context, documentIDs []string) error {
	for _, docID := range documentIDs {
		if err := idx.deleteAllChunks(ctx, docID); err != nil {
			return err
		}
	}
	return nil
}

// deleteAllChunks scans for every engine chunk belonging to documentID and
// deletes each one. Used both by Delete and by the write path, which must
// purge a document's prior chunks before re-indexing it under a new chunk
// count (replace-not-append).
func (idx *Index) deleteAllChunks(ctx context.Context, documentID string) error {
	engineIDs, err := idx.scanEngineIDs(ctx, documentID)
	if err != nil {
		return err
	}
	for _, engineID := range engineIDs {
		if err := idx.deleteEngineDoc(ctx, engineID); err != nil {
			return fmt.Errorf("delete chunk of document %s: %w", documentID, err)
		}
	}
	return nil
}

// engineIDFromVespaDocID extracts the trailing document-id component from a
// fully-qualified Vespa document id of the form "id:<namespace>:<schema>::<id>".
func engineIDFromVespaDocID(full string) string {
	if idx := strings.LastIndex(full, "::"); idx >= 0 {
		return full[idx+2:]
	}
	return full
}

func (idx *Index) deleteEngineDoc(ctx context.Context, engineID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, idx.docPath(engineID), nil)
	if err != nil {
		return err
	}
	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
