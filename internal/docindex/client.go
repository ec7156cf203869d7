// Package docindex is the HTTP adapter to a Vespa-family search engine: it
// writes, updates, and deletes chunks, runs the paginated chunk-id scan
// deletion needs, and deploys the application package. Query construction
// and result decoding live in the retrieval package, which uses this
// package's Search method as its transport.
package docindex

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"docsearch/internal/config"
)

// Index is the engine write/delete/deploy adapter.
type Index struct {
	baseURL       string
	tenantBaseURL string
	indexName     string
	batchSize     int
	nWorkers      int
	httpClient    *http.Client
	log           zerolog.Logger
}

// New builds an Index adapter from engine and indexing configuration. If
// httpClient is nil, a client with a conservative timeout is constructed.
func New(engine config.EngineConfig, indexing config.IndexingConfig, httpClient *http.Client, log zerolog.Logger) *Index {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	batchSize := indexing.BatchSize
	if batchSize <= 0 {
		batchSize = 128
	}
	nWorkers := indexing.NWorkers
	if nWorkers <= 0 {
		nWorkers = 32
	}
	return &Index{
		baseURL:       fmt.Sprintf("http://%s:%d", engine.Host, engine.Port),
		tenantBaseURL: fmt.Sprintf("http://%s:%d", engine.Host, engine.TenantPort),
		indexName:     engine.IndexName,
		batchSize:     batchSize,
		nWorkers:      nWorkers,
		httpClient:    httpClient,
		log:           log,
	}
}

func (idx *Index) docPath(engineID string) string {
	return fmt.Sprintf("%s/document/v1/default/%s/docid/%s", idx.baseURL, idx.indexName, engineID)
}

func (idx *Index) searchPath() string {
	return idx.baseURL + "/search/"
}
