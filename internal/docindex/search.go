package docindex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// SearchRequest is the low-level engine query this package sends. The
// retrieval package builds one of these per retrieval mode; this package
// only knows how to execute it.
type SearchRequest struct {
	YQL            string
	RankingProfile string
	Params         map[string]string
	Hits           int
	Offset         int
}

// RawHit is one undecoded search result, keyed by the engine's own field
// names.
type RawHit struct {
	Relevance float64        `json:"relevance"`
	Fields    map[string]any `json:"fields"`
}

type searchResponseEnvelope struct {
	Root struct {
		Children []RawHit `json:"children"`
	} `json:"root"`
}

// Search executes req against the engine's query API and returns the raw
// hits, in engine-returned order.
func (idx *Index) Search(ctx context.Context, req SearchRequest) ([]RawHit, error) {
	q := url.Values{}
	q.Set("yql", req.YQL)
	if req.RankingProfile != "" {
		q.Set("ranking.profile", req.RankingProfile)
	}
	hits := req.Hits
	if hits <= 0 {
		hits = 50
	}
	q.Set("hits", strconv.Itoa(hits))
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}
	for k, v := range req.Params {
		q.Set(k, v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, idx.searchPath()+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := idx.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("search request: unexpected status %s", resp.Status)
	}

	var env searchResponseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	// Hits are returned as-is, including the content-less rows the
	// document-id scan's projection produces (it never selects `content`
	// in the first place). Dropping null-content hits is the retrieval
	// decode path's job, not this shared transport's: the scan's own hits
	// would otherwise all be rejected here and every chunk-id lookup
	// would come back empty.
	return env.Root.Children, nil
}
