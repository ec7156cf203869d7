package docindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"docsearch/internal/docmodel"
)

// Update applies partial field updates to every chunk of each named
// document, without requiring the caller to re-chunk or re-embed.
func (idx *Index) Update(ctx context.Context, reqs []docmodel.UpdateRequest) error {
	for _, r := range reqs {
		assign := buildPartialUpdateFields(r)
		if len(assign) == 0 {
			continue
		}
		for _, docID := range r.DocumentIDs {
			engineIDs, err := idx.scanEngineIDs(ctx, docID)
			if err != nil {
				return err
			}
			for _, engineID := range engineIDs {
				if err := idx.applyPartialUpdate(ctx, engineID, assign); err != nil {
					return fmt.Errorf("update chunk of document %s: %w", docID, err)
				}
			}
		}
	}
	return nil
}

func buildPartialUpdateFields(r docmodel.UpdateRequest) map[string]any {
	assign := map[string]any{}
	if r.Boost != nil {
		assign["boost"] = map[string]any{"assign": *r.Boost}
	}
	if r.Hidden != nil {
		assign["hidden"] = map[string]any{"assign": *r.Hidden}
	}
	if r.DocumentSets != nil {
		assign["document_sets"] = map[string]any{"assign": weightedSet(*r.DocumentSets)}
	}
	if r.AccessUsers != nil || r.AccessGroups != nil {
		var acl []string
		if r.AccessUsers != nil {
			acl = append(acl, *r.AccessUsers...)
		}
		if r.AccessGroups != nil {
			for _, g := range *r.AccessGroups {
				acl = append(acl, "group:"+g)
			}
		}
		assign["access_control_list"] = map[string]any{"assign": weightedSet(acl)}
	}
	return assign
}

func (idx *Index) applyPartialUpdate(ctx context.Context, engineID string, fields map[string]any) error {
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return fmt.Errorf("marshal partial update: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, idx.docPath(engineID), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
