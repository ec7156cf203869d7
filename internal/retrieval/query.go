// Package retrieval builds engine queries for the four retrieval modes and
// decodes engine hits back into InferenceChunks. It uses docindex.Index as
// its transport and owns no HTTP logic of its own.
package retrieval

import (
	"fmt"
	"strings"
	"time"

	"docsearch/internal/docindex"
	"docsearch/internal/docmodel"
)

// Mode selects one of the four retrieval strategies.
type Mode int

const (
	Keyword Mode = iota
	Semantic
	Hybrid
	Admin
)

// rankingProfile names the schema's rank-profile for each mode.
func (m Mode) rankingProfile() string {
	switch m {
	case Keyword:
		return "keyword_search"
	case Semantic:
		return "semantic_search"
	case Hybrid:
		return "hybrid_search"
	case Admin:
		return "admin_search"
	default:
		return "keyword_search"
	}
}

// QueryRequest is the caller-facing request for any retrieval mode.
type QueryRequest struct {
	Query          string
	QueryEmbedding []float32
	Filters        docmodel.IndexFilters
	NumHits        int
	Offset         int
	DistanceCutoff float64

	// FavorRecent steepens the document-age ranking decay by
	// FavorRecentDecayMultiplier, for callers that want to bias results
	// toward recently-updated documents.
	FavorRecent bool
}

// QueryBuilder turns a QueryRequest into the engine SearchRequest for a
// given mode, applying the mode-specific match clause and the shared
// filter predicate in a fixed order: hidden, ACL, source type, document
// set, time cutoff.
type QueryBuilder struct {
	IndexName                  string
	EditKeywordQuery           bool
	UntimedDocCutoffDays       int
	DocTimeDecay               float64
	FavorRecentDecayMultiplier float64
}

func NewQueryBuilder(indexName string, editKeywordQuery bool, untimedDocCutoffDays int, docTimeDecay, favorRecentDecayMultiplier float64) *QueryBuilder {
	return &QueryBuilder{
		IndexName:                  indexName,
		EditKeywordQuery:           editKeywordQuery,
		UntimedDocCutoffDays:       untimedDocCutoffDays,
		DocTimeDecay:               docTimeDecay,
		FavorRecentDecayMultiplier: favorRecentDecayMultiplier,
	}
}

// defaultNumToRetrieve mirrors docindex.Search's own hits default, so NN
// targetHits sizing and the actual hits requested agree when the caller
// doesn't set NumHits.
const defaultNumToRetrieve = 50

// Build assembles the full YQL statement and ranking parameters for mode.
func (qb *QueryBuilder) Build(mode Mode, req QueryRequest) docindex.SearchRequest {
	numToRetrieve := req.NumHits
	if numToRetrieve <= 0 {
		numToRetrieve = defaultNumToRetrieve
	}

	filterClause := qb.buildFilterClause(req.Filters, mode == Admin)
	matchClause := qb.buildMatchClause(mode, numToRetrieve)

	yql := fmt.Sprintf("select * from %s where %s%s", qb.IndexName, filterClause, matchClause)

	q := req.Query
	if mode == Keyword && qb.EditKeywordQuery {
		q = editKeywordQuery(q)
	}

	params := map[string]string{
		"query":                      q,
		"input.query(decay_factor)": fmt.Sprintf("%f", qb.decayFactor(req.FavorRecent)),
	}
	if mode == Semantic || mode == Hybrid {
		params["input.query(q)"] = embeddingLiteral(req.QueryEmbedding)
	}
	if req.DistanceCutoff > 0 {
		params["ranking.matching.distanceThreshold"] = fmt.Sprintf("%f", req.DistanceCutoff)
	}

	return docindex.SearchRequest{
		YQL:            yql,
		RankingProfile: mode.rankingProfile(),
		Params:         params,
		Hits:           req.NumHits,
		Offset:         req.Offset,
	}
}

// decayFactor is the value every ranking profile receives as
// input.query(decay_factor): the configured base decay, steepened by
// FavorRecentDecayMultiplier when the caller asks to favor recent documents.
func (qb *QueryBuilder) decayFactor(favorRecent bool) float64 {
	if favorRecent {
		return qb.DocTimeDecay * qb.FavorRecentDecayMultiplier
	}
	return qb.DocTimeDecay
}

// buildFilterClause assembles the WHERE-prefix common to every mode. ACL is
// emitted whenever non-empty with no post-retrieval double-check elsewhere
// in this codebase — the engine itself is the single point of enforcement.
func (qb *QueryBuilder) buildFilterClause(f docmodel.IndexFilters, includeHidden bool) string {
	var parts []string

	if !includeHidden && !f.IncludeHidden {
		parts = append(parts, "hidden = false")
	}
	if len(f.ACL) > 0 {
		parts = append(parts, orContainsFilter("access_control_list", f.ACL))
	}
	if len(f.SourceType) > 0 {
		parts = append(parts, orContainsFilter("source_type", f.SourceType))
	}
	if len(f.DocumentSets) > 0 {
		parts = append(parts, orContainsFilter("document_sets", f.DocumentSets))
	}
	if f.TimeCutoff != nil {
		parts = append(parts, timeCutoffFilter(*f.TimeCutoff, qb.UntimedDocCutoffDays))
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " and ") + " and "
}

// orContainsFilter builds a "(key contains 'v1' or key contains 'v2')"
// predicate for a multi-value filter field; the caller joins predicates
// with " and ".
func orContainsFilter(field string, values []string) string {
	var clauses []string
	for _, v := range values {
		clauses = append(clauses, fmt.Sprintf(`%s contains '%s'`, field, escapeYQL(v)))
	}
	return "(" + strings.Join(clauses, " or ") + ")"
}

// timeCutoffFilter allows documents updated after cutoff. Untimed documents
// (sentinel doc_updated_at = -1, matching the engine adapter's write path)
// only make sense to include once the cutoff itself has aged past the
// untimed grace window: a caller asking for "updated in the last 10 days"
// has no basis to also want documents with no timestamp at all, but a
// caller asking for "updated since 120 days ago" is past the point where
// withholding untimed documents serves any purpose, so they're let back in.
func timeCutoffFilter(cutoff time.Time, untimedGraceDays int) string {
	secs := cutoff.Unix()
	graceHorizon := time.Now().AddDate(0, 0, -untimedGraceDays)
	if cutoff.Before(graceHorizon) {
		return fmt.Sprintf("(doc_updated_at >= %d or doc_updated_at = -1)", secs)
	}
	return fmt.Sprintf("doc_updated_at >= %d", secs)
}

// buildMatchClause returns the mode-specific match predicate. The actual
// query text and embedding travel as request parameters ("query",
// "input.query(q)"), not inlined into the YQL string, so user input never
// needs manual escaping inside the statement itself. Every mode ORs in a
// content_summary userInput match so the engine can compute highlights
// against the full chunk text even when the primary match came from a
// vector or weakAnd hit elsewhere.
func (qb *QueryBuilder) buildMatchClause(mode Mode, numToRetrieve int) string {
	const highlightClause = `({defaultIndex: "content_summary"}userInput(@query))`
	semanticTargetHits := 10 * numToRetrieve
	hybridTargetHits := 10 * numToRetrieve
	if hybridTargetHits < 1000 {
		hybridTargetHits = 1000
	}

	switch mode {
	case Semantic:
		return fmt.Sprintf(`({targetHits: %d}nearestNeighbor(embeddings, q) or %s)`, semanticTargetHits, highlightClause)
	case Hybrid:
		return fmt.Sprintf(`({grammar: "weakAnd"}userInput(@query) or {targetHits: %d}nearestNeighbor(embeddings, q) or %s)`, hybridTargetHits, highlightClause)
	case Keyword, Admin:
		return fmt.Sprintf(`({grammar: "weakAnd"}userInput(@query) or %s)`, highlightClause)
	default:
		return fmt.Sprintf(`({grammar: "weakAnd"}userInput(@query) or %s)`, highlightClause)
	}
}

// editKeywordQuery applies the same light query-rewriting the keyword mode
// optionally performs before sending terms to the engine (collapsing
// repeated whitespace, trimming). It is intentionally conservative: this
// module doesn't own natural-language query understanding.
func editKeywordQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func escapeYQL(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

func embeddingLiteral(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
