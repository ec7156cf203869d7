package retrieval

import (
	"strings"
	"testing"
	"time"

	"docsearch/internal/docmodel"

	"github.com/stretchr/testify/require"
)

func TestBuild_ACLFilterAlwaysPresentWhenNonEmpty(t *testing.T) {
	qb := NewQueryBuilder("test_chunk", false, 92, 0.5, 2.0)
	req := QueryRequest{Query: "hello", Filters: docmodel.IndexFilters{ACL: []string{"user:alice", "group:eng"}}}

	for _, mode := range []Mode{Keyword, Semantic, Hybrid, Admin} {
		sr := qb.Build(mode, req)
		require.Contains(t, sr.YQL, "access_control_list contains 'user:alice'")
		require.Contains(t, sr.YQL, "access_control_list contains 'group:eng'")
	}
}

func TestBuild_AdminModeIncludesHiddenDocuments(t *testing.T) {
	qb := NewQueryBuilder("test_chunk", false, 92, 0.5, 2.0)
	req := QueryRequest{Query: "hello"}

	admin := qb.Build(Admin, req)
	keyword := qb.Build(Keyword, req)

	require.NotContains(t, admin.YQL, "hidden = false")
	require.Contains(t, keyword.YQL, "hidden = false")
}

func TestBuild_KeywordVsSemanticVsHybridMatchClauses(t *testing.T) {
	qb := NewQueryBuilder("test_chunk", false, 92, 0.5, 2.0)
	req := QueryRequest{Query: "find me", QueryEmbedding: []float32{0.1, 0.2}, NumHits: 20}

	kw := qb.Build(Keyword, req)
	require.Contains(t, kw.YQL, "userInput(@query)")
	require.Contains(t, kw.YQL, "content_summary")
	require.NotContains(t, kw.YQL, "nearestNeighbor")
	require.Equal(t, "keyword_search", kw.RankingProfile)

	sem := qb.Build(Semantic, req)
	require.Contains(t, sem.YQL, "nearestNeighbor(embeddings, q)")
	require.Contains(t, sem.YQL, "targetHits: 200")
	require.Contains(t, sem.YQL, "userInput")
	require.Contains(t, sem.YQL, "content_summary")
	require.Equal(t, "semantic_search", sem.RankingProfile)
	require.Contains(t, sem.Params, "input.query(q)")

	hyb := qb.Build(Hybrid, req)
	require.Contains(t, hyb.YQL, "userInput(@query)")
	require.Contains(t, hyb.YQL, "nearestNeighbor")
	require.Contains(t, hyb.YQL, "targetHits: 1000")
	require.Contains(t, hyb.YQL, "content_summary")
	require.Equal(t, "hybrid_search", hyb.RankingProfile)
}

func TestBuild_UntimedDocumentsIncludedOnlyPastGraceWindow(t *testing.T) {
	qb := NewQueryBuilder("test_chunk", false, 92, 0.5, 2.0)

	recentCutoff := time.Now().AddDate(0, 0, -10)
	reqRecent := QueryRequest{Query: "x", Filters: docmodel.IndexFilters{TimeCutoff: &recentCutoff}}
	recent := qb.Build(Keyword, reqRecent)
	require.NotContains(t, recent.YQL, "doc_updated_at = -1")

	oldCutoff := time.Now().AddDate(0, 0, -120)
	reqOld := QueryRequest{Query: "x", Filters: docmodel.IndexFilters{TimeCutoff: &oldCutoff}}
	old := qb.Build(Keyword, reqOld)
	require.Contains(t, old.YQL, "doc_updated_at = -1")
}

func TestBuild_EditKeywordQueryCollapsesWhitespace(t *testing.T) {
	qb := NewQueryBuilder("test_chunk", true, 92, 0.5, 2.0)
	req := QueryRequest{Query: "hello   world  "}

	sr := qb.Build(Keyword, req)
	require.Equal(t, "hello world", sr.Params["query"])
}

func TestEscapeYQL_EscapesSingleQuotes(t *testing.T) {
	got := escapeYQL("o'brien")
	require.True(t, strings.Contains(got, "\\'"))
}
