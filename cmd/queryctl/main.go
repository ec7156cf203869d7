// Command queryctl runs a single retrieval-mode query against the search
// engine and prints the decoded hits as JSON, for local testing of the
// query builder and decoder against a live engine.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docsearch/internal/config"
	"docsearch/internal/docindex"
	"docsearch/internal/docmodel"
	"docsearch/internal/embedding"
	"docsearch/internal/observability"
	"docsearch/internal/retrieval"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		mode       = flag.String("mode", "keyword", "retrieval mode: keyword, semantic, hybrid, admin")
		query      = flag.String("query", "", "query text")
		acl        = flag.String("acl", "", "comma-separated access_control_list entries the caller holds")
		sourceType = flag.String("source-type", "", "comma-separated source_type filter")
		hits       = flag.Int("hits", 0, "override num_returned_hits")
		favorRecent = flag.Bool("favor-recent", false, "steepen ranking decay toward recently-updated documents")
	)
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "-query is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	m, err := parseMode(*mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx := context.Background()

	var queryEmbedding []float32
	if m == retrieval.Semantic || m == retrieval.Hybrid {
		vecs, err := embedding.EmbedText(ctx, cfg.Embedding, []string{*query})
		if err != nil {
			log.Fatal().Err(err).Msg("embed query")
		}
		queryEmbedding = vecs[0]
	}

	numHits := *hits
	if numHits <= 0 {
		numHits = cfg.Retrieval.NumReturnedHits
	}

	engineHTTPClient := observability.NewHTTPClient(nil)
	if len(cfg.Engine.ExtraHeaders) > 0 {
		engineHTTPClient = observability.WithHeaders(engineHTTPClient, cfg.Engine.ExtraHeaders)
	}
	searcher := docindex.New(cfg.Engine, cfg.Indexing, engineHTTPClient, log)
	builder := retrieval.NewQueryBuilder(cfg.Engine.IndexName, cfg.Retrieval.EditKeywordQuery, cfg.Retrieval.UntimedDocCutoffDays, cfg.Retrieval.DocTimeDecay, cfg.Retrieval.FavorRecentDecayMultiplier)
	decoder := retrieval.NewDecoder(cfg.Retrieval.MaxSummaryLen)
	retriever := retrieval.NewRetriever(searcher, builder, decoder)

	req := retrieval.QueryRequest{
		Query:          *query,
		QueryEmbedding: queryEmbedding,
		NumHits:        numHits,
		DistanceCutoff: cfg.Retrieval.SearchDistanceCutoff,
		FavorRecent:    *favorRecent,
		Filters: docmodel.IndexFilters{
			ACL:           splitCSV(*acl),
			SourceType:    splitCSV(*sourceType),
			IncludeHidden: m == retrieval.Admin,
		},
	}

	results, err := retriever.Retrieve(ctx, m, req)
	if err != nil {
		log.Fatal().Err(err).Msg("retrieve")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		log.Fatal().Err(err).Msg("encode results")
	}
}

func parseMode(s string) (retrieval.Mode, error) {
	switch strings.ToLower(s) {
	case "keyword":
		return retrieval.Keyword, nil
	case "semantic":
		return retrieval.Semantic, nil
	case "hybrid":
		return retrieval.Hybrid, nil
	case "admin":
		return retrieval.Admin, nil
	default:
		return 0, fmt.Errorf("unknown mode %q: want keyword, semantic, hybrid, or admin", s)
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
