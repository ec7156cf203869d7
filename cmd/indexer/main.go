// Command indexer runs one indexing pass over a batch of documents read as
// newline-delimited JSON, wiring the chunker, embedder, record store, and
// engine adapter together through internal/indexing.Pipeline.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"docsearch/internal/chunking"
	"docsearch/internal/config"
	"docsearch/internal/docindex"
	"docsearch/internal/docmodel"
	"docsearch/internal/embedding"
	"docsearch/internal/indexing"
	"docsearch/internal/observability"
	"docsearch/internal/recordstore"
)

func main() {
	var (
		configPath   = flag.String("config", "config.yaml", "path to config.yaml")
		inputPath    = flag.String("input", "", "newline-delimited JSON document file (default: stdin)")
		connectorID  = flag.Int("connector-id", 0, "connector id attributed to this batch")
		credentialID = flag.Int("credential-id", 0, "credential id attributed to this batch")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	logger := log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitOTel(ctx, cfg.Telemetry)
		if err != nil {
			log.Warn().Err(err).Msg("telemetry disabled: init failed")
		} else {
			defer shutdown(ctx) //nolint:errcheck
		}
	}

	if err := embedding.CheckReachability(ctx, cfg.Embedding); err != nil {
		log.Fatal().Err(err).Msg("embedding endpoint unreachable")
	}

	store, err := recordstore.Open(ctx, cfg.RecordStore.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open record store")
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure record store schema")
	}

	engineHTTPClient := observability.NewHTTPClient(nil)
	if len(cfg.Engine.ExtraHeaders) > 0 {
		engineHTTPClient = observability.WithHeaders(engineHTTPClient, cfg.Engine.ExtraHeaders)
	}
	engineIndex := docindex.New(cfg.Engine, cfg.Indexing, engineHTTPClient, logger)

	pipeline := &indexing.Pipeline{
		Chunker: chunking.NewDefaultChunker(
			chunking.WhitespaceTokenizer{},
			nil,
			chunking.Config{
				ChunkTokens:        cfg.Chunking.ChunkSize,
				ChunkOverlapTokens: cfg.Chunking.ChunkOverlap,
				BlurbTokens:        cfg.Chunking.BlurbSize,
				MiniChunkTokens:    cfg.Chunking.MiniChunkSize,
			},
		),
		Embedder:    embedding.NewChunkEmbedder(cfg.Embedding),
		RecordStore: store,
		Engine:      engineIndex,
		Log:         logger,
	}

	in := io.Reader(os.Stdin)
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *inputPath).Msg("open input")
		}
		defer f.Close()
		in = f
	}

	documents, err := readDocuments(in)
	if err != nil {
		log.Fatal().Err(err).Msg("read documents")
	}
	if len(documents) == 0 {
		log.Warn().Msg("no documents on input, nothing to do")
		return
	}

	start := time.Now()
	newDocs, chunkCount, err := pipeline.Run(ctx, documents, indexing.AttemptMetadata{
		ConnectorID:  *connectorID,
		CredentialID: *credentialID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("indexing pass failed")
	}

	log.Info().
		Int("documents", len(documents)).
		Int("new_documents", newDocs).
		Int("chunks_written", chunkCount).
		Dur("elapsed", time.Since(start)).
		Msg("indexing pass complete")
}

// inputDocument is the wire shape accepted on stdin; doc_updated_at, when
// present, must be RFC3339 and is converted to UTC on read.
type inputDocument struct {
	ID                 string            `json:"id"`
	Source             string            `json:"source"`
	SemanticIdentifier string            `json:"semantic_identifier"`
	Sections           []docmodel.Section `json:"sections"`
	Metadata           map[string]string `json:"metadata"`
	PrimaryOwners      []string          `json:"primary_owners"`
	SecondaryOwners    []string          `json:"secondary_owners"`
	DocUpdatedAt       *time.Time        `json:"doc_updated_at"`
}

func readDocuments(r io.Reader) ([]docmodel.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var docs []docmodel.Document
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var in inputDocument
		if err := json.Unmarshal(line, &in); err != nil {
			return nil, fmt.Errorf("decode document line: %w", err)
		}
		doc := docmodel.Document{
			ID:                 in.ID,
			Source:             in.Source,
			SemanticIdentifier: in.SemanticIdentifier,
			Sections:           in.Sections,
			Metadata:           in.Metadata,
			PrimaryOwners:      in.PrimaryOwners,
			SecondaryOwners:    in.SecondaryOwners,
		}
		if in.DocUpdatedAt != nil {
			utc := in.DocUpdatedAt.UTC()
			doc.DocUpdatedAt = &utc
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	return docs, nil
}
