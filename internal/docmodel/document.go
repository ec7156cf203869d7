// Package docmodel defines the document, section, and chunk types shared by
// the chunking, indexing, engine-adapter, and retrieval packages.
package docmodel

import "time"

// DocumentRef is a weak reference to a Document by id. Chunk holds one of
// these rather than a pointer so chunks can be serialized, hashed, and
// compared independently of document lifetime.
type DocumentRef struct {
	ID string
}

// Document is the unit of ingestion handed to the indexing pipeline.
type Document struct {
	ID                 string            `json:"id"`
	Source             string            `json:"source"`
	SemanticIdentifier string            `json:"semantic_identifier"`
	Sections           []Section         `json:"sections"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	PrimaryOwners      []string          `json:"primary_owners,omitempty"`
	SecondaryOwners    []string          `json:"secondary_owners,omitempty"`

	// DocUpdatedAt is nil for untimed documents. When set it must be in
	// UTC; callers that pass a non-UTC time get an error at chunk time
	// rather than a silently wrong filter later.
	DocUpdatedAt *time.Time `json:"doc_updated_at,omitempty"`
}

// UTC reports whether DocUpdatedAt is either unset or already expressed in
// UTC. The chunker calls this instead of trusting callers.
func (d Document) UTC() bool {
	if d.DocUpdatedAt == nil {
		return true
	}
	return d.DocUpdatedAt.Location() == time.UTC
}

// Section is one logical piece of a document's content, carrying its own
// optional deep link.
type Section struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
}

// SourceLink pairs a character offset in a chunk's assembled text with the
// link of the section that contributed the text at that offset. Order is
// semantically meaningful (first occurrence wins on overlap), so this is a
// slice rather than a map.
type SourceLink struct {
	Offset int
	Link   string
}

// Chunk is a document-aware chunk, the output of the chunking stage and the
// input to the embedding stage.
type Chunk struct {
	Source             DocumentRef
	ChunkID            int
	Blurb              string
	Content            string
	SourceLinks        []SourceLink
	SectionContinuation bool

	// MiniChunkTexts holds optional sub-splits of Content used to build
	// multiple embedding vectors per chunk (spec mini-chunk support).
	MiniChunkTexts []string
}

// EmbeddedChunk adds vector representations to a Chunk. Embedding is
// order-preserving and length-preserving relative to the Chunk slice that
// produced it.
type EmbeddedChunk struct {
	Chunk
	Embedding      []float32
	MiniChunkEmbeddings []([]float32)
}

// MetadataAwareChunk adds document-level metadata resolved by the indexing
// pipeline (access control, document-set membership, boost/decay inputs)
// that the engine adapter needs but the chunker and embedder do not.
type MetadataAwareChunk struct {
	EmbeddedChunk

	DocumentID         string
	SourceType         string
	SemanticIdentifier string
	Title              string
	Metadata           map[string]string
	AccessUsers        []string
	AccessGroups       []string
	IsHidden           bool
	DocumentSets       []string
	Boost              int
	DocUpdatedAt       *time.Time
}

// EngineChunk is the flattened field set persisted to the search engine,
// matching the engine's schema field names one to one.
type EngineChunk struct {
	DocumentID         string
	ChunkID            int
	Blurb              string
	Content            string
	ContentSummary     string
	SourceLinks        string // JSON-encoded offset->link map, insertion ordered
	SemanticIdentifier string
	SectionContinuation bool
	SourceType         string
	Title              string
	Metadata           string // JSON-encoded
	AccessControlList  []string
	DocumentSets       []string
	Boost              int
	Hidden             bool
	DocUpdatedAtSecs   *int64
	Embedding          []float32
	MiniChunkEmbeddings []([]float32)
}

// InferenceChunk is a decoded search hit, returned to retrieval callers.
type InferenceChunk struct {
	DocumentID          string            `json:"document_id"`
	ChunkID             int               `json:"chunk_id"`
	Blurb               string            `json:"blurb"`
	Content             string            `json:"content"`
	SourceLinks         map[int]string    `json:"source_links,omitempty"`
	SemanticIdentifier  string            `json:"semantic_identifier"`
	SectionContinuation bool              `json:"section_continuation"`
	SourceType          string            `json:"source_type"`
	Boost               int               `json:"boost"`
	Hidden              bool              `json:"hidden"`
	Score               float64           `json:"score"`
	RecencyBias         float64           `json:"recency_bias,omitempty"`
	MatchHighlights     []string          `json:"match_highlights,omitempty"`
	DocUpdatedAt        *time.Time        `json:"doc_updated_at,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// IndexFilters describes the filter predicates a retrieval query must
// satisfy. ACL is mandatory whenever non-empty: the retrieval query builder
// always emits it, and no caller double-checks ACLs after retrieval.
type IndexFilters struct {
	ACL              []string
	SourceType       []string
	DocumentSets     []string
	TimeCutoff       *time.Time
	IncludeHidden    bool
}

// UpdateRequest describes a partial update to already-indexed chunks for one
// or more documents (boost, hidden flag, document-set membership, or access).
type UpdateRequest struct {
	DocumentIDs  []string
	Boost        *int
	Hidden       *bool
	DocumentSets *[]string
	AccessUsers  *[]string
	AccessGroups *[]string
}

// DocumentInsertionRecord reports, per document, whether any chunk for that
// document already existed in the index prior to this indexing pass.
type DocumentInsertionRecord struct {
	DocumentID     string
	AlreadyExisted bool
}
