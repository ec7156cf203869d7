package retrieval

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"docsearch/internal/docindex"
	"docsearch/internal/docmodel"
)

const dynamicSummarySeparator = "<sep />"

// punctuation mirrors Python's string.punctuation, used to strip a single
// trailing punctuation character from a truncated summary section.
const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Decoder turns raw engine hits into InferenceChunks.
type Decoder struct {
	MaxSummaryLen int
}

func NewDecoder(maxSummaryLen int) *Decoder {
	if maxSummaryLen <= 0 {
		maxSummaryLen = 400
	}
	return &Decoder{MaxSummaryLen: maxSummaryLen}
}

// DecodeHits decodes every hit, skipping any whose content field is missing
// or empty rather than failing the whole result set.
func (d *Decoder) DecodeHits(hits []docindex.RawHit) []docmodel.InferenceChunk {
	out := make([]docmodel.InferenceChunk, 0, len(hits))
	for _, h := range hits {
		chunk, ok := d.DecodeHit(h)
		if !ok {
			continue
		}
		out = append(out, chunk)
	}
	return out
}

// DecodeHit decodes one raw hit. ok is false when the hit has no usable
// content, in which case the caller should drop it (and typically log it)
// rather than surface a zero-value chunk.
func (d *Decoder) DecodeHit(h docindex.RawHit) (docmodel.InferenceChunk, bool) {
	content, _ := h.Fields["content"].(string)
	if content == "" {
		return docmodel.InferenceChunk{}, false
	}

	// The dynamic summary (highlighted excerpt) falls back to the full
	// content field when the engine's content_summary isn't present on
	// this hit, matching the decoder's own fallback.
	dynamicSummary, _ := h.Fields["content_summary"].(string)
	if dynamicSummary == "" {
		dynamicSummary = content
	}

	chunk := docmodel.InferenceChunk{
		DocumentID:          stringField(h.Fields, "document_id"),
		ChunkID:             intField(h.Fields, "chunk_id"),
		Blurb:               stringField(h.Fields, "blurb"),
		Content:             content,
		SemanticIdentifier:  stringField(h.Fields, "semantic_identifier"),
		SourceType:          stringField(h.Fields, "source_type"),
		SectionContinuation: boolField(h.Fields, "section_continuation"),
		Boost:               intFieldOrDefault(h.Fields, "boost", 1),
		Hidden:              boolField(h.Fields, "hidden"),
		Score:               h.Relevance,
		RecencyBias:         recencyBiasField(h.Fields),
		SourceLinks:         decodeSourceLinks(stringField(h.Fields, "source_links")),
		Metadata:            decodeMetadata(stringField(h.Fields, "metadata")),
		MatchHighlights:     d.ProcessDynamicSummary(dynamicSummary),
	}

	if secs := h.Fields["doc_updated_at"]; secs != nil {
		if v, ok := toInt64(secs); ok && v >= 0 {
			t := time.Unix(v, 0).UTC()
			chunk.DocUpdatedAt = &t
		}
	}

	return chunk, true
}

// ProcessDynamicSummary splits the engine's dynamic summary (built from
// matched-term highlighting) on its section separator, accumulating
// sections up to MaxSummaryLen characters. The section that would cross the
// budget is truncated at the last word boundary and given a trailing
// ellipsis; if it has no word boundary to cut at, the ellipsis is appended
// to the previous section instead and the partial section is dropped.
func (d *Decoder) ProcessDynamicSummary(summary string) []string {
	if summary == "" {
		return nil
	}

	var processed []string
	currentLength := 0
	for _, section := range strings.Split(summary, dynamicSummarySeparator) {
		if currentLength+len(section) >= d.MaxSummaryLen {
			section = strings.TrimLeft(section[:d.MaxSummaryLen-currentLength], " ")

			firstSpace := strings.Index(section, " ")
			if firstSpace == -1 {
				if len(processed) > 0 {
					processed[len(processed)-1] += "..."
				}
				break
			}

			section = section[:strings.LastIndex(section, " ")]
			if last := section[len(section)-1:]; strings.ContainsAny(last, punctuation) {
				section = section[:len(section)-1]
			}
			section += "..."
			processed = append(processed, section)
			break
		}

		processed = append(processed, section)
		currentLength += len(section)
	}
	return processed
}

func decodeSourceLinks(raw string) map[int]string {
	if raw == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	out := make(map[int]string, len(m))
	for k, v := range m {
		if n, err := strconv.Atoi(k); err == nil {
			out[n] = v
		}
	}
	return out
}

func decodeMetadata(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

func stringField(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	return v
}

func boolField(fields map[string]any, key string) bool {
	v, _ := fields[key].(bool)
	return v
}

func intField(fields map[string]any, key string) int {
	v, ok := toInt64(fields[key])
	if !ok {
		return 0
	}
	return int(v)
}

// intFieldOrDefault is intField with a caller-supplied fallback for a field
// the engine may have never written (e.g. boost on older documents).
func intFieldOrDefault(fields map[string]any, key string, def int) int {
	v, ok := toInt64(fields[key])
	if !ok {
		return def
	}
	return int(v)
}

// recencyBiasField reads matchfeatures.recency_bias, the per-hit score
// provenance every ranking profile is required to emit.
func recencyBiasField(fields map[string]any) float64 {
	mf, ok := fields["matchfeatures"].(map[string]any)
	if !ok {
		return 0
	}
	v, _ := toFloat64(mf["recency_bias"])
	return v
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
