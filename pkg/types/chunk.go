package types

import (
	"errors"
	"fmt"
	"time"
)

// ChunkMetadata carries the descriptive fields of a chunk's source document
type ChunkMetadata struct {
	Filename   string `json:"filename"`
	PageNumber *int   `json:"page_number,omitempty"` // Nullable - not every format is paginated
	ChunkIndex int    `json:"chunk_index"`
}

// ScoredChunk is a retrieved document fragment with a stage-local score.
//
// Scores are only comparable with other scores produced by the same stage:
// vector similarity, lexical rank, fused weight and rerank relevance all use
// different scales.
type ScoredChunk struct {
	// Identification
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`

	// Content
	Content string  `json:"content"`
	Score   float64 `json:"score"`

	// Metadata
	Metadata     ChunkMetadata `json:"metadata"`
	Tags         []string      `json:"tags,omitempty"`
	DocumentType string        `json:"document_type,omitempty"`
	CreatedAt    *time.Time    `json:"created_at,omitempty"`
}

// SourceLabel returns the human-readable citation label for the chunk
func (c *ScoredChunk) SourceLabel() string {
	name := c.Metadata.Filename
	if name == "" {
		name = c.DocumentID
	}
	if c.Metadata.PageNumber != nil {
		return fmt.Sprintf("%s (p. %d)", name, *c.Metadata.PageNumber)
	}
	return name
}

// Validate checks that the chunk can be placed in a result set
func (c *ScoredChunk) Validate() error {
	if c.ID == "" {
		return ErrInvalidChunkID
	}
	if c.DocumentID == "" {
		return ErrMissingDocumentID
	}
	if c.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// FusedResult is a chunk whose Score is the weighted sum of its vector and
// full-text scores. A fused result set never contains the same ID twice.
type FusedResult struct {
	ScoredChunk

	// Per-stage contributions, unweighted
	VectorScore   float64 `json:"vector_score"`
	FullTextScore float64 `json:"fulltext_score"`
	InVector      bool    `json:"in_vector"`
	InFullText    bool    `json:"in_fulltext"`

	// Reranked is set when Score holds a rerank relevance instead of the fused weight
	Reranked bool `json:"reranked,omitempty"`
}

// Chunks returns the ScoredChunk view of fused results, preserving order
func Chunks(results []FusedResult) []ScoredChunk {
	chunks := make([]ScoredChunk, len(results))
	for i := range results {
		chunks[i] = results[i].ScoredChunk
	}
	return chunks
}

// Clone returns a deep copy of the chunk
func (c ScoredChunk) Clone() ScoredChunk {
	out := c
	if c.Metadata.PageNumber != nil {
		page := *c.Metadata.PageNumber
		out.Metadata.PageNumber = &page
	}
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	if c.CreatedAt != nil {
		created := *c.CreatedAt
		out.CreatedAt = &created
	}
	return out
}

var errNoRetrievalSource = errors.New("fused result has neither a vector nor a full-text source")

// Validate checks the fused result invariant: at least one retrieval source
func (r *FusedResult) Validate() error {
	if !r.InVector && !r.InFullText {
		return errNoRetrievalSource
	}
	return r.ScoredChunk.Validate()
}
