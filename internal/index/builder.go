package index

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"

	"openapi-mcp-server/internal/apierr"
	"openapi-mcp-server/internal/logging"
)

// BuildStats summarizes one index build.
type BuildStats struct {
	Generation    string `json:"generation"`
	DocumentCount uint64 `json:"document_count"`
	FieldCount    int    `json:"field_count"`
	SizeBytes     int64  `json:"size_bytes"`
}

// Builder writes search documents into a new generation directory in
// batches. The caller validates the stats against the relational store and
// commits the generation with an Activate swap.
type Builder struct {
	generations *Generations
	batchSize   int
	logger      logging.Logger
}

// NewBuilder creates an index builder. batchSize <= 0 selects the default
// of 100 documents per batch.
func NewBuilder(generations *Generations, batchSize int, logger logging.Logger) *Builder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = logging.WithComponent("index")
	}
	return &Builder{generations: generations, batchSize: batchSize, logger: logger}
}

// Build writes all documents into a fresh generation and returns its stats.
// A document count differing from len(docs) is a hard error; the caller
// removes the orphaned generation. The generation is not activated here.
func (b *Builder) Build(ctx context.Context, docs []*SearchDocument) (*BuildStats, error) {
	im, err := buildMapping()
	if err != nil {
		return nil, apierr.NewIndex("failed to build index mapping", err)
	}

	stamp := b.generations.NewStamp()
	path := b.generations.PathFor(stamp)
	idx, err := bleve.New(path, im)
	if err != nil {
		return nil, apierr.NewIndex("failed to create index generation", err)
	}

	cleanup := func() {
		_ = idx.Close()
		_ = b.generations.Remove(stamp)
	}

	batch := idx.NewBatch()
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			cleanup()
			return nil, apierr.NewIndex("index build cancelled", err)
		}
		if err := batch.Index(doc.EndpointID, doc); err != nil {
			cleanup()
			return nil, apierr.NewIndex(fmt.Sprintf("failed to batch document %s", doc.EndpointID), err)
		}
		if batch.Size() >= b.batchSize || i == len(docs)-1 {
			if err := idx.Batch(batch); err != nil {
				cleanup()
				return nil, apierr.NewIndex("failed to flush index batch", err)
			}
			batch = idx.NewBatch()
		}
	}

	count, err := idx.DocCount()
	if err != nil {
		cleanup()
		return nil, apierr.NewIndex("failed to count index documents", err)
	}
	if count != uint64(len(docs)) {
		cleanup()
		return nil, apierr.NewIndex(fmt.Sprintf(
			"index document count %d does not match source count %d", count, len(docs)), nil)
	}

	fields, err := idx.Fields()
	if err != nil {
		cleanup()
		return nil, apierr.NewIndex("failed to list index fields", err)
	}

	if err := idx.Close(); err != nil {
		_ = b.generations.Remove(stamp)
		return nil, apierr.NewIndex("failed to close index generation", err)
	}

	stats := &BuildStats{
		Generation:    stamp,
		DocumentCount: count,
		FieldCount:    len(fields),
		SizeBytes:     dirSize(path),
	}
	b.logger.InfoContext(ctx, "index generation built",
		"generation", stamp, "documents", count, "fields", stats.FieldCount,
		"bytes", stats.SizeBytes)
	return stats, nil
}
