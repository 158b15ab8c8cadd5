// Package ingest turns stored document blobs into searchable chunks and
// drives the document status state machine.
//
// A document enters the pipeline in "processing". The pipeline downloads
// the blob, extracts text, splits it into chunks, embeds every chunk as one
// logical batch, and commits the chunk set atomically before marking the
// document "ready". Any step failing marks the document "error" with the
// cause logged; pipeline failures are never propagated to the uploader,
// who has long since received their response.
package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/chunk"
	"github.com/tbourn/go-docqa-backend/internal/domain"
	"github.com/tbourn/go-docqa-backend/internal/extract"
	"github.com/tbourn/go-docqa-backend/internal/repo"
	"github.com/tbourn/go-docqa-backend/internal/storage"
	"github.com/tbourn/go-docqa-backend/internal/vectorstore"
)

// Embedder is the slice of the provider client the pipeline needs.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer is the slice of the vector store the pipeline needs.
type Indexer interface {
	ReplaceDocument(ctx context.Context, docID string, entries []vectorstore.Entry) error
}

// Pipeline processes one document at a time from blob to ready.
type Pipeline struct {
	db       *gorm.DB
	blobs    storage.Store
	splitter *chunk.Splitter
	embedder Embedder
	index    Indexer
	log      zerolog.Logger
}

// NewPipeline wires the pipeline's collaborators.
func NewPipeline(db *gorm.DB, blobs storage.Store, splitter *chunk.Splitter, embedder Embedder, index Indexer, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		db:       db,
		blobs:    blobs,
		splitter: splitter,
		embedder: embedder,
		index:    index,
		log:      log.With().Str("component", "ingest").Logger(),
	}
}

// Process runs the full ingestion sequence for a document already in the
// "processing" state. The returned error mirrors what was logged; callers
// running detached may ignore it, the document status is authoritative.
func (p *Pipeline) Process(ctx context.Context, docID string) error {
	log := p.log.With().Str("document_id", docID).Logger()

	var doc domain.Document
	if err := p.db.WithContext(ctx).Unscoped().Where("id = ?", docID).First(&doc).Error; err != nil {
		log.Error().Err(err).Msg("ingest: document lookup failed")
		return err
	}
	if doc.Status != domain.StatusProcessing {
		err := fmt.Errorf("ingest: document %s is %q, not %q", docID, doc.Status, domain.StatusProcessing)
		log.Warn().Str("status", doc.Status).Msg("ingest: skipping document not in processing state")
		return err
	}

	if err := p.run(ctx, &doc, log); err != nil {
		log.Error().Err(err).Str("file_name", doc.FileName).Msg("ingest: pipeline failed")
		// The status write must survive a cancelled pipeline context: "error"
		// is the only state retry accepts, so failing to record it would
		// strand the document in "processing".
		if serr := repo.SetStatus(context.WithoutCancel(ctx), p.db, docID, domain.StatusError); serr != nil {
			log.Error().Err(serr).Msg("ingest: failed to record error status")
		}
		return err
	}

	if err := repo.TransitionStatus(ctx, p.db, docID, domain.StatusProcessing, domain.StatusReady); err != nil {
		log.Error().Err(err).Msg("ingest: failed to mark document ready")
		return err
	}
	log.Info().Str("file_name", doc.FileName).Msg("ingest: document ready")
	return nil
}

// run executes the download -> extract -> chunk -> embed -> index sequence.
func (p *Pipeline) run(ctx context.Context, doc *domain.Document, log zerolog.Logger) error {
	data, err := p.blobs.Download(ctx, doc.StoragePath)
	if err != nil {
		return fmt.Errorf("download blob: %w", err)
	}

	format, err := extract.DetectFormat(doc.MimeType)
	if err != nil {
		return err
	}
	text, err := extract.Extract(data, format)
	if err != nil {
		return err
	}

	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		// Split returns nil only for whitespace-only input, which Extract
		// already rejects; treat it as the same failure if it ever happens.
		return extract.ErrEmptyContent
	}
	log.Debug().Int("chunks", len(chunks)).Msg("ingest: text chunked")

	vectors, err := p.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d vectors for %d chunks", len(vectors), len(chunks))
	}

	entries := make([]vectorstore.Entry, len(chunks))
	for i := range chunks {
		entries[i] = vectorstore.Entry{Content: chunks[i], Embedding: vectors[i]}
	}
	if err := p.index.ReplaceDocument(ctx, doc.ID, entries); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	return nil
}
