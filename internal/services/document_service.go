// Package services – DocumentService
//
// This file implements the DocumentService, which owns the document
// lifecycle outside the ingestion pipeline itself: the two-phase upload
// (reserve a storage target, then confirm once the bytes landed), listing,
// starring, trash, hard purge, and manual retry. Status transitions are
// delegated to the repo layer's guarded updates; the actual
// extract/chunk/embed work happens on the background pool.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/domain"
	"github.com/tbourn/go-docqa-backend/internal/extract"
	"github.com/tbourn/go-docqa-backend/internal/repo"
	"github.com/tbourn/go-docqa-backend/internal/storage"
)

// Submitter enqueues a document for background ingestion.
// Satisfied by *ingest.Pool.
type Submitter interface {
	Submit(docID string) error
}

// ChunkIndex is the slice of the vector store the service needs for retry
// cleanup.
type ChunkIndex interface {
	DeleteDocument(ctx context.Context, docID string) error
}

// UploadReservation is returned by ReserveUpload: the created document plus
// where the client should send the bytes.
type UploadReservation struct {
	Document *domain.Document
	Target   storage.Target
}

// DocumentService coordinates document lifecycle operations.
type DocumentService struct {
	DB    *gorm.DB
	Blobs storage.Store
	Pool  Submitter
	Index ChunkIndex
	Log   zerolog.Logger

	// MaxFileBytes caps accepted upload content; 0 disables the check.
	MaxFileBytes int64
}

// ReserveUpload validates the declared file metadata, allocates a storage
// target, and creates the document row in the "uploading" state.
func (s *DocumentService) ReserveUpload(ctx context.Context, userID, fileName, mimeType string) (*UploadReservation, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "ReserveUpload",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthorized
	}
	if !extract.Supported(mimeType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, fmt.Errorf("%w: file name is required", ErrStorageFailed)
	}

	tgt, err := s.Blobs.CreateUploadTarget(userID, fileName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	doc, err := repo.CreateDocument(ctx, s.DB, tgt.DocumentID, userID, fileName, mimeType, tgt.Path)
	if err != nil {
		return nil, err
	}
	return &UploadReservation{Document: doc, Target: tgt}, nil
}

// UploadContent streams the file bytes into the reserved storage target and
// records the blob size. The document must still be in "uploading".
func (s *DocumentService) UploadContent(ctx context.Context, userID, docID string, r io.Reader) error {
	doc, err := repo.GetDocument(ctx, s.DB, docID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if doc.Status != domain.StatusUploading {
		return fmt.Errorf("%w: status %q", ErrInvalidState, doc.Status)
	}

	if s.MaxFileBytes > 0 {
		r = io.LimitReader(r, s.MaxFileBytes+1)
	}
	n, err := s.Blobs.Upload(ctx, doc.StoragePath, r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	if s.MaxFileBytes > 0 && n > s.MaxFileBytes {
		if derr := s.Blobs.Delete(ctx, doc.StoragePath); derr != nil {
			s.Log.Warn().Err(derr).Str("document_id", docID).Msg("failed to remove oversized blob")
		}
		return ErrFileTooLarge
	}
	return repo.UpdateDocumentSize(ctx, s.DB, docID, userID, n)
}

// ConfirmUpload moves the document from "uploading" to "processing" and
// hands it to the background pool. The caller gets a response immediately;
// ingestion runs detached.
func (s *DocumentService) ConfirmUpload(ctx context.Context, userID, docID string) (*domain.Document, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "ConfirmUpload",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("document.id", docID),
		),
	)
	defer span.End()

	doc, err := repo.GetDocument(ctx, s.DB, docID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := repo.TransitionStatus(ctx, s.DB, docID, domain.StatusUploading, domain.StatusProcessing); err != nil {
		if errors.Is(err, repo.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: status %q", ErrInvalidState, doc.Status)
		}
		return nil, err
	}
	doc.Status = domain.StatusProcessing

	if err := s.Pool.Submit(docID); err != nil {
		// The queue rejected the job: the document must not sit in
		// "processing" with nobody working on it.
		if serr := repo.SetStatus(ctx, s.DB, docID, domain.StatusError); serr != nil {
			s.Log.Error().Err(serr).Str("document_id", docID).Msg("failed to record error after submit rejection")
		}
		return nil, fmt.Errorf("%w: %v", ErrIngestionBusy, err)
	}
	return doc, nil
}

// List returns the user's non-trashed documents, newest first.
func (s *DocumentService) List(ctx context.Context, userID string) ([]domain.Document, error) {
	return repo.ListDocuments(ctx, s.DB, userID)
}

// ListReady returns the user's documents eligible for querying.
func (s *DocumentService) ListReady(ctx context.Context, userID string) ([]domain.Document, error) {
	return repo.ListReadyDocuments(ctx, s.DB, userID)
}

// Get returns a single non-trashed document.
func (s *DocumentService) Get(ctx context.Context, userID, docID string) (*domain.Document, error) {
	doc, err := repo.GetDocument(ctx, s.DB, docID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	return doc, err
}

// SetStarred toggles the star flag on a document.
func (s *DocumentService) SetStarred(ctx context.Context, userID, docID string, starred bool) error {
	err := repo.SetStarred(ctx, s.DB, docID, userID, starred)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Trash soft-deletes a document: it disappears from listings and search but
// keeps its chunks and blob, and remains purgeable.
func (s *DocumentService) Trash(ctx context.Context, userID, docID string) error {
	err := repo.TrashDocument(ctx, s.DB, docID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Purge hard-deletes the document, its chunks, its chat associations, the
// messages of referencing chats, and chats left empty — in one transaction.
// The backing blob is deleted afterwards, best-effort: a blob failure is
// logged but does not undo the metadata purge.
func (s *DocumentService) Purge(ctx context.Context, userID, docID string) error {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "Purge",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("document.id", docID),
		),
	)
	defer span.End()

	doc, err := repo.GetDocumentAnyState(ctx, s.DB, docID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := repo.PurgeDocument(ctx, s.DB, docID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := s.Blobs.Delete(ctx, doc.StoragePath); err != nil {
		s.Log.Warn().Err(err).Str("document_id", docID).Str("path", doc.StoragePath).
			Msg("purge: blob delete failed, metadata already removed")
	}
	return nil
}

// Retry re-runs ingestion for a document stuck in "error". Existing chunks
// are removed first (defensive, there should be none), then the document
// re-enters "processing" and is resubmitted to the pool.
func (s *DocumentService) Retry(ctx context.Context, userID, docID string) (*domain.Document, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "Retry",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("document.id", docID),
		),
	)
	defer span.End()

	doc, err := repo.GetDocument(ctx, s.DB, docID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusError {
		return nil, fmt.Errorf("%w: retry requires status %q, document is %q",
			ErrInvalidState, domain.StatusError, doc.Status)
	}

	if err := s.Index.DeleteDocument(ctx, docID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVectorStoreFailed, err)
	}
	if err := repo.TransitionStatus(ctx, s.DB, docID, domain.StatusError, domain.StatusProcessing); err != nil {
		if errors.Is(err, repo.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: document left %q state", ErrInvalidState, domain.StatusError)
		}
		return nil, err
	}
	doc.Status = domain.StatusProcessing

	if err := s.Pool.Submit(docID); err != nil {
		if serr := repo.SetStatus(ctx, s.DB, docID, domain.StatusError); serr != nil {
			s.Log.Error().Err(serr).Str("document_id", docID).Msg("failed to record error after submit rejection")
		}
		return nil, fmt.Errorf("%w: %v", ErrIngestionBusy, err)
	}
	return doc, nil
}
