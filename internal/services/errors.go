// Package services defines the business logic for documents, chats, and
// retrieval-grounded answers. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes should be performed at the
// handler layer.
package services

import "errors"

var (
	// ErrUnauthorized indicates the caller presented no valid owner identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates a referenced document or chat does not exist or
	// is not accessible to the current user.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedFormat is returned when an upload declares a MIME type
	// outside the allow-list (PDF, DOCX, plain text).
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyPrompt is returned when a query contains no text.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when a query exceeds the configured length limit.
	ErrTooLong = errors.New("prompt too long")

	// ErrInvalidState is returned when an operation is not allowed from the
	// document's current status (e.g., retry from anything but "error").
	ErrInvalidState = errors.New("operation not allowed in current document state")

	// ErrDocumentFilter is returned when a query's document filter names
	// documents the caller does not own.
	ErrDocumentFilter = errors.New("document filter references unknown documents")

	// ErrFileTooLarge is returned when upload content exceeds the size limit.
	ErrFileTooLarge = errors.New("file exceeds the maximum allowed size")

	// ErrEmbeddingFailed wraps provider failures while computing embeddings.
	ErrEmbeddingFailed = errors.New("embedding computation failed")

	// ErrVectorStoreFailed wraps failures reading or writing the vector index.
	ErrVectorStoreFailed = errors.New("vector store operation failed")

	// ErrCompletionFailed wraps provider failures while generating an answer.
	ErrCompletionFailed = errors.New("answer generation failed")

	// ErrStorageFailed wraps blob storage failures.
	ErrStorageFailed = errors.New("blob storage operation failed")

	// ErrIngestionBusy is returned when the background worker queue cannot
	// accept another document right now.
	ErrIngestionBusy = errors.New("ingestion queue is full, try again later")
)
