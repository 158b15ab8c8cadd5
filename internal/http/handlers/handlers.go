// Handler wiring and shared transport helpers.
//
// This file defines the service contracts the HTTP layer consumes, the
// Handlers aggregate that binds them, and small helpers shared across
// endpoint files (user identification, pagination clamping).
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-docqa-backend/internal/domain"
	"github.com/tbourn/go-docqa-backend/internal/services"
	"github.com/tbourn/go-docqa-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// DocumentService defines document lifecycle operations consumed by HTTP
// handlers: two-phase upload, listing, starring, trash, purge, and retry.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type DocumentService interface {
	// ReserveUpload creates a document in the "uploading" state and
	// allocates its storage target.
	ReserveUpload(ctx context.Context, userID, fileName, mimeType string) (*services.UploadReservation, error)
	// UploadContent streams file bytes into the reserved target.
	UploadContent(ctx context.Context, userID, docID string, r io.Reader) error
	// ConfirmUpload transitions the document to "processing" and enqueues
	// background ingestion.
	ConfirmUpload(ctx context.Context, userID, docID string) (*domain.Document, error)
	// List returns the user's non-trashed documents, newest first.
	List(ctx context.Context, userID string) ([]domain.Document, error)
	// Get returns a single non-trashed document owned by userID.
	Get(ctx context.Context, userID, docID string) (*domain.Document, error)
	// SetStarred toggles the star flag.
	SetStarred(ctx context.Context, userID, docID string, starred bool) error
	// Trash soft-deletes a document (recoverable, excluded from search).
	Trash(ctx context.Context, userID, docID string) error
	// Purge hard-deletes a document with its chunks and chat references.
	Purge(ctx context.Context, userID, docID string) error
	// Retry re-runs ingestion for a document in the "error" state.
	Retry(ctx context.Context, userID, docID string) (*domain.Document, error)
}

// ChatService defines chat lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChatService interface {
	// Create starts a new chat for userID, optionally scoped to documents.
	Create(ctx context.Context, userID, title string, documentIDs []string) (*services.ChatWithDocuments, error)
	// Get returns a single chat with its document associations.
	Get(ctx context.Context, userID, chatID string) (*services.ChatWithDocuments, error)
	// ListPage returns a page of chats for a user and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]services.ChatWithDocuments, int64, error)
	// UpdateTitle renames a chat that belongs to userID.
	UpdateTitle(ctx context.Context, userID, chatID, title string) error
	// Delete removes a chat with its messages and associations.
	Delete(ctx context.Context, userID, chatID string) error
	// Messages returns a page of a chat's messages in creation order.
	Messages(ctx context.Context, userID, chatID string, page, pageSize int) ([]domain.Message, int64, error)
}

// AnswerService defines the retrieval-grounded query operation.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AnswerService interface {
	// Ask resolves the chat, retrieves grounding chunks, and generates an
	// answer with citations.
	Ask(ctx context.Context, userID, chatID, query string, documentIDs []string) (*services.Answer, error)
}

// AnswerRecorder replays and records successful query results keyed by the
// caller's Idempotency-Key. A nil recorder disables replay.
type AnswerRecorder interface {
	// Replay returns the answer previously recorded under key, if any.
	Replay(ctx context.Context, userID, key string) (*services.Answer, bool)
	// Record associates key with a successful answer, best effort.
	Record(ctx context.Context, userID, key string, ans *services.Answer)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for documents, chats, and queries.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	docSvc    DocumentService
	chatSvc   ChatService
	answerSvc AnswerService
	answers   AnswerRecorder
}

// New constructs and returns a Handlers instance bound to the given services.
// answers may be nil, which disables Idempotency-Key replay on /query.
func New(docSvc DocumentService, chatSvc ChatService, answerSvc AnswerService, answers AnswerRecorder) *Handlers {
	return &Handlers{docSvc: docSvc, chatSvc: chatSvc, answerSvc: answerSvc, answers: answers}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// Shared DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// paginate computes the metadata block for one result page.
func paginate(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}
