// Query HTTP handler.
//
// POST /query runs one retrieval-grounded question/answer turn: it resolves
// (or creates) the chat, retrieves the most similar chunks from the caller's
// ready documents, and returns the generated answer with its sources.
//
// Idempotency:
// When the client supplies an Idempotency-Key header and a previous
// successful result exists for (user, key), the recorded assistant message
// is returned with `Idempotency-Replayed: true` instead of re-running
// retrieval and generation.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-docqa-backend/internal/http/middleware"
)

// QueryRequest is the JSON payload for asking a question.
type QueryRequest struct {
	// ChatID continues an existing chat; empty starts a new one.
	ChatID string `json:"chat_id" format:"uuid" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Query is the user's question.
	Query string `json:"query" binding:"required" example:"What was revenue in Q3?"`
	// DocumentIDs optionally restrict retrieval to the given owned documents.
	DocumentIDs []string `json:"document_ids"`
}

// Query godoc
// @ID          query
// @Summary     Ask a question over indexed documents
// @Description Embeds the question, retrieves the most similar chunks from the user's ready documents (optionally restricted to document_ids), and answers strictly from that context. When chat_id is empty a new chat is created and auto-titled from the question. Both the question and the answer are persisted as chat messages.
// @Description Supports idempotency via the Idempotency-Key header (same key → same recorded answer).
// @Tags        Query
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.QueryRequest  true  "Question payload"
//
// @Success     200  {object} services.Answer
// @Failure     400  {object} handlers.ErrorResponse "Bad request / invalid document filter"
// @Failure     404  {object} handlers.ErrorResponse "Chat not found"
// @Failure     502  {object} handlers.ErrorResponse "Provider failure"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /query [post]
func (h *Handlers) Query(c *gin.Context) {
	ctx := c.Request.Context()

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query is required")
		return
	}
	if req.ChatID != "" {
		if _, err := uuid.Parse(req.ChatID); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat_id must be a UUID")
			return
		}
	}

	currentUser := userID(c)

	// Idempotency (replay path): serve the recorded answer.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.answers != nil {
		if prev, found := h.answers.Replay(ctx, currentUser, idemKey); found {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, prev)
			return
		}
	}

	ans, err := h.answerSvc.Ask(ctx, currentUser, req.ChatID, req.Query, req.DocumentIDs)
	if err != nil {
		failService(c, err, ErrCodeAnswerFailed)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" && h.answers != nil {
		h.answers.Record(ctx, currentUser, idemKey, ans)
	}

	ok(c, http.StatusOK, ans)
}
