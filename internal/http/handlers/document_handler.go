// Document HTTP handlers.
//
// This file exposes REST endpoints for document resources:
//   - POST   /documents/upload-url      (reserve a two-phase upload)
//   - PUT    /documents/{id}/content    (send the file bytes)
//   - POST   /documents                 (confirm upload, start ingestion)
//   - GET    /documents                 (list, ETag support)
//   - GET    /documents/{id}           (fetch one)
//   - POST   /documents/{id}/star       (star / unstar)
//   - DELETE /documents/{id}           (move to trash)
//   - DELETE /documents/{id}/purge      (hard delete with cascade)
//   - POST   /documents/{id}/retry      (re-run failed ingestion)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/domain"
	"github.com/tbourn/go-docqa-backend/internal/repo"
	"github.com/tbourn/go-docqa-backend/internal/services"
)

//
// DTOs
//

// ReserveUploadRequest is the JSON payload for reserving an upload slot.
type ReserveUploadRequest struct {
	// FileName is the client-side name of the file, extension included.
	FileName string `json:"file_name" binding:"required" example:"q3-report.pdf"`
	// MimeType declares the content type; must be PDF, DOCX, or plain text.
	MimeType string `json:"mime_type" binding:"required" example:"application/pdf"`
}

// ReserveUploadResponse returns the created document and where to PUT the bytes.
type ReserveUploadResponse struct {
	Document *domain.Document `json:"document"`
	// UploadPath is the API path (relative to the base path) accepting the
	// file content for this reservation.
	UploadPath string `json:"upload_path" example:"/documents/141add05-4415-4938-b5a1-17e0d3171aff/content"`
}

// ConfirmUploadRequest is the JSON payload finalizing a two-phase upload.
type ConfirmUploadRequest struct {
	DocumentID string `json:"document_id" binding:"required" format:"uuid" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// StarRequest is the JSON payload toggling a document's star flag.
type StarRequest struct {
	Starred bool `json:"starred" example:"true"`
}

// ListDocumentsResponse wraps the user's document listing.
type ListDocumentsResponse struct {
	Documents []domain.Document `json:"documents"`
}

// docID validates the :id path parameter as a UUID.
func docID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "document id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// ReserveUpload godoc
// @ID          reserveUpload
// @Summary     Reserve a document upload
// @Description Creates a document in the "uploading" state and returns the path the file bytes should be PUT to.
// @Tags        Documents
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.ReserveUploadRequest  true  "File metadata"
//
// @Success     201  {object}  handlers.ReserveUploadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     415  {object}  handlers.ErrorResponse  "Unsupported format"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /documents/upload-url [post]
func (h *Handlers) ReserveUpload(c *gin.Context) {
	var req ReserveUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file_name and mime_type are required")
		return
	}

	res, err := h.docSvc.ReserveUpload(c.Request.Context(), userID(c), req.FileName, req.MimeType)
	if err != nil {
		failService(c, err, ErrCodeUploadFailed)
		return
	}
	ok(c, http.StatusCreated, ReserveUploadResponse{
		Document:   res.Document,
		UploadPath: fmt.Sprintf("/documents/%s/content", res.Document.ID),
	})
}

// UploadContent godoc
// @ID          uploadContent
// @Summary     Upload document content
// @Description Streams the raw file bytes into a reserved upload. The document must still be in the "uploading" state.
// @Tags        Documents
// @Accept      octet-stream
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Document ID (UUID)"     format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Failure     409  {object} handlers.ErrorResponse "Not in uploading state"
// @Failure     413  {object} handlers.ErrorResponse "File too large"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /documents/{id}/content [put]
func (h *Handlers) UploadContent(c *gin.Context) {
	id, valid := docID(c)
	if !valid {
		return
	}
	if err := h.docSvc.UploadContent(c.Request.Context(), userID(c), id, c.Request.Body); err != nil {
		failService(c, err, ErrCodeUploadFailed)
		return
	}
	noContent(c)
}

// ConfirmUpload godoc
// @ID          confirmUpload
// @Summary     Confirm an upload and start ingestion
// @Description Transitions the document from "uploading" to "processing" and enqueues background extraction, chunking, and embedding. Returns immediately.
// @Tags        Documents
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.ConfirmUploadRequest  true  "Reserved document id"
//
// @Success     202  {object} domain.Document
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Failure     409  {object} handlers.ErrorResponse "Not in uploading state"
// @Failure     503  {object} handlers.ErrorResponse "Ingestion queue full"
// @Router      /documents [post]
func (h *Handlers) ConfirmUpload(c *gin.Context) {
	var req ConfirmUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "document_id is required")
		return
	}
	if _, err := uuid.Parse(req.DocumentID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "document_id must be a UUID")
		return
	}

	doc, err := h.docSvc.ConfirmUpload(c.Request.Context(), userID(c), req.DocumentID)
	if err != nil {
		failService(c, err, ErrCodeUploadFailed)
		return
	}
	ok(c, http.StatusAccepted, doc)
}

// ListDocuments godoc
// @ID          listDocuments
// @Summary     List documents
// @Description Returns the user's non-trashed documents, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Documents
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
//
// @Success     200  {object} handlers.ListDocumentsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /documents [get]
func (h *Handlers) ListDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, isConcrete := h.docSvc.(*services.DocumentService); isConcrete {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.DocumentsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"documents:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	docs, err := h.docSvc.List(ctx, uid)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListDocumentsResponse{Documents: docs})
}

// GetDocument godoc
// @ID          getDocument
// @Summary     Fetch a document
// @Description Returns a single non-trashed document owned by the current user, including its processing status.
// @Tags        Documents
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Document ID (UUID)"     format(uuid)
//
// @Success     200  {object} domain.Document
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Router      /documents/{id} [get]
func (h *Handlers) GetDocument(c *gin.Context) {
	id, valid := docID(c)
	if !valid {
		return
	}
	doc, err := h.docSvc.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, doc)
}

// StarDocument godoc
// @ID          starDocument
// @Summary     Star or unstar a document
// @Tags        Documents
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Document ID (UUID)"     format(uuid)
// @Param       body       body    handlers.StarRequest  true  "Star flag"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Router      /documents/{id}/star [post]
func (h *Handlers) StarDocument(c *gin.Context) {
	id, valid := docID(c)
	if !valid {
		return
	}
	var req StarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.docSvc.SetStarred(c.Request.Context(), userID(c), id, req.Starred); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// TrashDocument godoc
// @ID          trashDocument
// @Summary     Move a document to trash
// @Description Soft-deletes the document: it disappears from listings and retrieval but remains purgeable.
// @Tags        Documents
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Document ID (UUID)"     format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Router      /documents/{id} [delete]
func (h *Handlers) TrashDocument(c *gin.Context) {
	id, valid := docID(c)
	if !valid {
		return
	}
	if err := h.docSvc.Trash(c.Request.Context(), userID(c), id); err != nil {
		failService(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}

// PurgeDocument godoc
// @ID          purgeDocument
// @Summary     Permanently delete a document
// @Description Hard-deletes the document, its chunks, its chat associations, the messages of referencing chats, and chats left empty. Not reversible.
// @Tags        Documents
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Document ID (UUID)"     format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /documents/{id}/purge [delete]
func (h *Handlers) PurgeDocument(c *gin.Context) {
	id, valid := docID(c)
	if !valid {
		return
	}
	if err := h.docSvc.Purge(c.Request.Context(), userID(c), id); err != nil {
		failService(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}

// RetryDocument godoc
// @ID          retryDocument
// @Summary     Retry failed ingestion
// @Description Re-runs the extraction/chunking/embedding pipeline for a document in the "error" state. Stale chunks are removed first.
// @Tags        Documents
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Document ID (UUID)"     format(uuid)
//
// @Success     202  {object} domain.Document
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Failure     409  {object} handlers.ErrorResponse "Not in error state"
// @Failure     503  {object} handlers.ErrorResponse "Ingestion queue full"
// @Router      /documents/{id}/retry [post]
func (h *Handlers) RetryDocument(c *gin.Context) {
	id, valid := docID(c)
	if !valid {
		return
	}
	doc, err := h.docSvc.Retry(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusAccepted, doc)
}
