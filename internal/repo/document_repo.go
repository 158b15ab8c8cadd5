// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Document
// model, including the processing status transitions and the transactional
// purge cascade.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a document is not found (or a guarded status transition does not
//     apply), functions return ErrNotFound / ErrInvalidTransition.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Status transitions are guarded by their from-state in the WHERE clause,
// so a concurrent transition loses cleanly (zero rows affected) instead of
// clobbering a newer state.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/domain"
)

// ErrInvalidTransition is returned when a status update's from-state guard
// matches no row: the document is either absent or not in the required state.
var ErrInvalidTransition = errors.New("invalid document status transition")

// CreateDocument inserts a new Document row in the "uploading" state.
// The caller supplies the ID (allocated together with the storage target).
func CreateDocument(ctx context.Context, db *gorm.DB, id, userID, fileName, mimeType, storagePath string) (*domain.Document, error) {
	d := &domain.Document{
		ID:          id,
		UserID:      userID,
		FileName:    fileName,
		MimeType:    mimeType,
		StoragePath: storagePath,
		Status:      domain.StatusUploading,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// GetDocument fetches a document by ID and owner. Soft-deleted documents are
// excluded. Returns ErrNotFound if the record does not exist or belongs to a
// different user.
func GetDocument(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Document, error) {
	var d domain.Document
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocumentAnyState fetches a document by ID and owner including
// soft-deleted ones. Purge needs this: trashed documents remain purgeable.
func GetDocumentAnyState(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Document, error) {
	var d domain.Document
	err := db.WithContext(ctx).
		Unscoped().
		Where("id = ? AND user_id = ?", id, userID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocuments returns all non-trashed documents for a user, newest first.
func ListDocuments(ctx context.Context, db *gorm.DB, userID string) ([]domain.Document, error) {
	var out []domain.Document
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListReadyDocuments returns the user's documents eligible for querying.
func ListReadyDocuments(ctx context.Context, db *gorm.DB, userID string) ([]domain.Document, error) {
	var out []domain.Document
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.StatusReady).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// CountOwnedDocuments returns how many of the given ids exist, are owned by
// userID, and are not trashed. Services use it to validate documentId
// filters before creating chat associations.
func CountOwnedDocuments(ctx context.Context, db *gorm.DB, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Count(&n).Error
	return n, err
}

// TransitionStatus moves a document from one status to another. The
// from-state is part of the WHERE clause: if the document is not currently
// in `from`, nothing changes and ErrInvalidTransition is returned.
func TransitionStatus(ctx context.Context, db *gorm.DB, id, from, to string) error {
	res := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// SetStatus forces a document's status regardless of its current state.
// The ingestion pipeline uses it to record terminal outcomes.
func SetStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDocumentSize records the byte size of the stored blob.
func UpdateDocumentSize(ctx context.Context, db *gorm.DB, id, userID string, size int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("size", size)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStarred updates the star flag, enforcing ownership.
func SetStarred(ctx context.Context, db *gorm.DB, id, userID string, starred bool) error {
	res := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_starred", starred)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TrashDocument soft-deletes a document. Already-trashed documents return
// ErrNotFound (the soft-delete scope excludes them from the update).
func TrashDocument(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Document{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChunksForDocument removes all chunk rows of a document. Used by
// retry (defensive cleanup) and by the purge cascade.
func DeleteChunksForDocument(ctx context.Context, db *gorm.DB, docID string) error {
	return db.WithContext(ctx).
		Where("document_id = ?", docID).
		Delete(&domain.Chunk{}).Error
}

// PurgeDocument hard-deletes a document and everything that references it,
// in one transaction:
//
//  1. messages of every chat associated with the document,
//  2. the document's chat associations,
//  3. chats of the same owner left with zero associations,
//  4. the document's chunks,
//  5. the document row itself (even if soft-deleted).
//
// The backing blob is NOT touched here; callers delete it afterwards,
// best-effort. Returns ErrNotFound when the document does not exist for
// this owner, leaving the database unchanged.
func PurgeDocument(ctx context.Context, db *gorm.DB, id, userID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d domain.Document
		if err := tx.Unscoped().Where("id = ? AND user_id = ?", id, userID).First(&d).Error; err != nil {
			return err
		}

		var chatIDs []string
		if err := tx.Model(&domain.ChatDocument{}).
			Where("document_id = ?", id).
			Pluck("chat_id", &chatIDs).Error; err != nil {
			return err
		}

		if len(chatIDs) > 0 {
			if err := tx.Where("chat_id IN ?", chatIDs).Delete(&domain.Message{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("document_id = ?", id).Delete(&domain.ChatDocument{}).Error; err != nil {
			return err
		}
		if len(chatIDs) > 0 {
			// Chats that referenced only this document are now empty; drop them.
			if err := tx.Where(
				"id IN ? AND user_id = ? AND id NOT IN (SELECT chat_id FROM chat_documents)",
				chatIDs, userID,
			).Delete(&domain.Chat{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("document_id = ?", id).Delete(&domain.Chunk{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("id = ?", id).Delete(&domain.Document{}).Error
	})
}
