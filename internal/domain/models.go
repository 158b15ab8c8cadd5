// Package domain defines the persistence models for documents, chunks,
// chats, and messages. These types are mapped with GORM and form the core
// data layer of the document Q&A application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Document processing statuses. A document enters "uploading" when a storage
// slot is reserved, moves to "processing" once the bytes are confirmed
// stored, and ends in "ready" or "error" depending on the outcome of the
// ingestion pipeline. Retry is only permitted from "error".
const (
	StatusUploading  = "uploading"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusError      = "error"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Document represents one uploaded file owned by a user. The raw bytes live
// in blob storage under StoragePath; only metadata is kept here.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the document owner; indexed for retrieval.
//   - FileName: display name as uploaded.
//   - MimeType: declared MIME type (validated against the allow-list).
//   - Size: byte size of the stored blob.
//   - StoragePath: locator into blob storage, never the bytes themselves.
//   - Status: processing status (see Status* constants).
//   - IsStarred: user-controlled flag, no processing semantics.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker; trashed documents are excluded from
//     listing and search but remain purgeable.
type Document struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string         `json:"user_id"      gorm:"type:varchar(64);not null;index:idx_user_docs"`
	FileName    string         `json:"file_name"    gorm:"type:varchar(255);not null"`
	MimeType    string         `json:"mime_type"    gorm:"type:varchar(128);not null"`
	Size        int64          `json:"size"         gorm:"not null;default:0"`
	StoragePath string         `json:"storage_path" gorm:"type:varchar(512);not null"`
	Status      string         `json:"status"       gorm:"type:varchar(16);not null;check:status IN ('uploading','processing','ready','error')"`
	IsStarred   bool           `json:"is_starred"   gorm:"not null;default:false"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string { return "documents" }

// Chunk is one passage of extracted text belonging to exactly one document,
// together with its embedding vector. Chunks only exist for documents that
// completed ingestion: the pipeline writes the full set for a document in
// one transaction, so a reader never observes a partial set.
//
// Embedding holds the vector serialized as a JSON array of float32; the
// vectorstore package owns encoding and similarity math.
type Chunk struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	DocumentID string    `json:"document_id" gorm:"type:char(36);not null;index:idx_doc_chunks"`
	Content    string    `json:"content"     gorm:"type:text;not null"`
	Embedding  []byte    `json:"-"           gorm:"type:blob;not null"`
	CreatedAt  time.Time `json:"created_at"`

	// Document is the owner. Chunks are cascade-deleted with their document.
	Document Document `json:"-" gorm:"foreignKey:DocumentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Chunk.
func (Chunk) TableName() string { return "document_chunks" }

// Chat represents a conversation owned by a user, optionally scoped to a
// subset of that user's documents via ChatDocument associations.
//
// The owner is immutable; associated documents must belong to the same
// owner, which the service layer enforces before creating associations.
type Chat struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_chats"`
	Title     string    `json:"title"      gorm:"type:varchar(255);not null;default:'New chat'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// ChatDocument links a chat to one of the documents it is scoped to.
// The (chat_id, document_id) pair is unique, so association adds can be
// made idempotent at the persistence layer.
type ChatDocument struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ChatID     string    `json:"chat_id"     gorm:"type:char(36);not null;uniqueIndex:ux_chat_document,priority:1"`
	DocumentID string    `json:"document_id" gorm:"type:char(36);not null;uniqueIndex:ux_chat_document,priority:2;index"`
	CreatedAt  time.Time `json:"created_at"`

	Chat     Chat     `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Document Document `json:"-" gorm:"foreignKey:DocumentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatDocument.
func (ChatDocument) TableName() string { return "chat_documents" }

// Message represents a single turn within a chat, authored either by the
// "user" or the "assistant". Messages are immutable once created and are
// ordered by creation time ascending.
//
// Sources carries the citation list of an assistant turn, serialized as a
// JSON array by the service layer; it is empty for user turns.
type Message struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID    string    `json:"chat_id"    gorm:"type:char(36);not null;index:idx_chat_msgs,priority:1"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	Sources   string    `json:"-"          gorm:"type:text;not null;default:''"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_chat_msgs,priority:2"`

	// Chat is the parent conversation. Messages are cascade-deleted
	// if their chat is removed.
	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
