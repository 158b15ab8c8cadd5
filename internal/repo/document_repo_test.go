package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-docqa-backend/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid schema leakage across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func createTestDocument(t *testing.T, db *gorm.DB, userID string) *domain.Document {
	t.Helper()
	id := uuid.NewString()
	d, err := CreateDocument(context.Background(), db, id, userID, "notes.txt", "text/plain", userID+"/"+id+"/notes.txt")
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	return d
}

func TestCreateDocument_StartsUploading(t *testing.T) {
	db := newTestDB(t)
	d := createTestDocument(t, db, "u1")
	if d.Status != domain.StatusUploading {
		t.Errorf("Status = %q; want %q", d.Status, domain.StatusUploading)
	}
	got, err := GetDocument(context.Background(), db, d.ID, "u1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.FileName != "notes.txt" || got.MimeType != "text/plain" {
		t.Errorf("unexpected document: %+v", got)
	}
}

func TestGetDocument_WrongOwner(t *testing.T) {
	db := newTestDB(t)
	d := createTestDocument(t, db, "u1")
	if _, err := GetDocument(context.Background(), db, d.ID, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetDocument cross-user = %v; want ErrNotFound", err)
	}
}

func TestTransitionStatus_GuardedByFromState(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDocument(t, db, "u1")

	if err := TransitionStatus(ctx, db, d.ID, domain.StatusUploading, domain.StatusProcessing); err != nil {
		t.Fatalf("uploading->processing: %v", err)
	}
	// Repeating the same transition must fail: the from-state no longer matches.
	err := TransitionStatus(ctx, db, d.ID, domain.StatusUploading, domain.StatusProcessing)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second transition = %v; want ErrInvalidTransition", err)
	}
	// Retry path: error -> processing only from error.
	err = TransitionStatus(ctx, db, d.ID, domain.StatusError, domain.StatusProcessing)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error->processing from processing = %v; want ErrInvalidTransition", err)
	}

	if err := SetStatus(ctx, db, d.ID, domain.StatusError); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := TransitionStatus(ctx, db, d.ID, domain.StatusError, domain.StatusProcessing); err != nil {
		t.Fatalf("error->processing: %v", err)
	}
}

func TestSetStatus_MissingDocument(t *testing.T) {
	db := newTestDB(t)
	if err := SetStatus(context.Background(), db, "missing", domain.StatusError); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetStatus = %v; want ErrNotFound", err)
	}
}

func TestListDocuments_ExcludesTrashed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	keep := createTestDocument(t, db, "u1")
	trash := createTestDocument(t, db, "u1")
	createTestDocument(t, db, "u2") // other user

	if err := TrashDocument(ctx, db, trash.ID, "u1"); err != nil {
		t.Fatalf("TrashDocument: %v", err)
	}

	docs, err := ListDocuments(ctx, db, "u1")
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != keep.ID {
		t.Fatalf("docs = %+v; want only the non-trashed u1 document", docs)
	}
}

func TestListReadyDocuments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ready := createTestDocument(t, db, "u1")
	createTestDocument(t, db, "u1") // stays uploading
	if err := SetStatus(ctx, db, ready.ID, domain.StatusReady); err != nil {
		t.Fatal(err)
	}

	docs, err := ListReadyDocuments(ctx, db, "u1")
	if err != nil {
		t.Fatalf("ListReadyDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != ready.ID {
		t.Fatalf("docs = %+v; want only the ready document", docs)
	}
}

func TestSetStarred(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDocument(t, db, "u1")

	if err := SetStarred(ctx, db, d.ID, "u1", true); err != nil {
		t.Fatalf("SetStarred: %v", err)
	}
	got, err := GetDocument(ctx, db, d.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsStarred {
		t.Error("IsStarred = false; want true")
	}
	if err := SetStarred(ctx, db, d.ID, "u2", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-user SetStarred = %v; want ErrNotFound", err)
	}
}

func TestTrashDocument_TwiceFails(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDocument(t, db, "u1")

	if err := TrashDocument(ctx, db, d.ID, "u1"); err != nil {
		t.Fatalf("TrashDocument: %v", err)
	}
	if err := TrashDocument(ctx, db, d.ID, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second TrashDocument = %v; want ErrNotFound", err)
	}
	// Still reachable for purge via the unscoped getter.
	if _, err := GetDocumentAnyState(ctx, db, d.ID, "u1"); err != nil {
		t.Fatalf("GetDocumentAnyState after trash: %v", err)
	}
}

func TestUpdateDocumentSize(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDocument(t, db, "u1")

	if err := UpdateDocumentSize(ctx, db, d.ID, "u1", 1234); err != nil {
		t.Fatalf("UpdateDocumentSize: %v", err)
	}
	got, err := GetDocument(ctx, db, d.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Size != 1234 {
		t.Errorf("Size = %d; want 1234", got.Size)
	}
}

func TestCountOwnedDocuments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mine := createTestDocument(t, db, "u1")
	theirs := createTestDocument(t, db, "u2")

	n, err := CountOwnedDocuments(ctx, db, "u1", []string{mine.ID, theirs.ID, "missing"})
	if err != nil {
		t.Fatalf("CountOwnedDocuments: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d; want 1", n)
	}
	n, err = CountOwnedDocuments(ctx, db, "u1", nil)
	if err != nil || n != 0 {
		t.Errorf("empty ids = (%d, %v); want (0, nil)", n, err)
	}
}

func seedChunk(t *testing.T, db *gorm.DB, docID string) {
	t.Helper()
	err := db.Create(&domain.Chunk{
		ID:         uuid.NewString(),
		DocumentID: docID,
		Content:    "c",
		Embedding:  []byte("[1]"),
	}).Error
	if err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
}

func TestPurgeDocument_Cascade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	doc := createTestDocument(t, db, "u1")
	seedChunk(t, db, doc.ID)

	chat, err := CreateChat(ctx, db, "u1", "about the doc")
	if err != nil {
		t.Fatal(err)
	}
	if err := AddChatDocument(ctx, db, chat.ID, doc.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateMessage(ctx, db, chat.ID, domain.RoleUser, "question"); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateMessage(ctx, db, chat.ID, domain.RoleAssistant, "answer"); err != nil {
		t.Fatal(err)
	}

	if err := PurgeDocument(ctx, db, doc.ID, "u1"); err != nil {
		t.Fatalf("PurgeDocument: %v", err)
	}

	// Everything referencing the document is gone.
	if _, err := GetDocumentAnyState(ctx, db, doc.ID, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("document survived purge: %v", err)
	}
	if _, err := GetChat(ctx, db, chat.ID, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty chat survived purge: %v", err)
	}
	var msgCount int64
	db.Model(&domain.Message{}).Where("chat_id = ?", chat.ID).Count(&msgCount)
	if msgCount != 0 {
		t.Errorf("messages = %d; want 0", msgCount)
	}
	var chunkCount int64
	db.Model(&domain.Chunk{}).Where("document_id = ?", doc.ID).Count(&chunkCount)
	if chunkCount != 0 {
		t.Errorf("chunks = %d; want 0", chunkCount)
	}

	// Second purge on the now-absent document is NotFound.
	if err := PurgeDocument(ctx, db, doc.ID, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second purge = %v; want ErrNotFound", err)
	}
}

func TestPurgeDocument_KeepsChatsWithOtherDocuments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	purged := createTestDocument(t, db, "u1")
	kept := createTestDocument(t, db, "u1")
	chat, err := CreateChat(ctx, db, "u1", "two docs")
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{purged.ID, kept.ID} {
		if err := AddChatDocument(ctx, db, chat.ID, id); err != nil {
			t.Fatal(err)
		}
	}

	if err := PurgeDocument(ctx, db, purged.ID, "u1"); err != nil {
		t.Fatalf("PurgeDocument: %v", err)
	}
	if _, err := GetChat(ctx, db, chat.ID, "u1"); err != nil {
		t.Fatalf("chat with a remaining association was deleted: %v", err)
	}
	ids, err := ListChatDocumentIDs(ctx, db, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != kept.ID {
		t.Errorf("associations = %v; want only the kept document", ids)
	}
}

func TestPurgeDocument_TrashedStillPurgeable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDocument(t, db, "u1")
	if err := TrashDocument(ctx, db, d.ID, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := PurgeDocument(ctx, db, d.ID, "u1"); err != nil {
		t.Fatalf("PurgeDocument after trash: %v", err)
	}
}

func TestPurgeDocument_WrongOwner(t *testing.T) {
	db := newTestDB(t)
	d := createTestDocument(t, db, "u1")
	if err := PurgeDocument(context.Background(), db, d.ID, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user purge = %v; want ErrNotFound", err)
	}
}

func TestDeleteChunksForDocument(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDocument(t, db, "u1")
	seedChunk(t, db, d.ID)
	seedChunk(t, db, d.ID)

	if err := DeleteChunksForDocument(ctx, db, d.ID); err != nil {
		t.Fatalf("DeleteChunksForDocument: %v", err)
	}
	var n int64
	db.Model(&domain.Chunk{}).Where("document_id = ?", d.ID).Count(&n)
	if n != 0 {
		t.Errorf("chunks = %d; want 0", n)
	}
}
