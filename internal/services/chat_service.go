// Package services – ChatService
//
// This file implements the ChatService, which manages the lifecycle of chats.
// It validates and normalizes titles, enforces ownership rules, and coordinates
// repository operations for creating, listing (with pagination), renaming, and
// deleting chats. Title handling is intentionally minimal here because
// automatic title generation happens in AnswerService on the first query.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/domain"
	"github.com/tbourn/go-docqa-backend/internal/repo"
)

// ChatWithDocuments pairs a chat with the ids of its associated documents,
// the shape list endpoints return.
type ChatWithDocuments struct {
	domain.Chat
	DocumentIDs []string `json:"document_ids"`
}

// ChatService provides chat-level operations such as creating, listing,
// renaming, and deleting chats. It enforces title rules and ownership
// constraints.
type ChatService struct {
	DB *gorm.DB

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewChatService constructs a ChatService with sane defaults for title handling.
func NewChatService(db *gorm.DB) *ChatService {
	return &ChatService{DB: db, TitleMaxLen: 60}
}

// Create inserts a new chat owned by userID with the provided title,
// optionally pre-associated with documents the user owns.
// Titles are normalized, trimmed, clipped, and a default fallback is applied.
func (s *ChatService) Create(ctx context.Context, userID, title string, documentIDs []string) (*ChatWithDocuments, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthorized
	}
	title = normalizeTitle(title)
	if title == "" {
		title = "New chat"
	}

	if err := s.validateDocuments(ctx, userID, documentIDs); err != nil {
		return nil, err
	}

	var chat *domain.Chat
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.CreateChat(ctx, tx, userID, s.clip(title))
		if err != nil {
			return err
		}
		chat = c
		for _, docID := range documentIDs {
			if err := repo.AddChatDocument(ctx, tx, c.ID, docID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ChatWithDocuments{Chat: *chat, DocumentIDs: dedupe(documentIDs)}, nil
}

// Get returns a single chat with its document associations.
func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*ChatWithDocuments, error) {
	chat, err := repo.GetChat(ctx, s.DB, chatID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ids, err := repo.ListChatDocumentIDs(ctx, s.DB, chatID)
	if err != nil {
		return nil, err
	}
	return &ChatWithDocuments{Chat: *chat, DocumentIDs: ids}, nil
}

// List returns all chats for a user with their associated document ids.
func (s *ChatService) List(ctx context.Context, userID string) ([]ChatWithDocuments, error) {
	chats, err := repo.ListChats(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ChatWithDocuments, 0, len(chats))
	for _, c := range chats {
		ids, err := repo.ListChatDocumentIDs(ctx, s.DB, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ChatWithDocuments{Chat: c, DocumentIDs: ids})
	}
	return out, nil
}

// ListPage returns a page of chats for a user (paginated) with associations.
// It applies defaults for invalid page/pageSize and returns the total count.
func (s *ChatService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]ChatWithDocuments, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountChats(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []ChatWithDocuments{}, 0, nil
	}

	chats, err := repo.ListChatsPage(ctx, s.DB, userID, offset, pageSize)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ChatWithDocuments, 0, len(chats))
	for _, c := range chats {
		ids, err := repo.ListChatDocumentIDs(ctx, s.DB, c.ID)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ChatWithDocuments{Chat: c, DocumentIDs: ids})
	}
	return out, total, nil
}

// UpdateTitle renames a chat, ensuring the chat exists and belongs to the
// given user. Falls back to "Untitled" if the title is blank.
func (s *ChatService) UpdateTitle(ctx context.Context, userID, chatID, title string) error {
	title = normalizeTitle(title)
	if title == "" {
		title = "Untitled"
	}
	err := repo.UpdateChatTitle(ctx, s.DB, chatID, userID, s.clip(title))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Delete removes a chat with its messages and document associations.
func (s *ChatService) Delete(ctx context.Context, userID, chatID string) error {
	err := repo.DeleteChat(ctx, s.DB, chatID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Messages returns a page of a chat's messages in creation order, plus the
// total count, after verifying ownership.
func (s *ChatService) Messages(ctx context.Context, userID, chatID string, page, pageSize int) ([]domain.Message, int64, error) {
	if _, err := repo.GetChat(ctx, s.DB, chatID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	total, err := repo.CountMessages(ctx, s.DB, chatID)
	if err != nil {
		return nil, 0, err
	}
	msgs, err := repo.ListMessagesPage(ctx, s.DB, chatID, (page-1)*pageSize, pageSize)
	return msgs, total, err
}

// validateDocuments checks that every id in the filter names a non-trashed
// document owned by userID.
func (s *ChatService) validateDocuments(ctx context.Context, userID string, ids []string) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	n, err := repo.CountOwnedDocuments(ctx, s.DB, userID, ids)
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return ErrDocumentFilter
	}
	return nil
}

// clip truncates a chat title to the configured maximum rune length.
func (s *ChatService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// dedupe removes duplicate ids while preserving order.
func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
