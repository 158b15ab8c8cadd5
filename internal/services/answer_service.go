// Package services – AnswerService
//
// This file implements the retrieval-grounded query flow: resolve or create
// the chat, persist the user's question, embed it, search the vector index
// over the caller's ready documents, assemble a context block from the top
// hits, and ask the completion model to answer strictly from that context.
// The assistant's reply is persisted and returned together with the ranked
// sources for citation.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/domain"
	"github.com/tbourn/go-docqa-backend/internal/repo"
	"github.com/tbourn/go-docqa-backend/internal/vectorstore"
)

// QueryEmbedder embeds a search query. Satisfied by *cohere.Client.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Completer generates an answer from an assembled prompt.
// Satisfied by *cohere.Client.
type Completer interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

// Searcher ranks indexed chunks against a query vector.
// Satisfied by *vectorstore.Store.
type Searcher interface {
	Search(ctx context.Context, query []float32, f vectorstore.Filter, k int) ([]vectorstore.Match, error)
}

// Source identifies one chunk an answer was grounded on.
type Source struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	FileName   string  `json:"file_name"`
	Score      float64 `json:"score"`
}

// encodeSources serializes a citation list for storage on the message row.
func encodeSources(sources []Source) string {
	if len(sources) == 0 {
		return ""
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return ""
	}
	return string(b)
}

// decodeSources is the inverse of encodeSources; unreadable input yields nil.
func decodeSources(raw string) []Source {
	if raw == "" {
		return nil
	}
	var out []Source
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// Answer is the result of one query turn. MessageID identifies the persisted
// assistant message; idempotent replays are served from it.
type Answer struct {
	ChatID    string   `json:"chat_id"`
	MessageID string   `json:"message_id"`
	Text      string   `json:"answer"`
	Sources   []Source `json:"sources"`
}

// The sentinel the model is instructed to use when the context cannot
// answer the question.
const dontKnowSentinel = "I don't know"

// Chat titles auto-generated from the first query are capped here.
const autoTitleMaxRunes = 50

// placeholder titles eligible for auto-generation
const (
	defaultTitleNew      = "New chat"
	defaultTitleUntitled = "Untitled"
)

// AnswerService orchestrates retrieval-grounded answers.
type AnswerService struct {
	DB        *gorm.DB
	Embedder  QueryEmbedder
	Search    Searcher
	Completer Completer
	Chats     *ChatService

	// TopK is how many chunks ground each answer.
	TopK int
	// MaxPromptRunes caps accepted queries; 0 disables the check.
	MaxPromptRunes int
}

// Ask runs the full query protocol for one question.
//
// The user message is persisted before any retrieval work, so a provider
// failure downstream still leaves the question recorded; in that case the
// error is returned and no assistant message is fabricated.
func (s *AnswerService) Ask(ctx context.Context, userID, chatID, query string, documentIDs []string) (*Answer, error) {
	tr := otel.Tracer("services/AnswerService")
	ctx, span := tr.Start(ctx, "Ask",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("chat.id", chatID),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthorized
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(query) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}
	documentIDs = dedupe(documentIDs)

	chat, err := s.resolveChat(ctx, userID, chatID, query, documentIDs)
	if err != nil {
		return nil, err
	}

	// Persist the question first: a downstream failure must not lose it.
	if _, err := repo.CreateMessage(ctx, s.DB, chat.ID, domain.RoleUser, query); err != nil {
		return nil, err
	}

	vec, err := s.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	k := s.TopK
	if k <= 0 {
		k = 5
	}
	matches, err := s.Search.Search(ctx, vec, vectorstore.Filter{UserID: userID, DocumentIDs: documentIDs}, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVectorStoreFailed, err)
	}

	answer, err := s.Completer.Chat(ctx, buildPrompt(query, matches))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, Source{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			FileName:   m.FileName,
			Score:      m.Score,
		})
	}

	// Citations are persisted with the reply so idempotent replays can
	// return them without re-running retrieval.
	reply, err := repo.CreateAssistantMessage(ctx, s.DB, chat.ID, answer, encodeSources(sources))
	if err != nil {
		return nil, err
	}
	return &Answer{ChatID: chat.ID, MessageID: reply.ID, Text: answer, Sources: sources}, nil
}

// resolveChat loads the chat when an id was supplied (adding any new
// document associations idempotently) or creates a fresh one titled from
// the query.
func (s *AnswerService) resolveChat(ctx context.Context, userID, chatID, query string, documentIDs []string) (*domain.Chat, error) {
	if chatID == "" {
		created, err := s.Chats.Create(ctx, userID, autoTitle(query), documentIDs)
		if err != nil {
			return nil, err
		}
		return &created.Chat, nil
	}

	chat, err := repo.GetChat(ctx, s.DB, chatID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(documentIDs) > 0 {
		if err := s.Chats.validateDocuments(ctx, userID, documentIDs); err != nil {
			return nil, err
		}
		for _, docID := range documentIDs {
			if err := repo.AddChatDocument(ctx, s.DB, chatID, docID); err != nil {
				return nil, err
			}
		}
	}

	// First real question into a placeholder-titled chat names it.
	if chat.Title == defaultTitleNew || chat.Title == defaultTitleUntitled {
		if err := repo.UpdateChatTitle(ctx, s.DB, chatID, userID, autoTitle(query)); err == nil {
			chat.Title = autoTitle(query)
		}
	}
	return chat, nil
}

// buildPrompt assembles the grounded-answer prompt: each retrieved chunk is
// introduced by its source document, and the model is told to answer only
// from that context.
func buildPrompt(query string, matches []vectorstore.Match) string {
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, fmt.Sprintf("From %s:\n%s", m.FileName, m.Content))
	}
	contextBlock := strings.Join(blocks, "\n\n")

	var b strings.Builder
	b.WriteString("Use ONLY the following context to answer the question. ")
	b.WriteString("If the answer is not in the context, say \"")
	b.WriteString(dontKnowSentinel)
	b.WriteString("\".\n\nContext:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	return b.String()
}

// autoTitle derives a chat title from the first query text: normalized,
// leading word title-cased, truncated to the rune cap.
func autoTitle(query string) string {
	title := normalizeTitle(query)
	if title == "" {
		return ""
	}
	caser := cases.Title(language.English)
	if i := strings.IndexByte(title, ' '); i > 0 {
		title = caser.String(title[:i]) + title[i:]
	} else {
		title = caser.String(title)
	}
	if utf8.RuneCountInString(title) > autoTitleMaxRunes {
		title = string([]rune(title)[:autoTitleMaxRunes])
	}
	return title
}
