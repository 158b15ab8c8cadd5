// Package vectorstore persists chunk embeddings in the relational database
// and answers top-k cosine-similarity searches over them.
//
// Embeddings are stored as JSON-encoded float32 slices in a blob column,
// and similarity is computed in-process. That keeps the store on the same
// SQLite database as the rest of the data, with transactional replace
// semantics, at corpus sizes where a dedicated vector database would be
// overkill.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/domain"
)

// Entry is one chunk of text with its embedding, ready for indexing.
type Entry struct {
	Content   string
	Embedding []float32
}

// Match is one search hit, best first.
type Match struct {
	ChunkID    string
	DocumentID string
	FileName   string
	Content    string
	Score      float64
}

// Filter narrows a search. UserID is mandatory: searches never cross user
// boundaries. DocumentIDs, when non-empty, restricts hits to those documents.
type Filter struct {
	UserID      string
	DocumentIDs []string
}

// Store indexes and searches chunk embeddings.
type Store struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Store backed by the given database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}
}

// docLock returns the mutex serializing index writes for one document.
func (s *Store) docLock(docID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[docID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[docID] = l
	}
	return l
}

// ReplaceDocument atomically swaps the indexed chunks of a document: old
// chunks are deleted and the new ones inserted in a single transaction, so
// a concurrent search sees either the old set or the new set, never a mix.
func (s *Store) ReplaceDocument(ctx context.Context, docID string, entries []Entry) error {
	l := s.docLock(docID)
	l.Lock()
	defer l.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", docID).Delete(&domain.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		rows := make([]domain.Chunk, 0, len(entries))
		for _, e := range entries {
			blob, err := EncodeVector(e.Embedding)
			if err != nil {
				return fmt.Errorf("encode embedding: %w", err)
			}
			rows = append(rows, domain.Chunk{
				ID:         uuid.NewString(),
				DocumentID: docID,
				Content:    e.Content,
				Embedding:  blob,
			})
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
}

// DeleteDocument removes every indexed chunk of the document.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	l := s.docLock(docID)
	l.Lock()
	defer l.Unlock()

	return s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Delete(&domain.Chunk{}).Error
}

// Count returns the number of indexed chunks for the document.
func (s *Store) Count(ctx context.Context, docID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&domain.Chunk{}).
		Where("document_id = ?", docID).
		Count(&n).Error
	return n, err
}

// Search returns the k chunks most similar to the query vector among the
// caller's ready, non-trashed documents, ordered by descending cosine
// similarity.
func (s *Store) Search(ctx context.Context, query []float32, f Filter, k int) ([]Match, error) {
	if f.UserID == "" {
		return nil, fmt.Errorf("vectorstore: search requires a user id")
	}
	if k <= 0 {
		k = 5
	}

	type row struct {
		ID         string
		DocumentID string
		Content    string
		Embedding  []byte
		FileName   string
	}

	q := s.db.WithContext(ctx).
		Table("document_chunks AS c").
		Select("c.id, c.document_id, c.content, c.embedding, d.file_name").
		Joins("JOIN documents d ON d.id = c.document_id").
		Where("d.user_id = ? AND d.status = ? AND d.deleted_at IS NULL", f.UserID, domain.StatusReady)
	if len(f.DocumentIDs) > 0 {
		q = q.Where("c.document_id IN ?", f.DocumentIDs)
	}

	var rows []row
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("vectorstore: search query: %w", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		vec, err := DecodeVector(r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: chunk %s has corrupt embedding: %w", r.ID, err)
		}
		matches = append(matches, Match{
			ChunkID:    r.ID,
			DocumentID: r.DocumentID,
			FileName:   r.FileName,
			Content:    r.Content,
			Score:      Cosine(query, vec),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// EncodeVector serializes an embedding for the blob column.
func EncodeVector(v []float32) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// and zero vectors score 0 rather than erroring; they can only come from
// corrupt data and must not sink a whole search.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
