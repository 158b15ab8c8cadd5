// Package chunk splits extracted document text into overlapping passages
// bounded by a maximum size, for embedding and similarity search.
//
// The splitter works recursively over a priority list of separators
// (paragraph breaks, line breaks, sentence ends, spaces): it always prefers
// the highest-priority separator that appears in the text, and only falls
// back to a harder split when a piece still exceeds the size limit. Adjacent
// chunks share up to Overlap characters of trailing context so that meaning
// is not lost at chunk boundaries.
//
// Splitting is total: any non-empty input produces at least one chunk. A
// single unsplittable unit longer than Size (no separators at all) is
// emitted as its own oversized chunk rather than failing.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// Defaults matching the ingestion pipeline configuration.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// separators in priority order: paragraphs, lines, sentences, words.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter produces overlapping passages no longer than Size runes
// (except for unsplittable units), with up to Overlap runes of shared
// context between adjacent passages.
type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter returns a Splitter with the given limits, falling back to
// defaults for non-positive size and clamping overlap below size.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Splitter{Size: size, Overlap: overlap}
}

// Split breaks text into ordered passages. It returns nil for empty or
// whitespace-only input; callers are expected to have rejected such input
// already (see extract.ErrEmptyContent).
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	out := s.split(text, separators)
	// Drop passages that became whitespace-only through separator splits.
	kept := out[:0]
	for _, c := range out {
		if strings.TrimSpace(c) != "" {
			kept = append(kept, c)
		}
	}
	return kept
}

// Split is a convenience wrapper using the given limits once.
func Split(text string, size, overlap int) []string {
	return NewSplitter(size, overlap).Split(text)
}

// split recursively partitions text on the best available separator and
// merges the resulting pieces back into size-bounded, overlapping chunks.
func (s *Splitter) split(text string, seps []string) []string {
	sep, rest := pickSeparator(text, seps)

	var out []string
	var pending []string
	for _, piece := range splitKeep(text, sep) {
		if runeLen(piece) <= s.Size {
			pending = append(pending, piece)
			continue
		}
		// Oversized piece: flush what we have, then split harder.
		out = append(out, s.merge(pending)...)
		pending = nil
		if len(rest) == 0 {
			// No softer separator can make progress; emit the unit whole.
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, rest)...)
		}
	}
	return append(out, s.merge(pending)...)
}

// merge joins consecutive pieces into chunks of at most Size runes. When a
// chunk is closed, its trailing pieces totalling at most Overlap runes are
// carried over as the head of the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	if len(pieces) == 0 {
		return nil
	}
	var chunks []string
	var cur []string
	curLen := 0
	for _, p := range pieces {
		pl := runeLen(p)
		if curLen+pl > s.Size && curLen > 0 {
			chunks = append(chunks, strings.Join(cur, ""))
			// Retain a tail of at most Overlap runes that still leaves
			// room for the incoming piece.
			for curLen > 0 && (curLen > s.Overlap || curLen+pl > s.Size) {
				curLen -= runeLen(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		curLen += pl
	}
	if curLen > 0 {
		chunks = append(chunks, strings.Join(cur, ""))
	}
	return chunks
}

// pickSeparator returns the highest-priority separator present in text and
// the remaining, lower-priority separators. When none applies it returns
// ("", nil), which makes splitKeep yield the text as a single piece.
func pickSeparator(text string, seps []string) (string, []string) {
	for i, sp := range seps {
		if strings.Contains(text, sp) {
			return sp, seps[i+1:]
		}
	}
	return "", nil
}

// splitKeep splits text after each occurrence of sep, keeping the separator
// attached to the preceding piece so that joining pieces reconstructs the
// original text exactly.
func splitKeep(text, sep string) []string {
	if sep == "" {
		return []string{text}
	}
	parts := strings.SplitAfter(text, sep)
	// SplitAfter leaves a trailing "" when text ends with sep.
	if n := len(parts); n > 0 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	return parts
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
