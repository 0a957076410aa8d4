// Package splitter cuts documents into overlapping chunks of whitespace
// separated tokens, keeping sentences whole where they fit.
package splitter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/alan-mat/docchat/internal/api"
)

const (
	MetaDocID      = "doc_id"
	MetaChunkIndex = "chunk_index"
)

var (
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrInvalidOverlap   = errors.New("chunk overlap must be smaller than chunk size")
)

type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
}

func New(size, overlap int) (*Splitter, error) {
	s := &Splitter{ChunkSize: size, ChunkOverlap: overlap}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s Splitter) validate() error {
	if s.ChunkSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidChunkSize, s.ChunkSize)
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		return fmt.Errorf("%w: size %d, overlap %d", ErrInvalidOverlap, s.ChunkSize, s.ChunkOverlap)
	}
	return nil
}

// SplitText returns chunks of at most ChunkSize tokens. Each chunk after the
// first starts with the last ChunkOverlap tokens of the one before it.
func (s Splitter) SplitText(text string) ([]string, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	step := s.ChunkSize - s.ChunkOverlap
	chunks := make([]string, 0)
	current := make([]string, 0, s.ChunkSize)
	fresh := 0

	flush := func() {
		chunks = append(chunks, strings.Join(current, " "))
		carry := current[max(0, len(current)-s.ChunkOverlap):]
		current = append(make([]string, 0, s.ChunkSize), carry...)
		fresh = 0
	}

	for _, piece := range pieces(text, step) {
		if len(current)+len(piece) > s.ChunkSize && fresh > 0 {
			flush()
		}
		current = append(current, piece...)
		fresh += len(piece)
	}
	if fresh > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks, nil
}

// pieces breaks text into sentences of at most limit tokens. Paragraph
// breaks always end a sentence.
func pieces(text string, limit int) [][]string {
	out := make([][]string, 0)
	emit := func(words []string) {
		for len(words) > limit {
			out = append(out, words[:limit])
			words = words[limit:]
		}
		if len(words) > 0 {
			out = append(out, words)
		}
	}

	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		words := strings.Fields(para)
		start := 0
		for i, w := range words {
			if strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") || strings.HasSuffix(w, "?") {
				emit(words[start : i+1])
				start = i + 1
			}
		}
		emit(words[start:])
	}
	return out
}

// SplitDocuments splits every document and returns the chunks in order.
// Chunk ids are derived from the document id and position so re-indexing
// the same files replaces earlier chunks.
func (s Splitter) SplitDocuments(docs []*api.Document) ([]*api.Document, error) {
	out := make([]*api.Document, 0, len(docs))
	for _, doc := range docs {
		texts, err := s.SplitText(doc.Text)
		if err != nil {
			return nil, err
		}

		docID := doc.ID
		if docID == "" {
			docID = uuid.NewString()
		}

		for i, text := range texts {
			chunk := doc.Copy()
			if chunk.Metadata == nil {
				chunk.Metadata = make(map[string]any)
			}
			chunk.ID = ChunkID(docID, i)
			chunk.Text = text
			chunk.Metadata[MetaDocID] = docID
			chunk.Metadata[MetaChunkIndex] = i
			out = append(out, chunk)
		}
	}
	return out, nil
}

func ChunkID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID+"#"+strconv.Itoa(index))).String()
}

// CountTokens returns the number of whitespace separated tokens in text.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
