// Package chunker splits documents into overlapping word windows for embedding.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultSize is the default number of words per chunk.
	DefaultSize = 750

	// DefaultOverlap is the default number of words shared by adjacent chunks.
	DefaultOverlap = 120
)

// ErrInvalidWindow is returned when size or overlap cannot describe a window.
var ErrInvalidWindow = errors.New("invalid chunk window")

// Validate checks that size and overlap describe a usable window.
// Overlap may be >= size; the progress guard in Chunk handles that case.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidWindow, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must be >= 0, got %d", ErrInvalidWindow, overlap)
	}
	return nil
}

// Chunk splits text into windows of up to size words, each starting
// size-overlap words after the previous one.
//
// Words are runs of non-whitespace; the whitespace between them is dropped and
// each chunk joins its words with a single space. Empty text yields no chunks.
// When overlap >= size the stride is not positive and the cursor advances by
// size instead, so the loop always terminates. No window is emitted after one
// that reaches the last word.
func Chunk(text string, size, overlap int) ([]string, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{}, nil
	}

	stride := size - overlap
	if stride <= 0 {
		stride = size
	}

	chunks := make([]string, 0, len(words)/stride+1)
	for i := 0; i < len(words); i += stride {
		end := min(i+size, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}

	return chunks, nil
}
