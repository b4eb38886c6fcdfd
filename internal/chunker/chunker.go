// Package chunker splits extracted document text into overlapping word windows.
//
// Chunks are the unit that gets embedded: each window becomes one vector in
// the tenant's collection. Splitting is purely word-based, deterministic,
// and stateless, so re-chunking the same text always yields the same chunks
// in the same order.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// Defaults match the original ingestion behavior: 1000-word windows with a
// 200-word overlap between consecutive windows.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// ErrInvalidWindow indicates a chunk size / overlap combination that cannot
// make forward progress.
var ErrInvalidWindow = errors.New("invalid chunk window")

// Chunk splits text into overlapping windows of at most size words, stepping
// size-overlap words between windows. Windows that are empty after trimming
// are dropped.
//
// Returns ErrInvalidWindow if size is not positive or overlap >= size, since
// a non-positive step would loop forever.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidWindow, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must be non-negative, got %d", ErrInvalidWindow, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d >= chunk size %d", ErrInvalidWindow, overlap, size)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := size - overlap
	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(words) {
			break
		}
	}

	return chunks, nil
}

// ChunkDefault splits text using the default window and overlap.
func ChunkDefault(text string) ([]string, error) {
	return Chunk(text, DefaultChunkSize, DefaultOverlap)
}
