package ingestion

import (
	"fmt"

	"github.com/54b3r/groundrag/internal/rag"
)

// TextChunk is one window of a source document. ChunkIndex values for a
// given SourceID start at 0 and increase by one with no gaps.
type TextChunk struct {
	// Text is the raw window content.
	Text string

	// SourceID identifies the originating document (usually its path).
	SourceID string

	// ChunkIndex is the 0-based window position within SourceID.
	ChunkIndex int
}

// Chunk splits text into windows of at most chunkSize characters (runes).
// Consecutive windows share exactly chunkOverlap characters: the tail of
// chunk i equals the head of chunk i+1. The final chunk may be shorter than
// chunkSize. Empty text yields no chunks.
//
// Windows never split a UTF-8 sequence, so valid input yields valid chunks.
func Chunk(text string, chunkSize, chunkOverlap int, sourceID string) ([]TextChunk, error) {
	if chunkSize <= 0 || chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("ingestion: invalid chunking parameters size=%d overlap=%d: %w",
			chunkSize, chunkOverlap, rag.ErrConfigurationInvalid)
	}

	runes := []rune(text)
	var chunks []TextChunk
	for start, index := 0, 0; start < len(runes); index++ {
		end := min(start+chunkSize, len(runes))
		chunks = append(chunks, TextChunk{
			Text:       string(runes[start:end]),
			SourceID:   sourceID,
			ChunkIndex: index,
		})
		if end == len(runes) {
			break
		}
		start = end - chunkOverlap
	}
	return chunks, nil
}
