// Package memory implements the long-term memory tier: conversation
// chunking, embedding, and the vector index.
package memory

import (
	"fmt"
	"strings"

	"github.com/xiaot623/recall/domain"
)

// DefaultChunkSize is the number of messages per chunk.
const DefaultChunkSize = 5

// ChunkMessages splits a chronologically-sorted message list into
// contiguous windows of chunkSize messages; the last window may be
// shorter. The output is fully determined by the input: no randomness,
// no wall clock.
func ChunkMessages(messages []domain.Message, chunkSize int) []domain.Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var chunks []domain.Chunk
	for i := 0; i < len(messages); i += chunkSize {
		end := i + chunkSize
		if end > len(messages) {
			end = len(messages)
		}
		window := messages[i:end]

		lines := make([]string, len(window))
		ids := make([]string, len(window))
		for j, msg := range window {
			lines[j] = fmt.Sprintf("%s: %s", msg.Role, msg.Content)
			ids[j] = msg.MessageID
		}

		chunks = append(chunks, domain.Chunk{
			SessionID:  window[0].SessionID,
			Text:       strings.Join(lines, "\n"),
			StartTime:  window[0].Timestamp,
			EndTime:    window[len(window)-1].Timestamp,
			MessageIDs: ids,
		})
	}
	return chunks
}
