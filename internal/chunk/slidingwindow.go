package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/agentmem/substrate/internal/model"
)

// Default sliding-window chunking parameters, SPEC_FULL §4.2.
const (
	DefaultTargetTokens  = 500
	DefaultOverlapTokens = 50
	tokensPerWord        = 1.3
)

// SlidingWindow turns a file's raw text into the ordered FileChunk
// sequence the Object Store persists. This is independent of the
// symbol-based Chunk type above: Chunk is what the Parser's symbols
// become for the lexical index over Symbol records; FileChunk is the
// Chunker's own content-addressed, token-budgeted window over the raw
// file text, per SPEC_FULL §4.2.
type SlidingWindow struct {
	Target  int // T, approximate token budget per chunk
	Overlap int // O, approximate token overlap between consecutive chunks
}

// NewSlidingWindow returns a window chunker with the spec's defaults.
func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{Target: DefaultTargetTokens, Overlap: DefaultOverlapTokens}
}

// estimateTokens approximates token count as whitespace-separated words
// times 1.3, a conservative overestimate, per SPEC_FULL §4.2.
func estimateTokens(s string) int {
	words := len(strings.Fields(s))
	return int(float64(words) * tokensPerWord)
}

// Chunks splits text into FileChunk records for fileID/path. The union of
// chunk line ranges covers [1, total_lines]; chunk_index increments
// monotonically from 0; the final chunk carries whatever remains.
func (w *SlidingWindow) Chunks(fileID, path, text string) []*model.FileChunk {
	lines := strings.Split(text, "\n")
	// strings.Split on a trailing newline yields a spurious empty final
	// element; drop it so line numbering matches the file's real lines.
	if len(lines) > 0 && lines[len(lines)-1] == "" && strings.HasSuffix(text, "\n") {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil
	}

	var chunks []*model.FileChunk
	index := 0
	start := 0 // 0-indexed into lines
	for start < len(lines) {
		curLines := []string{}
		tokenCount := 0
		i := start
		for i < len(lines) {
			curLines = append(curLines, lines[i])
			tokenCount += estimateTokens(lines[i])
			i++
			if tokenCount >= w.Target {
				break
			}
		}
		content := strings.Join(curLines, "\n")
		chunk := &model.FileChunk{
			Envelope:     model.Envelope{Kind: model.KindFileChunk},
			FileID:       fileID,
			Path:         path,
			ChunkIndex:   index,
			StartLine:    start + 1, // 1-indexed, inclusive
			EndLine:      i,         // i is exclusive end in 0-indexed terms == inclusive 1-indexed end
			ApproxTokens: tokenCount,
			Content:      content,
		}
		chunk.ContentHash = contentHash(content)
		chunk.ID = fileChunkID(fileID, index)
		chunks = append(chunks, chunk)
		index++

		if i >= len(lines) {
			break
		}

		// Seed the next chunk with the trailing ~O tokens of this one,
		// copying by line boundary so ranges overlap.
		overlapStart := i
		overlapTokens := 0
		for overlapStart > start && overlapTokens < w.Overlap {
			overlapStart--
			overlapTokens += estimateTokens(lines[overlapStart])
		}
		if overlapStart <= start {
			// Degenerate case: a single line exceeds the whole budget;
			// advance without overlap to guarantee forward progress.
			start = i
		} else {
			start = overlapStart
		}
	}
	return chunks
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func fileChunkID(fileID string, index int) string {
	sum := sha256.Sum256([]byte(fileID + "#" + strconv.Itoa(index)))
	return hex.EncodeToString(sum[:16])
}
